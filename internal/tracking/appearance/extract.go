package appearance

import (
	"image"
	"math"

	"github.com/banshee-data/skyfollow/internal/detect"
	"gonum.org/v1/gonum/floats"
)

// Extractor computes signatures from image regions. It keeps scratch
// buffers between calls and is not safe for concurrent use.
type Extractor struct {
	cfg Config

	hist  []float64 // hue × sat bins
	win   []float64 // resampled grey window for HOG
	mag   []float64
	ang   []float64
	cells []float64
	block []float64
}

// NewExtractor returns an extractor for cfg.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := cfg.HOG
	n := g.WinWidth * g.WinHeight
	cpb := g.BlockSize / g.CellSize
	return &Extractor{
		cfg:   cfg,
		hist:  make([]float64, cfg.HueBins*cfg.SatBins),
		win:   make([]float64, n),
		mag:   make([]float64, n),
		ang:   make([]float64, n),
		cells: make([]float64, (g.WinWidth/g.CellSize)*(g.WinHeight/g.CellSize)*g.Bins),
		block: make([]float64, cpb*cpb*g.Bins),
	}, nil
}

// Mode returns the configured feature mode.
func (e *Extractor) Mode() FeatureMode { return e.cfg.Mode }

// Extract computes a signature of the configured mode for the region box
// of img. It returns false when the image is nil or the region is
// degenerate (too small after clipping, or nearly uniform).
func (e *Extractor) Extract(img image.Image, box detect.BBox) (Signature, bool) {
	return e.ExtractMode(img, box, e.cfg.Mode)
}

// ExtractMode is Extract with an explicit feature mode.
func (e *Extractor) ExtractMode(img image.Image, box detect.BBox, mode FeatureMode) (Signature, bool) {
	roi, ok := e.roi(img, box)
	if !ok {
		return Signature{}, false
	}
	switch mode {
	case ModeHistogram:
		return Signature{Mode: mode, Vec: e.histogram(img, roi)}, true
	case ModeHOG:
		return Signature{Mode: mode, Vec: e.hog(img, roi)}, true
	case ModeHybrid:
		h := e.histogram(img, roi)
		g := e.hog(img, roi)
		scale := 1 / math.Sqrt2
		vec := make([]float64, 0, len(h)+len(g))
		for _, v := range h {
			vec = append(vec, v*scale)
		}
		for _, v := range g {
			vec = append(vec, v*scale)
		}
		return Signature{Mode: mode, Vec: vec}, true
	}
	return Signature{}, false
}

// roi clips box to the image and rejects degenerate regions.
func (e *Extractor) roi(img image.Image, box detect.BBox) (image.Rectangle, bool) {
	if img == nil || !box.Valid() {
		return image.Rectangle{}, false
	}
	roi := box.Rect().Intersect(img.Bounds())
	if roi.Dx() < e.cfg.MinROISize || roi.Dy() < e.cfg.MinROISize {
		return image.Rectangle{}, false
	}
	if greyVariance(img, roi) < e.cfg.MinROIVariance {
		return image.Rectangle{}, false
	}
	return roi, true
}

// greyVariance samples at most ~64×64 points of roi.
func greyVariance(img image.Image, roi image.Rectangle) float64 {
	step := max(1, min(roi.Dx(), roi.Dy())/64)
	var sum, sumSq, n float64
	for y := roi.Min.Y; y < roi.Max.Y; y += step {
		for x := roi.Min.X; x < roi.Max.X; x += step {
			v := grey(rgbAt(img, x, y))
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

// histogram returns the unit-length hue × saturation histogram of roi.
func (e *Extractor) histogram(img image.Image, roi image.Rectangle) []float64 {
	hueBins, satBins := e.cfg.HueBins, e.cfg.SatBins
	clear(e.hist)
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			h, s, _ := hsv(rgbAt(img, x, y))
			hb := min(int(h/180*float64(hueBins)), hueBins-1)
			sb := min(int(s/256*float64(satBins)), satBins-1)
			e.hist[hb*satBins+sb]++
		}
	}
	out := append([]float64(nil), e.hist...)
	normalizeL2(out)
	return out
}

// hog returns the HOG descriptor of roi resampled to the detection window.
// Blocks are L2-Hys normalised; the whole descriptor is then unit length.
func (e *Extractor) hog(img image.Image, roi image.Rectangle) []float64 {
	g := e.cfg.HOG
	W, H := g.WinWidth, g.WinHeight

	// Nearest-neighbour resample to the window.
	sx := float64(roi.Dx()) / float64(W)
	sy := float64(roi.Dy()) / float64(H)
	for v := 0; v < H; v++ {
		y := roi.Min.Y + min(int((float64(v)+0.5)*sy), roi.Dy()-1)
		for u := 0; u < W; u++ {
			x := roi.Min.X + min(int((float64(u)+0.5)*sx), roi.Dx()-1)
			e.win[v*W+u] = grey(rgbAt(img, x, y))
		}
	}

	// Centred gradients with clamped borders; unsigned orientation.
	for v := 0; v < H; v++ {
		up, down := max(v-1, 0), min(v+1, H-1)
		for u := 0; u < W; u++ {
			left, right := max(u-1, 0), min(u+1, W-1)
			gx := e.win[v*W+right] - e.win[v*W+left]
			gy := e.win[down*W+u] - e.win[up*W+u]
			i := v*W + u
			e.mag[i] = math.Hypot(gx, gy)
			a := math.Atan2(gy, gx) * 180 / math.Pi
			if a < 0 {
				a += 180
			}
			if a >= 180 {
				a -= 180
			}
			e.ang[i] = a
		}
	}

	// Cell orientation histograms, votes split between the two nearest bins.
	cellsX := W / g.CellSize
	binWidth := 180 / float64(g.Bins)
	clear(e.cells)
	for v := 0; v < (H/g.CellSize)*g.CellSize; v++ {
		cy := v / g.CellSize
		for u := 0; u < cellsX*g.CellSize; u++ {
			cx := u / g.CellSize
			i := v*W + u
			pos := e.ang[i]/binWidth - 0.5
			lo := int(math.Floor(pos))
			frac := pos - float64(lo)
			hi := lo + 1
			lo = (lo + g.Bins) % g.Bins
			hi = hi % g.Bins
			base := (cy*cellsX + cx) * g.Bins
			e.cells[base+lo] += e.mag[i] * (1 - frac)
			e.cells[base+hi] += e.mag[i] * frac
		}
	}

	// Overlapping blocks.
	cpb := g.BlockSize / g.CellSize
	strideCells := g.BlockStride / g.CellSize
	blocksX := (W-g.BlockSize)/g.BlockStride + 1
	blocksY := (H-g.BlockSize)/g.BlockStride + 1
	out := make([]float64, 0, g.DescriptorLen())
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			k := 0
			for cy := 0; cy < cpb; cy++ {
				for cx := 0; cx < cpb; cx++ {
					c := ((by*strideCells+cy)*cellsX + bx*strideCells + cx) * g.Bins
					copy(e.block[k:k+g.Bins], e.cells[c:c+g.Bins])
					k += g.Bins
				}
			}
			l2Hys(e.block)
			out = append(out, e.block...)
		}
	}
	normalizeL2(out)
	return out
}

// l2Hys normalises v, clips at 0.2 and normalises again.
func l2Hys(v []float64) {
	const eps = 1e-3
	n := math.Sqrt(floats.Dot(v, v) + eps*eps)
	for i := range v {
		v[i] = min(v[i]/n, 0.2)
	}
	floats.Scale(1/math.Sqrt(floats.Dot(v, v)+eps*eps), v)
}
