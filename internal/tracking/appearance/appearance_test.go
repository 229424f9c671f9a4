package appearance

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

var (
	red     = color.RGBA{200, 20, 20, 255}
	darkRed = color.RGBA{120, 10, 10, 255}
	blue    = color.RGBA{20, 20, 200, 255}
	navy    = color.RGBA{10, 10, 120, 255}
)

func newScene(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{90, 90, 90, 255}}, image.Point{}, draw.Src)
	return img
}

// paintStripes fills r with alternating one-pixel stripes of a and b.
func paintStripes(img *image.RGBA, r image.Rectangle, a, b color.RGBA, horizontal bool) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			k := x - r.Min.X
			if horizontal {
				k = y - r.Min.Y
			}
			if k%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, b)
			}
		}
	}
}

func boxOf(r image.Rectangle) detect.BBox {
	return detect.BBox{X: float64(r.Min.X), Y: float64(r.Min.Y), W: float64(r.Dx()), H: float64(r.Dy())}
}

func newTestExtractor(t *testing.T, mode FeatureMode) *Extractor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = mode
	e, err := NewExtractor(cfg)
	require.NoError(t, err)
	return e
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"unknown mode":     func(c *Config) { c.Mode = "sift" },
		"threshold > 1":    func(c *Config) { c.MatchThreshold = 1.2 },
		"negative lr":      func(c *Config) { c.LearningRate = -0.1 },
		"zero reid window": func(c *Config) { c.MaxReidentificationFrames = 0 },
		"zero hue bins":    func(c *Config) { c.HueBins = 0 },
		"zero roi size":    func(c *Config) { c.MinROISize = 0 },
		"negative var":     func(c *Config) { c.MinROIVariance = -1 },
		"block > window":   func(c *Config) { c.HOG.BlockSize = 256 },
		"stride off cell":  func(c *Config) { c.HOG.BlockStride = 12 },
		"untiled window":   func(c *Config) { c.HOG.WinWidth = 60 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewModel(cfg)
			assert.Error(t, err)
		})
	}
}

func TestHOGDescriptorLen(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3780, DefaultConfig().HOG.DescriptorLen())
	g := HOGGeometry{WinWidth: 32, WinHeight: 64, BlockSize: 16, BlockStride: 16, CellSize: 4, Bins: 9}
	assert.Equal(t, 2*4*16*9, g.DescriptorLen())
}

func TestHSV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		r, g, b uint8
		h, s, v float64
	}{
		{255, 0, 0, 0, 255, 255},
		{0, 255, 0, 60, 255, 255},
		{0, 0, 255, 120, 255, 255},
		{128, 128, 128, 0, 0, 128},
		{0, 0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		h, s, v := hsv(tt.r, tt.g, tt.b)
		assert.InDelta(t, tt.h, h, 1e-9)
		assert.InDelta(t, tt.s, s, 1e-9)
		assert.InDelta(t, tt.v, v, 1e-9)
	}
}

func TestExtract_Histogram(t *testing.T) {
	t.Parallel()
	img := newScene(320, 240)
	a := image.Rect(20, 20, 60, 100)
	b := image.Rect(200, 100, 240, 180)
	c := image.Rect(120, 20, 160, 100)
	paintStripes(img, a, red, darkRed, true)
	paintStripes(img, b, red, darkRed, true)
	paintStripes(img, c, blue, navy, true)

	e := newTestExtractor(t, ModeHistogram)
	sa, ok := e.Extract(img, boxOf(a))
	require.True(t, ok)
	sb, ok := e.Extract(img, boxOf(b))
	require.True(t, ok)
	sc, ok := e.Extract(img, boxOf(c))
	require.True(t, ok)

	assert.Len(t, sa.Vec, 30*32)
	assert.InDelta(t, 1.0, floats.Norm(sa.Vec, 2), 1e-9)
	assert.InDelta(t, 1.0, Similarity(sa, sb), 1e-9)
	assert.InDelta(t, 0.0, Similarity(sa, sc), 1e-9)
}

func TestExtract_ImageTypesAgree(t *testing.T) {
	t.Parallel()
	img := newScene(120, 120)
	r := image.Rect(10, 10, 70, 90)
	paintStripes(img, r, red, darkRed, false)

	nrgba := image.NewNRGBA(img.Bounds())
	draw.Draw(nrgba, nrgba.Bounds(), img, image.Point{}, draw.Src)

	e := newTestExtractor(t, ModeHybrid)
	want, ok := e.Extract(img, boxOf(r))
	require.True(t, ok)
	got, ok := e.Extract(nrgba, boxOf(r))
	require.True(t, ok)
	assert.InDeltaSlice(t, want.Vec, got.Vec, 1e-12)
}

func TestExtract_HOG(t *testing.T) {
	t.Parallel()
	img := newScene(320, 240)
	horiz1 := image.Rect(10, 10, 42, 74)
	horiz2 := image.Rect(100, 100, 132, 164)
	vert := image.Rect(200, 10, 232, 74)
	paintStripes(img, horiz1, red, darkRed, true)
	paintStripes(img, horiz2, red, darkRed, true)
	paintStripes(img, vert, red, darkRed, false)

	e := newTestExtractor(t, ModeHOG)
	s1, ok := e.Extract(img, boxOf(horiz1))
	require.True(t, ok)
	s2, ok := e.Extract(img, boxOf(horiz2))
	require.True(t, ok)
	s3, ok := e.Extract(img, boxOf(vert))
	require.True(t, ok)

	assert.Len(t, s1.Vec, 3780)
	assert.InDelta(t, 1.0, floats.Norm(s1.Vec, 2), 1e-9)
	assert.InDelta(t, 1.0, Similarity(s1, s2), 1e-9)
	assert.InDelta(t, 0.0, Similarity(s1, s3), 1e-9, "orthogonal gradient orientations")
}

func TestExtract_Hybrid(t *testing.T) {
	t.Parallel()
	img := newScene(200, 200)
	r := image.Rect(40, 40, 80, 120)
	paintStripes(img, r, blue, navy, true)

	e := newTestExtractor(t, ModeHybrid)
	s, ok := e.Extract(img, boxOf(r))
	require.True(t, ok)
	assert.Equal(t, ModeHybrid, s.Mode)
	assert.Len(t, s.Vec, 30*32+3780)
	assert.InDelta(t, 1.0, floats.Norm(s.Vec, 2), 1e-9)

	hist, ok := e.ExtractMode(img, boxOf(r), ModeHistogram)
	require.True(t, ok)
	assert.Equal(t, 0.0, Similarity(s, hist), "mode mismatch is never similar")
}

func TestExtract_Degenerate(t *testing.T) {
	t.Parallel()
	img := newScene(200, 200)
	paintStripes(img, image.Rect(0, 0, 40, 40), red, darkRed, true)
	e := newTestExtractor(t, ModeHistogram)

	tests := map[string]struct {
		img image.Image
		box detect.BBox
	}{
		"nil image":     {nil, detect.BBox{X: 0, Y: 0, W: 40, H: 40}},
		"too small":     {img, detect.BBox{X: 2, Y: 2, W: 4, H: 4}},
		"uniform":       {img, detect.BBox{X: 100, Y: 100, W: 50, H: 50}},
		"outside image": {img, detect.BBox{X: 500, Y: 500, W: 50, H: 50}},
		"clipped small": {img, detect.BBox{X: 195, Y: 0, W: 50, H: 50}},
		"zero size":     {img, detect.BBox{X: 10, Y: 10}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := e.Extract(tt.img, tt.box)
			assert.False(t, ok)
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	h := func(v ...float64) Signature { return Signature{Mode: ModeHistogram, Vec: v} }

	assert.InDelta(t, 1.0, Similarity(h(1, 2, 3), h(2, 4, 6)), 1e-12)
	assert.Equal(t, 0.0, Similarity(h(1, 0), h(-1, 0)), "negative cosine clamps to zero")
	assert.Equal(t, 0.0, Similarity(h(0, 0), h(1, 0)))
	assert.Equal(t, 0.0, Similarity(h(1, 0), h(1, 0, 0)))
	assert.Equal(t, 0.0, Similarity(h(), h()))
	assert.Equal(t, 0.0, Similarity(h(1, 0), Signature{Mode: ModeHOG, Vec: []float64{1, 0}}))
}

func TestBlend(t *testing.T) {
	t.Parallel()
	old := Signature{Mode: ModeHistogram, Vec: []float64{1, 0}}
	obs := Signature{Mode: ModeHistogram, Vec: []float64{0, 1}}

	got := Blend(old, obs, 0.1)
	assert.InDelta(t, 1.0, floats.Norm(got.Vec, 2), 1e-12)
	assert.InDelta(t, 9.0, got.Vec[0]/got.Vec[1], 1e-9)
	assert.Equal(t, []float64{1, 0}, old.Vec, "input untouched")

	assert.Equal(t, old, Blend(old, Signature{Mode: ModeHOG, Vec: []float64{0, 1}}, 0.5))
}
