package appearance

import (
	"image"
	"image/color"
)

// rgbAt returns the 8-bit RGB value at (x, y). The common decoder outputs
// are read directly from their backing slices.
func rgbAt(img image.Image, x, y int) (r, g, b uint8) {
	switch m := img.(type) {
	case *image.RGBA:
		i := m.PixOffset(x, y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	case *image.NRGBA:
		i := m.PixOffset(x, y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	case *image.YCbCr:
		c := m.YCbCrAt(x, y)
		return color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
	case *image.Gray:
		v := m.Pix[m.PixOffset(x, y)]
		return v, v, v
	}
	r16, g16, b16, _ := img.At(x, y).RGBA()
	return uint8(r16 >> 8), uint8(g16 >> 8), uint8(b16 >> 8)
}

func grey(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// hsv converts to the 8-bit HSV convention used by most vision toolkits:
// hue in [0, 180), saturation and value in [0, 255].
func hsv(r, g, b uint8) (h, s, v float64) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	maxc := max(rf, gf, bf)
	minc := min(rf, gf, bf)
	v = maxc
	if maxc == 0 {
		return 0, 0, 0
	}
	delta := maxc - minc
	s = delta / maxc * 255
	if delta == 0 {
		return 0, s, v
	}
	var deg float64
	switch maxc {
	case rf:
		deg = 60 * (gf - bf) / delta
	case gf:
		deg = 60*(bf-rf)/delta + 120
	default:
		deg = 60*(rf-gf)/delta + 240
	}
	if deg < 0 {
		deg += 360
	}
	return deg / 2, s, v
}
