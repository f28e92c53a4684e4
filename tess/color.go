package tess

import (
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// VertexColor converts c to a straight-alpha vertex tint. With linear set
// the color channels are converted from sRGB to linear space; alpha is
// kept.
func VertexColor(c color.Color, linear bool) [4]uint8 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if !linear {
		return [4]uint8{n.R, n.G, n.B, n.A}
	}
	cf := colorful.Color{R: float64(n.R) / 255, G: float64(n.G) / 255, B: float64(n.B) / 255}
	r, g, b := cf.LinearRgb()
	return [4]uint8{unit8(r), unit8(g), unit8(b), n.A}
}

func unit8(v float64) uint8 {
	return uint8(math.Round(clamp(v, 0, 1) * 255))
}
