package tess

import (
	"math"

	"github.com/gogpu/uir/gfx"
)

// blend interpolates the varying attributes of three vertices with
// barycentric weights. Flags, table coordinates and texture come from
// vs[0].
func blend(vs [3]gfx.Vertex, l [3]float32) gfx.Vertex {
	out := vs[0]
	for k := 0; k < 3; k++ {
		out.Position[k] = l[0]*vs[0].Position[k] + l[1]*vs[1].Position[k] + l[2]*vs[2].Position[k]
	}
	for k := 0; k < 2; k++ {
		out.UV[k] = l[0]*vs[0].UV[k] + l[1]*vs[1].UV[k] + l[2]*vs[2].UV[k]
	}
	for k := 0; k < 4; k++ {
		c := l[0]*float32(vs[0].Tint[k]) + l[1]*float32(vs[1].Tint[k]) + l[2]*float32(vs[2].Tint[k])
		out.Tint[k] = uint8(clamp(float32(math.Round(float64(c))), 0, 255))
		out.Circle[k] = l[0]*vs[0].Circle[k] + l[1]*vs[1].Circle[k] + l[2]*vs[2].Circle[k]
	}
	return out
}

// lerpVertex interpolates from a (t = 0) to b (t = 1).
func lerpVertex(a, b gfx.Vertex, t float32) gfx.Vertex {
	return blend([3]gfx.Vertex{a, b, a}, [3]float32{1 - t, t, 0})
}

func pos(v gfx.Vertex) vec2 { return vec2{v.Position[0], v.Position[1]} }
