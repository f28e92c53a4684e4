package gfx

import (
	"math"

	"golang.org/x/image/math/f32"
)

// BufferID identifies a GPU buffer created through a Backend.
type BufferID uint64

// TextureID identifies a texture owned by the host application.
type TextureID uint64

// MaterialID identifies a custom material. The zero value is the default
// UIR material.
type MaterialID uint64

// InvalidID is the zero value shared by all ID types.
const InvalidID = 0

// Built-in materials used for stencil clip masks. Any material other than
// MaterialDefault counts as a custom material for batching purposes.
const (
	MaterialDefault MaterialID = iota
	MaterialStencilPush
	MaterialStencilPop
)

// BufferKind selects the element type of a buffer.
type BufferKind uint8

const (
	// BufferVertex holds Vertex elements.
	BufferVertex BufferKind = iota
	// BufferIndex holds uint16 indices.
	BufferIndex
)

// String returns the buffer kind name.
func (k BufferKind) String() string {
	switch k {
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Transform is a 2D affine transform stored as two rows:
// [a b c; d e f] maps (x, y) to (a*x+b*y+c, d*x+e*y+f).
type Transform = f32.Aff3

// Identity is the identity transform.
var Identity = Transform{1, 0, 0, 0, 1, 0}

// Apply transforms a point.
func Apply(t Transform, x, y float32) (float32, float32) {
	return t[0]*x + t[1]*y + t[2], t[3]*x + t[4]*y + t[5]
}

// Mul returns the transform that applies b first and then a.
func Mul(a, b Transform) Transform {
	return Transform{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

// Invert returns the inverse of t. A singular transform yields Identity.
func Invert(t Transform) Transform {
	det := t[0]*t[4] - t[1]*t[3]
	if det == 0 {
		return Identity
	}
	inv := 1 / det
	a := t[4] * inv
	b := -t[1] * inv
	d := -t[3] * inv
	e := t[0] * inv
	return Transform{
		a, b, -(a*t[2] + b*t[5]),
		d, e, -(d*t[2] + e*t[5]),
	}
}

// Translate returns a translation transform.
func Translate(x, y float32) Transform {
	return Transform{1, 0, x, 0, 1, y}
}

// IsAxisAligned reports whether t maps axis-aligned rectangles to
// axis-aligned rectangles (no rotation or skew).
func IsAxisAligned(t Transform) bool {
	return t[1] == 0 && t[3] == 0
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y, W, H float32
}

// InfiniteRect contains every representable point used by the core.
var InfiniteRect = Rect{X: -math.MaxFloat32 / 2, Y: -math.MaxFloat32 / 2, W: math.MaxFloat32, H: math.MaxFloat32}

// MaxX returns the right edge.
func (r Rect) MaxX() float32 { return r.X + r.W }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float32 { return r.Y + r.H }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Contains reports whether the point lies inside r (edges inclusive).
func (r Rect) Contains(x, y float32) bool {
	return x >= r.X && x <= r.MaxX() && y >= r.Y && y <= r.MaxY()
}

// Intersect returns the intersection of r and o. Disjoint rectangles give
// a zero-size rect positioned at the overlap origin.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.MaxX(), o.MaxX())
	y1 := min(r.MaxY(), o.MaxY())
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// TransformBounds returns the axis-aligned bounds of r after transformation.
func TransformBounds(t Transform, r Rect) Rect {
	xs := [4]float32{}
	ys := [4]float32{}
	xs[0], ys[0] = Apply(t, r.X, r.Y)
	xs[1], ys[1] = Apply(t, r.MaxX(), r.Y)
	xs[2], ys[2] = Apply(t, r.MaxX(), r.MaxY())
	xs[3], ys[3] = Apply(t, r.X, r.MaxY())
	minX, minY, maxX, maxY := xs[0], ys[0], xs[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = min(minX, xs[i])
		minY = min(minY, ys[i])
		maxX = max(maxX, xs[i])
		maxY = max(maxY, ys[i])
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// DrawBufferRange is a contiguous index range submitted as one draw.
type DrawBufferRange struct {
	FirstIndex      int32
	IndexCount      int32
	MinIndexVal     int32
	VertsReferenced int32
}

// ShaderInfoKind selects one of the shared per-element attribute tables.
type ShaderInfoKind uint8

const (
	ShaderInfoTransform ShaderInfoKind = iota
	ShaderInfoClipRect
	ShaderInfoOpacity
	ShaderInfoColor
	ShaderInfoTextSettings

	NumShaderInfoKinds
)

// String returns the table name.
func (k ShaderInfoKind) String() string {
	switch k {
	case ShaderInfoTransform:
		return "transform"
	case ShaderInfoClipRect:
		return "cliprect"
	case ShaderInfoOpacity:
		return "opacity"
	case ShaderInfoColor:
		return "color"
	case ShaderInfoTextSettings:
		return "textsettings"
	default:
		return "unknown"
	}
}

// Texel is one RGBA32F entry of a shader info table.
type Texel [4]float32
