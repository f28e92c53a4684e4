package tess

import (
	"math"

	"github.com/gogpu/uir/gfx"
)

// Corner indexes per-corner arrays in clockwise order from the top left.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

// Edges is a set of rectangle edges.
type Edges uint8

const (
	EdgeLeft Edges = 1 << iota
	EdgeTop
	EdgeRight
	EdgeBottom

	EdgeNone Edges = 0
	EdgeAll        = EdgeLeft | EdgeTop | EdgeRight | EdgeBottom
)

// Radius is an elliptical corner radius.
type Radius struct {
	X, Y float32
}

// Radii holds one radius per Corner.
type Radii [4]Radius

// UniformRadii returns circular corners of radius r.
func UniformRadii(r float32) Radii {
	return Radii{{r, r}, {r, r}, {r, r}, {r, r}}
}

// IsZero reports whether every corner is square.
func (r Radii) IsZero() bool {
	for _, c := range r {
		if c.X != 0 && c.Y != 0 {
			return false
		}
	}
	return true
}

// clampRadii snaps near-zero radii to zero and limits each radius to half
// the rect size. A corner with one zero axis is square.
func clampRadii(r Radii, w, h float32) Radii {
	hw, hh := w/2, h/2
	for i := range r {
		x := clamp(snap(r[i].X), 0, hw)
		y := clamp(snap(r[i].Y), 0, hh)
		if x == 0 || y == 0 {
			x, y = 0, 0
		}
		r[i] = Radius{x, y}
	}
	return r
}

// mirrorFrame maps quarter-local coordinates, with the corner at the
// origin and the rect interior towards +x +y, to element space.
type mirrorFrame struct {
	origin vec2
	sx, sy float32
}

var identityFrame = mirrorFrame{sx: 1, sy: 1}

func (f mirrorFrame) apply(p vec2) vec2 {
	return vec2{f.origin.x + f.sx*p.x, f.origin.y + f.sy*p.y}
}

// flips reports whether the frame reverses winding.
func (f mirrorFrame) flips() bool { return f.sx*f.sy < 0 }

func cornerFrames(r gfx.Rect) [4]mirrorFrame {
	return [4]mirrorFrame{
		TopLeft:     {vec2{r.X, r.Y}, 1, 1},
		TopRight:    {vec2{r.MaxX(), r.Y}, -1, 1},
		BottomRight: {vec2{r.MaxX(), r.MaxY()}, -1, -1},
		BottomLeft:  {vec2{r.X, r.MaxY()}, 1, -1},
	}
}

// emitter writes geometry described in frame-local coordinates and keeps
// every triangle positively wound in element space.
type emitter struct {
	w     *MeshWriteData
	frame mirrorFrame
	base  int
	pts   []vec2
	mk    func(p vec2, tint [4]uint8) gfx.Vertex
}

func newEmitter(w *MeshWriteData, mk func(p vec2, tint [4]uint8) gfx.Vertex) *emitter {
	e := &emitter{w: w, mk: mk}
	e.begin(identityFrame)
	return e
}

func (e *emitter) begin(f mirrorFrame) {
	e.frame = f
	e.base = e.w.VertexCount()
	e.pts = e.pts[:0]
}

func (e *emitter) vertex(p vec2, tint [4]uint8) uint16 {
	e.pts = append(e.pts, p)
	return e.w.SetNextVertex(e.mk(e.frame.apply(p), tint))
}

func (e *emitter) local(i uint16) vec2 { return e.pts[int(i)-e.base] }

// tri emits a, b, c with canonical winding. Degenerate triangles are
// dropped; their vertices stay in the mesh.
func (e *emitter) tri(a, b, c uint16) {
	cr := cross(e.local(a), e.local(b), e.local(c))
	if abs32(cr) < epsilon*epsilon {
		return
	}
	if cr < 0 {
		b, c = c, b
	}
	if e.frame.flips() {
		b, c = c, b
	}
	e.w.Triangle(a, b, c)
}

// quad emits the convex quad a-b-c-d.
func (e *emitter) quad(a, b, c, d uint16) {
	e.tri(a, b, c)
	e.tri(a, c, d)
}

// ellipsePoint returns the point at angle theta on the quarter ellipse of
// a top-left corner: theta 0 lies on the left edge, pi/2 on the top edge.
func ellipsePoint(center vec2, rx, ry, theta float32) vec2 {
	switch theta {
	case 0:
		return vec2{center.x - rx, center.y}
	case math.Pi / 2:
		return vec2{center.x, center.y - ry}
	}
	s, c := math.Sincos(float64(theta))
	return vec2{center.x - rx*float32(c), center.y - ry*float32(s)}
}

// arcAngles returns n+1 angles evenly spaced on [from, to] with exact
// endpoints.
func arcAngles(from, to float32, n int) []float32 {
	out := make([]float32, n+1)
	for k := range out {
		out[k] = from + (to-from)*float32(k)/float32(n)
	}
	out[0], out[n] = from, to
	return out
}
