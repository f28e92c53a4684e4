package tess

import (
	"math"
	"math/bits"

	"github.com/gogpu/uir/gfx"
)

// aaWidth is the width of an antialiasing skirt. Half of it lies inside
// the shape.
const aaWidth = 2

// RectParams describes a filled rectangle.
type RectParams struct {
	Rect  gfx.Rect
	Tint  [4]uint8
	Radii Radii
	// Texture is sampled over UV when set.
	Texture gfx.TextureID
	// UV is the texture rectangle mapped onto Rect. Zero means the whole
	// texture.
	UV gfx.Rect
	// AAEdges selects the edges that get an antialiasing skirt. Only
	// square-cornered rects are smoothed.
	AAEdges Edges
}

func (p RectParams) uv() gfx.Rect {
	if p.UV == (gfx.Rect{}) {
		return gfx.Rect{W: 1, H: 1}
	}
	return p.UV
}

// vertexMaker maps element-space positions to vertices carrying UVs
// interpolated over rect.
func vertexMaker(rect, uv gfx.Rect, proto gfx.Vertex) func(p vec2, tint [4]uint8) gfx.Vertex {
	return func(p vec2, tint [4]uint8) gfx.Vertex {
		v := proto
		v.Position = [3]float32{p.x, p.y, 0}
		v.Tint = tint
		if rect.W != 0 && rect.H != 0 {
			v.UV = [2]float32{
				uv.X + (p.x-rect.X)/rect.W*uv.W,
				uv.Y + (p.y-rect.Y)/rect.H*uv.H,
			}
		}
		return v
	}
}

func rectProto(p RectParams) gfx.Vertex {
	var v gfx.Vertex
	v.Flags[0] = gfx.VertexSolid
	if p.Texture != gfx.InvalidID {
		v.Flags[0] = gfx.VertexTextured
		v.TextureID = float32(p.Texture)
	}
	return v
}

// TessellateRect writes a filled rectangle, rounded or plain, into w.
func TessellateRect(w *MeshWriteData, p RectParams) {
	if p.Rect.Empty() {
		return
	}
	radii := clampRadii(p.Radii, p.Rect.W, p.Rect.H)
	proto := rectProto(p)
	if radii.IsZero() {
		if p.AAEdges&EdgeAll != 0 {
			proto.Flags[1] = 1
			if proto.Flags[0] == gfx.VertexSolid {
				proto.Flags[0] = gfx.VertexEdgeAA
			}
			e := newEmitter(w, vertexMaker(p.Rect, p.uv(), proto))
			smoothQuad(e, p.Rect, p.AAEdges&EdgeAll, p.Tint)
			return
		}
		e := newEmitter(w, vertexMaker(p.Rect, p.uv(), proto))
		plainQuad(e, p.Rect, p.Tint)
		return
	}
	e := newEmitter(w, vertexMaker(p.Rect, p.uv(), proto))
	hw, hh := p.Rect.W/2, p.Rect.H/2
	for corner, f := range cornerFrames(p.Rect) {
		e.begin(f)
		fillQuarter(e, hw, hh, radii[corner], p.Tint)
	}
}

func plainQuad(e *emitter, r gfx.Rect, tint [4]uint8) {
	a := e.vertex(vec2{r.X, r.Y}, tint)
	b := e.vertex(vec2{r.MaxX(), r.Y}, tint)
	c := e.vertex(vec2{r.MaxX(), r.MaxY()}, tint)
	d := e.vertex(vec2{r.X, r.MaxY()}, tint)
	e.quad(a, b, c, d)
}

// fillQuarter fills the top-left quarter [0,hw]x[0,hh] of a rect: a fan
// for the corner, strips along the two edges and the remaining center.
func fillQuarter(e *emitter, hw, hh float32, r Radius, tint [4]uint8) {
	if r.X == 0 {
		a := e.vertex(vec2{0, 0}, tint)
		b := e.vertex(vec2{hw, 0}, tint)
		c := e.vertex(vec2{hw, hh}, tint)
		d := e.vertex(vec2{0, hh}, tint)
		e.quad(a, b, c, d)
		return
	}
	center := vec2{r.X, r.Y}
	c := e.vertex(center, tint)
	angles := arcAngles(0, math.Pi/2, arcSegments(max(r.X, r.Y)))
	first := e.vertex(ellipsePoint(center, r.X, r.Y, angles[0]), tint)
	prev := first
	for _, theta := range angles[1:] {
		p := e.vertex(ellipsePoint(center, r.X, r.Y, theta), tint)
		e.tri(c, prev, p)
		prev = p
	}
	last := prev

	var bottom, right uint16
	if hh > r.Y {
		bottom = e.vertex(vec2{r.X, hh}, tint)
		edge := e.vertex(vec2{0, hh}, tint)
		e.quad(first, c, bottom, edge)
	}
	if hw > r.X {
		edge := e.vertex(vec2{hw, 0}, tint)
		right = e.vertex(vec2{hw, r.Y}, tint)
		e.quad(last, edge, right, c)
	}
	if hh > r.Y && hw > r.X {
		inner := e.vertex(vec2{hw, hh}, tint)
		e.quad(c, right, inner, bottom)
	}
}

// aaRects returns the rect shrunk by half a skirt on smoothed edges and
// the rect grown by half a skirt on them.
func aaRects(r gfx.Rect, mask Edges) (inner, outer [4]float32) {
	const h = aaWidth / 2
	inner = [4]float32{r.X, r.Y, r.MaxX(), r.MaxY()}
	outer = inner
	if mask&EdgeLeft != 0 {
		inner[0] += h
		outer[0] -= h
	}
	if mask&EdgeTop != 0 {
		inner[1] += h
		outer[1] -= h
	}
	if mask&EdgeRight != 0 {
		inner[2] -= h
		outer[2] += h
	}
	if mask&EdgeBottom != 0 {
		inner[3] -= h
		outer[3] += h
	}
	return inner, outer
}

// skirt tracks the vertices of a smoothed quad: the inner corners and the
// outer ends of each edge strip.
type skirt struct {
	e            *emitter
	inner, outer [4]float32
	tint         [4]uint8
	// corners holds the inner quad in Corner order.
	corners [4]uint16
	// ends holds, per edge, the outer strip vertices at the edge's start
	// and end corner.
	ends [4][2]uint16
}

func (s *skirt) aaVertex(p vec2, dist float32) uint16 {
	i := s.e.vertex(p, s.tint)
	if !s.e.w.counting && int(i) < len(s.e.w.vertices) {
		s.e.w.vertices[i].Circle = [4]float32{dist, aaWidth, 0, 0}
	}
	return i
}

func (s *skirt) interior() {
	in := s.inner
	s.corners = [4]uint16{
		TopLeft:     s.aaVertex(vec2{in[0], in[1]}, 1),
		TopRight:    s.aaVertex(vec2{in[2], in[1]}, 1),
		BottomRight: s.aaVertex(vec2{in[2], in[3]}, 1),
		BottomLeft:  s.aaVertex(vec2{in[0], in[3]}, 1),
	}
	s.e.quad(s.corners[TopLeft], s.corners[TopRight], s.corners[BottomRight], s.corners[BottomLeft])
}

// edgeIndex maps a single edge bit to 0..3 (left, top, right, bottom).
func edgeIndex(edge Edges) int { return bits.TrailingZeros8(uint8(edge)) }

// edgeCorners returns the corners at the start and end of an edge, walking
// clockwise.
func edgeCorners(edge Edges) (Corner, Corner) {
	switch edge {
	case EdgeLeft:
		return BottomLeft, TopLeft
	case EdgeTop:
		return TopLeft, TopRight
	case EdgeRight:
		return TopRight, BottomRight
	default:
		return BottomRight, BottomLeft
	}
}

// strip adds the skirt quad along one smoothed edge.
func (s *skirt) strip(edge Edges) {
	in, out := s.inner, s.outer
	a, b := edgeCorners(edge)
	pos := func(c Corner) vec2 {
		p := vec2{in[0], in[1]}
		if c == TopRight || c == BottomRight {
			p.x = in[2]
		}
		if c == BottomLeft || c == BottomRight {
			p.y = in[3]
		}
		switch edge {
		case EdgeLeft:
			p.x = out[0]
		case EdgeTop:
			p.y = out[1]
		case EdgeRight:
			p.x = out[2]
		case EdgeBottom:
			p.y = out[3]
		}
		return p
	}
	oa := s.aaVertex(pos(a), -1)
	ob := s.aaVertex(pos(b), -1)
	s.ends[edgeIndex(edge)] = [2]uint16{oa, ob}
	s.e.quad(s.corners[a], oa, ob, s.corners[b])
}

// cornerFan closes the square between the strips of two smoothed edges
// meeting at c. before is the edge ending at c, after the edge starting
// there.
func (s *skirt) cornerFan(c Corner, before, after Edges) {
	out := s.outer
	p := vec2{out[0], out[1]}
	if c == TopRight || c == BottomRight {
		p.x = out[2]
	}
	if c == BottomLeft || c == BottomRight {
		p.y = out[3]
	}
	tip := s.aaVertex(p, -1)
	in := s.corners[c]
	s.e.tri(in, s.ends[edgeIndex(before)][1], tip)
	s.e.tri(in, tip, s.ends[edgeIndex(after)][0])
}

// cornerEdges lists, per corner, the edge ending there and the edge
// starting there.
var cornerEdges = [4][2]Edges{
	TopLeft:     {EdgeLeft, EdgeTop},
	TopRight:    {EdgeTop, EdgeRight},
	BottomRight: {EdgeRight, EdgeBottom},
	BottomLeft:  {EdgeBottom, EdgeLeft},
}

// smoothQuad writes a square-cornered rect with skirts on mask. The
// layout depends on how many edges are smoothed.
func smoothQuad(e *emitter, r gfx.Rect, mask Edges, tint [4]uint8) {
	inner, outer := aaRects(r, mask)
	s := &skirt{e: e, inner: inner, outer: outer, tint: tint}
	s.interior()

	switch n := bits.OnesCount8(uint8(mask)); {
	case n == 1:
		s.strip(mask)
	case n == 2 && (mask == EdgeLeft|EdgeRight || mask == EdgeTop|EdgeBottom):
		s.smoothOpposite(mask)
	case n == 2:
		s.smoothCorner(mask)
	default:
		s.smoothAll(mask)
	}
}

func (s *skirt) smoothOpposite(mask Edges) {
	for edge := EdgeLeft; edge <= EdgeBottom; edge <<= 1 {
		if mask&edge != 0 {
			s.strip(edge)
		}
	}
}

func (s *skirt) smoothCorner(mask Edges) {
	for c, pair := range cornerEdges {
		if mask == pair[0]|pair[1] {
			s.strip(pair[0])
			s.strip(pair[1])
			s.cornerFan(Corner(c), pair[0], pair[1])
			return
		}
	}
}

func (s *skirt) smoothAll(mask Edges) {
	for edge := EdgeLeft; edge <= EdgeBottom; edge <<= 1 {
		if mask&edge != 0 {
			s.strip(edge)
		}
	}
	for c, pair := range cornerEdges {
		if mask&pair[0] != 0 && mask&pair[1] != 0 {
			s.cornerFan(Corner(c), pair[0], pair[1])
		}
	}
}
