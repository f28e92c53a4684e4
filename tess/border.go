package tess

import (
	"math"

	"github.com/gogpu/uir/gfx"
)

// Side indexes per-edge arrays: left, top, right, bottom.
type Side int

const (
	SideLeft Side = iota
	SideTop
	SideRight
	SideBottom
)

// BorderParams describes the border ring of a rectangle.
type BorderParams struct {
	Rect   gfx.Rect
	Widths [4]float32
	Colors [4][4]uint8
	Radii  Radii
}

// cornerKind classifies a corner by its radius against the widths of the
// two edges meeting there.
type cornerKind int

const (
	// cornerStraight has no radius; the corner square is split on its
	// diagonal between the two edge colors.
	cornerStraight cornerKind = iota
	// cornerExact has a radius equal to both widths; the corner is a
	// filled fan.
	cornerExact
	// cornerRing has a radius exceeding both widths; the corner is a ring
	// between concentric arcs.
	cornerRing
	// cornerComplex has a radius exceeding one width only; the inner
	// boundary is a partial arc ending at the miter point.
	cornerComplex
)

func classifyCorner(r Radius, wl, wt float32) cornerKind {
	switch {
	case r.X == 0:
		return cornerStraight
	case nearlyEqual(r.X, wl) && nearlyEqual(r.Y, wt):
		return cornerExact
	case r.X > wl && r.Y > wt:
		return cornerRing
	default:
		return cornerComplex
	}
}

// splitAngle returns the arc angle where the line from the outer corner to
// the inner corner (wl, wt) crosses the outer ellipse. Arc points before it
// take the left color.
func splitAngle(r Radius, wl, wt float32) float32 {
	a := float64(wl / r.X)
	b := float64(wt / r.Y)
	den := a*a + b*b
	if den == 0 {
		return math.Pi / 4
	}
	t := ((a + b) - math.Sqrt(2*a*b)) / den
	return float32(math.Atan2(1-t*b, 1-t*a))
}

// TessellateBorder writes the border of p.Rect into w. Edges with zero
// width are skipped.
func TessellateBorder(w *MeshWriteData, p BorderParams) {
	if p.Rect.Empty() {
		return
	}
	radii := clampRadii(p.Radii, p.Rect.W, p.Rect.H)
	var proto gfx.Vertex
	proto.Flags[0] = gfx.VertexSolid
	e := newEmitter(w, vertexMaker(p.Rect, gfx.Rect{W: 1, H: 1}, proto))

	hw, hh := p.Rect.W/2, p.Rect.H/2
	widths := p.Widths
	for i := range widths {
		widths[i] = max(snap(widths[i]), 0)
	}
	// Horizontal and vertical edge feeding each corner.
	roles := [4][2]Side{
		TopLeft:     {SideLeft, SideTop},
		TopRight:    {SideRight, SideTop},
		BottomRight: {SideRight, SideBottom},
		BottomLeft:  {SideLeft, SideBottom},
	}
	for corner, f := range cornerFrames(p.Rect) {
		sl, st := roles[corner][0], roles[corner][1]
		wl, wt := min(widths[sl], hw), min(widths[st], hh)
		if wl == 0 && wt == 0 {
			continue
		}
		e.begin(f)
		q := borderQuarter{
			e: e, hw: hw, hh: hh, wl: wl, wt: wt,
			left: p.Colors[sl], top: p.Colors[st],
		}
		q.emit(radii[corner])
	}
}

// borderQuarter writes the top-left quarter of a border in local space.
type borderQuarter struct {
	e         *emitter
	hw, hh    float32
	wl, wt    float32
	left, top [4]uint8
}

func (q *borderQuarter) emit(r Radius) {
	kind := classifyCorner(r, q.wl, q.wt)
	var o0, i0, o1, i1 vec2 // corner piece ends on the left and top edges
	if kind == cornerStraight {
		o0, i0 = vec2{0, q.wt}, vec2{q.wl, q.wt}
		o1, i1 = vec2{q.wl, 0}, vec2{q.wl, q.wt}
		q.straight()
	} else {
		center := vec2{r.X, r.Y}
		inner := Radius{max(r.X-q.wl, 0), max(r.Y-q.wt, 0)}
		innerCenter := vec2{max(r.X, q.wl), max(r.Y, q.wt)}
		if kind == cornerExact {
			inner, innerCenter = Radius{}, center
		}
		o0 = ellipsePoint(center, r.X, r.Y, 0)
		o1 = ellipsePoint(center, r.X, r.Y, math.Pi/2)
		i0 = ellipsePoint(innerCenter, inner.X, inner.Y, 0)
		i1 = ellipsePoint(innerCenter, inner.X, inner.Y, math.Pi/2)
		q.rounded(center, r, innerCenter, inner)
	}

	if q.wl > 0 && q.hh > min(o0.y, i0.y) {
		a := q.e.vertex(o0, q.left)
		b := q.e.vertex(i0, q.left)
		c := q.e.vertex(vec2{q.wl, q.hh}, q.left)
		d := q.e.vertex(vec2{0, q.hh}, q.left)
		q.e.quad(a, b, c, d)
	}
	if q.wt > 0 && q.hw > min(o1.x, i1.x) {
		a := q.e.vertex(o1, q.top)
		b := q.e.vertex(vec2{q.hw, 0}, q.top)
		c := q.e.vertex(vec2{q.hw, q.wt}, q.top)
		d := q.e.vertex(i1, q.top)
		q.e.quad(a, b, c, d)
	}
}

func (q *borderQuarter) straight() {
	if q.wl == 0 || q.wt == 0 {
		return
	}
	origin := vec2{0, 0}
	miter := vec2{q.wl, q.wt}
	a := q.e.vertex(origin, q.left)
	b := q.e.vertex(miter, q.left)
	c := q.e.vertex(vec2{0, q.wt}, q.left)
	q.e.tri(a, b, c)
	a = q.e.vertex(origin, q.top)
	b = q.e.vertex(vec2{q.wl, 0}, q.top)
	c = q.e.vertex(miter, q.top)
	q.e.tri(a, b, c)
}

// rounded fills the band between the outer arc and the inner arc. An inner
// radius of zero collapses the inner arc to a point and the band to a fan.
// The band changes color at the split angle; vertices there are
// duplicated.
func (q *borderQuarter) rounded(center vec2, r Radius, innerCenter vec2, inner Radius) {
	split := splitAngle(r, q.wl, q.wt)
	total := arcSegments(max(r.X, r.Y))
	spans := [2]struct {
		from, to float32
		tint     [4]uint8
	}{
		{0, split, q.left},
		{split, math.Pi / 2, q.top},
	}
	fan := inner.X == 0 && inner.Y == 0
	for _, s := range spans {
		if s.to-s.from < epsilon {
			continue
		}
		n := max(1, int(math.Round(float64(total)*float64(s.to-s.from)/(math.Pi/2))))
		angles := arcAngles(s.from, s.to, n)
		if fan {
			c := q.e.vertex(innerCenter, s.tint)
			prev := q.e.vertex(ellipsePoint(center, r.X, r.Y, angles[0]), s.tint)
			for _, theta := range angles[1:] {
				p := q.e.vertex(ellipsePoint(center, r.X, r.Y, theta), s.tint)
				q.e.tri(c, prev, p)
				prev = p
			}
			continue
		}
		po := q.e.vertex(ellipsePoint(center, r.X, r.Y, angles[0]), s.tint)
		pi := q.e.vertex(ellipsePoint(innerCenter, inner.X, inner.Y, angles[0]), s.tint)
		for _, theta := range angles[1:] {
			o := q.e.vertex(ellipsePoint(center, r.X, r.Y, theta), s.tint)
			i := q.e.vertex(ellipsePoint(innerCenter, inner.X, inner.Y, theta), s.tint)
			q.e.quad(po, o, i, pi)
			po, pi = o, i
		}
	}
}
