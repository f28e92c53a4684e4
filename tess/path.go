package tess

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/rclancey/earcut"

	"github.com/gogpu/uir/gfx"
)

type verb uint8

const (
	verbMove verb = iota
	verbLine
	verbQuad
	verbCubic
	verbClose
)

// Path is a sequence of contours made of lines and Bézier curves. The
// first contour is the outline; later contours are holes.
type Path struct {
	verbs []verb
	pts   []vec2
}

// MoveTo starts a new contour.
func (p *Path) MoveTo(x, y float32) {
	p.verbs = append(p.verbs, verbMove)
	p.pts = append(p.pts, vec2{x, y})
}

// LineTo adds a line to (x, y).
func (p *Path) LineTo(x, y float32) {
	p.verbs = append(p.verbs, verbLine)
	p.pts = append(p.pts, vec2{x, y})
}

// QuadTo adds a quadratic curve.
func (p *Path) QuadTo(cx, cy, x, y float32) {
	p.verbs = append(p.verbs, verbQuad)
	p.pts = append(p.pts, vec2{cx, cy}, vec2{x, y})
}

// CubicTo adds a cubic curve.
func (p *Path) CubicTo(c1x, c1y, c2x, c2y, x, y float32) {
	p.verbs = append(p.verbs, verbCubic)
	p.pts = append(p.pts, vec2{c1x, c1y}, vec2{c2x, c2y}, vec2{x, y})
}

// Close ends the current contour.
func (p *Path) Close() { p.verbs = append(p.verbs, verbClose) }

// Reset clears the path, keeping its storage.
func (p *Path) Reset() {
	p.verbs = p.verbs[:0]
	p.pts = p.pts[:0]
}

// contours flattens the path into closed polylines.
func (p *Path) contours() [][]vec2 {
	var out [][]vec2
	var cur []vec2
	finish := func() {
		if n := len(cur); n > 1 && cur[0] == cur[n-1] {
			cur = cur[:n-1]
		}
		if len(cur) >= 3 {
			out = append(out, cur)
		}
		cur = nil
	}
	i := 0
	for _, v := range p.verbs {
		switch v {
		case verbMove:
			finish()
			cur = append(cur, p.pts[i])
			i++
		case verbLine:
			cur = append(cur, p.pts[i])
			i++
		case verbQuad:
			if len(cur) == 0 {
				cur = append(cur, p.pts[i])
			}
			cur = flattenQuad(cur, cur[len(cur)-1], p.pts[i], p.pts[i+1], flattenTolerance)
			i += 2
		case verbCubic:
			if len(cur) == 0 {
				cur = append(cur, p.pts[i])
			}
			cur = flattenCubic(cur, cur[len(cur)-1], p.pts[i], p.pts[i+1], p.pts[i+2], flattenTolerance)
			i += 3
		case verbClose:
			finish()
		}
	}
	finish()
	return out
}

// flattenQuad appends the polyline of a quadratic curve, excluding p0,
// using de Casteljau subdivision until the midpoint deviation is within
// tol.
func flattenQuad(out []vec2, p0, c, p1 vec2, tol float32) []vec2 {
	mid := vec2{0.25*p0.x + 0.5*c.x + 0.25*p1.x, 0.25*p0.y + 0.5*c.y + 0.25*p1.y}
	d := mid.sub(lerp2(p0, p1, 0.5))
	if d.x*d.x+d.y*d.y <= tol*tol {
		return append(out, p1)
	}
	a := lerp2(p0, c, 0.5)
	b := lerp2(c, p1, 0.5)
	m := lerp2(a, b, 0.5)
	out = flattenQuad(out, p0, a, m, tol)
	return flattenQuad(out, m, b, p1, tol)
}

// flattenCubic appends the polyline of a cubic curve, excluding p0. Both
// control points must lie within tol of the chord, with the usual factor
// of 16 on the squared bound.
func flattenCubic(out []vec2, p0, c1, c2, p1 vec2, tol float32) []vec2 {
	u := vec2{3*c1.x - 2*p0.x - p1.x, 3*c1.y - 2*p0.y - p1.y}
	v := vec2{3*c2.x - p0.x - 2*p1.x, 3*c2.y - p0.y - 2*p1.y}
	if max(u.x*u.x+u.y*u.y, v.x*v.x+v.y*v.y) <= 16*tol*tol {
		return append(out, p1)
	}
	ab1 := lerp2(p0, c1, 0.5)
	ab2 := lerp2(c1, c2, 0.5)
	ab3 := lerp2(c2, p1, 0.5)
	bc1 := lerp2(ab1, ab2, 0.5)
	bc2 := lerp2(ab2, ab3, 0.5)
	m := lerp2(bc1, bc2, 0.5)
	out = flattenCubic(out, p0, ab1, bc1, m, tol)
	return flattenCubic(out, m, bc2, ab3, p1, tol)
}

// Bounds returns the bounding box of the flattened path.
func (p *Path) Bounds() gfx.Rect {
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := -minX, -minY
	for _, c := range p.contours() {
		for _, q := range c {
			minX, maxX = min(minX, q.x), max(maxX, q.x)
			minY, maxY = min(minY, q.y), max(maxY, q.y)
		}
	}
	if minX > maxX {
		return gfx.Rect{}
	}
	return gfx.Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// FillPath triangulates the path with ear clipping and writes the result.
func FillPath(w *MeshWriteData, p *Path, tint [4]uint8) error {
	contours := p.contours()
	if len(contours) == 0 {
		return nil
	}
	var coords []float64
	var holes []int
	for i, c := range contours {
		if i > 0 {
			holes = append(holes, len(coords)/2)
		}
		for _, q := range c {
			coords = append(coords, float64(q.x), float64(q.y))
		}
	}
	tris, err := earcut.Earcut(coords, holes, 2)
	if err != nil {
		return errors.Wrapf(err, "tess: triangulating %d contours", len(contours))
	}
	if len(tris)%3 != 0 {
		return errors.AssertionFailedf("tess: earcut returned %d indices", len(tris))
	}

	var proto gfx.Vertex
	proto.Flags[0] = gfx.VertexSolid
	e := newEmitter(w, vertexMaker(p.Bounds(), gfx.Rect{W: 1, H: 1}, proto))
	first := uint16(w.VertexCount())
	for i := 0; i < len(coords); i += 2 {
		e.vertex(vec2{float32(coords[i]), float32(coords[i+1])}, tint)
	}
	for i := 0; i < len(tris); i += 3 {
		e.tri(first+uint16(tris[i]), first+uint16(tris[i+1]), first+uint16(tris[i+2]))
	}
	return nil
}
