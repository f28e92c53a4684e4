package tess

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// maxClipPoints bounds a triangle clipped by four half-planes.
const maxClipPoints = 7

// ClipMesh writes the part of an indexed triangle mesh that lies inside
// clip. All source vertices are copied first so that triangles fully inside
// keep their indices; triangles crossing the rect are replaced by a fan
// over the clipped polygon with interpolated attributes.
func ClipMesh(w *MeshWriteData, vertices []gfx.Vertex, indices []uint16, clip gfx.Rect) error {
	if len(indices)%3 != 0 {
		return errors.Newf("tess: index count %d is not a multiple of 3", len(indices))
	}
	base := uint16(w.VertexCount())
	for _, v := range vertices {
		w.SetNextVertex(v)
	}
	for t := 0; t < len(indices); t += 3 {
		ia, ib, ic := indices[t], indices[t+1], indices[t+2]
		if int(ia) >= len(vertices) || int(ib) >= len(vertices) || int(ic) >= len(vertices) {
			return errors.Newf("tess: triangle %d references a vertex out of range", t/3)
		}
		tri := [3]gfx.Vertex{vertices[ia], vertices[ib], vertices[ic]}
		switch classifyTriangle(tri, clip) {
		case triangleInside:
			w.Triangle(base+ia, base+ib, base+ic)
		case triangleCrossing:
			clipTriangle(w, tri, clip)
		}
	}
	return nil
}

type triangleClass int

const (
	triangleOutside triangleClass = iota
	triangleInside
	triangleCrossing
)

func classifyTriangle(tri [3]gfx.Vertex, clip gfx.Rect) triangleClass {
	minX, minY := tri[0].Position[0], tri[0].Position[1]
	maxX, maxY := minX, minY
	for _, v := range tri[1:] {
		minX, maxX = min(minX, v.Position[0]), max(maxX, v.Position[0])
		minY, maxY = min(minY, v.Position[1]), max(maxY, v.Position[1])
	}
	switch {
	case maxX <= clip.X || minX >= clip.MaxX() || maxY <= clip.Y || minY >= clip.MaxY():
		return triangleOutside
	case minX >= clip.X && maxX <= clip.MaxX() && minY >= clip.Y && maxY <= clip.MaxY():
		return triangleInside
	}
	return triangleCrossing
}

// halfPlane keeps points whose coordinate on axis compares to limit as
// selected by keepGreater.
type halfPlane struct {
	axis        int
	limit       float32
	keepGreater bool
}

func (h halfPlane) inside(p vec2) bool {
	c := p.x
	if h.axis == 1 {
		c = p.y
	}
	if h.keepGreater {
		return c >= h.limit
	}
	return c <= h.limit
}

func (h halfPlane) intersect(a, b vec2) vec2 {
	ca, cb := a.x, b.x
	if h.axis == 1 {
		ca, cb = a.y, b.y
	}
	t := (h.limit - ca) / (cb - ca)
	p := lerp2(a, b, t)
	if h.axis == 0 {
		p.x = h.limit
	} else {
		p.y = h.limit
	}
	return p
}

// clipPolygon runs Sutherland-Hodgman over the four edges of clip.
func clipPolygon(in []vec2, clip gfx.Rect) []vec2 {
	planes := [4]halfPlane{
		{0, clip.X, true},
		{1, clip.Y, true},
		{0, clip.MaxX(), false},
		{1, clip.MaxY(), false},
	}
	var bufA, bufB [maxClipPoints + 1]vec2
	cur := append(bufA[:0], in...)
	next := bufB[:0]
	for _, h := range planes {
		next = next[:0]
		for i, p := range cur {
			q := cur[(i+1)%len(cur)]
			pin, qin := h.inside(p), h.inside(q)
			if pin {
				next = append(next, p)
			}
			if pin != qin {
				next = append(next, h.intersect(p, q))
			}
		}
		cur, next = next, cur
		if len(cur) < 3 {
			return nil
		}
	}
	return append([]vec2(nil), cur...)
}

// barycentric returns the weights of p in triangle a b c. Weights are
// clamped to [0, 1] and renormalized; clipped points may fall up to
// clipEpsilon outside the triangle.
func barycentric(p, a, b, c vec2) [3]float32 {
	d := cross(a, b, c)
	l := [3]float32{cross(p, b, c) / d, cross(a, p, c) / d, 0}
	l[2] = 1 - l[0] - l[1]
	var sum float32
	for i := range l {
		l[i] = clamp(l[i], 0, 1)
		sum += l[i]
	}
	if sum == 0 {
		return [3]float32{1, 0, 0}
	}
	for i := range l {
		l[i] /= sum
	}
	return l
}

func clipTriangle(w *MeshWriteData, tri [3]gfx.Vertex, clip gfx.Rect) {
	a, b, c := pos(tri[0]), pos(tri[1]), pos(tri[2])
	winding := cross(a, b, c)
	if winding == 0 {
		return
	}
	poly := clipPolygon([]vec2{a, b, c}, clip)
	if len(poly) < 3 {
		return
	}
	sortByAngle(poly)

	first := uint16(w.VertexCount())
	for _, p := range poly {
		l := barycentric(p, a, b, c)
		v := blend(tri, l)
		v.Position[0], v.Position[1] = p.x, p.y
		w.SetNextVertex(v)
	}
	for k := 1; k+1 < len(poly); k++ {
		if abs32(cross(poly[0], poly[k], poly[k+1])) < clipEpsilon {
			continue
		}
		i, j := first+uint16(k), first+uint16(k+1)
		if winding < 0 {
			i, j = j, i
		}
		w.Triangle(first, i, j)
	}
}

// sortByAngle orders poly[1:] by signed angle around poly[0] so that the
// fan from poly[0] winds positively.
func sortByAngle(poly []vec2) {
	o := poly[0]
	for i := 2; i < len(poly); i++ {
		for j := i; j > 1 && cross(o, poly[j-1], poly[j]) < 0; j-- {
			poly[j-1], poly[j] = poly[j], poly[j-1]
		}
	}
}
