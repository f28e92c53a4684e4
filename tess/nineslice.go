package tess

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// maxSliceTriangles bounds the pieces one triangle splits into against
// four lines: each split yields at most three triangles.
const maxSliceTriangles = 81

// Slices are the fixed margins of a 9-sliced mesh. Content inside the
// margins keeps its size; the middle band stretches.
type Slices struct {
	Left, Top, Right, Bottom float32
}

// IsZero reports whether no margin is set.
func (s Slices) IsZero() bool { return s == Slices{} }

type sliceTri [3]gfx.Vertex

// SliceMesh writes a 9-sliced copy of a mesh authored at size into target.
// Triangles are split along the slice lines first so that every piece lies
// in a single region, then each axis is remapped piecewise.
func SliceMesh(w *MeshWriteData, vertices []gfx.Vertex, indices []uint16, size [2]float32, s Slices, target gfx.Rect) error {
	if len(indices)%3 != 0 {
		return errors.Newf("tess: index count %d is not a multiple of 3", len(indices))
	}
	lines := [4]struct {
		axis int
		at   float32
	}{
		{0, s.Left},
		{0, size[0] - s.Right},
		{1, s.Top},
		{1, size[1] - s.Bottom},
	}
	var bufA, bufB [maxSliceTriangles]sliceTri
	for t := 0; t < len(indices); t += 3 {
		ia, ib, ic := int(indices[t]), int(indices[t+1]), int(indices[t+2])
		if ia >= len(vertices) || ib >= len(vertices) || ic >= len(vertices) {
			return errors.Newf("tess: triangle %d references a vertex out of range", t/3)
		}
		cur := bufA[:1]
		cur[0] = sliceTri{vertices[ia], vertices[ib], vertices[ic]}
		next := bufB[:0]
		for _, l := range lines {
			next = next[:0]
			for _, tri := range cur {
				var err error
				if next, err = splitTriangle(next, tri, l.axis, l.at); err != nil {
					return err
				}
			}
			cur, next = next, cur
		}
		for _, tri := range cur {
			for _, v := range tri {
				v.Position[0] = remapAxis(v.Position[0], size[0], s.Left, s.Right, target.W) + target.X
				v.Position[1] = remapAxis(v.Position[1], size[1], s.Top, s.Bottom, target.H) + target.Y
				w.SetNextVertex(v)
			}
			n := uint16(w.VertexCount())
			w.Triangle(n-3, n-2, n-1)
		}
	}
	return nil
}

func coord(v gfx.Vertex, axis int) float32 { return v.Position[axis] }

// splitTriangle appends tri, split by the line coord(axis) == at, to out.
func splitTriangle(out []sliceTri, tri sliceTri, axis int, at float32) ([]sliceTri, error) {
	var side [3]int
	pos, neg := 0, 0
	for i, v := range tri {
		d := coord(v, axis) - at
		switch {
		case d > epsilon:
			side[i] = 1
			pos++
		case d < -epsilon:
			side[i] = -1
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return pushSlice(out, tri)
	}

	cut := func(a, b gfx.Vertex) gfx.Vertex {
		ca, cb := coord(a, axis), coord(b, axis)
		v := lerpVertex(a, b, (at-ca)/(cb-ca))
		v.Position[axis] = at
		return v
	}
	// Rotate so that the distinguished vertex comes first, keeping the
	// winding.
	rot := func(k int) (gfx.Vertex, gfx.Vertex, gfx.Vertex) {
		return tri[k], tri[(k+1)%3], tri[(k+2)%3]
	}

	if pos+neg == 2 {
		// One vertex on the line, the other two on opposite sides.
		for k := range side {
			if side[k] == 0 {
				a, b, c := rot(k)
				p := cut(b, c)
				out, err := pushSlice(out, sliceTri{a, b, p})
				if err != nil {
					return out, err
				}
				return pushSlice(out, sliceTri{a, p, c})
			}
		}
	}

	// One vertex alone on its side.
	lone := 1
	if pos == 2 {
		lone = -1
	}
	for k := range side {
		if side[k] != lone {
			continue
		}
		a, b, c := rot(k)
		p, q := cut(a, b), cut(a, c)
		var err error
		for _, piece := range [3]sliceTri{{a, p, q}, {p, b, c}, {p, c, q}} {
			if out, err = pushSlice(out, piece); err != nil {
				return out, err
			}
		}
		break
	}
	return out, nil
}

func pushSlice(out []sliceTri, tri sliceTri) ([]sliceTri, error) {
	if len(out) == cap(out) {
		return out, errors.AssertionFailedf("tess: slice scratch of %d triangles exhausted", cap(out))
	}
	return append(out, tri), nil
}

// remapAxis maps v from [0, size] to [0, target] keeping the margins lo and
// hi fixed and stretching the band between them. When target is smaller
// than the margins, the margins shrink proportionally and the band
// vanishes.
func remapAxis(v, size, lo, hi, target float32) float32 {
	if lo+hi > target {
		scale := float32(0)
		if lo+hi > 0 {
			scale = target / (lo + hi)
		}
		switch {
		case v <= lo:
			return v * scale
		case v >= size-hi:
			return target - (size-v)*scale
		}
		return lo * scale
	}
	switch {
	case v <= lo:
		return v
	case v >= size-hi:
		return target - (size - v)
	}
	band := size - lo - hi
	if band <= 0 {
		return lo
	}
	return lo + (v-lo)*(target-lo-hi)/band
}
