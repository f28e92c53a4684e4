package tess

import (
	"testing"

	"github.com/gogpu/uir/gfx"
)

func sliceAlloc(v, i int) (*MeshWriteData, error) {
	return NewMeshWriteData(make([]gfx.Vertex, v), make([]uint16, i), 0), nil
}

func testBuilder() *MeshBuilder { return &MeshBuilder{Alloc: sliceAlloc} }

func triangleCross(w *MeshWriteData, t int) float32 {
	vs, is := w.Vertices(), w.Indices()
	return cross(pos(vs[is[t]]), pos(vs[is[t+1]]), pos(vs[is[t+2]]))
}

// checkWinding fails when a triangle is not positively wound.
func checkWinding(t *testing.T, w *MeshWriteData) {
	t.Helper()
	for i := 0; i < len(w.Indices()); i += 3 {
		if c := triangleCross(w, i); c <= 0 {
			t.Fatalf("triangle %d: cross %v, want > 0", i/3, c)
		}
	}
}

// checkInside fails when a vertex lies outside r widened by eps.
func checkInside(t *testing.T, w *MeshWriteData, r gfx.Rect, eps float32) {
	t.Helper()
	for i, v := range w.Vertices() {
		x, y := v.Position[0], v.Position[1]
		if x < r.X-eps || x > r.MaxX()+eps || y < r.Y-eps || y > r.MaxY()+eps {
			t.Fatalf("vertex %d at (%v, %v) outside %+v", i, x, y, r)
		}
	}
}

func area(w *MeshWriteData) float32 {
	var sum float32
	for i := 0; i < len(w.Indices()); i += 3 {
		sum += abs32(triangleCross(w, i)) / 2
	}
	return sum
}
