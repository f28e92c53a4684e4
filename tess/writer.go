package tess

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// MeshWriteData receives the vertices and indices of one mesh. In counting
// mode nothing is stored and only the totals advance.
//
// Indices passed to SetNextIndex are relative to the mesh; the writer adds
// IndexOffset so the stored values address the page vertex buffer.
type MeshWriteData struct {
	vertices    []gfx.Vertex
	indices     []uint16
	indexOffset uint16
	counting    bool

	nv, ni int
	// template supplies the shader info coordinates of every vertex.
	template gfx.Vertex
	err      error
}

// NewMeshWriteData writes into the given storage. indexOffset is the
// position of vertices[0] in its buffer.
func NewMeshWriteData(vertices []gfx.Vertex, indices []uint16, indexOffset uint16) *MeshWriteData {
	return &MeshWriteData{vertices: vertices, indices: indices, indexOffset: indexOffset}
}

func newCounter() *MeshWriteData {
	return &MeshWriteData{counting: true}
}

// SetTemplate sets the vertex whose shader info bytes are copied into each
// vertex written afterwards.
func (m *MeshWriteData) SetTemplate(v gfx.Vertex) { m.template = v }

// SetNextVertex appends v and returns its mesh-relative index.
func (m *MeshWriteData) SetNextVertex(v gfx.Vertex) uint16 {
	i := m.nv
	m.nv++
	if m.counting {
		return uint16(i)
	}
	if i >= len(m.vertices) {
		m.fail(errors.AssertionFailedf("tess: vertex %d written past %d allocated", i, len(m.vertices)))
		return uint16(i)
	}
	v.XformClipPages = m.template.XformClipPages
	v.IDs = m.template.IDs
	v.OpacityColorPages = m.template.OpacityColorPages
	v.SettingIndex = m.template.SettingIndex
	m.vertices[i] = v
	return uint16(i)
}

// SetNextIndex appends a mesh-relative index.
func (m *MeshWriteData) SetNextIndex(i uint16) {
	n := m.ni
	m.ni++
	if m.counting {
		return
	}
	if n >= len(m.indices) {
		m.fail(errors.AssertionFailedf("tess: index %d written past %d allocated", n, len(m.indices)))
		return
	}
	m.indices[n] = i + m.indexOffset
}

// Triangle appends three indices.
func (m *MeshWriteData) Triangle(a, b, c uint16) {
	m.SetNextIndex(a)
	m.SetNextIndex(b)
	m.SetNextIndex(c)
}

// VertexCount returns the number of vertices written so far.
func (m *MeshWriteData) VertexCount() int { return m.nv }

// IndexCount returns the number of indices written so far.
func (m *MeshWriteData) IndexCount() int { return m.ni }

// Vertices returns the written vertices. Nil in counting mode.
func (m *MeshWriteData) Vertices() []gfx.Vertex {
	if m.counting {
		return nil
	}
	return m.vertices[:min(m.nv, len(m.vertices))]
}

// Indices returns the written indices, IndexOffset included.
func (m *MeshWriteData) Indices() []uint16 {
	if m.counting {
		return nil
	}
	return m.indices[:min(m.ni, len(m.indices))]
}

// Err returns the first error recorded while writing.
func (m *MeshWriteData) Err() error { return m.err }

func (m *MeshWriteData) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// AllocFunc reserves storage for a mesh of the given size.
type AllocFunc func(vertexCount, indexCount int) (*MeshWriteData, error)

// ErrNoGeometry is returned when a shape produces no triangles.
var ErrNoGeometry = errors.New("tess: shape produced no geometry")

// generate runs gen in counting mode, allocates through alloc and runs gen
// again into the allocation.
func generate(alloc AllocFunc, template gfx.Vertex, gen func(w *MeshWriteData) error) (*MeshWriteData, error) {
	counter := newCounter()
	if err := gen(counter); err != nil {
		return nil, err
	}
	if counter.nv == 0 || counter.ni == 0 {
		return nil, ErrNoGeometry
	}
	if counter.nv > 1<<16 {
		return nil, errors.AssertionFailedf("tess: %d vertices exceed 16-bit indexing", counter.nv)
	}
	w, err := alloc(counter.nv, counter.ni)
	if err != nil {
		return nil, err
	}
	w.SetTemplate(template)
	if err := gen(w); err != nil {
		return nil, err
	}
	if w.err != nil {
		return nil, w.err
	}
	if w.nv != counter.nv || w.ni != counter.ni {
		return nil, errors.AssertionFailedf("tess: count pass %d/%d, emit pass %d/%d",
			counter.nv, counter.ni, w.nv, w.ni)
	}
	return w, nil
}

// Count runs a generator in counting mode and returns its totals.
func Count(gen func(w *MeshWriteData) error) (vertices, indices int, err error) {
	c := newCounter()
	err = gen(c)
	return c.nv, c.ni, err
}
