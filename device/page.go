// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/internal/alloc"
)

// updateRingSize is the number of pending upload ranges kept per buffer
// before the whole touched span is uploaded in one write.
const updateRingSize = 64

type updateRange struct {
	start, end uint32
}

// dataSet is one buffer of a page: its CPU mirror, the GPU buffer, the
// range allocator and the queue of ranges waiting for upload.
type dataSet[T any] struct {
	kind   gfx.BufferKind
	buffer gfx.BufferID
	cpu    []T
	alloc  *alloc.Allocator

	updates  [updateRingSize]updateRange
	nUpdates int
	// overflow holds the merged span once the ring filled up.
	overflow    updateRange
	hasOverflow bool
}

func newDataSet[T any](b gfx.Backend, kind gfx.BufferKind, capacity uint32, label string) (*dataSet[T], error) {
	buf, err := b.CreateBuffer(kind, int(capacity), label)
	if err != nil {
		return nil, errors.Wrapf(err, "device: create %s buffer", kind)
	}
	return &dataSet[T]{
		kind:   kind,
		buffer: buf,
		cpu:    make([]T, capacity),
		alloc:  alloc.New(capacity),
	}, nil
}

// registerUpdate queues [start, start+size) for upload. A range adjacent to
// or overlapping the last queued range is merged into it.
func (d *dataSet[T]) registerUpdate(start, size uint32) {
	if size == 0 {
		return
	}
	r := updateRange{start: start, end: start + size}
	if d.hasOverflow {
		d.overflow.start = min(d.overflow.start, r.start)
		d.overflow.end = max(d.overflow.end, r.end)
		return
	}
	if d.nUpdates > 0 {
		last := &d.updates[d.nUpdates-1]
		if r.start <= last.end && r.end >= last.start {
			last.start = min(last.start, r.start)
			last.end = max(last.end, r.end)
			return
		}
	}
	if d.nUpdates == updateRingSize {
		d.overflow = r
		for _, u := range d.updates[:d.nUpdates] {
			d.overflow.start = min(d.overflow.start, u.start)
			d.overflow.end = max(d.overflow.end, u.end)
		}
		d.hasOverflow = true
		d.nUpdates = 0
		return
	}
	d.updates[d.nUpdates] = r
	d.nUpdates++
}

// pendingRanges returns the number of queued upload ranges.
func (d *dataSet[T]) pendingRanges() int {
	if d.hasOverflow {
		return 1
	}
	return d.nUpdates
}

// flush uploads every queued range through write and clears the queue.
func (d *dataSet[T]) flush(write func(offset int, data []T) error) (int, error) {
	writes := 0
	if d.hasOverflow {
		if err := write(int(d.overflow.start), d.cpu[d.overflow.start:d.overflow.end]); err != nil {
			return writes, err
		}
		d.hasOverflow = false
		return 1, nil
	}
	for _, u := range d.updates[:d.nUpdates] {
		if err := write(int(u.start), d.cpu[u.start:u.end]); err != nil {
			return writes, err
		}
		writes++
	}
	d.nUpdates = 0
	return writes, nil
}

// Page is a vertex buffer and an index buffer with CPU mirrors and one
// range allocator each.
type Page struct {
	index    int
	vertices *dataSet[gfx.Vertex]
	indices  *dataSet[uint16]

	// framesEmpty counts consecutive AdvanceFrame calls that found both
	// allocators empty.
	framesEmpty int
	// dedicated pages were created for a single large mesh.
	dedicated bool
}

func newPage(b gfx.Backend, index int, vertexCapacity, indexCapacity uint32, labelPrefix string, dedicated bool) (*Page, error) {
	vs, err := newDataSet[gfx.Vertex](b, gfx.BufferVertex, vertexCapacity, labelPrefix+"-vb")
	if err != nil {
		return nil, err
	}
	is, err := newDataSet[uint16](b, gfx.BufferIndex, indexCapacity, labelPrefix+"-ib")
	if err != nil {
		b.DestroyBuffer(vs.buffer)
		return nil, err
	}
	return &Page{index: index, vertices: vs, indices: is, dedicated: dedicated}, nil
}

// Index returns the creation index of the page within its device.
func (p *Page) Index() int { return p.index }

// VertexBuffer returns the GPU vertex buffer.
func (p *Page) VertexBuffer() gfx.BufferID { return p.vertices.buffer }

// IndexBuffer returns the GPU index buffer.
func (p *Page) IndexBuffer() gfx.BufferID { return p.indices.buffer }

// VertexCapacity returns the page size in vertices.
func (p *Page) VertexCapacity() uint32 { return p.vertices.alloc.Capacity() }

// IndexCapacity returns the page size in indices.
func (p *Page) IndexCapacity() uint32 { return p.indices.alloc.Capacity() }

// IsEmpty reports whether no allocation is live in either buffer.
func (p *Page) IsEmpty() bool {
	return p.vertices.alloc.IsEmpty() && p.indices.alloc.IsEmpty()
}

// tryAlloc reserves both ranges or neither.
func (p *Page) tryAlloc(vertexCount, indexCount uint32, shortLived bool) (alloc.Alloc, alloc.Alloc, bool) {
	va := p.vertices.alloc.Allocate(vertexCount, shortLived)
	if !va.Valid() {
		return alloc.Alloc{}, alloc.Alloc{}, false
	}
	ia := p.indices.alloc.Allocate(indexCount, shortLived)
	if !ia.Valid() {
		if err := p.vertices.alloc.Free(va); err != nil {
			// Rolling back an allocation made a line above cannot fail
			// unless the allocator is corrupt.
			panic(err)
		}
		return alloc.Alloc{}, alloc.Alloc{}, false
	}
	return va, ia, true
}

func (p *Page) free(va, ia alloc.Alloc) error {
	var errs error
	if va.Valid() {
		if err := p.vertices.alloc.Free(va); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "page %d vertices", p.index))
		}
	}
	if ia.Valid() {
		if err := p.indices.alloc.Free(ia); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "page %d indices", p.index))
		}
	}
	return errs
}

// flush uploads pending ranges of both buffers.
func (p *Page) flush(b gfx.Backend) (int, error) {
	nv, err := p.vertices.flush(func(offset int, data []gfx.Vertex) error {
		return b.WriteVertices(p.vertices.buffer, offset, data)
	})
	if err != nil {
		return nv, errors.Wrapf(err, "device: upload page %d vertices", p.index)
	}
	ni, err := p.indices.flush(func(offset int, data []uint16) error {
		return b.WriteIndices(p.indices.buffer, offset, data)
	})
	if err != nil {
		return nv + ni, errors.Wrapf(err, "device: upload page %d indices", p.index)
	}
	return nv + ni, nil
}

func (p *Page) destroy(b gfx.Backend) {
	b.DestroyBuffer(p.vertices.buffer)
	b.DestroyBuffer(p.indices.buffer)
}
