// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/internal/alloc"
)

// MeshHandle is the client token for a live mesh allocation.
//
// The allocation behind a handle may move: Update can relocate it to a new
// range, and while a copy-back is pending the handle points at a
// short-lived allocation. Always read ranges through the handle.
type MeshHandle struct {
	dev  *Device
	page *Page

	allocVerts   alloc.Alloc
	allocIndices alloc.Alloc

	vertexCount uint32
	indexCount  uint32

	// allocTime is the frame in which the current permanent allocation
	// was made.
	allocTime  uint32
	allocEpoch uint64
	// updateAllocID is non-zero while a copy-back is pending.
	updateAllocID uint32
	freed         bool
}

// Page returns the page holding the mesh, or nil once freed.
func (h *MeshHandle) Page() *Page { return h.page }

// VertexCount returns the number of vertices in use.
func (h *MeshHandle) VertexCount() int { return int(h.vertexCount) }

// IndexCount returns the number of indices in use.
func (h *MeshHandle) IndexCount() int { return int(h.indexCount) }

// TriangleCount returns IndexCount / 3.
func (h *MeshHandle) TriangleCount() int { return int(h.indexCount / 3) }

// FirstIndex returns the offset of the mesh's first index in the page's
// index buffer.
func (h *MeshHandle) FirstIndex() int { return int(h.allocIndices.Start) }

// IndexOffset returns the offset of the mesh's first vertex in the page's
// vertex buffer. Mesh indices are stored with this offset added.
func (h *MeshHandle) IndexOffset() uint16 { return uint16(h.allocVerts.Start) }

// VertexRange returns the start and capacity of the vertex allocation.
func (h *MeshHandle) VertexRange() (start, size uint32) {
	return h.allocVerts.Start, h.allocVerts.Size
}

// IndexRange returns the start and capacity of the index allocation.
func (h *MeshHandle) IndexRange() (start, size uint32) {
	return h.allocIndices.Start, h.allocIndices.Size
}

// AllocationFrame returns the frame in which the mesh's permanent
// allocation was made.
func (h *MeshHandle) AllocationFrame() uint32 { return h.allocTime }

// PendingUpdate reports whether a copy-back is scheduled for the mesh.
func (h *MeshHandle) PendingUpdate() bool { return h.updateAllocID != 0 }

// Freed reports whether Free was called on the handle.
func (h *MeshHandle) Freed() bool { return h.freed }

// MeshData exposes the CPU mirror of a mesh allocation for writing.
// Indices written must already include IndexOffset.
type MeshData struct {
	Vertices    []gfx.Vertex
	Indices     []uint16
	IndexOffset uint16
}

func (h *MeshHandle) data() MeshData {
	vs := h.allocVerts.Start
	is := h.allocIndices.Start
	return MeshData{
		Vertices:    h.page.vertices.cpu[vs : vs+h.vertexCount : vs+h.vertexCount],
		Indices:     h.page.indices.cpu[is : is+h.indexCount : is+h.indexCount],
		IndexOffset: uint16(vs),
	}
}
