// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// PageStatistics describes the occupancy of one page.
type PageStatistics struct {
	Index       int
	Dedicated   bool
	FramesEmpty int

	VertexCapacity    uint32
	VertexUsed        uint32
	VertexFreeBlocks  int
	VertexLargestFree uint32

	IndexCapacity    uint32
	IndexUsed        uint32
	IndexFreeBlocks  int
	IndexLargestFree uint32
}

// AllocationStatistics is a snapshot of the device memory state.
type AllocationStatistics struct {
	DeviceID       uuid.UUID
	Frame          uint32
	Pages          []PageStatistics
	PendingFrees   [FramesInFlight]int
	PendingUpdates int
	RetiredPages   int
}

// DrawStatistics counts what EvaluateChain did in the current frame.
type DrawStatistics struct {
	Frame             uint32
	Commands          int
	DrawCommands      int
	ImmediateCommands int
	SkippedDraws      int
	DrawRanges        int
	DrawRangeCalls    int
	StateChanges      int
	MaterialChanges   int
	TextureMisses     int
	TotalIndices      int
	Flushes           int
	Uploads           int
	FenceWaits        int
	FenceValue        uint64
}

// GatherAllocationStatistics returns the per-page occupancy and the
// deferred work queued on the frame ring.
func (d *Device) GatherAllocationStatistics() AllocationStatistics {
	s := AllocationStatistics{
		DeviceID:       d.id,
		Frame:          d.frame,
		Pages:          make([]PageStatistics, 0, len(d.pages)),
		PendingUpdates: len(d.updates),
		RetiredPages:   len(d.retired),
	}
	for i := range d.slots {
		s.PendingFrees[i] = len(d.slots[i].frees)
	}
	for _, p := range d.pages {
		va, ia := p.vertices.alloc, p.indices.alloc
		s.Pages = append(s.Pages, PageStatistics{
			Index:             p.index,
			Dedicated:         p.dedicated,
			FramesEmpty:       p.framesEmpty,
			VertexCapacity:    va.Capacity(),
			VertexUsed:        va.Used(),
			VertexFreeBlocks:  va.FreeBlocks(),
			VertexLargestFree: va.LargestFree(),
			IndexCapacity:     ia.Capacity(),
			IndexUsed:         ia.Used(),
			IndexFreeBlocks:   ia.FreeBlocks(),
			IndexLargestFree:  ia.LargestFree(),
		})
	}
	return s
}

// GatherDrawStatistics returns the draw counters of the current frame.
func (d *Device) GatherDrawStatistics() DrawStatistics {
	s := d.draw
	s.Frame = d.frame
	s.FenceWaits = d.fenceWaits
	if s.FenceValue == 0 {
		s.FenceValue = d.lastFence
	}
	return s
}

// MarshalJSON encodes the statistics as a JSON object.
func (s AllocationStatistics) MarshalJSON() ([]byte, error) {
	w := jwriter.NewWriter()
	s.WriteJSON(&w)
	return w.Bytes(), w.Error()
}

// WriteJSON writes the statistics to w.
func (s AllocationStatistics) WriteJSON(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("device").String(s.DeviceID.String())
	obj.Name("frame").Int(int(s.Frame))
	obj.Name("pendingUpdates").Int(s.PendingUpdates)
	obj.Name("retiredPages").Int(s.RetiredPages)

	frees := obj.Name("pendingFrees").Array()
	for _, n := range s.PendingFrees {
		frees.Int(n)
	}
	frees.End()

	pages := obj.Name("pages").Array()
	for _, p := range s.Pages {
		po := pages.Object()
		po.Name("index").Int(p.Index)
		po.Maybe("dedicated", p.Dedicated).Bool(true)
		po.Name("framesEmpty").Int(p.FramesEmpty)
		writeBuffer(po.Name("vertices"), p.VertexCapacity, p.VertexUsed, p.VertexFreeBlocks, p.VertexLargestFree)
		writeBuffer(po.Name("indices"), p.IndexCapacity, p.IndexUsed, p.IndexFreeBlocks, p.IndexLargestFree)
		po.End()
	}
	pages.End()
	obj.End()
}

func writeBuffer(w *jwriter.Writer, capacity, used uint32, freeBlocks int, largest uint32) {
	obj := w.Object()
	obj.Name("capacity").Int(int(capacity))
	obj.Name("used").Int(int(used))
	obj.Name("freeBlocks").Int(freeBlocks)
	obj.Name("largestFree").Int(int(largest))
	obj.End()
}
