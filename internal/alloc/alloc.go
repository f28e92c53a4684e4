// Package alloc implements the range sub-allocator used for each buffer of
// a device page.
//
// The allocator manages [0, capacity) in element units. Free space is kept
// as a sorted list of spans that coalesce on free. Long-lived allocations
// take the best-fitting span and are carved from its start; short-lived
// allocations take the best-fitting span and are carved from its end, so
// the two populations grow toward each other instead of interleaving.
package alloc

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Alloc is a sub-range of a buffer. Size == 0 denotes a failed allocation.
type Alloc struct {
	Start  uint32
	Size   uint32
	handle uint32
}

// Valid reports whether the allocation holds a range.
func (a Alloc) Valid() bool { return a.Size != 0 }

// End returns the first element past the allocation.
func (a Alloc) End() uint32 { return a.Start + a.Size }

type span struct {
	start, size uint32
}

type liveEntry struct {
	size       uint32
	handle     uint32
	shortLived bool
}

// Allocator is a best-fit free-list range allocator. It is not safe for
// concurrent use.
type Allocator struct {
	capacity   uint32
	free       []span
	live       map[uint32]liveEntry
	used       uint32
	nextHandle uint32
	shortLived int
}

// New creates an allocator managing capacity elements.
func New(capacity uint32) *Allocator {
	a := &Allocator{
		capacity: capacity,
		live:     make(map[uint32]liveEntry),
	}
	if capacity > 0 {
		a.free = append(a.free, span{start: 0, size: capacity})
	}
	return a
}

// Capacity returns the managed size.
func (a *Allocator) Capacity() uint32 { return a.capacity }

// Used returns the number of allocated elements.
func (a *Allocator) Used() uint32 { return a.used }

// Live returns the number of live allocations.
func (a *Allocator) Live() int { return len(a.live) }

// ShortLived returns the number of live short-lived allocations.
func (a *Allocator) ShortLived() int { return a.shortLived }

// IsEmpty reports whether nothing is allocated.
func (a *Allocator) IsEmpty() bool { return len(a.live) == 0 }

// FreeBlocks returns the number of free spans.
func (a *Allocator) FreeBlocks() int { return len(a.free) }

// LargestFree returns the size of the largest free span.
func (a *Allocator) LargestFree() uint32 {
	var m uint32
	for _, s := range a.free {
		m = max(m, s.size)
	}
	return m
}

// Allocate reserves size elements. It returns an Alloc with Size == 0 when
// no free span is large enough or size is zero.
func (a *Allocator) Allocate(size uint32, shortLived bool) Alloc {
	if size == 0 {
		return Alloc{}
	}
	best := -1
	for i, s := range a.free {
		if s.size < size {
			continue
		}
		switch {
		case best < 0, s.size < a.free[best].size:
			best = i
		case s.size == a.free[best].size && shortLived:
			// Equal fit: short-lived prefers the highest offset.
			best = i
		}
	}
	if best < 0 {
		return Alloc{}
	}

	s := &a.free[best]
	var start uint32
	if shortLived {
		start = s.start + s.size - size
		s.size -= size
	} else {
		start = s.start
		s.start += size
		s.size -= size
	}
	if s.size == 0 {
		a.free = append(a.free[:best], a.free[best+1:]...)
	}

	a.nextHandle++
	if a.nextHandle == 0 {
		a.nextHandle = 1
	}
	a.live[start] = liveEntry{size: size, handle: a.nextHandle, shortLived: shortLived}
	a.used += size
	if shortLived {
		a.shortLived++
	}
	return Alloc{Start: start, Size: size, handle: a.nextHandle}
}

// Free returns an allocation to the free list. Freeing an allocation that
// is not live, or whose size or handle does not match, is an assertion
// failure and leaves the allocator unchanged.
func (a *Allocator) Free(al Alloc) error {
	if !al.Valid() {
		return errors.AssertionFailedf("alloc: free of empty allocation at %d", al.Start)
	}
	e, ok := a.live[al.Start]
	if !ok {
		return errors.AssertionFailedf("alloc: free of unknown allocation [%d,%d)", al.Start, al.End())
	}
	if e.size != al.Size || e.handle != al.handle {
		return errors.AssertionFailedf("alloc: free of [%d,%d) does not match live allocation of size %d",
			al.Start, al.End(), e.size)
	}
	delete(a.live, al.Start)
	a.used -= al.Size
	if e.shortLived {
		a.shortLived--
	}

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].start > al.Start })
	mergePrev := i > 0 && a.free[i-1].start+a.free[i-1].size == al.Start
	mergeNext := i < len(a.free) && al.End() == a.free[i].start
	switch {
	case mergePrev && mergeNext:
		a.free[i-1].size += al.Size + a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	case mergePrev:
		a.free[i-1].size += al.Size
	case mergeNext:
		a.free[i].start = al.Start
		a.free[i].size += al.Size
	default:
		a.free = append(a.free, span{})
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = span{start: al.Start, size: al.Size}
	}
	return nil
}

// IsLive reports whether al is a live allocation of this allocator.
func (a *Allocator) IsLive(al Alloc) bool {
	e, ok := a.live[al.Start]
	return ok && al.Valid() && e.size == al.Size && e.handle == al.handle
}

// Visit calls fn for every block in address order, free and used.
func (a *Allocator) Visit(fn func(start, size uint32, free bool)) {
	starts := make([]uint32, 0, len(a.live))
	for s := range a.live {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	fi, ui := 0, 0
	for fi < len(a.free) || ui < len(starts) {
		if ui >= len(starts) || (fi < len(a.free) && a.free[fi].start < starts[ui]) {
			fn(a.free[fi].start, a.free[fi].size, true)
			fi++
			continue
		}
		fn(starts[ui], a.live[starts[ui]].size, false)
		ui++
	}
}

// Validate checks the allocator bookkeeping: free spans sorted, coalesced
// and disjoint from live allocations, and all blocks tiling the capacity.
func (a *Allocator) Validate() error {
	for i := 1; i < len(a.free); i++ {
		prev, cur := a.free[i-1], a.free[i]
		if prev.start+prev.size > cur.start {
			return errors.Newf("alloc: free spans overlap at %d", cur.start)
		}
		if prev.start+prev.size == cur.start {
			return errors.Newf("alloc: free spans at %d and %d are not coalesced", prev.start, cur.start)
		}
	}

	var (
		offset  uint32
		used    uint32
		failure error
	)
	a.Visit(func(start, size uint32, free bool) {
		if failure != nil {
			return
		}
		if size == 0 {
			failure = errors.Newf("alloc: zero-size block at %d", start)
			return
		}
		if start != offset {
			failure = errors.Newf("alloc: block at %d, expected %d (overlap or gap)", start, offset)
			return
		}
		offset += size
		if !free {
			used += size
		}
	})
	if failure != nil {
		return failure
	}
	if offset != a.capacity {
		return errors.Newf("alloc: blocks cover %d elements, capacity is %d", offset, a.capacity)
	}
	if used != a.used {
		return errors.Newf("alloc: counted %d used elements, bookkeeping says %d", used, a.used)
	}
	return nil
}
