// Package shaderinfo allocates slots in the shared attribute tables that
// vertices reference instead of carrying per-element state.
//
// Each table (transform, clip rect, opacity, color, text settings) is
// divided into pages of 8 lines of 32 entries. A BMPAlloc names one entry;
// its page and in-page slot are packed into vertex bytes.
package shaderinfo

import (
	"fmt"
	"math/bits"

	"github.com/cockroachdb/errors"
)

const (
	// BitsPerLine is the number of entries in one bitmap line.
	BitsPerLine = 32
	// LinesPerPage is the number of bitmap lines in a page.
	LinesPerPage = 8
	// EntriesPerPage is the number of entries in a page. A slot within a
	// page fits in one vertex byte.
	EntriesPerPage = BitsPerLine * LinesPerPage
	// MaxPages bounds a table so that the page fits in one vertex byte.
	MaxPages = 256
)

// OwnedState tells whether an element allocated a slot or shares its
// parent's.
type OwnedState uint8

const (
	// Inherited slots belong to an ancestor and are never freed by the
	// element holding them.
	Inherited OwnedState = iota
	// Owned slots were allocated by the element holding them.
	Owned
)

// BMPAlloc is an entry in a bitmap-allocated table. Page -1 denotes an
// invalid allocation.
type BMPAlloc struct {
	Page       int32
	PageLine   uint16
	BitIndex   uint8
	OwnedState OwnedState
}

// InvalidBMPAlloc is the unallocated value.
var InvalidBMPAlloc = BMPAlloc{Page: -1}

// IsValid reports whether a holds an entry.
func (a BMPAlloc) IsValid() bool { return a.Page >= 0 }

// Slot returns the in-page entry index.
func (a BMPAlloc) Slot() uint8 { return uint8(int(a.PageLine)*BitsPerLine + int(a.BitIndex)) }

// Index returns the table-wide entry index.
func (a BMPAlloc) Index() int { return int(a.Page)*EntriesPerPage + int(a.Slot()) }

// Inherit returns a copy of a marked as shared.
func (a BMPAlloc) Inherit() BMPAlloc {
	a.OwnedState = Inherited
	return a
}

func (a BMPAlloc) String() string {
	if !a.IsValid() {
		return "BMPAlloc(invalid)"
	}
	return fmt.Sprintf("BMPAlloc(%d:%d.%d)", a.Page, a.PageLine, a.BitIndex)
}

// bitmapPage tracks free entries with one bit per entry, set when free.
type bitmapPage struct {
	free  [LinesPerPage]uint32
	nfree int
}

func newBitmapPage() bitmapPage {
	p := bitmapPage{nfree: EntriesPerPage}
	for i := range p.free {
		p.free[i] = ^uint32(0)
	}
	return p
}

// BitmapAllocator32 hands out entries lowest page, line and bit first.
type BitmapAllocator32 struct {
	pages    []bitmapPage
	maxPages int
	used     int
}

// NewBitmapAllocator32 creates an allocator that grows up to maxPages
// pages. maxPages is clamped to MaxPages.
func NewBitmapAllocator32(maxPages int) *BitmapAllocator32 {
	return &BitmapAllocator32{maxPages: min(max(maxPages, 1), MaxPages)}
}

// Allocate returns a free entry, or InvalidBMPAlloc when every page is
// full and no page can be added.
func (b *BitmapAllocator32) Allocate() BMPAlloc {
	for pi := range b.pages {
		if b.pages[pi].nfree > 0 {
			return b.take(pi)
		}
	}
	if len(b.pages) == b.maxPages {
		return InvalidBMPAlloc
	}
	b.pages = append(b.pages, newBitmapPage())
	return b.take(len(b.pages) - 1)
}

func (b *BitmapAllocator32) take(pi int) BMPAlloc {
	p := &b.pages[pi]
	for line, mask := range p.free {
		if mask == 0 {
			continue
		}
		bit := bits.TrailingZeros32(mask)
		p.free[line] &^= 1 << bit
		p.nfree--
		b.used++
		return BMPAlloc{Page: int32(pi), PageLine: uint16(line), BitIndex: uint8(bit), OwnedState: Owned}
	}
	panic(errors.AssertionFailedf("shaderinfo: page %d reports %d free entries but has none", pi, p.nfree))
}

// Free returns a to the allocator.
func (b *BitmapAllocator32) Free(a BMPAlloc) error {
	if !a.IsValid() || int(a.Page) >= len(b.pages) || a.PageLine >= LinesPerPage || a.BitIndex >= BitsPerLine {
		return errors.AssertionFailedf("shaderinfo: free of out-of-range %s", a)
	}
	p := &b.pages[a.Page]
	bit := uint32(1) << a.BitIndex
	if p.free[a.PageLine]&bit != 0 {
		return errors.AssertionFailedf("shaderinfo: double free of %s", a)
	}
	p.free[a.PageLine] |= bit
	p.nfree++
	b.used--
	return nil
}

// Used returns the number of allocated entries.
func (b *BitmapAllocator32) Used() int { return b.used }

// Pages returns the number of pages in use.
func (b *BitmapAllocator32) Pages() int { return len(b.pages) }

// Capacity returns the number of entries the current pages hold.
func (b *BitmapAllocator32) Capacity() int { return len(b.pages) * EntriesPerPage }
