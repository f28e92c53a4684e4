package shaderinfo

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// entryWidth is the number of texels one entry occupies per table.
var entryWidth = [gfx.NumShaderInfoKinds]int{
	gfx.ShaderInfoTransform:    3,
	gfx.ShaderInfoClipRect:     1,
	gfx.ShaderInfoOpacity:      1,
	gfx.ShaderInfoColor:        1,
	gfx.ShaderInfoTextSettings: 1,
}

// EntryWidth returns the texel count of one entry of kind.
func EntryWidth(kind gfx.ShaderInfoKind) int { return entryWidth[kind] }

// Default returns the reserved entry of every table: identity transform,
// infinite clip rect, opacity 1, white, and zero text settings.
func Default() BMPAlloc {
	return BMPAlloc{Page: 0, OwnedState: Inherited}
}

type dirtySpan struct {
	lo, hi int
}

// Allocator owns one bitmap allocator and one CPU texel mirror per table
// and uploads modified texels on Flush.
type Allocator struct {
	bitmaps [gfx.NumShaderInfoKinds]*BitmapAllocator32
	texels  [gfx.NumShaderInfoKinds][]gfx.Texel
	dirty   [gfx.NumShaderInfoKinds]dirtySpan
}

// New creates an allocator whose tables grow up to maxPages pages each.
func New(maxPages int) *Allocator {
	a := &Allocator{}
	for k := range a.bitmaps {
		a.bitmaps[k] = NewBitmapAllocator32(maxPages)
		a.dirty[k] = dirtySpan{lo: math.MaxInt}
		// Slot 0 holds the defaults and is never handed out.
		a.bitmaps[k].Allocate()
	}
	d := Default()
	a.SetTransform(d, gfx.Identity)
	a.SetClipRect(d, gfx.InfiniteRect)
	a.SetOpacity(d, 1)
	a.SetColor(d, gfx.Texel{1, 1, 1, 1})
	a.SetTextSettings(d, gfx.Texel{})
	return a
}

// Allocate reserves an entry in the kind table.
func (a *Allocator) Allocate(kind gfx.ShaderInfoKind) BMPAlloc {
	al := a.bitmaps[kind].Allocate()
	if al.IsValid() {
		a.grow(kind, al)
	}
	return al
}

// Free releases an owned entry. Inherited and invalid entries are ignored.
func (a *Allocator) Free(kind gfx.ShaderInfoKind, al BMPAlloc) error {
	if !al.IsValid() || al.OwnedState != Owned {
		return nil
	}
	if al.Index() == 0 {
		return errors.AssertionFailedf("shaderinfo: free of the reserved %s entry", kind)
	}
	return errors.Wrapf(a.bitmaps[kind].Free(al), "shaderinfo: %s", kind)
}

// Used returns the number of live entries of kind, the reserved entry
// included.
func (a *Allocator) Used(kind gfx.ShaderInfoKind) int { return a.bitmaps[kind].Used() }

func (a *Allocator) grow(kind gfx.ShaderInfoKind, al BMPAlloc) {
	need := (al.Index() + 1) * entryWidth[kind]
	if need > len(a.texels[kind]) {
		n := max(need, 2*len(a.texels[kind]), EntriesPerPage*entryWidth[kind])
		a.texels[kind] = append(a.texels[kind], make([]gfx.Texel, n-len(a.texels[kind]))...)
	}
}

func (a *Allocator) write(kind gfx.ShaderInfoKind, al BMPAlloc, texels ...gfx.Texel) {
	if !al.IsValid() {
		return
	}
	a.grow(kind, al)
	off := al.Index() * entryWidth[kind]
	copy(a.texels[kind][off:], texels)
	d := &a.dirty[kind]
	d.lo = min(d.lo, off)
	d.hi = max(d.hi, off+len(texels))
}

// SetTransform stores t in a transform entry as three rows.
func (a *Allocator) SetTransform(al BMPAlloc, t gfx.Transform) {
	a.write(gfx.ShaderInfoTransform, al,
		gfx.Texel{t[0], t[1], 0, t[2]},
		gfx.Texel{t[3], t[4], 0, t[5]},
		gfx.Texel{0, 0, 1, 0},
	)
}

// SetClipRect stores r as min and max corners.
func (a *Allocator) SetClipRect(al BMPAlloc, r gfx.Rect) {
	a.write(gfx.ShaderInfoClipRect, al, gfx.Texel{r.X, r.Y, r.MaxX(), r.MaxY()})
}

// SetOpacity stores an opacity in [0, 1].
func (a *Allocator) SetOpacity(al BMPAlloc, opacity float32) {
	opacity = min(max(opacity, 0), 1)
	a.write(gfx.ShaderInfoOpacity, al, gfx.Texel{1, 1, 1, opacity})
}

// SetColor stores a tint color.
func (a *Allocator) SetColor(al BMPAlloc, c gfx.Texel) {
	a.write(gfx.ShaderInfoColor, al, c)
}

// SetTextSettings stores per-element text parameters.
func (a *Allocator) SetTextSettings(al BMPAlloc, s gfx.Texel) {
	a.write(gfx.ShaderInfoTextSettings, al, s)
}

// Texels returns the CPU copy of an entry.
func (a *Allocator) Texels(kind gfx.ShaderInfoKind, al BMPAlloc) []gfx.Texel {
	if !al.IsValid() {
		return nil
	}
	off := al.Index() * entryWidth[kind]
	if off+entryWidth[kind] > len(a.texels[kind]) {
		return nil
	}
	return a.texels[kind][off : off+entryWidth[kind]]
}

// Flush uploads the modified texel span of every table.
func (a *Allocator) Flush(b gfx.Backend) error {
	for k := range a.texels {
		d := &a.dirty[k]
		if d.hi <= d.lo {
			continue
		}
		kind := gfx.ShaderInfoKind(k)
		if err := b.WriteShaderInfo(kind, d.lo, a.texels[k][d.lo:d.hi]); err != nil {
			return errors.Wrapf(err, "shaderinfo: upload %s", kind)
		}
		*d = dirtySpan{lo: math.MaxInt}
	}
	return nil
}

// Slots groups the entries a vertex refers to.
type Slots struct {
	Transform    BMPAlloc
	ClipRect     BMPAlloc
	Opacity      BMPAlloc
	Color        BMPAlloc
	TextSettings BMPAlloc
}

// DefaultSlots refers every table to its reserved entry.
func DefaultSlots() Slots {
	d := Default()
	return Slots{Transform: d, ClipRect: d, Opacity: d, Color: d, TextSettings: d}
}

func pageByte(al BMPAlloc) uint8 {
	if !al.IsValid() {
		return 0
	}
	return uint8(al.Page)
}

func slotByte(al BMPAlloc) uint8 {
	if !al.IsValid() {
		return 0
	}
	return al.Slot()
}

// Pack writes the page and slot coordinates of s into v.
func (s Slots) Pack(v *gfx.Vertex) {
	v.XformClipPages = [4]uint8{pageByte(s.Transform), pageByte(s.ClipRect), 0, 0}
	v.IDs = [4]uint8{slotByte(s.Transform), slotByte(s.ClipRect), slotByte(s.Opacity), slotByte(s.Color)}
	v.OpacityColorPages = [4]uint8{pageByte(s.Opacity), pageByte(s.Color), pageByte(s.TextSettings), 0}
	v.SettingIndex[0] = slotByte(s.TextSettings)
}

// Unpack reads the slot coordinates packed into v. The owned state of the
// result is Inherited.
func Unpack(v *gfx.Vertex) Slots {
	at := func(page, slot uint8) BMPAlloc {
		return BMPAlloc{Page: int32(page), PageLine: uint16(slot / BitsPerLine), BitIndex: slot % BitsPerLine}
	}
	return Slots{
		Transform:    at(v.XformClipPages[0], v.IDs[0]),
		ClipRect:     at(v.XformClipPages[1], v.IDs[1]),
		Opacity:      at(v.OpacityColorPages[0], v.IDs[2]),
		Color:        at(v.OpacityColorPages[1], v.IDs[3]),
		TextSettings: at(v.OpacityColorPages[2], v.SettingIndex[0]),
	}
}
