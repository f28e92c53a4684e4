package shaderinfo

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/gfx/recorder"
)

func TestBitmapAllocatorOrder(t *testing.T) {
	b := NewBitmapAllocator32(2)
	for i := range EntriesPerPage + 1 {
		a := b.Allocate()
		if !a.IsValid() {
			t.Fatalf("allocation %d failed", i)
		}
		if a.Index() != i {
			t.Fatalf("allocation %d got index %d", i, a.Index())
		}
	}
	if b.Pages() != 2 {
		t.Errorf("pages = %d, want 2", b.Pages())
	}
}

func TestBitmapAllocatorExhaustion(t *testing.T) {
	b := NewBitmapAllocator32(1)
	for range EntriesPerPage {
		b.Allocate()
	}
	if a := b.Allocate(); a.IsValid() {
		t.Fatalf("allocation beyond capacity returned %s", a)
	}
	freed := BMPAlloc{Page: 0, PageLine: 3, BitIndex: 7}
	if err := b.Free(freed); err != nil {
		t.Fatal(err)
	}
	if a := b.Allocate(); a.Index() != freed.Index() {
		t.Errorf("reallocated %s, want the freed entry %s", a, freed)
	}
}

func TestBitmapAllocatorBadFree(t *testing.T) {
	b := NewBitmapAllocator32(1)
	a := b.Allocate()
	if err := b.Free(a); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		a    BMPAlloc
	}{
		{"double free", a},
		{"invalid", InvalidBMPAlloc},
		{"page out of range", BMPAlloc{Page: 4}},
		{"bit out of range", BMPAlloc{BitIndex: 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Free(tt.a); !errors.HasAssertionFailure(err) {
				t.Errorf("Free(%s) = %v, want assertion failure", tt.a, err)
			}
		})
	}
}

func TestAllocatorDefaults(t *testing.T) {
	a := New(4)
	d := Default()

	tests := []struct {
		kind gfx.ShaderInfoKind
		want []gfx.Texel
	}{
		{gfx.ShaderInfoTransform, []gfx.Texel{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}},
		{gfx.ShaderInfoOpacity, []gfx.Texel{{1, 1, 1, 1}}},
		{gfx.ShaderInfoColor, []gfx.Texel{{1, 1, 1, 1}}},
		{gfx.ShaderInfoTextSettings, []gfx.Texel{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got := a.Texels(tt.kind, d)
			if len(got) != len(tt.want) {
				t.Fatalf("texels = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("texel %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if a.Used(tt.kind) != 1 {
				t.Errorf("used = %d, want the reserved entry only", a.Used(tt.kind))
			}
		})
	}
	if err := a.Free(gfx.ShaderInfoColor, d); err != nil {
		t.Errorf("freeing an inherited entry should be a no-op: %v", err)
	}
}

func TestAllocatorFlush(t *testing.T) {
	a := New(4)
	rec := recorder.New(0)
	if err := a.Flush(rec); err != nil {
		t.Fatal(err)
	}
	if got := rec.Count(recorder.OpWriteShaderInfo); got != int(gfx.NumShaderInfoKinds) {
		t.Fatalf("initial flush wrote %d tables, want %d", got, gfx.NumShaderInfoKinds)
	}

	rec.Reset()
	x := a.Allocate(gfx.ShaderInfoTransform)
	if x.Index() != 1 {
		t.Fatalf("first transform entry = %d, want 1", x.Index())
	}
	a.SetTransform(x, gfx.Translate(5, 6))
	if err := a.Flush(rec); err != nil {
		t.Fatal(err)
	}
	calls := rec.Filter(recorder.OpWriteShaderInfo)
	if len(calls) != 1 || calls[0].Offset != 3 || calls[0].Count != 3 {
		t.Fatalf("flush calls = %+v, want one write of 3 texels at 3", calls)
	}
	table := rec.ShaderInfo(gfx.ShaderInfoTransform)
	if table[3][3] != 5 || table[4][3] != 6 {
		t.Errorf("uploaded translation = (%v, %v), want (5, 6)", table[3][3], table[4][3])
	}

	rec.Reset()
	if err := a.Flush(rec); err != nil {
		t.Fatal(err)
	}
	if rec.Count(recorder.OpWriteShaderInfo) != 0 {
		t.Error("clean tables uploaded again")
	}
}

func TestOpacityClamped(t *testing.T) {
	a := New(1)
	o := a.Allocate(gfx.ShaderInfoOpacity)
	a.SetOpacity(o, 3)
	if got := a.Texels(gfx.ShaderInfoOpacity, o)[0][3]; got != 1 {
		t.Errorf("opacity = %v, want clamp to 1", got)
	}
}

func TestPackUnpack(t *testing.T) {
	s := Slots{
		Transform:    BMPAlloc{Page: 1, PageLine: 2, BitIndex: 3},
		ClipRect:     BMPAlloc{Page: 0, PageLine: 7, BitIndex: 31},
		Opacity:      BMPAlloc{Page: 255, PageLine: 0, BitIndex: 1},
		Color:        Default(),
		TextSettings: BMPAlloc{Page: 2, PageLine: 1, BitIndex: 0},
	}
	var v gfx.Vertex
	s.Pack(&v)
	if v.IDs[1] != 7*32+31 {
		t.Errorf("clip slot byte = %d, want %d", v.IDs[1], 7*32+31)
	}
	got := Unpack(&v)
	for _, pair := range [][2]BMPAlloc{
		{got.Transform, s.Transform},
		{got.ClipRect, s.ClipRect},
		{got.Opacity, s.Opacity},
		{got.Color, s.Color},
		{got.TextSettings, s.TextSettings},
	} {
		if pair[0].Index() != pair[1].Index() {
			t.Errorf("unpacked %s, want %s", pair[0], pair[1])
		}
	}
}
