// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgfx_test

import (
	"image/color"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/gfx/halgfx"
	"github.com/gogpu/uir/tess"
	"github.com/gogpu/uir/visual"
)

func openNoop(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	open, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return open.Device, open.Queue
}

func TestRenderVisualTree(t *testing.T) {
	dev, queue := openNoop(t)
	view, err := dev.CreateTextureView(nil, &hal.TextureViewDescriptor{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := halgfx.New(dev, queue, halgfx.Options{Target: view, Width: 320, Height: 200})
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("Skipping: naga limitation: %v", err)
		}
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = b.Close() }()

	const atlas gfx.TextureID = 3
	if err := b.RegisterTexture(atlas, view); err != nil {
		t.Fatal(err)
	}

	d, err := device.New(b, device.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c, err := chain.New(d, chain.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	root := visual.New(gfx.Rect{W: 320, H: 200}, visual.Box{})
	card := visual.New(gfx.Rect{X: 20, Y: 20, W: 120, H: 80}, visual.Box{Radii: tess.UniformRadii(6)})
	if err := card.SetColor(color.NRGBA{R: 40, G: 120, B: 220, A: 255}); err != nil {
		t.Fatal(err)
	}
	if err := card.SetClip(true); err != nil {
		t.Fatal(err)
	}
	label := visual.New(gfx.Rect{X: 24, Y: 24, W: 60, H: 16}, visual.Text{
		Glyphs: []tess.Glyph{{Rect: gfx.Rect{X: 24, Y: 24, W: 8, H: 16}, UV: gfx.Rect{W: 0.1, H: 0.1}}},
		Atlas:  atlas,
	})
	if err := card.Add(label); err != nil {
		t.Fatal(err)
	}
	if err := root.Add(card); err != nil {
		t.Fatal(err)
	}
	if err := root.Attach(c); err != nil {
		t.Fatal(err)
	}

	for frame := range 3 {
		if err := d.AdvanceFrame(); err != nil {
			t.Fatalf("frame %d: AdvanceFrame: %v", frame, err)
		}
		if err := c.ProcessChanges(); err != nil {
			t.Fatalf("frame %d: ProcessChanges: %v", frame, err)
		}
		if err := b.BeginFrame(); err != nil {
			t.Fatalf("frame %d: BeginFrame: %v", frame, err)
		}
		if err := c.Render(); err != nil {
			t.Fatalf("frame %d: Render: %v", frame, err)
		}
		if err := b.EndFrame(); err != nil {
			t.Fatalf("frame %d: EndFrame: %v", frame, err)
		}
		if err := card.SetTransform(gfx.Translate(float32(frame), 0)); err != nil {
			t.Fatal(err)
		}
	}

	stats := d.GatherDrawStatistics()
	if stats.DrawRangeCalls == 0 {
		t.Error("no draws reached the backend")
	}
	if !b.FencePassed(stats.FenceValue) {
		t.Errorf("frame fence %d not passed on a synchronous queue", stats.FenceValue)
	}
}
