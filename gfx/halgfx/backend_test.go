// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgfx

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/uir/gfx"
)

// createNoopDevice opens a device on the noop HAL backend.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return open.Device, open.Queue
}

// skipOnNagaLimit skips tests when the shader compiler lacks a feature the
// default material uses.
func skipOnNagaLimit(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
		t.Skipf("Skipping: naga limitation: %v", err)
	}
}

func noopView(t *testing.T, dev hal.Device) hal.TextureView {
	t.Helper()
	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Size:          hal.Extent3D{Width: 64, Height: 32, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{})
	if err != nil {
		t.Fatalf("CreateTextureView: %v", err)
	}
	return view
}

func newTestBackend(t *testing.T, mutate func(*Options)) (*Backend, hal.Device) {
	t.Helper()
	dev, queue := createNoopDevice(t)
	opts := Options{Label: "test", Target: noopView(t, dev), Width: 64, Height: 32}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := New(dev, queue, opts)
	if err != nil {
		skipOnNagaLimit(t, err)
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, dev
}

func readBuffer(t *testing.T, dev hal.Device, buf hal.Buffer, offset, size uint64) []byte {
	t.Helper()
	m, err := dev.MapBuffer(buf, offset, size)
	if err != nil {
		t.Fatalf("MapBuffer: %v", err)
	}
	return unsafe.Slice((*byte)(m.Ptr), size)
}

func readFloats(t *testing.T, dev hal.Device, buf hal.Buffer, offset uint64, n int) []float32 {
	t.Helper()
	raw := readBuffer(t, dev, buf, offset, uint64(n)*4)
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func TestShaderCompiles(t *testing.T) {
	words, err := compileShader(shaderWGSL)
	if err != nil {
		skipOnNagaLimit(t, err)
		t.Fatalf("compileShader: %v", err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Fatalf("SPIR-V magic = %#x, want 0x07230203", words[0])
	}
}

func TestVertexLayout(t *testing.T) {
	l := VertexLayout()
	if l.ArrayStride != gfx.VertexSize {
		t.Errorf("ArrayStride = %d, want %d", l.ArrayStride, gfx.VertexSize)
	}
	offsets := map[uint32]uint64{
		0: uint64(unsafe.Offsetof(gfx.Vertex{}.Position)),
		1: uint64(unsafe.Offsetof(gfx.Vertex{}.Tint)),
		2: uint64(unsafe.Offsetof(gfx.Vertex{}.UV)),
		3: uint64(unsafe.Offsetof(gfx.Vertex{}.XformClipPages)),
		4: uint64(unsafe.Offsetof(gfx.Vertex{}.IDs)),
		5: uint64(unsafe.Offsetof(gfx.Vertex{}.Flags)),
		6: uint64(unsafe.Offsetof(gfx.Vertex{}.OpacityColorPages)),
		7: uint64(unsafe.Offsetof(gfx.Vertex{}.SettingIndex)),
		8: uint64(unsafe.Offsetof(gfx.Vertex{}.Circle)),
		9: uint64(unsafe.Offsetof(gfx.Vertex{}.TextureID)),
	}
	if len(l.Attributes) != len(offsets) {
		t.Fatalf("got %d attributes, want %d", len(l.Attributes), len(offsets))
	}
	for _, a := range l.Attributes {
		if want := offsets[a.ShaderLocation]; a.Offset != want {
			t.Errorf("location %d offset = %d, want %d", a.ShaderLocation, a.Offset, want)
		}
	}
}

func TestBufferWrites(t *testing.T) {
	b, dev := newTestBackend(t, nil)

	vb, err := b.CreateBuffer(gfx.BufferVertex, 8, "vb")
	if err != nil {
		t.Fatal(err)
	}
	v := gfx.Vertex{Position: [3]float32{1, 2, 3}, Tint: [4]uint8{9, 8, 7, 6}}
	if err := b.WriteVertices(vb, 2, []gfx.Vertex{v}); err != nil {
		t.Fatal(err)
	}
	raw := readBuffer(t, dev, b.buffers[vb].buf, 2*gfx.VertexSize, gfx.VertexSize)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[4:])); got != 2 {
		t.Errorf("Position.Y = %v, want 2", got)
	}
	if raw[12] != 9 || raw[15] != 6 {
		t.Errorf("Tint bytes = %v, want [9 8 7 6]", raw[12:16])
	}

	ib, err := b.CreateBuffer(gfx.BufferIndex, 5, "ib")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WriteIndices(ib, 0, []uint16{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteIndices(ib, 1, []uint16{70, 80}); err != nil {
		t.Fatal(err)
	}
	raw = readBuffer(t, dev, b.buffers[ib].buf, 0, 6*2)
	want := []uint16{1, 70, 80, 4, 5, 0}
	for i, w := range want {
		if got := binary.LittleEndian.Uint16(raw[i*2:]); got != w {
			t.Errorf("index %d = %d, want %d", i, got, w)
		}
	}

	tests := []struct {
		name string
		err  error
	}{
		{"vertex overflow", b.WriteVertices(vb, 7, make([]gfx.Vertex, 2))},
		{"index overflow", b.WriteIndices(ib, 4, []uint16{1, 2})},
		{"wrong kind", b.WriteIndices(vb, 0, []uint16{1})},
		{"unknown", b.WriteVertices(99, 0, []gfx.Vertex{v})},
	}
	for _, tt := range tests {
		if tt.err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if err := b.WriteVertices(99, 0, nil); !errors.Is(err, gfx.ErrUnknownBuffer) {
		t.Errorf("unknown buffer error = %v, want ErrUnknownBuffer", err)
	}

	b.DestroyBuffer(vb)
	if err := b.WriteVertices(vb, 0, []gfx.Vertex{v}); !errors.Is(err, gfx.ErrUnknownBuffer) {
		t.Errorf("write after destroy = %v, want ErrUnknownBuffer", err)
	}
	b.DestroyBuffer(vb)
}

func TestFences(t *testing.T) {
	b, _ := newTestBackend(t, nil)

	idle, err := b.InsertFence()
	if err != nil {
		t.Fatal(err)
	}
	if !b.FencePassed(idle) {
		t.Error("fence inserted with nothing submitted should pass")
	}

	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	v, err := b.InsertFence()
	if err != nil {
		t.Fatal(err)
	}
	if v <= idle {
		t.Errorf("fence %d not greater than %d", v, idle)
	}
	if b.FencePassed(v) {
		t.Error("frame fence passed before EndFrame")
	}
	if err := b.WaitFence(v); !errors.Is(err, gfx.ErrInvalidOperation) {
		t.Errorf("WaitFence in frame = %v, want ErrInvalidOperation", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if !b.FencePassed(v) {
		t.Error("frame fence should pass once the noop queue completes")
	}
	if err := b.WaitFence(v); err != nil {
		t.Errorf("WaitFence = %v", err)
	}
	if b.FencePassed(v + 10) {
		t.Error("future fence reported passed")
	}
	if err := b.WaitFence(v + 10); err == nil {
		t.Error("expected error waiting on a fence never inserted")
	}
}

func TestFrameCallsOutsideFrame(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	calls := map[string]func() error{
		"EndFrame":          b.EndFrame,
		"SetScissor":        func() error { return b.SetScissor(gfx.Rect{W: 1, H: 1}) },
		"DisableScissor":    b.DisableScissor,
		"SetStencilRef":     func() error { return b.SetStencilRef(1) },
		"BindMaterial":      func() error { return b.BindMaterial(gfx.MaterialDefault) },
		"BindTextures":      func() error { return b.BindTextures(nil) },
		"BindFont":          func() error { return b.BindFont(0) },
		"DrawRanges":        func() error { return b.DrawRanges(1, 2, nil) },
		"PushView":          func() error { return b.PushView(gfx.Identity) },
		"PopView":           b.PopView,
		"PushRenderTexture": func() error { return b.PushRenderTexture(1) },
		"PopRenderTexture":  b.PopRenderTexture,
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); !errors.Is(err, gfx.ErrInvalidOperation) {
				t.Errorf("%s outside frame = %v, want ErrInvalidOperation", name, err)
			}
		})
	}
}

func TestBeginFrame(t *testing.T) {
	b, dev := newTestBackend(t, func(o *Options) { o.Target = nil })
	if err := b.BeginFrame(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("BeginFrame without target = %v, want ErrNoTarget", err)
	}
	if err := b.SetTarget(noopView(t, dev), 64, 32); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginFrame(); !errors.Is(err, gfx.ErrInvalidOperation) {
		t.Errorf("nested BeginFrame = %v, want ErrInvalidOperation", err)
	}
	if err := b.SetTarget(noopView(t, dev), 64, 32); !errors.Is(err, gfx.ErrInvalidOperation) {
		t.Errorf("SetTarget in frame = %v, want ErrInvalidOperation", err)
	}
	if b.main.cleared != b.frame {
		t.Error("main target not cleared in its first pass")
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestEndFrameUnbalanced(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.PushView(gfx.Translate(1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := b.EndFrame(); !errors.Is(err, gfx.ErrInvalidOperation) {
		t.Fatalf("EndFrame with pushed view = %v, want ErrInvalidOperation", err)
	}
	if err := b.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame after unbalanced frame: %v", err)
	}
	if err := b.PopView(); !errors.Is(err, gfx.ErrInvalidOperation) {
		t.Errorf("PopView on fresh frame = %v, want ErrInvalidOperation", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestShaderInfoGrowth(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	initial := len(b.tables[gfx.ShaderInfoColor].shadow)

	first := gfx.Texel{0.25, 0.5, 0.75, 1}
	if err := b.WriteShaderInfo(gfx.ShaderInfoColor, 1, []gfx.Texel{first}); err != nil {
		t.Fatal(err)
	}
	b.res.infoGroupStale = false
	far := initial + 10
	if err := b.WriteShaderInfo(gfx.ShaderInfoColor, far, []gfx.Texel{{1, 0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	tab := b.tables[gfx.ShaderInfoColor]
	if len(tab.shadow) <= far {
		t.Fatalf("table holds %d texels, want more than %d", len(tab.shadow), far)
	}
	if !b.res.infoGroupStale {
		t.Error("growing a table should invalidate the shader info bind group")
	}
	got := readFloats(t, dev, tab.buf, texelSize, 4)
	for i := range got {
		if got[i] != first[i] {
			t.Fatalf("texel 1 after growth = %v, want %v", got, first)
		}
	}
	if err := b.WriteShaderInfo(gfx.NumShaderInfoKinds, 0, nil); err == nil {
		t.Error("expected error for unknown table")
	}
}

func drawOnce(t *testing.T, b *Backend) {
	t.Helper()
	vb, err := b.CreateBuffer(gfx.BufferVertex, 4, "vb")
	if err != nil {
		t.Fatal(err)
	}
	ib, err := b.CreateBuffer(gfx.BufferIndex, 6, "ib")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.DrawRanges(vb, ib, []gfx.DrawBufferRange{{IndexCount: 6, VertsReferenced: 4}}); err != nil {
		t.Fatalf("DrawRanges: %v", err)
	}
}

func TestViewRecords(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	view := noopView(t, dev)
	if err := b.RegisterTexture(5, view); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.BindTextures([]gfx.TextureID{5, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := b.PushView(gfx.Translate(10, 20)); err != nil {
		t.Fatal(err)
	}
	drawOnce(t, b)
	if err := b.PushView(gfx.Translate(1, 1)); err != nil {
		t.Fatal(err)
	}
	drawOnce(t, b)

	tests := []struct {
		name   string
		offset uint64
		want   []float32
	}{
		{"first", 0, []float32{1, 0, 0, 10, 0, 1, 0, 20, 64, 32, 0, 0, 5, 0, 0, 0}},
		{"composed", viewRecordStride, []float32{1, 0, 0, 11, 0, 1, 0, 21, 64, 32, 0, 0, 5, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readFloats(t, dev, b.res.views, tt.offset, len(tt.want))
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("record = %v, want %v", got, tt.want)
				}
			}
		})
	}
	if b.fr.records != 2 {
		t.Errorf("records = %d, want 2", b.fr.records)
	}
	for range 2 {
		if err := b.PopView(); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestViewRecordsExhausted(t *testing.T) {
	b, _ := newTestBackend(t, func(o *Options) { o.ViewRecords = 2 })
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	drawOnce(t, b)
	if err := b.PushView(gfx.Translate(1, 0)); err != nil {
		t.Fatal(err)
	}
	drawOnce(t, b)
	if err := b.PushView(gfx.Translate(1, 0)); err != nil {
		t.Fatal(err)
	}
	vb, _ := b.CreateBuffer(gfx.BufferVertex, 4, "vb")
	ib, _ := b.CreateBuffer(gfx.BufferIndex, 6, "ib")
	if err := b.DrawRanges(vb, ib, []gfx.DrawBufferRange{{IndexCount: 6}}); err == nil {
		t.Error("expected error once view records run out")
	}
}

func TestDrawRangeBounds(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	vb, _ := b.CreateBuffer(gfx.BufferVertex, 4, "vb")
	ib, _ := b.CreateBuffer(gfx.BufferIndex, 6, "ib")
	if err := b.DrawRanges(vb, ib, []gfx.DrawBufferRange{{FirstIndex: 3, IndexCount: 6}}); err == nil {
		t.Error("expected error for a range past the index buffer")
	}
	if err := b.DrawRanges(ib, vb, nil); !errors.Is(err, gfx.ErrUnknownBuffer) {
		t.Errorf("swapped buffers = %v, want ErrUnknownBuffer", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestBindings(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.EndFrame() }()

	if err := b.BindTextures([]gfx.TextureID{42}); !errors.Is(err, ErrUnknownTexture) {
		t.Errorf("BindTextures unknown = %v, want ErrUnknownTexture", err)
	}
	if err := b.BindTextures(make([]gfx.TextureID, gfx.TextureSlotCount+1)); err == nil {
		t.Error("expected error for too many slots")
	}
	if err := b.BindTextures(make([]gfx.TextureID, gfx.TextureSlotCount)); err != nil {
		t.Errorf("BindTextures with every slot empty = %v", err)
	}
	if err := b.BindFont(42); !errors.Is(err, ErrUnknownTexture) {
		t.Errorf("BindFont unknown = %v, want ErrUnknownTexture", err)
	}
	if err := b.RegisterTexture(42, noopView(t, dev)); err != nil {
		t.Fatal(err)
	}
	if err := b.BindFont(42); err != nil {
		t.Errorf("BindFont = %v", err)
	}
	if !b.fr.textureGroupStale {
		t.Error("changing the font should invalidate the texture bind group")
	}

	for _, m := range []gfx.MaterialID{gfx.MaterialDefault, gfx.MaterialStencilPush, gfx.MaterialStencilPop} {
		if err := b.BindMaterial(m); err != nil {
			t.Errorf("BindMaterial(%d) = %v", m, err)
		}
		if err := b.RegisterMaterial(m, b.materials[m]); err == nil {
			t.Errorf("RegisterMaterial(%d) should refuse a built-in material", m)
		}
	}
	if err := b.BindMaterial(7); !errors.Is(err, ErrUnknownMaterial) {
		t.Errorf("BindMaterial unknown = %v, want ErrUnknownMaterial", err)
	}
	p, err := dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{Layout: b.PipelineLayout()})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.RegisterMaterial(7, p); err != nil {
		t.Fatal(err)
	}
	if err := b.BindMaterial(7); err != nil {
		t.Errorf("BindMaterial custom = %v", err)
	}
	if err := b.SetStencilRef(3); err != nil || b.fr.stencilRef != 3 {
		t.Errorf("SetStencilRef = %v, ref %d", err, b.fr.stencilRef)
	}
}

func TestRenderTextures(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.PushRenderTexture(7); !errors.Is(err, ErrUnknownTexture) {
		t.Fatalf("push unknown = %v, want ErrUnknownTexture", err)
	}
	if err := b.RegisterRenderTarget(7, noopView(t, dev), 16, 16); err != nil {
		t.Fatal(err)
	}
	if err := b.PushRenderTexture(7); err != nil {
		t.Fatal(err)
	}
	rt := b.targets[7]
	if b.fr.current != rt {
		t.Fatal("render texture is not the current target")
	}
	if rt.cleared != b.frame {
		t.Error("render texture not cleared on first use")
	}
	drawOnce(t, b)
	if err := b.PopRenderTexture(); err != nil {
		t.Fatal(err)
	}
	if b.fr.current != &b.main {
		t.Error("pop did not resume the main target")
	}
	if err := b.PopRenderTexture(); !errors.Is(err, gfx.ErrInvalidOperation) {
		t.Errorf("pop on empty stack = %v, want ErrInvalidOperation", err)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
	b.UnregisterRenderTarget(7)
	if _, ok := b.targets[7]; ok {
		t.Error("render target still registered")
	}
}

func TestClampPixel(t *testing.T) {
	tests := []struct {
		v    float64
		hi   uint32
		want uint32
	}{
		{-5, 100, 0},
		{0, 100, 0},
		{42, 100, 42},
		{100, 100, 100},
		{1e9, 100, 100},
		{math.NaN(), 100, 0},
	}
	for _, tt := range tests {
		if got := clampPixel(tt.v, tt.hi); got != tt.want {
			t.Errorf("clampPixel(%v, %d) = %d, want %d", tt.v, tt.hi, got, tt.want)
		}
	}
}

func TestDeferredRelease(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	vb, _ := b.CreateBuffer(gfx.BufferVertex, 4, "vb")
	b.DestroyBuffer(vb)
	if n := len(b.graves); n != 1 || !b.graves[0].pending {
		t.Fatalf("graves = %d, want one pending release", n)
	}
	if err := b.EndFrame(); err != nil {
		t.Fatal(err)
	}
	for _, g := range b.graves {
		if g.pending {
			t.Fatal("release still pending after EndFrame")
		}
	}
	b.collect()
	if len(b.graves) != 0 {
		t.Errorf("graves after collect = %d, want 0", len(b.graves))
	}
}

func TestClose(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	if err := b.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := b.CreateBuffer(gfx.BufferVertex, 1, "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateBuffer after Close = %v, want ErrClosed", err)
	}
	if err := b.BeginFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("BeginFrame after Close = %v, want ErrClosed", err)
	}
}

type halDeviceProvider struct {
	dev   hal.Device
	queue hal.Queue
}

func (p halDeviceProvider) Device() gpucontext.Device {
	return p.dev
}

func (p halDeviceProvider) Queue() gpucontext.Queue {
	return p.queue
}

func (p halDeviceProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

func (p halDeviceProvider) Adapter() gpucontext.Adapter {
	return nil
}

func (p halDeviceProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{}
}

func (p halDeviceProvider) HalDevice() any {
	return p.dev
}

func (p halDeviceProvider) HalQueue() any {
	return p.queue
}

type plainProvider struct{ halDeviceProvider }

func (plainProvider) HalDevice() {}

func TestNewFromProvider(t *testing.T) {
	dev, queue := createNoopDevice(t)
	b, err := NewFromProvider(halDeviceProvider{dev: dev, queue: queue}, Options{})
	if err != nil {
		skipOnNagaLimit(t, err)
		t.Fatalf("NewFromProvider: %v", err)
	}
	defer func() { _ = b.Close() }()
	if b.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("Format = %v, want the provider surface format", b.Format())
	}
	if _, err := NewFromProvider(plainProvider{}, Options{}); err == nil {
		t.Error("expected error for a provider without HAL types")
	}
}
