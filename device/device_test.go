// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx/recorder"
)

func newTestDevice(t *testing.T, latency int, mutate func(*Config)) (*Device, *recorder.Backend) {
	t.Helper()
	rec := recorder.New(latency)
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(rec, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, rec
}

func mustAllocate(t *testing.T, d *Device, v, i int) (*MeshHandle, MeshData) {
	t.Helper()
	h, data, err := d.Allocate(v, i)
	if err != nil {
		t.Fatalf("Allocate(%d, %d): %v", v, i, err)
	}
	return h, data
}

func mustAdvance(t *testing.T, d *Device) {
	t.Helper()
	if err := d.AdvanceFrame(); err != nil {
		t.Fatalf("AdvanceFrame: %v", err)
	}
}

// renderFrame evaluates head inside a Begin/EndFrame pair.
func renderFrame(t *testing.T, d *Device, rec *recorder.Backend, head *Command, opts EvaluateOptions) {
	t.Helper()
	if err := rec.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := d.EvaluateChain(head, opts); err != nil {
		t.Fatalf("EvaluateChain: %v", err)
	}
	if err := rec.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func fillQuad(data MeshData, x float32) {
	for k := range data.Vertices {
		data.Vertices[k].Position = [3]float32{x + float32(k), 0, 0}
	}
	for k := range data.Indices {
		data.Indices[k] = data.IndexOffset + uint16(k%len(data.Vertices))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero initial", func(c *Config) { c.InitialVertexCapacity = 0 }, true},
		{"page above 16-bit", func(c *Config) { c.MaxVerticesPerPage = MaxVerticesPerPage + 1 }, true},
		{"initial above page", func(c *Config) { c.InitialVertexCapacity = 4096; c.MaxVerticesPerPage = 1024 }, true},
		{"zero prune", func(c *Config) { c.PruneEmptyFrames = 0 }, true},
		{"zero large", func(c *Config) { c.LargeMeshVertexCount = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllocateFirstPage(t *testing.T) {
	d, rec := newTestDevice(t, 0, nil)
	h, data := mustAllocate(t, d, 4, 6)

	if got := len(d.Pages()); got != 1 {
		t.Fatalf("pages = %d, want 1", got)
	}
	if got := h.Page().VertexCapacity(); got < 2048 {
		t.Errorf("first page capacity = %d, want >= 2048", got)
	}
	if len(data.Vertices) != 4 || len(data.Indices) != 6 {
		t.Errorf("slices = %d/%d, want 4/6", len(data.Vertices), len(data.Indices))
	}
	if h.TriangleCount() != 2 {
		t.Errorf("TriangleCount = %d, want 2", h.TriangleCount())
	}
	if got := rec.LiveBuffers(); got != 2 {
		t.Errorf("live buffers = %d, want 2", got)
	}
}

func TestAllocateErrors(t *testing.T) {
	d, _ := newTestDevice(t, 0, nil)

	if _, _, err := d.Allocate(0, 3); !errors.Is(err, ErrEmptyMesh) {
		t.Errorf("Allocate(0, 3) = %v, want ErrEmptyMesh", err)
	}
	if _, _, err := d.Allocate(3, 0); !errors.Is(err, ErrEmptyMesh) {
		t.Errorf("Allocate(3, 0) = %v, want ErrEmptyMesh", err)
	}
	_, _, err := d.Allocate(MaxVerticesPerPage+1, 3)
	if !errors.Is(err, ErrMeshTooLarge) {
		t.Fatalf("oversized Allocate = %v, want ErrMeshTooLarge", err)
	}
	if !errors.HasAssertionFailure(err) {
		t.Errorf("oversized Allocate should be an assertion failure: %v", err)
	}
}

func TestPageGrowth(t *testing.T) {
	d, _ := newTestDevice(t, 0, func(c *Config) { c.InitialVertexCapacity = 16 })

	mustAllocate(t, d, 10, 10)
	mustAllocate(t, d, 10, 10)
	mustAllocate(t, d, 15, 15)

	want := []uint32{20, 40}
	pages := d.Pages()
	if len(pages) != len(want) {
		t.Fatalf("pages = %d, want %d", len(pages), len(want))
	}
	for i, p := range pages {
		if p.VertexCapacity() != want[i] {
			t.Errorf("page %d capacity = %d, want %d", i, p.VertexCapacity(), want[i])
		}
	}
}

func TestPageCapacityClamped(t *testing.T) {
	d, _ := newTestDevice(t, 0, func(c *Config) {
		c.InitialVertexCapacity = 1024
		c.MaxVerticesPerPage = 1024
		c.LargeMeshVertexCount = 2048
	})
	mustAllocate(t, d, 1000, 3)
	h, _ := mustAllocate(t, d, 600, 3)
	if got := h.Page().VertexCapacity(); got != 1024 {
		t.Errorf("second page capacity = %d, want clamp 1024", got)
	}
}

func TestLargeMeshPlacement(t *testing.T) {
	d, _ := newTestDevice(t, 0, func(c *Config) {
		c.InitialVertexCapacity = 16
		c.LargeMeshVertexCount = 100
	})

	a, _ := mustAllocate(t, d, 200, 200)
	b, _ := mustAllocate(t, d, 150, 150)
	c, _ := mustAllocate(t, d, 150, 150)
	for _, h := range []*MeshHandle{a, b, c} {
		if !h.Page().dedicated {
			t.Fatalf("large mesh on page %d is not dedicated", h.Page().Index())
		}
	}
	if got := b.Page().VertexCapacity(); got != 150 {
		t.Errorf("dedicated page capacity = %d, want exact 150", got)
	}
	for _, h := range []*MeshHandle{a, b, c} {
		if err := d.Free(h); err != nil {
			t.Fatal(err)
		}
	}

	// Two empty pages of 150 and one of 200: the first smallest wins.
	h, _ := mustAllocate(t, d, 120, 120)
	if got := h.Page().Index(); got != 1 {
		t.Errorf("large mesh went to page %d, want 1", got)
	}
	if got := len(d.Pages()); got != 3 {
		t.Errorf("pages = %d, want 3 (no new page)", got)
	}
}

func TestUpdateInPlaceSameFrame(t *testing.T) {
	d, _ := newTestDevice(t, 0, nil)
	h, first := mustAllocate(t, d, 6, 9)

	tests := []struct {
		name string
		v, i int
	}{
		{"same size", 6, 9},
		{"shrink", 4, 6},
		{"regrow within capacity", 6, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := d.Update(h, tt.v, tt.i)
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if &data.Vertices[0] != &first.Vertices[0] || &data.Indices[0] != &first.Indices[0] {
				t.Error("in-place update returned a different allocation")
			}
			if len(data.Vertices) != tt.v || len(data.Indices) != tt.i {
				t.Errorf("slices = %d/%d, want %d/%d", len(data.Vertices), len(data.Indices), tt.v, tt.i)
			}
			if h.PendingUpdate() {
				t.Error("same-frame update scheduled a copy-back")
			}
		})
	}
}

// Allocate 4/6, grow to 8 in the same frame: the old range is reusable
// only after the slot of that frame has been drained.
func TestUpdateGrowDefersOldRange(t *testing.T) {
	d, _ := newTestDevice(t, 0, nil)
	h, _ := mustAllocate(t, d, 4, 6)
	page := h.Page()

	if _, err := d.Update(h, 8, 12); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if start, _ := h.VertexRange(); start == 0 {
		t.Fatal("grown mesh still at offset 0")
	}
	for range FramesInFlight - 1 {
		mustAdvance(t, d)
		if got := page.vertices.alloc.Used(); got != 12 {
			t.Fatalf("frame %d: used = %d, want 12 (old range still held)", d.Frame(), got)
		}
	}
	mustAdvance(t, d)
	if got := page.vertices.alloc.Used(); got != 8 {
		t.Fatalf("after %d frames: used = %d, want 8", FramesInFlight, got)
	}

	h2, _ := mustAllocate(t, d, 4, 6)
	if start, _ := h2.VertexRange(); start != 0 {
		t.Errorf("reused vertex start = %d, want 0", start)
	}
	if start, _ := h2.IndexRange(); start != 0 {
		t.Errorf("reused index start = %d, want 0", start)
	}
}

func TestUpdateCopyBack(t *testing.T) {
	d, rec := newTestDevice(t, 0, nil)
	mustAdvance(t, d)
	h, data := mustAllocate(t, d, 4, 6)
	fillQuad(data, 0)
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})

	mustAdvance(t, d)
	updateFrame := d.Frame()
	data, err := d.Update(h, 3, 3)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !h.PendingUpdate() {
		t.Fatal("cross-frame update did not schedule a copy-back")
	}
	shortStart, _ := h.VertexRange()
	if capacity := h.Page().VertexCapacity(); shortStart != capacity-3 {
		t.Errorf("short-lived start = %d, want %d (end of page)", shortStart, capacity-3)
	}
	for k := range data.Vertices {
		data.Vertices[k].Position[0] = 100 + float32(k)
		data.Indices[k] = data.IndexOffset + uint16(k)
	}
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})

	for d.Frame() < updateFrame+FramesInFlight-1 {
		mustAdvance(t, d)
		if !h.PendingUpdate() {
			t.Fatalf("copy-back resolved early at frame %d", d.Frame())
		}
	}
	mustAdvance(t, d)
	if h.PendingUpdate() {
		t.Fatal("copy-back not resolved after its slot drained")
	}
	if start, _ := h.VertexRange(); start != 0 {
		t.Fatalf("mesh start after copy-back = %d, want permanent 0", start)
	}
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})

	verts := rec.Vertices(h.Page().VertexBuffer())
	idx := rec.Indices(h.Page().IndexBuffer())
	for k := range 3 {
		if got := verts[k].Position[0]; got != 100+float32(k) {
			t.Errorf("uploaded vertex %d x = %v, want %v", k, got, 100+float32(k))
		}
		if idx[k] != uint16(k) {
			t.Errorf("uploaded index %d = %d, want rebased %d", k, idx[k], k)
		}
	}
}

func TestUpdateRelocatesWhenPermanentTooSmall(t *testing.T) {
	d, _ := newTestDevice(t, 0, nil)
	h, _ := mustAllocate(t, d, 4, 6)
	mustAdvance(t, d)

	if _, err := d.Update(h, 100, 150); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if h.PendingUpdate() {
		t.Error("relocation should not schedule a copy-back")
	}
	if start, _ := h.VertexRange(); start == 0 {
		t.Error("relocated mesh still at the old range")
	}
	st := d.GatherAllocationStatistics()
	if st.PendingFrees[d.Frame()%FramesInFlight] != 1 {
		t.Errorf("pending frees = %v, want one in slot %d", st.PendingFrees, d.Frame()%FramesInFlight)
	}
}

func TestFreeImmediateWhenUnsubmitted(t *testing.T) {
	d, _ := newTestDevice(t, 0, nil)
	h, _ := mustAllocate(t, d, 4, 6)
	page := h.Page()
	if err := d.Free(h); err != nil {
		t.Fatal(err)
	}
	if !page.IsEmpty() {
		t.Error("unsubmitted mesh was not freed immediately")
	}
	if err := d.Free(h); !errors.Is(err, ErrHandleFreed) {
		t.Errorf("double Free = %v, want ErrHandleFreed", err)
	}
	if _, err := d.Update(h, 4, 6); !errors.Is(err, ErrHandleFreed) {
		t.Errorf("Update after Free = %v, want ErrHandleFreed", err)
	}
}

func TestFreeAfterSubmitIsDeferred(t *testing.T) {
	d, rec := newTestDevice(t, 0, nil)
	h, data := mustAllocate(t, d, 4, 6)
	fillQuad(data, 0)
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})

	page := h.Page()
	if err := d.Free(h); err != nil {
		t.Fatal(err)
	}
	if page.IsEmpty() {
		t.Fatal("mesh drawn this frame was freed before its fence")
	}
}

func TestDeferredFreeWaitsForFence(t *testing.T) {
	const latency = 6
	d, rec := newTestDevice(t, latency, nil)

	mustAdvance(t, d)
	h, data := mustAllocate(t, d, 4, 6)
	fillQuad(data, 0)
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})
	page := h.Page()
	freedIn := d.Frame()
	fence := d.LastFence()
	if err := d.Free(h); err != nil {
		t.Fatal(err)
	}

	for d.Frame() < freedIn+FramesInFlight-1 {
		mustAdvance(t, d)
		renderFrame(t, d, rec, nil, EvaluateOptions{})
		if page.IsEmpty() {
			t.Fatalf("range reclaimed at frame %d, before its slot drained", d.Frame())
		}
	}
	waits := rec.Waits()
	mustAdvance(t, d)
	if !page.IsEmpty() {
		t.Fatal("range not reclaimed after its slot drained")
	}
	if rec.Waits() != waits+1 {
		t.Errorf("fence waits = %d, want %d: GPU was %d frames behind", rec.Waits(), waits+1, latency)
	}
	if !rec.FencePassed(fence) {
		t.Errorf("fence %d of the freeing frame not passed after the wait", fence)
	}
	if got := d.GatherDrawStatistics().FenceWaits; got == 0 {
		t.Error("draw statistics did not count the fence wait")
	}
}

func TestForeignHandle(t *testing.T) {
	d1, _ := newTestDevice(t, 0, nil)
	d2, _ := newTestDevice(t, 0, nil)
	h, _ := mustAllocate(t, d1, 4, 6)
	if err := d2.Free(h); !errors.Is(err, ErrForeignHandle) {
		t.Errorf("Free on another device = %v, want ErrForeignHandle", err)
	}
}

func TestPrunePages(t *testing.T) {
	d, rec := newTestDevice(t, 0, func(c *Config) { c.PruneEmptyFrames = 3 })
	h, _ := mustAllocate(t, d, 4, 6)
	if err := d.Free(h); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		mustAdvance(t, d)
	}
	if len(d.Pages()) != 1 {
		t.Fatal("page pruned too early")
	}
	mustAdvance(t, d)
	if len(d.Pages()) != 0 {
		t.Fatal("empty page not pruned")
	}
	if rec.LiveBuffers() != 0 {
		t.Errorf("live buffers = %d, want 0", rec.LiveBuffers())
	}
}

func TestPruneWaitsForFence(t *testing.T) {
	d, rec := newTestDevice(t, 100, func(c *Config) { c.PruneEmptyFrames = 2 })
	h, data := mustAllocate(t, d, 4, 6)
	fillQuad(data, 0)
	if err := d.Free(h); err != nil {
		t.Fatal(err)
	}
	renderFrame(t, d, rec, nil, EvaluateOptions{})

	mustAdvance(t, d)
	mustAdvance(t, d)
	st := d.GatherAllocationStatistics()
	if len(st.Pages) != 0 || st.RetiredPages != 1 {
		t.Fatalf("pages = %d, retired = %d; want 0, 1", len(st.Pages), st.RetiredPages)
	}
	if rec.LiveBuffers() != 2 {
		t.Fatalf("retired page released before its fence passed")
	}
	if err := rec.WaitFence(d.LastFence()); err != nil {
		t.Fatal(err)
	}
	mustAdvance(t, d)
	if rec.LiveBuffers() != 0 {
		t.Errorf("live buffers = %d, want 0 once the fence passed", rec.LiveBuffers())
	}
}

func TestDisposeQueued(t *testing.T) {
	d, rec := newTestDevice(t, 100, nil)
	h, data := mustAllocate(t, d, 4, 6)
	fillQuad(data, 0)
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})

	before := PendingDisposed()
	if err := d.Dispose(); err != nil {
		t.Fatal(err)
	}
	if got := PendingDisposed(); got != before+1 {
		t.Fatalf("queued pages = %d, want %d", got, before+1)
	}
	if _, _, err := d.Allocate(4, 6); !errors.Is(err, ErrDisposed) {
		t.Errorf("Allocate after Dispose = %v, want ErrDisposed", err)
	}
	DrainDisposed()
	if rec.LiveBuffers() != 2 {
		t.Fatal("page released before its fence passed")
	}
	if err := rec.WaitFence(d.LastFence()); err != nil {
		t.Fatal(err)
	}
	DrainDisposed()
	if rec.LiveBuffers() != 0 {
		t.Errorf("live buffers = %d, want 0 after drain", rec.LiveBuffers())
	}
}

func TestDisposeSynchronous(t *testing.T) {
	d, rec := newTestDevice(t, 100, func(c *Config) { c.SynchronousShutdown = true })
	h, data := mustAllocate(t, d, 4, 6)
	fillQuad(data, 0)
	renderFrame(t, d, rec, &Command{Type: CommandDraw, Mesh: h}, EvaluateOptions{})

	before := PendingDisposed()
	if err := d.Dispose(); err != nil {
		t.Fatal(err)
	}
	if PendingDisposed() != before {
		t.Error("synchronous dispose queued pages")
	}
	if rec.Waits() != 1 {
		t.Errorf("waits = %d, want 1", rec.Waits())
	}
	if rec.LiveBuffers() != 0 {
		t.Errorf("live buffers = %d, want 0", rec.LiveBuffers())
	}
}

func TestAllocatorSoundnessThroughDevice(t *testing.T) {
	d, rec := newTestDevice(t, 2, func(c *Config) { c.InitialVertexCapacity = 64 })
	var live []*MeshHandle
	for frame := range 40 {
		mustAdvance(t, d)
		for k := range 6 {
			n := 1 + (frame*7+k*5)%30
			h, data := mustAllocate(t, d, n, n+2)
			fillQuad(data, 0)
			live = append(live, h)
		}
		for k := 0; k < len(live); k += 3 {
			n := 1 + (frame+k)%40
			if _, err := d.Update(live[k], n, n); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
		if len(live) > 20 {
			for _, h := range live[:5] {
				if err := d.Free(h); err != nil {
					t.Fatal(err)
				}
			}
			live = live[5:]
		}
		renderFrame(t, d, rec, nil, EvaluateOptions{})
		for _, p := range d.Pages() {
			if err := p.vertices.alloc.Validate(); err != nil {
				t.Fatalf("frame %d page %d vertices: %v", frame, p.Index(), err)
			}
			if err := p.indices.alloc.Validate(); err != nil {
				t.Fatalf("frame %d page %d indices: %v", frame, p.Index(), err)
			}
		}
	}
}

func TestAllocationStatisticsJSON(t *testing.T) {
	d, _ := newTestDevice(t, 0, nil)
	mustAllocate(t, d, 4, 6)
	b, err := d.GatherAllocationStatistics().MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Device string `json:"device"`
		Pages  []struct {
			Index    int `json:"index"`
			Vertices struct {
				Capacity int `json:"capacity"`
				Used     int `json:"used"`
			} `json:"vertices"`
		} `json:"pages"`
		PendingFrees []int `json:"pendingFrees"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("invalid JSON %s: %v", b, err)
	}
	if decoded.Device != d.ID().String() {
		t.Errorf("device = %q, want %q", decoded.Device, d.ID())
	}
	if len(decoded.Pages) != 1 || decoded.Pages[0].Vertices.Used != 4 {
		t.Errorf("pages = %+v, want one page with 4 vertices used", decoded.Pages)
	}
	if len(decoded.PendingFrees) != FramesInFlight {
		t.Errorf("pendingFrees has %d slots, want %d", len(decoded.PendingFrees), FramesInFlight)
	}
}
