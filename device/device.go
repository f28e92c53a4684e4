// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/internal/alloc"
)

// FramesInFlight is the depth of the deferred-free ring. A range freed in
// frame F is reclaimed once the fence stamped in frame F has passed, which
// AdvanceFrame waits for when it enters frame F+FramesInFlight.
const FramesInFlight = 4

// MaxVerticesPerPage is the hard ceiling imposed by 16-bit indices.
const MaxVerticesPerPage = 1 << 16

// maxIndicesPerPage bounds the index buffer growth of regular pages.
const maxIndicesPerPage = 4 * MaxVerticesPerPage

// Config holds the device tuning knobs.
type Config struct {
	// InitialVertexCapacity is the vertex capacity of the first page.
	InitialVertexCapacity uint32
	// LargeMeshVertexCount is the vertex count at and above which a mesh
	// goes to the smallest fitting empty page or a dedicated one.
	LargeMeshVertexCount uint32
	// MaxVerticesPerPage caps page growth. Must not exceed
	// MaxVerticesPerPage.
	MaxVerticesPerPage uint32
	// PruneEmptyFrames is the number of consecutive empty frames after
	// which a page is released.
	PruneEmptyFrames int
	// BreakBatches forces a batch boundary on every draw command.
	BreakBatches bool
	// SynchronousShutdown makes Dispose wait for the GPU and release pages
	// immediately instead of queueing them.
	SynchronousShutdown bool
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{
		InitialVertexCapacity: 2048,
		LargeMeshVertexCount:  32768,
		MaxVerticesPerPage:    MaxVerticesPerPage,
		PruneEmptyFrames:      60,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.InitialVertexCapacity == 0:
		return errors.New("device: initial vertex capacity must be positive")
	case c.MaxVerticesPerPage == 0 || c.MaxVerticesPerPage > MaxVerticesPerPage:
		return errors.Newf("device: max vertices per page %d out of range (1..%d)", c.MaxVerticesPerPage, MaxVerticesPerPage)
	case c.InitialVertexCapacity > c.MaxVerticesPerPage:
		return errors.Newf("device: initial vertex capacity %d exceeds page limit %d", c.InitialVertexCapacity, c.MaxVerticesPerPage)
	case c.LargeMeshVertexCount == 0:
		return errors.New("device: large mesh threshold must be positive")
	case c.PruneEmptyFrames <= 0:
		return errors.New("device: prune threshold must be positive")
	}
	return nil
}

type deferredFree struct {
	page    *Page
	verts   alloc.Alloc
	indices alloc.Alloc
}

// pendingUpdate records a mesh that was moved to a short-lived allocation
// and must be copied back into its permanent one.
type pendingUpdate struct {
	id    uint32
	mesh  *MeshHandle
	frame uint32
	epoch uint64

	permVerts   alloc.Alloc
	permIndices alloc.Alloc
}

type frameSlot struct {
	fence   uint64
	frees   []deferredFree
	updates []uint32
}

type retiredPage struct {
	page  *Page
	fence uint64
}

// Device owns the geometry pages and hands out mesh handles.
//
// A Device is not safe for concurrent use. All calls must come from the
// render thread.
type Device struct {
	id      uuid.UUID
	backend gfx.Backend
	cfg     Config

	pages     []*Page
	pageCount int

	frame uint32
	// epoch advances on every frame and every EvaluateChain. Allocations
	// from the current epoch have never been submitted.
	epoch uint64
	slots [FramesInFlight]frameSlot

	updates      map[uint32]*pendingUpdate
	nextUpdateID uint32

	lastFence uint64
	retired   []retiredPage
	disposed  bool

	texSlots    *TextureSlotManager
	ranges      [drawRangeRingSize]gfx.DrawBufferRange
	rangesStart int

	draw       DrawStatistics
	fenceWaits int
}

// New creates a device drawing through b.
func New(b gfx.Backend, cfg Config) (*Device, error) {
	if b == nil {
		return nil, errors.New("device: nil backend")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		id:       uuid.New(),
		backend:  b,
		cfg:      cfg,
		updates:  make(map[uint32]*pendingUpdate),
		texSlots: NewTextureSlotManager(),
	}
	slogger().Info("device: created", "id", d.id, "initialVertices", cfg.InitialVertexCapacity)
	return d, nil
}

// ID returns the unique device identifier.
func (d *Device) ID() uuid.UUID { return d.id }

// Backend returns the graphics backend.
func (d *Device) Backend() gfx.Backend { return d.backend }

// Frame returns the current frame index.
func (d *Device) Frame() uint32 { return d.frame }

// Pages returns the live pages in creation order.
func (d *Device) Pages() []*Page { return d.pages }

// LastFence returns the fence stamped by the most recent EvaluateChain.
func (d *Device) LastFence() uint64 { return d.lastFence }

// SetBreakBatches toggles the batch-breaking debug mode.
func (d *Device) SetBreakBatches(on bool) { d.cfg.BreakBatches = on }

// TextureSlots returns the texture slot manager used by EvaluateChain.
func (d *Device) TextureSlots() *TextureSlotManager { return d.texSlots }

func (d *Device) checkHandle(h *MeshHandle) error {
	switch {
	case d.disposed:
		return ErrDisposed
	case h == nil:
		return errors.New("device: nil mesh handle")
	case h.dev != d:
		return ErrForeignHandle
	case h.freed:
		return ErrHandleFreed
	}
	return nil
}

func (d *Device) checkCounts(vertexCount, indexCount int) error {
	if vertexCount <= 0 || indexCount <= 0 {
		return errors.Wrapf(ErrEmptyMesh, "%d vertices, %d indices", vertexCount, indexCount)
	}
	if vertexCount > int(d.cfg.MaxVerticesPerPage) {
		return errors.WithAssertionFailure(
			errors.Wrapf(ErrMeshTooLarge, "%d vertices, limit %d", vertexCount, d.cfg.MaxVerticesPerPage))
	}
	return nil
}

// fresh reports whether an allocation made in frame/epoch has not been
// submitted to the GPU yet.
func (d *Device) fresh(frame uint32, epoch uint64) bool {
	return frame == d.frame && epoch == d.epoch
}

// Allocate reserves vertexCount vertices and indexCount indices and
// returns the handle and the CPU slices to fill. Indices written must
// include MeshData.IndexOffset. The whole range is queued for upload.
func (d *Device) Allocate(vertexCount, indexCount int) (*MeshHandle, MeshData, error) {
	if d.disposed {
		return nil, MeshData{}, ErrDisposed
	}
	if err := d.checkCounts(vertexCount, indexCount); err != nil {
		return nil, MeshData{}, err
	}
	page, va, ia, err := d.allocate(uint32(vertexCount), uint32(indexCount))
	if err != nil {
		return nil, MeshData{}, err
	}
	h := &MeshHandle{dev: d}
	d.assign(h, page, va, ia, uint32(vertexCount), uint32(indexCount))
	return h, h.data(), nil
}

func (d *Device) assign(h *MeshHandle, page *Page, va, ia alloc.Alloc, v, i uint32) {
	h.page = page
	h.allocVerts = va
	h.allocIndices = ia
	h.vertexCount = v
	h.indexCount = i
	h.allocTime = d.frame
	h.allocEpoch = d.epoch
	h.updateAllocID = 0
	d.registerUpload(h)
}

func (d *Device) registerUpload(h *MeshHandle) {
	h.page.vertices.registerUpdate(h.allocVerts.Start, h.vertexCount)
	h.page.indices.registerUpdate(h.allocIndices.Start, h.indexCount)
}

func (d *Device) allocate(v, i uint32) (*Page, alloc.Alloc, alloc.Alloc, error) {
	if v >= d.cfg.LargeMeshVertexCount {
		return d.allocateLarge(v, i)
	}
	for _, p := range d.pages {
		if va, ia, ok := p.tryAlloc(v, i, false); ok {
			return p, va, ia, nil
		}
	}

	vcap := d.cfg.InitialVertexCapacity
	icap := 2 * d.cfg.InitialVertexCapacity
	for j := len(d.pages) - 1; j >= 0; j-- {
		if !d.pages[j].dedicated {
			vcap = max(vcap, 2*d.pages[j].VertexCapacity())
			icap = max(icap, 2*d.pages[j].IndexCapacity())
			break
		}
	}
	vcap = min(max(vcap, 2*v), d.cfg.MaxVerticesPerPage)
	icap = max(min(max(icap, 2*i), maxIndicesPerPage), i)

	p, err := d.newPage(vcap, icap, false)
	if err != nil {
		return nil, alloc.Alloc{}, alloc.Alloc{}, err
	}
	va, ia, ok := p.tryAlloc(v, i, false)
	if !ok {
		return nil, alloc.Alloc{}, alloc.Alloc{}, errors.AssertionFailedf(
			"device: fresh page %d (%d/%d) cannot hold %d vertices, %d indices", p.index, vcap, icap, v, i)
	}
	return p, va, ia, nil
}

// allocateLarge picks the smallest empty page that fits, first in creation
// order on ties, and creates a dedicated page otherwise.
func (d *Device) allocateLarge(v, i uint32) (*Page, alloc.Alloc, alloc.Alloc, error) {
	var best *Page
	for _, p := range d.pages {
		if !p.IsEmpty() || p.VertexCapacity() < v || p.IndexCapacity() < i {
			continue
		}
		if best == nil || p.VertexCapacity() < best.VertexCapacity() {
			best = p
		}
	}
	if best != nil {
		if va, ia, ok := best.tryAlloc(v, i, false); ok {
			best.framesEmpty = 0
			return best, va, ia, nil
		}
	}
	p, err := d.newPage(v, i, true)
	if err != nil {
		return nil, alloc.Alloc{}, alloc.Alloc{}, err
	}
	va, ia, ok := p.tryAlloc(v, i, false)
	if !ok {
		return nil, alloc.Alloc{}, alloc.Alloc{}, errors.AssertionFailedf(
			"device: dedicated page %d cannot hold %d vertices, %d indices", p.index, v, i)
	}
	return p, va, ia, nil
}

func (d *Device) newPage(vcap, icap uint32, dedicated bool) (*Page, error) {
	idx := d.pageCount
	label := fmt.Sprintf("uir-%s-page%d", d.id.String()[:8], idx)
	p, err := newPage(d.backend, idx, vcap, icap, label, dedicated)
	if err != nil {
		return nil, err
	}
	d.pageCount++
	d.pages = append(d.pages, p)
	slogger().Debug("device: page created", "page", idx, "vertices", vcap, "indices", icap, "dedicated", dedicated)
	return p, nil
}

// Update resizes the mesh to vertexCount/indexCount and returns the CPU
// slices to fill. The previous contents are not preserved.
//
// An allocation made this frame and never submitted is reused in place when
// it is large enough. Otherwise the data goes to a short-lived allocation in
// the same page and is copied back into the permanent allocation once the
// GPU is done with it; if the permanent allocation is too small the mesh is
// relocated and the old ranges are released through the deferred-free ring.
func (d *Device) Update(h *MeshHandle, vertexCount, indexCount int) (MeshData, error) {
	if err := d.checkHandle(h); err != nil {
		return MeshData{}, err
	}
	if err := d.checkCounts(vertexCount, indexCount); err != nil {
		return MeshData{}, err
	}
	v, i := uint32(vertexCount), uint32(indexCount)
	fits := v <= h.allocVerts.Size && i <= h.allocIndices.Size
	rec := d.updates[h.updateAllocID]

	switch {
	case rec == nil && d.fresh(h.allocTime, h.allocEpoch):
		if fits {
			d.resize(h, v, i)
			return h.data(), nil
		}
		page, va, ia, err := d.allocate(v, i)
		if err != nil {
			return MeshData{}, err
		}
		d.deferFree(h.page, h.allocVerts, h.allocIndices)
		d.assign(h, page, va, ia, v, i)
		return h.data(), nil

	case rec != nil && fits && d.fresh(rec.frame, rec.epoch):
		d.resize(h, v, i)
		return h.data(), nil
	}

	permVerts, permIndices := h.allocVerts, h.allocIndices
	if rec != nil {
		permVerts, permIndices = rec.permVerts, rec.permIndices
	}
	if v <= permVerts.Size && i <= permIndices.Size {
		if va, ia, ok := h.page.tryAlloc(v, i, true); ok {
			if rec != nil {
				d.dropUpdate(rec)
			}
			d.nextUpdateID++
			if d.nextUpdateID == 0 {
				d.nextUpdateID = 1
			}
			id := d.nextUpdateID
			d.updates[id] = &pendingUpdate{
				id:          id,
				mesh:        h,
				frame:       d.frame,
				epoch:       d.epoch,
				permVerts:   permVerts,
				permIndices: permIndices,
			}
			slot := &d.slots[d.frame%FramesInFlight]
			slot.updates = append(slot.updates, id)
			h.allocVerts = va
			h.allocIndices = ia
			h.updateAllocID = id
			d.resize(h, v, i)
			return h.data(), nil
		}
	}

	page, va, ia, err := d.allocate(v, i)
	if err != nil {
		return MeshData{}, err
	}
	if rec != nil {
		d.dropUpdate(rec)
	}
	d.deferFree(h.page, permVerts, permIndices)
	d.assign(h, page, va, ia, v, i)
	return h.data(), nil
}

func (d *Device) resize(h *MeshHandle, v, i uint32) {
	h.vertexCount = v
	h.indexCount = i
	d.registerUpload(h)
}

// dropUpdate releases the short-lived allocation the mesh currently points
// at and forgets the copy-back. The permanent allocation is left alone.
func (d *Device) dropUpdate(rec *pendingUpdate) {
	h := rec.mesh
	if d.fresh(rec.frame, rec.epoch) {
		if err := h.page.free(h.allocVerts, h.allocIndices); err != nil {
			panic(errors.WithAssertionFailure(err))
		}
	} else {
		d.deferFree(h.page, h.allocVerts, h.allocIndices)
	}
	delete(d.updates, rec.id)
	h.updateAllocID = 0
}

func (d *Device) deferFree(p *Page, va, ia alloc.Alloc) {
	slot := &d.slots[d.frame%FramesInFlight]
	slot.frees = append(slot.frees, deferredFree{page: p, verts: va, indices: ia})
}

// Free releases the mesh. Ranges that may still be read by the GPU go
// through the deferred-free ring; ranges never submitted are released
// immediately.
func (d *Device) Free(h *MeshHandle) error {
	if err := d.checkHandle(h); err != nil {
		return err
	}
	if rec := d.updates[h.updateAllocID]; rec != nil {
		d.dropUpdate(rec)
		d.deferFree(h.page, rec.permVerts, rec.permIndices)
	} else if d.fresh(h.allocTime, h.allocEpoch) {
		if err := h.page.free(h.allocVerts, h.allocIndices); err != nil {
			return errors.WithAssertionFailure(err)
		}
	} else {
		d.deferFree(h.page, h.allocVerts, h.allocIndices)
	}
	h.freed = true
	h.page = nil
	return nil
}

// AdvanceFrame starts a new frame. It waits for the fence stamped
// FramesInFlight frames ago, drains that slot's deferred frees, resolves
// its copy-backs and prunes pages that stayed empty for too long.
func (d *Device) AdvanceFrame() error {
	if d.disposed {
		return ErrDisposed
	}
	d.frame++
	d.epoch++
	d.draw = DrawStatistics{}
	d.texSlots.Reset()

	slot := &d.slots[d.frame%FramesInFlight]
	if slot.fence != 0 && !d.backend.FencePassed(slot.fence) {
		d.fenceWaits++
		if err := d.backend.WaitFence(slot.fence); err != nil {
			return errors.Wrapf(err, "device: wait for fence %d", slot.fence)
		}
	}
	slot.fence = 0

	var errs error
	for _, f := range slot.frees {
		if err := f.page.free(f.verts, f.indices); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	clear(slot.frees)
	slot.frees = slot.frees[:0]

	ids := slot.updates
	slot.updates = nil
	for _, id := range ids {
		if rec := d.updates[id]; rec != nil {
			d.copyBack(rec)
		}
	}

	d.prunePages()
	d.releaseRetired()
	if errs != nil {
		return errors.WithAssertionFailure(errs)
	}
	return nil
}

// copyBack moves the short-lived contents of rec's mesh into its
// permanent allocation. The short-lived ranges were used by frames still
// in flight, so they go through the ring of the current frame.
func (d *Device) copyBack(rec *pendingUpdate) {
	h := rec.mesh
	p := h.page
	shortVerts, shortIndices := h.allocVerts, h.allocIndices

	copy(p.vertices.cpu[rec.permVerts.Start:], p.vertices.cpu[shortVerts.Start:shortVerts.Start+h.vertexCount])
	src := p.indices.cpu[shortIndices.Start : shortIndices.Start+h.indexCount]
	dst := p.indices.cpu[rec.permIndices.Start : rec.permIndices.Start+h.indexCount]
	for k, idx := range src {
		dst[k] = uint16(uint32(idx) - shortVerts.Start + rec.permVerts.Start)
	}

	delete(d.updates, rec.id)
	d.deferFree(p, shortVerts, shortIndices)
	h.allocVerts = rec.permVerts
	h.allocIndices = rec.permIndices
	h.updateAllocID = 0
	d.registerUpload(h)
}

func (d *Device) prunePages() {
	n := 0
	for _, p := range d.pages {
		if p.IsEmpty() {
			p.framesEmpty++
		} else {
			p.framesEmpty = 0
		}
		if p.framesEmpty >= d.cfg.PruneEmptyFrames {
			slogger().Debug("device: page pruned", "page", p.index, "emptyFrames", p.framesEmpty)
			d.retired = append(d.retired, retiredPage{page: p, fence: d.lastFence})
			continue
		}
		d.pages[n] = p
		n++
	}
	clear(d.pages[n:])
	d.pages = d.pages[:n]
}

func (d *Device) releaseRetired() {
	n := 0
	for _, r := range d.retired {
		if r.fence == 0 || d.cfg.SynchronousShutdown || d.backend.FencePassed(r.fence) {
			r.page.destroy(d.backend)
			continue
		}
		d.retired[n] = r
		n++
	}
	clear(d.retired[n:])
	d.retired = d.retired[:n]
}
