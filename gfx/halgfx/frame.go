// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgfx

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"honnef.co/go/safeish"

	"github.com/gogpu/uir/gfx"
)

// target is a color attachment with its own depth-stencil buffer.
type target struct {
	view          hal.TextureView
	width, height uint32
	depth         hal.Texture
	depthView     hal.TextureView
	// cleared is the frame the target was last cleared in.
	cleared uint64
}

type frameState struct {
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
	current *target
	stack   []*target

	view  gfx.Transform
	views []gfx.Transform

	material   gfx.MaterialID
	stencilRef uint32
	scissor    gfx.Rect
	scissorOn  bool

	records int
	record  uint32
	vb, ib  hal.Buffer

	recordStale       bool
	pipelineStale     bool
	groupsUnbound     bool
	textureGroupStale bool
}

func (b *Backend) inFrame() bool { return b.fr.encoder != nil }

func (b *Backend) checkFrame(op string) error {
	if b.closed {
		return ErrClosed
	}
	if !b.inFrame() {
		return errors.Wrapf(gfx.ErrInvalidOperation, "halgfx: %s outside a frame", op)
	}
	return nil
}

func (b *Backend) setupTarget(t *target, view hal.TextureView, width, height uint32, what string) error {
	if view == nil || width == 0 || height == 0 {
		return errors.Newf("halgfx: invalid %s %dx%d", what, width, height)
	}
	if t.depth != nil && (t.width != width || t.height != height) {
		b.releaseTarget(t)
	}
	t.view, t.width, t.height = view, width, height
	if t.depth != nil {
		return nil
	}
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         b.label(what + " stencil"),
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return errors.Wrapf(err, "halgfx: create %s stencil", what)
	}
	dv, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: b.label(what + " stencil view")})
	if err != nil {
		b.device.DestroyTexture(tex)
		return errors.Wrapf(err, "halgfx: create %s stencil view", what)
	}
	t.depth, t.depthView = tex, dv
	return nil
}

func (b *Backend) releaseTarget(t *target) {
	if t.depth == nil {
		return
	}
	tex, dv := t.depth, t.depthView
	t.depth, t.depthView = nil, nil
	b.retire(func() {
		b.device.DestroyTextureView(dv)
		b.device.DestroyTexture(tex)
	})
}

// BeginFrame implements gfx.Backend. It opens a command encoder and a
// render pass on the main target.
func (b *Backend) BeginFrame() error {
	if b.closed {
		return ErrClosed
	}
	if b.inFrame() {
		return errors.Wrap(gfx.ErrInvalidOperation, "halgfx: BeginFrame inside a frame")
	}
	if b.main.view == nil {
		return ErrNoTarget
	}
	b.collect()

	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.label("frame")})
	if err != nil {
		return errors.Wrap(err, "halgfx: create command encoder")
	}
	if err := enc.BeginEncoding(b.label("frame")); err != nil {
		enc.Destroy()
		return errors.Wrap(err, "halgfx: begin encoding")
	}
	b.frame++
	f := &b.fr
	f.encoder = enc
	f.stack = f.stack[:0]
	f.view = gfx.Identity
	f.views = f.views[:0]
	f.material = gfx.MaterialDefault
	f.stencilRef = 0
	f.scissorOn = false
	f.records = 0
	b.beginPass(&b.main)
	return nil
}

func (b *Backend) beginPass(t *target) {
	f := &b.fr
	load := gputypes.LoadOpLoad
	if t.cleared != b.frame {
		load = gputypes.LoadOpClear
		t.cleared = b.frame
	}
	f.pass = f.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: b.label("pass"),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: b.opts.ClearColor,
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            t.depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1,
			StencilLoadOp:   load,
			StencilStoreOp:  gputypes.StoreOpStore,
		},
	})
	f.current = t
	f.vb, f.ib = nil, nil
	f.recordStale = true
	f.pipelineStale = true
	f.groupsUnbound = true
	f.pass.SetStencilReference(f.stencilRef)
	b.applyScissor()
}

// EndFrame implements gfx.Backend. It submits the frame; fences inserted
// since BeginFrame complete with this submission.
func (b *Backend) EndFrame() error {
	if err := b.checkFrame("EndFrame"); err != nil {
		return err
	}
	f := &b.fr
	var err error
	if len(f.stack) > 0 || len(f.views) > 0 {
		err = errors.Wrapf(gfx.ErrInvalidOperation, "halgfx: EndFrame with %d views and %d render textures pushed",
			len(f.views), len(f.stack))
	}
	f.pass.End()
	f.pass = nil
	enc := f.encoder
	f.encoder = nil

	cmd, eerr := enc.EndEncoding()
	if eerr != nil {
		enc.Destroy()
		b.settleFrame(b.lastSubmit)
		return errors.CombineErrors(err, errors.Wrap(eerr, "halgfx: end encoding"))
	}
	idx, serr := b.queue.Submit([]hal.CommandBuffer{cmd})
	if serr != nil {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
		b.settleFrame(b.lastSubmit)
		return errors.CombineErrors(err, errors.Wrap(serr, "halgfx: submit"))
	}
	b.lastSubmit = idx
	b.settleFrame(idx)
	b.graves = append(b.graves, grave{at: idx, destroy: func() {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
	}})
	return err
}

// settleFrame ties the fences and retired objects of the frame to the
// submission at.
func (b *Backend) settleFrame(at uint64) {
	for _, v := range b.frameFences {
		b.fences[v] = at
	}
	b.frameFences = b.frameFences[:0]
	for i := range b.graves {
		if b.graves[i].pending {
			b.graves[i].at = at
			b.graves[i].pending = false
		}
	}
}

// SetScissor implements gfx.Backend. r is clamped to the current target.
func (b *Backend) SetScissor(r gfx.Rect) error {
	if err := b.checkFrame("SetScissor"); err != nil {
		return err
	}
	b.fr.scissor, b.fr.scissorOn = r, true
	b.applyScissor()
	return nil
}

// DisableScissor implements gfx.Backend.
func (b *Backend) DisableScissor() error {
	if err := b.checkFrame("DisableScissor"); err != nil {
		return err
	}
	b.fr.scissorOn = false
	b.applyScissor()
	return nil
}

func (b *Backend) applyScissor() {
	f := &b.fr
	t := f.current
	if !f.scissorOn {
		f.pass.SetScissorRect(0, 0, t.width, t.height)
		return
	}
	x0 := clampPixel(math.Floor(float64(f.scissor.X)), t.width)
	y0 := clampPixel(math.Floor(float64(f.scissor.Y)), t.height)
	x1 := clampPixel(math.Ceil(float64(f.scissor.MaxX())), t.width)
	y1 := clampPixel(math.Ceil(float64(f.scissor.MaxY())), t.height)
	f.pass.SetScissorRect(x0, y0, max(x1, x0)-x0, max(y1, y0)-y0)
}

func clampPixel(v float64, hi uint32) uint32 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= float64(hi) {
		return hi
	}
	return uint32(v)
}

// SetStencilRef implements gfx.Backend.
func (b *Backend) SetStencilRef(ref uint32) error {
	if err := b.checkFrame("SetStencilRef"); err != nil {
		return err
	}
	b.fr.stencilRef = ref
	b.fr.pass.SetStencilReference(ref)
	return nil
}

// BindMaterial implements gfx.Backend.
func (b *Backend) BindMaterial(m gfx.MaterialID) error {
	if err := b.checkFrame("BindMaterial"); err != nil {
		return err
	}
	if _, ok := b.materials[m]; !ok {
		return errors.Wrapf(ErrUnknownMaterial, "halgfx: bind material %d", m)
	}
	if m != b.fr.material {
		b.fr.material = m
		b.fr.pipelineStale = true
	}
	return nil
}

// BindTextures implements gfx.Backend. Empty slots sample white.
func (b *Backend) BindTextures(slots []gfx.TextureID) error {
	if err := b.checkFrame("BindTextures"); err != nil {
		return err
	}
	if len(slots) > gfx.TextureSlotCount {
		return errors.Newf("halgfx: %d texture slots, at most %d", len(slots), gfx.TextureSlotCount)
	}
	for _, id := range slots {
		if _, ok := b.textures[id]; id != gfx.InvalidID && !ok {
			return errors.Wrapf(ErrUnknownTexture, "halgfx: bind texture %d", id)
		}
	}
	b.slots = [gfx.TextureSlotCount]gfx.TextureID{}
	copy(b.slots[:], slots)
	b.fr.textureGroupStale = true
	b.fr.recordStale = true
	return nil
}

// BindFont implements gfx.Backend.
func (b *Backend) BindFont(font gfx.TextureID) error {
	if err := b.checkFrame("BindFont"); err != nil {
		return err
	}
	if _, ok := b.textures[font]; font != gfx.InvalidID && !ok {
		return errors.Wrapf(ErrUnknownTexture, "halgfx: bind font %d", font)
	}
	if font != b.font {
		b.font = font
		b.fr.textureGroupStale = true
	}
	return nil
}

// DrawRanges implements gfx.Backend. Indices are absolute within the
// vertex buffer.
func (b *Backend) DrawRanges(vb, ib gfx.BufferID, ranges []gfx.DrawBufferRange) error {
	if err := b.checkFrame("DrawRanges"); err != nil {
		return err
	}
	v, err := b.buffer(vb, gfx.BufferVertex)
	if err != nil {
		return err
	}
	ix, err := b.buffer(ib, gfx.BufferIndex)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		if r.FirstIndex < 0 || int(r.FirstIndex)+int(r.IndexCount) > ix.elements {
			return errors.AssertionFailedf("halgfx: draw range [%d,+%d) outside index buffer of %d",
				r.FirstIndex, r.IndexCount, ix.elements)
		}
	}
	if err := b.prepareDraw(); err != nil {
		return err
	}
	f := &b.fr
	if f.vb != v.buf {
		f.pass.SetVertexBuffer(0, v.buf, 0)
		f.vb = v.buf
	}
	if f.ib != ix.buf {
		f.pass.SetIndexBuffer(ix.buf, gputypes.IndexFormatUint16, 0)
		f.ib = ix.buf
	}
	for _, r := range ranges {
		if r.IndexCount <= 0 {
			continue
		}
		f.pass.DrawIndexed(uint32(r.IndexCount), 1, uint32(r.FirstIndex), 0, 0)
	}
	return nil
}

// prepareDraw brings the pass up to date with the bound state.
func (b *Backend) prepareDraw() error {
	f := &b.fr
	if b.res.infoGroupStale {
		if err := b.rebuildInfoGroup(); err != nil {
			return err
		}
		f.groupsUnbound = true
	}
	if f.textureGroupStale {
		if err := b.rebuildTextureGroup(); err != nil {
			return err
		}
		f.textureGroupStale = false
		f.groupsUnbound = true
	}
	if f.recordStale {
		if err := b.writeRecord(); err != nil {
			return err
		}
		f.groupsUnbound = true
	}
	if f.pipelineStale {
		f.pass.SetPipeline(b.materials[f.material])
		f.pipelineStale = false
	}
	if f.groupsUnbound {
		f.pass.SetBindGroup(0, b.res.infoGroup, []uint32{f.record})
		f.pass.SetBindGroup(1, b.res.textureGroup, nil)
		f.groupsUnbound = false
	}
	return nil
}

// writeRecord uploads the view record the next draws use: the view
// transform, the target size and the texture IDs of each slot.
func (b *Backend) writeRecord() error {
	f := &b.fr
	if f.records >= b.opts.ViewRecords {
		return errors.Newf("halgfx: more than %d view records in one frame", b.opts.ViewRecords)
	}
	v, t := f.view, f.current
	rec := [viewRecordFloats]float32{
		v[0], v[1], 0, v[2],
		v[3], v[4], 0, v[5],
		float32(t.width), float32(t.height), 0, 0,
	}
	for i, id := range b.slots {
		rec[12+i] = float32(id)
	}
	off := uint64(f.records) * viewRecordStride
	if err := b.queue.WriteBuffer(b.res.views, off, safeish.SliceCast[[]byte](rec[:])); err != nil {
		return errors.Wrap(err, "halgfx: write view record")
	}
	f.record = uint32(off)
	f.records++
	f.recordStale = false
	return nil
}

// PushView implements gfx.Backend. t is composed with the current view.
func (b *Backend) PushView(t gfx.Transform) error {
	if err := b.checkFrame("PushView"); err != nil {
		return err
	}
	f := &b.fr
	f.views = append(f.views, f.view)
	f.view = gfx.Mul(f.view, t)
	f.recordStale = true
	return nil
}

// PopView implements gfx.Backend.
func (b *Backend) PopView() error {
	if err := b.checkFrame("PopView"); err != nil {
		return err
	}
	f := &b.fr
	n := len(f.views)
	if n == 0 {
		return errors.Wrap(gfx.ErrInvalidOperation, "halgfx: PopView with empty view stack")
	}
	f.view = f.views[n-1]
	f.views = f.views[:n-1]
	f.recordStale = true
	return nil
}

// PushRenderTexture implements gfx.Backend. Drawing moves to a new pass on
// the registered target, cleared the first time it is used in a frame.
func (b *Backend) PushRenderTexture(id gfx.TextureID) error {
	if err := b.checkFrame("PushRenderTexture"); err != nil {
		return err
	}
	t, ok := b.targets[id]
	if !ok {
		return errors.Wrapf(ErrUnknownTexture, "halgfx: push render texture %d", id)
	}
	f := &b.fr
	f.pass.End()
	f.stack = append(f.stack, f.current)
	b.beginPass(t)
	return nil
}

// PopRenderTexture implements gfx.Backend. The previous target resumes
// with its contents loaded.
func (b *Backend) PopRenderTexture() error {
	if err := b.checkFrame("PopRenderTexture"); err != nil {
		return err
	}
	f := &b.fr
	n := len(f.stack)
	if n == 0 {
		return errors.Wrap(gfx.ErrInvalidOperation, "halgfx: PopRenderTexture with empty stack")
	}
	prev := f.stack[n-1]
	f.stack = f.stack[:n-1]
	f.pass.End()
	b.beginPass(prev)
	return nil
}
