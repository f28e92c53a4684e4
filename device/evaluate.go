// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// drawRangeRingSize is the capacity of the pending DrawBufferRange ring.
const drawRangeRingSize = 1024

// EvaluateOptions controls EvaluateChain.
type EvaluateOptions struct {
	// BreakBatches forces a batch boundary on every draw command, in
	// addition to the device-wide setting.
	BreakBatches bool
	// ConsiderMaterials makes per-command material changes break batches.
	// When false every draw uses the innermost default material.
	ConsiderMaterials bool
}

type evaluator struct {
	d    *Device
	b    gfx.Backend
	opts EvaluateOptions

	page    *Page
	pending int

	bound      DrawState
	boundValid bool

	// texGen is the slot generation last passed to BindTextures.
	texGen   uint32
	texBound bool

	materials []gfx.MaterialID
	scissors  []gfx.Rect
	views     int
	rts       int
}

// EvaluateChain walks the command list starting at head once and issues
// the backend calls that draw it. Consecutive draws sharing page, material,
// font, stencil reference and texture slots are coalesced into
// DrawBufferRanges; every non-draw command flushes first.
//
// It must be called between Backend.BeginFrame and Backend.EndFrame. A
// failing immediate callback stops the walk; the pending batch is flushed,
// pushed state is unwound, the frame fence is stamped and the failure is
// returned as an *ImmediateError.
func (d *Device) EvaluateChain(head *Command, opts EvaluateOptions) error {
	if d.disposed {
		return ErrDisposed
	}
	opts.BreakBatches = opts.BreakBatches || d.cfg.BreakBatches
	e := &evaluator{d: d, b: d.backend, opts: opts}

	err := d.flushUploads()
	if err == nil {
		err = e.run(head)
	}
	if ferr := e.flush(); ferr != nil {
		err = errors.CombineErrors(err, ferr)
	}
	if uerr := e.unwind(); uerr != nil {
		err = errors.CombineErrors(err, uerr)
	}

	fence, ferr := d.backend.InsertFence()
	if ferr != nil {
		return errors.CombineErrors(err, errors.Wrap(ferr, "device: insert frame fence"))
	}
	d.slots[d.frame%FramesInFlight].fence = fence
	d.lastFence = fence
	d.epoch++
	d.draw.FenceValue = fence
	return err
}

func (d *Device) flushUploads() error {
	for _, p := range d.pages {
		n, err := p.flush(d.backend)
		d.draw.Uploads += n
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) run(head *Command) error {
	for c := head; c != nil; c = c.next {
		e.d.draw.Commands++
		if c.Type == CommandDraw {
			if err := e.draw(c); err != nil {
				return err
			}
			continue
		}
		if err := e.flush(); err != nil {
			return err
		}
		if err := e.control(c); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) material(c *Command) gfx.MaterialID {
	if c.State.Material != gfx.MaterialDefault {
		return c.State.Material
	}
	if n := len(e.materials); n > 0 {
		return e.materials[n-1]
	}
	return gfx.MaterialDefault
}

func (e *evaluator) draw(c *Command) error {
	d := e.d
	m := c.Mesh
	if m == nil || m.freed || m.page == nil || m.indexCount == 0 {
		d.draw.SkippedDraws++
		return nil
	}
	d.draw.DrawCommands++

	want := c.State
	if e.opts.ConsiderMaterials {
		want.Material = e.material(c)
	} else if n := len(e.materials); n > 0 {
		want.Material = e.materials[n-1]
	} else {
		want.Material = gfx.MaterialDefault
	}
	want.Texture = gfx.InvalidID

	if e.opts.BreakBatches || m.page != e.page {
		if err := e.flush(); err != nil {
			return err
		}
		e.page = m.page
	}
	if c.State.Texture != gfx.InvalidID && d.texSlots.IndexOf(c.State.Texture) < 0 {
		if err := e.flush(); err != nil {
			return err
		}
		d.texSlots.Assign(c.State.Texture)
		d.draw.TextureMisses++
	}
	if err := e.syncTextures(); err != nil {
		return err
	}
	if err := e.bind(want); err != nil {
		return err
	}
	return e.push(m)
}

// syncTextures rebinds the slot table when its generation differs from
// the one bound last. Slots are only reassigned after a flush, so the open
// batch never spans two generations.
func (e *evaluator) syncTextures() error {
	gen := e.d.texSlots.Generation()
	if e.texBound && gen == e.texGen {
		return nil
	}
	if e.d.texSlots.Empty() {
		return nil
	}
	if err := e.flush(); err != nil {
		return err
	}
	e.texGen, e.texBound = gen, true
	return e.b.BindTextures(e.d.texSlots.Slots())
}

// bind issues the state changes between the bound state and want,
// flushing the open batch first if anything differs.
func (e *evaluator) bind(want DrawState) error {
	if e.boundValid && want == e.bound {
		return nil
	}
	if err := e.flush(); err != nil {
		return err
	}
	d := e.d
	d.draw.StateChanges++
	if !e.boundValid || want.Material != e.bound.Material {
		d.draw.MaterialChanges++
		if err := e.b.BindMaterial(want.Material); err != nil {
			return err
		}
	}
	if !e.boundValid || want.Font != e.bound.Font {
		if err := e.b.BindFont(want.Font); err != nil {
			return err
		}
	}
	if !e.boundValid || want.StencilRef != e.bound.StencilRef {
		if err := e.b.SetStencilRef(want.StencilRef); err != nil {
			return err
		}
	}
	e.bound = want
	e.boundValid = true
	return nil
}

// push appends m's index range, merging with the previous range when the
// two are contiguous in the index buffer.
func (e *evaluator) push(m *MeshHandle) error {
	d := e.d
	first := int32(m.allocIndices.Start)
	count := int32(m.indexCount)
	vmin := int32(m.allocVerts.Start)
	vmax := vmin + int32(m.vertexCount)

	if e.pending > 0 {
		last := &d.ranges[(d.rangesStart+e.pending-1)%drawRangeRingSize]
		if last.FirstIndex+last.IndexCount == first {
			lmax := last.MinIndexVal + last.VertsReferenced
			last.IndexCount += count
			last.MinIndexVal = min(last.MinIndexVal, vmin)
			last.VertsReferenced = max(lmax, vmax) - last.MinIndexVal
			d.draw.TotalIndices += int(count)
			return nil
		}
	}
	if e.pending == drawRangeRingSize {
		if err := e.flush(); err != nil {
			return err
		}
	}
	d.ranges[(d.rangesStart+e.pending)%drawRangeRingSize] = gfx.DrawBufferRange{
		FirstIndex:      first,
		IndexCount:      count,
		MinIndexVal:     vmin,
		VertsReferenced: vmax - vmin,
	}
	e.pending++
	d.draw.TotalIndices += int(count)
	return nil
}

// flush submits the pending ranges: one call, or two when the run wraps
// around the end of the ring.
func (e *evaluator) flush() error {
	if e.pending == 0 {
		return nil
	}
	d := e.d
	start, n := d.rangesStart, e.pending
	d.rangesStart = (start + n) % drawRangeRingSize
	e.pending = 0
	d.draw.Flushes++
	d.draw.DrawRanges += n

	vb, ib := e.page.VertexBuffer(), e.page.IndexBuffer()
	slogger().Debug("device: flush", "page", e.page.index, "ranges", n)
	if start+n <= drawRangeRingSize {
		d.draw.DrawRangeCalls++
		return e.b.DrawRanges(vb, ib, d.ranges[start:start+n])
	}
	head := drawRangeRingSize - start
	d.draw.DrawRangeCalls += 2
	if err := e.b.DrawRanges(vb, ib, d.ranges[start:]); err != nil {
		return err
	}
	return e.b.DrawRanges(vb, ib, d.ranges[:n-head])
}

// invalidate forgets the bound state after commands that may have changed
// it behind the evaluator's back.
func (e *evaluator) invalidate() {
	e.boundValid = false
	e.page = nil
	e.d.texSlots.Reset()
}

func (e *evaluator) control(c *Command) error {
	switch c.Type {
	case CommandPushView:
		e.views++
		return e.b.PushView(c.Transform)

	case CommandPopView:
		if e.views == 0 {
			return errors.Wrap(gfx.ErrInvalidOperation, "device: pop view without push")
		}
		e.views--
		return e.b.PopView()

	case CommandPushScissor:
		r := c.Scissor
		if n := len(e.scissors); n > 0 {
			r = r.Intersect(e.scissors[n-1])
		}
		e.scissors = append(e.scissors, r)
		return e.b.SetScissor(r)

	case CommandPopScissor:
		n := len(e.scissors)
		if n == 0 {
			return errors.Wrap(gfx.ErrInvalidOperation, "device: pop scissor without push")
		}
		e.scissors = e.scissors[:n-1]
		if n == 1 {
			return e.b.DisableScissor()
		}
		return e.b.SetScissor(e.scissors[n-2])

	case CommandPushRenderTexture:
		e.rts++
		e.invalidate()
		return e.b.PushRenderTexture(c.State.Texture)

	case CommandPopRenderTexture:
		if e.rts == 0 {
			return errors.Wrap(gfx.ErrInvalidOperation, "device: pop render texture without push")
		}
		e.rts--
		e.invalidate()
		return e.b.PopRenderTexture()

	case CommandPushDefaultMaterial:
		e.materials = append(e.materials, c.State.Material)
		return nil

	case CommandPopDefaultMaterial:
		if len(e.materials) == 0 {
			return errors.Wrap(gfx.ErrInvalidOperation, "device: pop default material without push")
		}
		e.materials = e.materials[:len(e.materials)-1]
		return nil

	case CommandImmediate:
		e.d.draw.ImmediateCommands++
		e.invalidate()
		return e.immediate(c)
	}
	return errors.AssertionFailedf("device: unknown command type %d", c.Type)
}

func (e *evaluator) immediate(c *Command) (err error) {
	if c.Immediate == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = errors.Newf("%v", r)
			}
			slogger().Warn("device: immediate callback panicked", "owner", c.Owner, "panic", fmt.Sprint(r))
			err = &ImmediateError{Command: c, Panicked: true, Err: cause}
		}
	}()
	if cerr := c.Immediate(e.b); cerr != nil {
		slogger().Warn("device: immediate callback failed", "owner", c.Owner, "err", cerr)
		return &ImmediateError{Command: c, Err: cerr}
	}
	return nil
}

// unwind pops everything the walk pushed and left open.
func (e *evaluator) unwind() error {
	var errs error
	for ; e.views > 0; e.views-- {
		errs = errors.CombineErrors(errs, e.b.PopView())
	}
	for ; e.rts > 0; e.rts-- {
		errs = errors.CombineErrors(errs, e.b.PopRenderTexture())
	}
	if len(e.scissors) > 0 {
		e.scissors = e.scissors[:0]
		errs = errors.CombineErrors(errs, e.b.DisableScissor())
	}
	e.materials = e.materials[:0]
	return errs
}
