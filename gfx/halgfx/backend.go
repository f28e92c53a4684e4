// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgfx

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"honnef.co/go/safeish"

	"github.com/gogpu/uir/gfx"
)

var (
	// ErrUnknownTexture is returned when a texture ID was never registered.
	ErrUnknownTexture = errors.New("halgfx: unknown texture")

	// ErrUnknownMaterial is returned by BindMaterial for unregistered materials.
	ErrUnknownMaterial = errors.New("halgfx: unknown material")

	// ErrNoTarget is returned by BeginFrame when no main target is set.
	ErrNoTarget = errors.New("halgfx: no render target")

	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("halgfx: backend closed")
)

// DefaultViewRecords is the default number of view records a frame may use.
const DefaultViewRecords = 1024

// Options configures a Backend.
type Options struct {
	// Label prefixes the labels of every HAL object created.
	Label string

	// Format is the color format of the main target and of registered
	// render textures. Defaults to BGRA8Unorm.
	Format gputypes.TextureFormat

	// Target is the main render target. It can also be set later with
	// SetTarget.
	Target        hal.TextureView
	Width, Height uint32

	// ClearColor is loaded into each target the first time it is rendered
	// to in a frame.
	ClearColor gputypes.Color

	// ViewRecords bounds the number of PushView and BindTextures calls in
	// one frame.
	ViewRecords int
}

func (o *Options) defaults() {
	if o.Label == "" {
		o.Label = "uir"
	}
	if o.Format == gputypes.TextureFormatUndefined {
		o.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if o.ViewRecords <= 0 {
		o.ViewRecords = DefaultViewRecords
	}
}

type buffer struct {
	kind     gfx.BufferKind
	buf      hal.Buffer
	elements int
	// shadow keeps index data so that uploads can be widened to 4-byte
	// alignment.
	shadow []uint16
}

// grave is a HAL object destroyed once the submission at has completed.
// Objects retired during a frame are tagged when EndFrame submits.
type grave struct {
	at      uint64
	pending bool
	destroy func()
}

// Backend is a gfx.Backend on a HAL device. It is not safe for concurrent
// use.
type Backend struct {
	device hal.Device
	queue  hal.Queue
	opts   Options

	nextBuffer gfx.BufferID
	buffers    map[gfx.BufferID]*buffer

	tables [gfx.NumShaderInfoKinds]table
	res    resources

	textures  map[gfx.TextureID]hal.TextureView
	targets   map[gfx.TextureID]*target
	main      target
	slots     [gfx.TextureSlotCount]gfx.TextureID
	font      gfx.TextureID
	materials map[gfx.MaterialID]hal.RenderPipeline

	fenceSeq    uint64
	fences      map[uint64]uint64
	frameFences []uint64
	lastSubmit  uint64
	graves      []grave

	fr     frameState
	frame  uint64
	closed bool
}

// New returns a backend drawing with device and queue.
func New(dev hal.Device, queue hal.Queue, opts Options) (*Backend, error) {
	if dev == nil || queue == nil {
		return nil, errors.New("halgfx: nil device or queue")
	}
	opts.defaults()
	b := &Backend{
		device:    dev,
		queue:     queue,
		opts:      opts,
		buffers:   make(map[gfx.BufferID]*buffer),
		textures:  make(map[gfx.TextureID]hal.TextureView),
		targets:   make(map[gfx.TextureID]*target),
		materials: make(map[gfx.MaterialID]hal.RenderPipeline),
		fences:    make(map[uint64]uint64),
	}
	if err := b.init(); err != nil {
		b.destroyAll()
		return nil, err
	}
	if opts.Target != nil {
		if err := b.SetTarget(opts.Target, opts.Width, opts.Height); err != nil {
			b.destroyAll()
			return nil, err
		}
	}
	slogger().Info("halgfx: backend created", "label", opts.Label, "format", opts.Format)
	return b, nil
}

// NewFromProvider returns a backend on the HAL device of a host provider.
// The provider must expose HalDevice() and HalQueue(). When opts.Format is
// unset the provider's surface format is used.
func NewFromProvider(p gpucontext.DeviceProvider, opts Options) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, errors.New("halgfx: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, errors.New("halgfx: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("halgfx: provider HalQueue is not hal.Queue")
	}
	if opts.Format == gputypes.TextureFormatUndefined {
		opts.Format = p.SurfaceFormat()
	}
	return New(dev, queue, opts)
}

func (b *Backend) label(s string) string { return b.opts.Label + ": " + s }

// Format returns the color format targets must use.
func (b *Backend) Format() gputypes.TextureFormat { return b.opts.Format }

// CreateBuffer implements gfx.Backend.
func (b *Backend) CreateBuffer(kind gfx.BufferKind, elements int, label string) (gfx.BufferID, error) {
	if b.closed {
		return gfx.InvalidID, ErrClosed
	}
	if elements <= 0 {
		return gfx.InvalidID, errors.Newf("halgfx: %s buffer of %d elements", kind, elements)
	}
	res := &buffer{kind: kind, elements: elements}
	desc := &hal.BufferDescriptor{Label: b.label(label)}
	switch kind {
	case gfx.BufferVertex:
		desc.Size = uint64(elements) * gfx.VertexSize
		desc.Usage = gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	case gfx.BufferIndex:
		res.shadow = make([]uint16, (elements+1)&^1)
		desc.Size = uint64(len(res.shadow)) * 2
		desc.Usage = gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	default:
		return gfx.InvalidID, errors.Newf("halgfx: unknown buffer kind %d", kind)
	}
	buf, err := b.device.CreateBuffer(desc)
	if err != nil {
		return gfx.InvalidID, errors.Wrapf(err, "halgfx: create %s buffer", kind)
	}
	res.buf = buf
	b.nextBuffer++
	b.buffers[b.nextBuffer] = res
	slogger().Debug("halgfx: buffer created", "id", b.nextBuffer, "kind", kind, "elements", elements)
	return b.nextBuffer, nil
}

func (b *Backend) buffer(id gfx.BufferID, kind gfx.BufferKind) (*buffer, error) {
	if b.closed {
		return nil, ErrClosed
	}
	res, ok := b.buffers[id]
	if !ok || res.kind != kind {
		return nil, errors.Wrapf(gfx.ErrUnknownBuffer, "halgfx: %s buffer %d", kind, id)
	}
	return res, nil
}

// WriteVertices implements gfx.Backend.
func (b *Backend) WriteVertices(id gfx.BufferID, offset int, data []gfx.Vertex) error {
	res, err := b.buffer(id, gfx.BufferVertex)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > res.elements {
		return errors.AssertionFailedf("halgfx: vertex write [%d,%d) outside buffer of %d",
			offset, offset+len(data), res.elements)
	}
	if len(data) == 0 {
		return nil
	}
	err = b.queue.WriteBuffer(res.buf, uint64(offset)*gfx.VertexSize, safeish.SliceCast[[]byte](data))
	return errors.Wrap(err, "halgfx: write vertices")
}

// WriteIndices implements gfx.Backend.
func (b *Backend) WriteIndices(id gfx.BufferID, offset int, data []uint16) error {
	res, err := b.buffer(id, gfx.BufferIndex)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > res.elements {
		return errors.AssertionFailedf("halgfx: index write [%d,%d) outside buffer of %d",
			offset, offset+len(data), res.elements)
	}
	if len(data) == 0 {
		return nil
	}
	copy(res.shadow[offset:], data)
	lo := offset &^ 1
	hi := (offset + len(data) + 1) &^ 1
	err = b.queue.WriteBuffer(res.buf, uint64(lo)*2, safeish.SliceCast[[]byte](res.shadow[lo:hi]))
	return errors.Wrap(err, "halgfx: write indices")
}

// DestroyBuffer implements gfx.Backend. The HAL buffer is released once
// the GPU no longer uses it.
func (b *Backend) DestroyBuffer(id gfx.BufferID) {
	res, ok := b.buffers[id]
	if !ok {
		return
	}
	delete(b.buffers, id)
	if b.fr.vb == res.buf || b.fr.ib == res.buf {
		b.fr.vb, b.fr.ib = nil, nil
	}
	b.retire(func() { b.device.DestroyBuffer(res.buf) })
}

// InsertFence implements gfx.Backend. A fence inserted during a frame is
// completed by the submission EndFrame makes; outside a frame it covers
// the work already submitted.
func (b *Backend) InsertFence() (uint64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	b.fenceSeq++
	if b.inFrame() {
		b.frameFences = append(b.frameFences, b.fenceSeq)
	} else {
		b.fences[b.fenceSeq] = b.lastSubmit
	}
	return b.fenceSeq, nil
}

// FencePassed implements gfx.Backend.
func (b *Backend) FencePassed(v uint64) bool {
	if v > b.fenceSeq || slices.Contains(b.frameFences, v) {
		return false
	}
	at, ok := b.fences[v]
	if !ok {
		return true
	}
	return b.queue.PollCompleted() >= at
}

// WaitFence implements gfx.Backend. Waiting on a fence of the frame being
// recorded is an error since it would never complete.
func (b *Backend) WaitFence(v uint64) error {
	if b.FencePassed(v) {
		return nil
	}
	if v > b.fenceSeq {
		return errors.Newf("halgfx: wait on fence %d never inserted", v)
	}
	if slices.Contains(b.frameFences, v) {
		return errors.Wrapf(gfx.ErrInvalidOperation, "halgfx: wait on fence %d of an unsubmitted frame", v)
	}
	if err := b.device.WaitIdle(); err != nil {
		return errors.Wrapf(err, "halgfx: wait on fence %d", v)
	}
	b.collect()
	return nil
}

// WriteShaderInfo implements gfx.Backend. Offsets count texels.
func (b *Backend) WriteShaderInfo(kind gfx.ShaderInfoKind, offset int, texels []gfx.Texel) error {
	if b.closed {
		return ErrClosed
	}
	if kind >= gfx.NumShaderInfoKinds || offset < 0 {
		return errors.Newf("halgfx: shader info write to %s at %d", kind, offset)
	}
	t := &b.tables[kind]
	if need := offset + len(texels); need > len(t.shadow) {
		if err := b.growTable(kind, need); err != nil {
			return err
		}
	}
	copy(t.shadow[offset:], texels)
	if len(texels) == 0 {
		return nil
	}
	err := b.queue.WriteBuffer(t.buf, uint64(offset)*texelSize, texelBytes(texels))
	return errors.Wrapf(err, "halgfx: write %s", kind)
}

func texelBytes(t []gfx.Texel) []byte { return safeish.SliceCast[[]byte](t) }

// RegisterTexture makes view available to BindTextures and BindFont under id.
func (b *Backend) RegisterTexture(id gfx.TextureID, view hal.TextureView) error {
	if id == gfx.InvalidID || view == nil {
		return errors.Newf("halgfx: invalid texture registration %d", id)
	}
	b.textures[id] = view
	if id == b.font || slices.Contains(b.slots[:], id) {
		b.fr.textureGroupStale = true
	}
	return nil
}

// UnregisterTexture forgets id. Slots still holding it sample white.
func (b *Backend) UnregisterTexture(id gfx.TextureID) {
	if _, ok := b.textures[id]; !ok {
		return
	}
	delete(b.textures, id)
	b.fr.textureGroupStale = true
}

func (b *Backend) textureView(id gfx.TextureID) hal.TextureView {
	if v, ok := b.textures[id]; ok {
		return v
	}
	return b.res.whiteView
}

// RegisterRenderTarget makes view available to PushRenderTexture under id.
// The view must have the backend's Format.
func (b *Backend) RegisterRenderTarget(id gfx.TextureID, view hal.TextureView, width, height uint32) error {
	if id == gfx.InvalidID || view == nil {
		return errors.Newf("halgfx: invalid render target registration %d", id)
	}
	t := b.targets[id]
	if t == nil {
		t = &target{}
	}
	if err := b.setupTarget(t, view, width, height, "render texture"); err != nil {
		return err
	}
	b.targets[id] = t
	return nil
}

// UnregisterRenderTarget releases the depth-stencil buffer of id.
func (b *Backend) UnregisterRenderTarget(id gfx.TextureID) {
	t, ok := b.targets[id]
	if !ok {
		return
	}
	delete(b.targets, id)
	b.releaseTarget(t)
}

// SetTarget changes the main render target, typically to the current
// swapchain view. It must not be called during a frame.
func (b *Backend) SetTarget(view hal.TextureView, width, height uint32) error {
	if b.closed {
		return ErrClosed
	}
	if b.inFrame() {
		return errors.Wrap(gfx.ErrInvalidOperation, "halgfx: SetTarget during a frame")
	}
	return b.setupTarget(&b.main, view, width, height, "target")
}

func (b *Backend) retire(fn func()) {
	if b.inFrame() {
		b.graves = append(b.graves, grave{pending: true, destroy: fn})
		return
	}
	b.graves = append(b.graves, grave{at: b.lastSubmit, destroy: fn})
}

// collect releases objects and fence records the GPU has passed.
func (b *Backend) collect() {
	done := b.queue.PollCompleted()
	for v, at := range b.fences {
		if at <= done {
			delete(b.fences, v)
		}
	}
	b.graves = slices.DeleteFunc(b.graves, func(g grave) bool {
		if g.pending || g.at > done {
			return false
		}
		g.destroy()
		return true
	})
}

// Close waits for the GPU and releases every HAL object the backend
// created. Registered textures and targets belong to the caller.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	if b.fr.encoder != nil {
		b.fr.pass = nil
		b.fr.encoder.DiscardEncoding()
		b.fr.encoder.Destroy()
		b.fr.encoder = nil
	}
	err := b.device.WaitIdle()
	b.destroyAll()
	b.closed = true
	slogger().Info("halgfx: backend closed", "label", b.opts.Label)
	return errors.Wrap(err, "halgfx: close")
}

func (b *Backend) destroyAll() {
	for id, res := range b.buffers {
		b.device.DestroyBuffer(res.buf)
		delete(b.buffers, id)
	}
	for id, t := range b.targets {
		b.releaseTarget(t)
		delete(b.targets, id)
	}
	b.releaseTarget(&b.main)
	for _, g := range b.graves {
		g.destroy()
	}
	b.graves = nil
	b.destroyResources()
}
