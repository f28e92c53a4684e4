// Package recorder provides a CPU gfx.Backend that records every call.
//
// Buffers are kept as plain slices so tests can inspect uploaded data, and
// fences complete after a configurable number of frames to mimic a GPU
// running behind the CPU.
package recorder

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// Op identifies a recorded call.
type Op uint8

const (
	OpCreateBuffer Op = iota
	OpDestroyBuffer
	OpWriteVertices
	OpWriteIndices
	OpInsertFence
	OpWaitFence
	OpWriteShaderInfo
	OpBeginFrame
	OpEndFrame
	OpSetScissor
	OpDisableScissor
	OpSetStencilRef
	OpBindMaterial
	OpBindTextures
	OpBindFont
	OpDrawRanges
	OpPushView
	OpPopView
	OpPushRenderTexture
	OpPopRenderTexture
	OpImmediate
)

var opNames = [...]string{
	OpCreateBuffer:      "CreateBuffer",
	OpDestroyBuffer:     "DestroyBuffer",
	OpWriteVertices:     "WriteVertices",
	OpWriteIndices:      "WriteIndices",
	OpInsertFence:       "InsertFence",
	OpWaitFence:         "WaitFence",
	OpWriteShaderInfo:   "WriteShaderInfo",
	OpBeginFrame:        "BeginFrame",
	OpEndFrame:          "EndFrame",
	OpSetScissor:        "SetScissor",
	OpDisableScissor:    "DisableScissor",
	OpSetStencilRef:     "SetStencilRef",
	OpBindMaterial:      "BindMaterial",
	OpBindTextures:      "BindTextures",
	OpBindFont:          "BindFont",
	OpDrawRanges:        "DrawRanges",
	OpPushView:          "PushView",
	OpPopView:           "PopView",
	OpPushRenderTexture: "PushRenderTexture",
	OpPopRenderTexture:  "PopRenderTexture",
	OpImmediate:         "Immediate",
}

// String returns the call name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Unknown"
}

// Call is one recorded backend call. Only the fields relevant to Op are set.
type Call struct {
	Op        Op
	Buffer    gfx.BufferID
	Index     gfx.BufferID
	Kind      gfx.BufferKind
	Offset    int
	Count     int
	Ranges    []gfx.DrawBufferRange
	Rect      gfx.Rect
	Ref       uint32
	Material  gfx.MaterialID
	Textures  []gfx.TextureID
	Texture   gfx.TextureID
	Transform gfx.Transform
	Fence     uint64
	Label     string
}

type buffer struct {
	kind     gfx.BufferKind
	label    string
	vertices []gfx.Vertex
	indices  []uint16
}

type pendingFence struct {
	value uint64
	frame int
}

// Backend is a recording gfx.Backend. The zero value is not usable; call New.
type Backend struct {
	// Latency is the number of EndFrame calls after which an inserted
	// fence is reported as passed. Zero completes fences immediately.
	Latency int

	calls   []Call
	buffers map[gfx.BufferID]*buffer
	nextBuf gfx.BufferID

	fenceValue uint64
	completed  uint64
	pending    []pendingFence
	frames     int
	waits      int

	inFrame     bool
	views       int
	rts         int
	shaderInfo  [gfx.NumShaderInfoKinds][]gfx.Texel
	liveBuffers int
}

// New creates a recorder whose fences pass after latency frames.
func New(latency int) *Backend {
	return &Backend{
		Latency: latency,
		buffers: make(map[gfx.BufferID]*buffer),
	}
}

func (b *Backend) record(c Call) {
	b.calls = append(b.calls, c)
}

// Calls returns the recorded calls.
func (b *Backend) Calls() []Call { return b.calls }

// Reset drops the recorded calls but keeps buffers and fence state.
func (b *Backend) Reset() { b.calls = b.calls[:0] }

// Count returns how many calls of the given op were recorded.
func (b *Backend) Count(op Op) int {
	n := 0
	for i := range b.calls {
		if b.calls[i].Op == op {
			n++
		}
	}
	return n
}

// Filter returns the recorded calls of the given op.
func (b *Backend) Filter(op Op) []Call {
	var out []Call
	for i := range b.calls {
		if b.calls[i].Op == op {
			out = append(out, b.calls[i])
		}
	}
	return out
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (b *Backend) LiveBuffers() int { return b.liveBuffers }

// Waits returns how many WaitFence calls actually had to block.
func (b *Backend) Waits() int { return b.waits }

// Vertices returns the uploaded contents of a vertex buffer.
func (b *Backend) Vertices(id gfx.BufferID) []gfx.Vertex {
	if buf, ok := b.buffers[id]; ok {
		return buf.vertices
	}
	return nil
}

// Indices returns the uploaded contents of an index buffer.
func (b *Backend) Indices(id gfx.BufferID) []uint16 {
	if buf, ok := b.buffers[id]; ok {
		return buf.indices
	}
	return nil
}

// ShaderInfo returns the uploaded texels of a shader info table.
func (b *Backend) ShaderInfo(kind gfx.ShaderInfoKind) []gfx.Texel {
	return b.shaderInfo[kind]
}

// CreateBuffer implements gfx.Backend.
func (b *Backend) CreateBuffer(kind gfx.BufferKind, elements int, label string) (gfx.BufferID, error) {
	if elements <= 0 {
		return gfx.InvalidID, errors.Newf("recorder: buffer %q has invalid size %d", label, elements)
	}
	b.nextBuf++
	id := b.nextBuf
	buf := &buffer{kind: kind, label: label}
	switch kind {
	case gfx.BufferVertex:
		buf.vertices = make([]gfx.Vertex, elements)
	case gfx.BufferIndex:
		buf.indices = make([]uint16, elements)
	}
	b.buffers[id] = buf
	b.liveBuffers++
	b.record(Call{Op: OpCreateBuffer, Buffer: id, Kind: kind, Count: elements, Label: label})
	return id, nil
}

// WriteVertices implements gfx.Backend.
func (b *Backend) WriteVertices(id gfx.BufferID, offset int, data []gfx.Vertex) error {
	buf, ok := b.buffers[id]
	if !ok || buf.kind != gfx.BufferVertex {
		return errors.Wrapf(gfx.ErrUnknownBuffer, "write vertices to %d", id)
	}
	if offset < 0 || offset+len(data) > len(buf.vertices) {
		return errors.AssertionFailedf("recorder: vertex write [%d,%d) outside buffer of %d",
			offset, offset+len(data), len(buf.vertices))
	}
	copy(buf.vertices[offset:], data)
	b.record(Call{Op: OpWriteVertices, Buffer: id, Offset: offset, Count: len(data)})
	return nil
}

// WriteIndices implements gfx.Backend.
func (b *Backend) WriteIndices(id gfx.BufferID, offset int, data []uint16) error {
	buf, ok := b.buffers[id]
	if !ok || buf.kind != gfx.BufferIndex {
		return errors.Wrapf(gfx.ErrUnknownBuffer, "write indices to %d", id)
	}
	if offset < 0 || offset+len(data) > len(buf.indices) {
		return errors.AssertionFailedf("recorder: index write [%d,%d) outside buffer of %d",
			offset, offset+len(data), len(buf.indices))
	}
	copy(buf.indices[offset:], data)
	b.record(Call{Op: OpWriteIndices, Buffer: id, Offset: offset, Count: len(data)})
	return nil
}

// DestroyBuffer implements gfx.Backend.
func (b *Backend) DestroyBuffer(id gfx.BufferID) {
	if _, ok := b.buffers[id]; !ok {
		return
	}
	delete(b.buffers, id)
	b.liveBuffers--
	b.record(Call{Op: OpDestroyBuffer, Buffer: id})
}

// InsertFence implements gfx.Backend.
func (b *Backend) InsertFence() (uint64, error) {
	b.fenceValue++
	v := b.fenceValue
	b.pending = append(b.pending, pendingFence{value: v, frame: b.frames})
	b.retire()
	b.record(Call{Op: OpInsertFence, Fence: v})
	return v, nil
}

// WaitFence implements gfx.Backend. The simulated GPU catches up to value.
func (b *Backend) WaitFence(value uint64) error {
	if value > b.fenceValue {
		return errors.Newf("recorder: wait on fence %d that was never inserted (last %d)", value, b.fenceValue)
	}
	if value > b.completed {
		b.waits++
		b.completed = value
		b.pending = slices.DeleteFunc(b.pending, func(p pendingFence) bool { return p.value <= value })
	}
	b.record(Call{Op: OpWaitFence, Fence: value})
	return nil
}

// FencePassed implements gfx.Backend.
func (b *Backend) FencePassed(value uint64) bool {
	return value <= b.completed
}

// CompletedFence returns the highest fence value the simulated GPU passed.
func (b *Backend) CompletedFence() uint64 { return b.completed }

func (b *Backend) retire() {
	n := 0
	for _, p := range b.pending {
		if b.frames-p.frame >= b.Latency {
			if p.value > b.completed {
				b.completed = p.value
			}
			continue
		}
		b.pending[n] = p
		n++
	}
	b.pending = b.pending[:n]
}

// WriteShaderInfo implements gfx.Backend.
func (b *Backend) WriteShaderInfo(kind gfx.ShaderInfoKind, offset int, texels []gfx.Texel) error {
	if kind >= gfx.NumShaderInfoKinds {
		return errors.Newf("recorder: unknown shader info kind %d", kind)
	}
	table := b.shaderInfo[kind]
	if need := offset + len(texels); need > len(table) {
		table = append(table, make([]gfx.Texel, need-len(table))...)
	}
	copy(table[offset:], texels)
	b.shaderInfo[kind] = table
	b.record(Call{Op: OpWriteShaderInfo, Kind: gfx.BufferKind(kind), Offset: offset, Count: len(texels)})
	return nil
}

// BeginFrame implements gfx.Backend.
func (b *Backend) BeginFrame() error {
	if b.inFrame {
		return errors.Wrap(gfx.ErrInvalidOperation, "recorder: BeginFrame inside a frame")
	}
	b.inFrame = true
	b.record(Call{Op: OpBeginFrame})
	return nil
}

// EndFrame implements gfx.Backend.
func (b *Backend) EndFrame() error {
	if !b.inFrame {
		return errors.Wrap(gfx.ErrInvalidOperation, "recorder: EndFrame without BeginFrame")
	}
	if b.views != 0 || b.rts != 0 {
		return errors.AssertionFailedf("recorder: frame ended with %d views and %d render textures pushed", b.views, b.rts)
	}
	b.inFrame = false
	b.frames++
	b.retire()
	b.record(Call{Op: OpEndFrame})
	return nil
}

func (b *Backend) checkFrame(op Op) error {
	if !b.inFrame {
		return errors.Wrapf(gfx.ErrInvalidOperation, "recorder: %s outside a frame", op)
	}
	return nil
}

// SetScissor implements gfx.Backend.
func (b *Backend) SetScissor(r gfx.Rect) error {
	if err := b.checkFrame(OpSetScissor); err != nil {
		return err
	}
	b.record(Call{Op: OpSetScissor, Rect: r})
	return nil
}

// DisableScissor implements gfx.Backend.
func (b *Backend) DisableScissor() error {
	if err := b.checkFrame(OpDisableScissor); err != nil {
		return err
	}
	b.record(Call{Op: OpDisableScissor})
	return nil
}

// SetStencilRef implements gfx.Backend.
func (b *Backend) SetStencilRef(ref uint32) error {
	if err := b.checkFrame(OpSetStencilRef); err != nil {
		return err
	}
	b.record(Call{Op: OpSetStencilRef, Ref: ref})
	return nil
}

// BindMaterial implements gfx.Backend.
func (b *Backend) BindMaterial(m gfx.MaterialID) error {
	if err := b.checkFrame(OpBindMaterial); err != nil {
		return err
	}
	b.record(Call{Op: OpBindMaterial, Material: m})
	return nil
}

// BindTextures implements gfx.Backend.
func (b *Backend) BindTextures(slots []gfx.TextureID) error {
	if err := b.checkFrame(OpBindTextures); err != nil {
		return err
	}
	b.record(Call{Op: OpBindTextures, Textures: slices.Clone(slots)})
	return nil
}

// BindFont implements gfx.Backend.
func (b *Backend) BindFont(font gfx.TextureID) error {
	if err := b.checkFrame(OpBindFont); err != nil {
		return err
	}
	b.record(Call{Op: OpBindFont, Texture: font})
	return nil
}

// DrawRanges implements gfx.Backend.
func (b *Backend) DrawRanges(vb, ib gfx.BufferID, ranges []gfx.DrawBufferRange) error {
	if err := b.checkFrame(OpDrawRanges); err != nil {
		return err
	}
	if _, ok := b.buffers[vb]; !ok {
		return errors.Wrapf(gfx.ErrUnknownBuffer, "draw from vertex buffer %d", vb)
	}
	if _, ok := b.buffers[ib]; !ok {
		return errors.Wrapf(gfx.ErrUnknownBuffer, "draw from index buffer %d", ib)
	}
	b.record(Call{Op: OpDrawRanges, Buffer: vb, Index: ib, Ranges: slices.Clone(ranges), Count: len(ranges)})
	return nil
}

// PushView implements gfx.Backend.
func (b *Backend) PushView(t gfx.Transform) error {
	if err := b.checkFrame(OpPushView); err != nil {
		return err
	}
	b.views++
	b.record(Call{Op: OpPushView, Transform: t})
	return nil
}

// PopView implements gfx.Backend.
func (b *Backend) PopView() error {
	if err := b.checkFrame(OpPopView); err != nil {
		return err
	}
	if b.views == 0 {
		return errors.Wrap(gfx.ErrInvalidOperation, "recorder: PopView with empty view stack")
	}
	b.views--
	b.record(Call{Op: OpPopView})
	return nil
}

// PushRenderTexture implements gfx.Backend.
func (b *Backend) PushRenderTexture(t gfx.TextureID) error {
	if err := b.checkFrame(OpPushRenderTexture); err != nil {
		return err
	}
	b.rts++
	b.record(Call{Op: OpPushRenderTexture, Texture: t})
	return nil
}

// PopRenderTexture implements gfx.Backend.
func (b *Backend) PopRenderTexture() error {
	if err := b.checkFrame(OpPopRenderTexture); err != nil {
		return err
	}
	if b.rts == 0 {
		return errors.Wrap(gfx.ErrInvalidOperation, "recorder: PopRenderTexture with empty stack")
	}
	b.rts--
	b.record(Call{Op: OpPopRenderTexture})
	return nil
}

// MarkImmediate records that an immediate callback ran. Callbacks may call
// it to make their position in the call stream visible to tests.
func (b *Backend) MarkImmediate() {
	b.record(Call{Op: OpImmediate})
}

var _ gfx.Backend = (*Backend)(nil)
