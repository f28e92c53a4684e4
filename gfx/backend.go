package gfx

import "github.com/cockroachdb/errors"

// ErrInvalidOperation is returned when a draw-affecting call is made
// outside a BeginFrame/EndFrame pair, or when frame calls are unbalanced.
var ErrInvalidOperation = errors.New("gfx: invalid operation")

// ErrUnknownBuffer is returned for operations on a destroyed or foreign buffer.
var ErrUnknownBuffer = errors.New("gfx: unknown buffer")

// TextureSlotCount is the number of textures BindTextures accepts.
const TextureSlotCount = 8

// Backend is the graphics API seam.
//
// Buffer, fence and shader info calls may be made at any time. Every other
// call must happen between BeginFrame and EndFrame and returns
// ErrInvalidOperation otherwise.
//
// Fence values are monotonically increasing. WaitFence blocks until the
// GPU has passed the given value; it has no timeout.
type Backend interface {
	CreateBuffer(kind BufferKind, elements int, label string) (BufferID, error)
	WriteVertices(buf BufferID, offset int, data []Vertex) error
	WriteIndices(buf BufferID, offset int, data []uint16) error
	DestroyBuffer(buf BufferID)

	InsertFence() (uint64, error)
	WaitFence(value uint64) error
	FencePassed(value uint64) bool

	WriteShaderInfo(kind ShaderInfoKind, offset int, texels []Texel) error

	BeginFrame() error
	EndFrame() error

	SetScissor(r Rect) error
	DisableScissor() error
	SetStencilRef(ref uint32) error
	BindMaterial(m MaterialID) error
	BindTextures(slots []TextureID) error
	BindFont(font TextureID) error
	DrawRanges(vb, ib BufferID, ranges []DrawBufferRange) error

	PushView(t Transform) error
	PopView() error
	PushRenderTexture(t TextureID) error
	PopRenderTexture() error
}

// ImmediateFunc is an immediate-mode draw callback executed in chain order.
// It may issue arbitrary Backend calls.
type ImmediateFunc func(b Backend) error
