package chain

import (
	"image/color"

	"github.com/gogpu/uir/gfx"
)

// NodeID identifies an element's render data inside a chain. The zero
// value means the element is not in a chain.
type NodeID int32

// NoNode is the invalid NodeID.
const NoNode NodeID = 0

// RenderHints change how an element and its subtree are rendered. They
// are structural: changing them rebuilds the element.
type RenderHints uint8

const (
	// HintGroupTransform draws the subtree under a pushed view transform
	// so that moving the element does not touch descendant data.
	HintGroupTransform RenderHints = 1 << iota
	// HintClipWithScissors clips children with a scissor rect when the
	// element is axis aligned.
	HintClipWithScissors
	// HintRenderTexture redirects the subtree into Layout.RenderTarget.
	HintRenderTexture
	// HintDynamicColor keeps the element color in a shader info slot so
	// that color changes do not repaint.
	HintDynamicColor
)

// Layout is the state of an element as seen by the renderer.
type Layout struct {
	// Transform maps element space to parent space.
	Transform gfx.Transform
	// Rect is the element box in element space.
	Rect gfx.Rect
	// Opacity in [0, 1]; multiplied down the tree.
	Opacity float32
	Color   color.NRGBA
	// Clip clips children to Rect.
	Clip   bool
	Hidden bool

	Hints        RenderHints
	RenderTarget gfx.TextureID
	// Material is pushed as the default material of the subtree.
	Material gfx.MaterialID

	// Text marks elements whose content depends on the font atlas.
	Text         bool
	TextSettings gfx.Texel
}

// Element is a node of the scene graph drawn by a chain.
type Element interface {
	Parent() Element
	Children() []Element
	Layout() Layout
	// Paint describes the element's own content in element space.
	Paint(p *Painter)

	ChainNode() NodeID
	SetChainNode(id NodeID)
}

// ClipMethod is how an element clips its children.
type ClipMethod uint8

const (
	ClipNone ClipMethod = iota
	// ClipScissor uses a scissor rect in world space.
	ClipScissor
	// ClipShader discards fragments outside a clip rect slot.
	ClipShader
	// ClipStencil draws the element shape into the stencil buffer and
	// tests descendants against an incremented reference.
	ClipStencil
)

var clipMethodNames = [...]string{"None", "Scissor", "Shader", "Stencil"}

func (m ClipMethod) String() string {
	if int(m) < len(clipMethodNames) {
		return clipMethodNames[m]
	}
	return "Unknown"
}
