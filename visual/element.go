package visual

import (
	"image/color"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/gfx"
)

var (
	// ErrHasParent is returned when adding an element that already has a
	// parent.
	ErrHasParent = errors.New("visual: element already has a parent")
	// ErrNotChild is returned when removing or moving a foreign element.
	ErrNotChild = errors.New("visual: not a child of this element")
)

// Element is a node of the visual tree. The zero value is not usable;
// call New.
type Element struct {
	parent   *Element
	children []*Element
	layout   chain.Layout
	content  []Content
	node     chain.NodeID
	// owner is set on the root of an attached tree.
	owner *chain.Chain
}

// New returns an opaque white element covering r.
func New(r gfx.Rect, content ...Content) *Element {
	e := &Element{
		layout: chain.Layout{
			Transform: gfx.Identity,
			Rect:      r,
			Opacity:   1,
			Color:     color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		},
		content: content,
	}
	e.layout.Text = hasText(content)
	return e
}

// Parent returns the parent element or nil.
func (e *Element) Parent() chain.Element {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *Element) Children() []chain.Element {
	out := make([]chain.Element, len(e.children))
	for i, ch := range e.children {
		out[i] = ch
	}
	return out
}

// Child returns the i-th child.
func (e *Element) Child(i int) *Element { return e.children[i] }

// NumChildren returns the number of children.
func (e *Element) NumChildren() int { return len(e.children) }

func (e *Element) Layout() chain.Layout { return e.layout }

// Paint paints the element's content in order.
func (e *Element) Paint(p *chain.Painter) {
	for _, c := range e.content {
		c.Paint(p, e.layout)
	}
}

func (e *Element) ChainNode() chain.NodeID {
	return e.node
}

func (e *Element) SetChainNode(id chain.NodeID) {
	e.node = id
}

// Chain returns the chain the tree of e is attached to, or nil.
func (e *Element) Chain() *chain.Chain {
	for at := e; at != nil; at = at.parent {
		if at.owner != nil {
			return at.owner
		}
	}
	return nil
}

// notify reports a change to the chain when e is registered with one.
func (e *Element) notify(fn func(c *chain.Chain) error) error {
	c := e.Chain()
	if c == nil || e.node == chain.NoNode {
		return nil
	}
	return fn(c)
}

// Attach makes e the root of c.
func (e *Element) Attach(c *chain.Chain) error {
	if e.parent != nil {
		return ErrHasParent
	}
	if err := c.SetRoot(e); err != nil {
		return errors.Wrap(err, "visual: attach")
	}
	e.owner = c
	return nil
}

// Detach removes the tree of e from its chain.
func (e *Element) Detach() error {
	if e.owner == nil {
		return nil
	}
	err := e.owner.SetRoot(nil)
	e.owner = nil
	return err
}

// Add appends children.
func (e *Element) Add(children ...*Element) error {
	for _, ch := range children {
		if err := e.Insert(len(e.children), ch); err != nil {
			return err
		}
	}
	return nil
}

// Insert adds child at index i.
func (e *Element) Insert(i int, child *Element) error {
	if child.parent != nil || child.owner != nil {
		return ErrHasParent
	}
	i = min(max(i, 0), len(e.children))
	e.children = slices.Insert(e.children, i, child)
	child.parent = e
	err := e.notify(func(c *chain.Chain) error { return c.OnChildAdded(e, child) })
	if err != nil {
		e.children = slices.Delete(e.children, i, i+1)
		child.parent = nil
		return errors.Wrap(err, "visual: insert")
	}
	return nil
}

// Remove detaches child and releases its render data.
func (e *Element) Remove(child *Element) error {
	i := slices.Index(e.children, child)
	if i < 0 {
		return ErrNotChild
	}
	if err := child.notify(func(c *chain.Chain) error { return c.OnChildRemoving(child) }); err != nil {
		return errors.Wrap(err, "visual: remove")
	}
	e.children = slices.Delete(e.children, i, i+1)
	child.parent = nil
	return nil
}

// Move places child at index i among its siblings.
func (e *Element) Move(child *Element, i int) error {
	from := slices.Index(e.children, child)
	if from < 0 {
		return ErrNotChild
	}
	e.children = slices.Delete(e.children, from, from+1)
	i = min(max(i, 0), len(e.children))
	e.children = slices.Insert(e.children, i, child)
	return e.notify(func(c *chain.Chain) error { return c.OnChildReordered(e) })
}

// SetContent replaces the paint content.
func (e *Element) SetContent(content ...Content) error {
	e.content = content
	wasText := e.layout.Text
	e.layout.Text = hasText(content)
	return e.notify(func(c *chain.Chain) error {
		if e.layout.Text && !wasText {
			if err := c.MarkTextDirty(e); err != nil {
				return err
			}
		}
		return c.OnVisualsChanged(e, false)
	})
}

// SetTransform sets the element-to-parent transform.
func (e *Element) SetTransform(t gfx.Transform) error {
	if e.layout.Transform == t {
		return nil
	}
	e.layout.Transform = t
	return e.notify(func(c *chain.Chain) error { return c.OnTransformOrSizeChanged(e, true, false) })
}

// SetRect sets the element box.
func (e *Element) SetRect(r gfx.Rect) error {
	if e.layout.Rect == r {
		return nil
	}
	e.layout.Rect = r
	return e.notify(func(c *chain.Chain) error { return c.OnTransformOrSizeChanged(e, false, true) })
}

// SetOpacity sets the element opacity, clamped to [0, 1] when rendered.
func (e *Element) SetOpacity(o float32) error {
	if e.layout.Opacity == o {
		return nil
	}
	e.layout.Opacity = o
	return e.notify(func(c *chain.Chain) error { return c.OnOpacityChanged(e, false) })
}

// SetColor sets the element color.
func (e *Element) SetColor(col color.Color) error {
	n := color.NRGBAModel.Convert(col).(color.NRGBA)
	if e.layout.Color == n {
		return nil
	}
	e.layout.Color = n
	return e.notify(func(c *chain.Chain) error { return c.OnColorChanged(e) })
}

// SetClip toggles clipping of children to the element box.
func (e *Element) SetClip(on bool) error {
	if e.layout.Clip == on {
		return nil
	}
	e.layout.Clip = on
	return e.notify(func(c *chain.Chain) error { return c.OnClippingChanged(e, true) })
}

// SetHidden hides the element's own content. Children still render.
func (e *Element) SetHidden(hidden bool) error {
	if e.layout.Hidden == hidden {
		return nil
	}
	e.layout.Hidden = hidden
	return e.notify(func(c *chain.Chain) error { return c.OnVisualsChanged(e, false) })
}

// SetHints sets the render hints.
func (e *Element) SetHints(h chain.RenderHints) error {
	if e.layout.Hints == h {
		return nil
	}
	e.layout.Hints = h
	return e.notify(func(c *chain.Chain) error { return c.OnRenderHintsChanged(e) })
}

// SetMaterial sets the default material pushed for the subtree.
func (e *Element) SetMaterial(m gfx.MaterialID) error {
	if e.layout.Material == m {
		return nil
	}
	e.layout.Material = m
	return e.notify(func(c *chain.Chain) error { return c.OnVisualsChanged(e, false) })
}

// SetRenderTarget sets the texture the subtree renders into when
// HintRenderTexture is set.
func (e *Element) SetRenderTarget(t gfx.TextureID) error {
	if e.layout.RenderTarget == t {
		return nil
	}
	e.layout.RenderTarget = t
	return e.notify(func(c *chain.Chain) error { return c.OnVisualsChanged(e, false) })
}

// SetTextSettings sets the per-element text shader parameters.
func (e *Element) SetTextSettings(s gfx.Texel) error {
	if e.layout.TextSettings == s {
		return nil
	}
	e.layout.TextSettings = s
	return e.notify(func(c *chain.Chain) error { return c.OnVisualsChanged(e, false) })
}

// Walk visits the tree of e in paint order until fn returns false.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, ch := range e.children {
		if !ch.Walk(fn) {
			return false
		}
	}
	return true
}
