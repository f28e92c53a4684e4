package chain

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/shaderinfo"
)

// Events recomputes the derived state of one element for a dirty class.
// dirtyID identifies the running pass; implementations that update
// descendants directly stamp them with it through Chain.Visit so the pass
// does not process them again.
type Events interface {
	UpdateClipping(c *Chain, id NodeID, dirtyID uint32) error
	UpdateOpacity(c *Chain, id NodeID, dirtyID uint32) error
	UpdateColor(c *Chain, id NodeID, dirtyID uint32) error
	UpdateTransformSize(c *Chain, id NodeID, dirtyID uint32) error
	UpdateVisuals(c *Chain, id NodeID, dirtyID uint32) error
}

// DefaultEvents is the standard recompute behavior. Embed it to observe
// or extend individual classes.
type DefaultEvents struct{}

// UpdateClipping recomputes the clip method, clip rect and stencil
// reference of id. Descendants follow when the hierarchy flag is set or
// the state children inherit changed.
func (DefaultEvents) UpdateClipping(c *Chain, id NodeID, dirtyID uint32) error {
	return c.propagate(id, ClassClipping, dirtyID, DirtyClippingHierarchy, c.updateClip)
}

// UpdateOpacity recomputes the accumulated opacity of id.
func (DefaultEvents) UpdateOpacity(c *Chain, id NodeID, dirtyID uint32) error {
	return c.propagate(id, ClassOpacity, dirtyID, DirtyOpacityHierarchy, c.updateOpacity)
}

// UpdateColor updates the color slot of a dynamic color element or
// repaints the element.
func (DefaultEvents) UpdateColor(c *Chain, id NodeID, _ uint32) error {
	return c.updateColor(id)
}

// UpdateTransformSize recomputes transforms and clip rects of id and its
// descendants.
func (DefaultEvents) UpdateTransformSize(c *Chain, id NodeID, dirtyID uint32) error {
	return c.propagate(id, ClassTransformSize, dirtyID, DirtyTransform, c.updateTransform)
}

// UpdateVisuals repaints id, and its descendants with the hierarchy flag.
func (DefaultEvents) UpdateVisuals(c *Chain, id NodeID, dirtyID uint32) error {
	hierarchy := c.node(id).dirty&DirtyVisualsHierarchy != 0
	if err := c.repaint(id); err != nil {
		return err
	}
	if !hierarchy {
		return nil
	}
	return c.repaintSubtree(id, dirtyID)
}

func (c *Chain) repaintSubtree(id NodeID, dirtyID uint32) error {
	for _, ch := range c.children(id) {
		if !c.Visit(ch, ClassVisuals, dirtyID) {
			continue
		}
		if err := c.repaint(ch); err != nil {
			return err
		}
		if err := c.repaintSubtree(ch, dirtyID); err != nil {
			return err
		}
	}
	return nil
}

// Visit stamps id as processed by the running pass of class k and reports
// whether it had not been processed yet.
func (c *Chain) Visit(id NodeID, k DirtyClass, dirtyID uint32) bool {
	n := c.node(id)
	if n.stamps[k] == dirtyID {
		return false
	}
	n.stamps[k] = dirtyID
	c.stats.Processed[k]++
	return true
}

// propagate runs update on id and walks into children while update
// reports inherited state changes or id carries the hierarchy flag.
func (c *Chain) propagate(id NodeID, k DirtyClass, dirtyID uint32, hierarchyFlag DirtyFlags, update func(NodeID) (bool, error)) error {
	force := c.node(id).dirty&hierarchyFlag != 0
	var visit func(NodeID, bool) error
	visit = func(at NodeID, force bool) error {
		changed, err := update(at)
		if err != nil {
			return err
		}
		if !changed && !force {
			return nil
		}
		for _, ch := range c.children(at) {
			if !c.Visit(ch, k, dirtyID) {
				continue
			}
			if err := visit(ch, force); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(id, force)
}

// assignSlot makes cur an owned entry of kind when own is set, or the
// inherited entry otherwise. It reports whether the entry referenced by
// vertices changed.
func (c *Chain) assignSlot(kind gfx.ShaderInfoKind, cur *shaderinfo.BMPAlloc, own bool, inherited shaderinfo.BMPAlloc) (bool, error) {
	if own {
		if cur.OwnedState == shaderinfo.Owned {
			return false, nil
		}
		al := c.info.Allocate(kind)
		if !al.IsValid() {
			return false, errors.Wrapf(ErrSlotsExhausted, "%s", kind)
		}
		*cur = al
		return true, nil
	}
	if cur.OwnedState == shaderinfo.Owned {
		if err := c.info.Free(kind, *cur); err != nil {
			return false, err
		}
	}
	next := inherited.Inherit()
	changed := *cur != next
	*cur = next
	return changed, nil
}

// inherited is the state a node takes from its parent.
type inherited struct {
	world, space gfx.Transform
	transform    shaderinfo.BMPAlloc
	clip         shaderinfo.BMPAlloc
	worldClip    gfx.Rect
	opacitySlot  shaderinfo.BMPAlloc
	opacity      float32
	stencilRef   uint32
}

// inheritedFrom returns what children of parent inherit, or the root
// defaults for NoNode.
func (c *Chain) inheritedFrom(parent NodeID) inherited {
	if parent == NoNode {
		d := shaderinfo.Default()
		return inherited{
			world: gfx.Identity, space: gfx.Identity,
			transform: d, clip: d, opacitySlot: d,
			worldClip: gfx.InfiniteRect, opacity: 1,
		}
	}
	p := c.node(parent)
	in := inherited{
		world:       p.world,
		space:       p.space,
		transform:   p.slots.Transform,
		clip:        p.childClip,
		worldClip:   p.worldClip,
		opacitySlot: p.slots.Opacity,
		opacity:     p.opacity,
		stencilRef:  p.stencilRef,
	}
	if p.hints&HintGroupTransform != 0 {
		in.transform = shaderinfo.Default()
	}
	if p.clipMethod == ClipStencil {
		in.stencilRef++
	}
	return in
}

// updateClip recomputes the clip state of id. It reports whether state
// inherited by children changed.
func (c *Chain) updateClip(id NodeID) (bool, error) {
	n := c.node(id)
	l := n.elem.Layout()
	in := c.inheritedFrom(n.parent)

	method := ClipNone
	if l.Clip {
		aligned := gfx.IsAxisAligned(n.world)
		switch {
		case aligned && n.hints&HintClipWithScissors != 0:
			method = ClipScissor
		case aligned:
			method = ClipShader
		default:
			method = ClipStencil
		}
	}
	worldClip := in.worldClip
	if method != ClipNone {
		worldClip = in.worldClip.Intersect(gfx.TransformBounds(n.world, l.Rect))
	}

	selfChanged, err := c.assignSlot(gfx.ShaderInfoClipRect, &n.slots.ClipRect, false, in.clip)
	if err != nil {
		return false, err
	}
	childChanged, err := c.assignSlot(gfx.ShaderInfoClipRect, &n.childClip, method == ClipShader, n.slots.ClipRect)
	if err != nil {
		return false, err
	}
	if method == ClipShader {
		c.info.SetClipRect(n.childClip, worldClip)
	}

	methodChanged := method != n.clipMethod
	refChanged := in.stencilRef != n.stencilRef
	clipChanged := worldClip != n.worldClip
	n.clipMethod = method
	n.stencilRef = in.stencilRef
	n.worldClip = worldClip

	if methodChanged || selfChanged || refChanged {
		if err := c.registerDirty(id, DirtyVisuals, ClassVisuals); err != nil {
			return false, err
		}
	} else if method == ClipScissor && clipChanged {
		for _, cmd := range n.opening {
			if cmd.Type == device.CommandPushScissor {
				cmd.Scissor = worldClip
			}
		}
	}
	return methodChanged || childChanged || refChanged || clipChanged, nil
}

// updateOpacity recomputes the accumulated opacity of id.
func (c *Chain) updateOpacity(id NodeID) (bool, error) {
	n := c.node(id)
	l := n.elem.Layout()
	in := c.inheritedFrom(n.parent)
	own := clampUnit(l.Opacity)
	acc := in.opacity * own

	changed, err := c.assignSlot(gfx.ShaderInfoOpacity, &n.slots.Opacity, own < 1, in.opacitySlot)
	if err != nil {
		return false, err
	}
	if own < 1 {
		c.info.SetOpacity(n.slots.Opacity, acc)
	}
	if changed {
		if err := c.registerDirty(id, DirtyVisuals, ClassVisuals); err != nil {
			return false, err
		}
	}
	valueChanged := acc != n.opacity
	n.opacity = acc
	return changed || valueChanged, nil
}

func clampUnit(v float32) float32 {
	return min(max(v, 0), 1)
}

// updateColor keeps dynamic colors in a slot; other elements bake their
// color into vertices and repaint.
func (c *Chain) updateColor(id NodeID) error {
	n := c.node(id)
	l := n.elem.Layout()
	dynamic := n.hints&HintDynamicColor != 0
	changed, err := c.assignSlot(gfx.ShaderInfoColor, &n.slots.Color, dynamic, shaderinfo.Default())
	if err != nil {
		return err
	}
	if dynamic {
		c.info.SetColor(n.slots.Color, colorTexel(l))
	}
	if changed || !dynamic {
		return c.registerDirty(id, DirtyVisuals, ClassVisuals)
	}
	return nil
}

func colorTexel(l Layout) gfx.Texel {
	return gfx.Texel{
		float32(l.Color.R) / 255,
		float32(l.Color.G) / 255,
		float32(l.Color.B) / 255,
		float32(l.Color.A) / 255,
	}
}

// updateTransform recomputes the world and group-relative transforms of
// id and refreshes its clip state, which depends on them.
func (c *Chain) updateTransform(id NodeID) (bool, error) {
	n := c.node(id)
	l := n.elem.Layout()
	in := c.inheritedFrom(n.parent)

	world := gfx.Mul(in.world, l.Transform)
	rel := gfx.Mul(in.space, l.Transform)
	group := n.hints&HintGroupTransform != 0
	space, view := rel, gfx.Identity
	if group {
		space, view = gfx.Identity, rel
	}
	own := !group && l.Transform != gfx.Identity
	slotChanged, err := c.assignSlot(gfx.ShaderInfoTransform, &n.slots.Transform, own, in.transform)
	if err != nil {
		return false, err
	}
	if own {
		c.info.SetTransform(n.slots.Transform, space)
	}
	if slotChanged {
		if err := c.registerDirty(id, DirtyVisuals, ClassVisuals); err != nil {
			return false, err
		}
	}
	if group && view != n.view {
		for _, cmd := range n.opening {
			if cmd.Type == device.CommandPushView {
				cmd.Transform = view
			}
		}
	}

	changed := world != n.world || space != n.space || slotChanged
	n.world, n.space, n.view = world, space, view
	clipChanged, err := c.updateClip(id)
	if err != nil {
		return false, err
	}
	return changed || clipChanged, nil
}
