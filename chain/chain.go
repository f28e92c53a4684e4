package chain

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/shaderinfo"
	"github.com/gogpu/uir/tess"
)

// DefaultTextRegenPerFrame bounds the text elements regenerated by one
// ProcessChanges call outside of a font atlas reset.
const DefaultTextRegenPerFrame = 50

// maxAtlasRetries bounds the full text passes run after a font atlas reset
// when regeneration resets the atlas again.
const maxAtlasRetries = 2

// Config holds the chain settings.
type Config struct {
	TextRegenPerFrame int
	// LinearColor converts painted colors to linear space.
	LinearColor bool
	// BreakBatches disables draw coalescing.
	BreakBatches bool
	// ShaderInfoPages bounds each shader info table.
	ShaderInfoPages int
	// Registry receives the chain on New. nil leaves the chain
	// unregistered.
	Registry *Registry
}

// DefaultConfig returns the default chain settings.
func DefaultConfig() Config {
	return Config{
		TextRegenPerFrame: DefaultTextRegenPerFrame,
		ShaderInfoPages:   shaderinfo.MaxPages,
	}
}

// Statistics counts the work done by a chain.
type Statistics struct {
	// Processed counts element updates per dirty class since creation.
	Processed       [NumClasses]int
	TextRegenerated int
	TextPending     int
	Elements        int
	Commands        int
	CustomMaterials int
	AtlasResets     int
}

// Chain owns the render data of one element tree and its command list.
// It is not safe for concurrent use.
type Chain struct {
	dev     *device.Device
	info    *shaderinfo.Allocator
	events  Events
	builder tess.MeshBuilder
	cfg     Config

	nodes   []node
	freeIDs []NodeID
	live    int
	root    NodeID

	lists    [numClasses]depthLists
	links    [numClasses]links
	dirtyIDs [numClasses]uint32

	head            *device.Command
	pool            []*device.Command
	commands        int
	customMaterials int

	textHead, textTail NodeID
	textPending        int
	atlasReset         bool

	blocked bool
	closed  bool
	handle  int
	stats   Statistics
}

// New creates a chain drawing through dev. A nil events uses
// DefaultEvents.
func New(dev *device.Device, cfg Config, events Events) (*Chain, error) {
	if dev == nil {
		return nil, errors.New("chain: nil device")
	}
	if cfg.TextRegenPerFrame <= 0 {
		return nil, errors.Newf("chain: text regeneration budget %d must be positive", cfg.TextRegenPerFrame)
	}
	if cfg.ShaderInfoPages <= 0 || cfg.ShaderInfoPages > shaderinfo.MaxPages {
		return nil, errors.Newf("chain: shader info pages %d out of range [1, %d]", cfg.ShaderInfoPages, shaderinfo.MaxPages)
	}
	if events == nil {
		events = DefaultEvents{}
	}
	c := &Chain{
		dev:    dev,
		info:   shaderinfo.New(cfg.ShaderInfoPages),
		events: events,
		cfg:    cfg,
		// Slot 0 is NoNode.
		nodes: make([]node, 1),
	}
	c.builder = tess.MeshBuilder{Linear: cfg.LinearColor}
	for k := range c.links {
		c.links[k].next = make([]NodeID, 1)
		c.links[k].prev = make([]NodeID, 1)
		c.lists[k].reset()
	}
	c.handle = NoHandle
	if cfg.Registry != nil {
		c.handle = cfg.Registry.Register(c)
	}
	slogger().Debug("chain created", slog.Int("handle", c.handle), slog.String("device", dev.ID().String()))
	return c, nil
}

// Device returns the device the chain draws through.
func (c *Chain) Device() *device.Device { return c.dev }

// ShaderInfo returns the shader info tables of the chain.
func (c *Chain) ShaderInfo() *shaderinfo.Allocator { return c.info }

// NoHandle is the handle of a chain created without a registry.
const NoHandle = -1

// Handle returns the chain's handle in its registry, or NoHandle.
func (c *Chain) Handle() int { return c.handle }

// Head returns the first command in paint order.
func (c *Chain) Head() *device.Command { return c.head }

// Root returns the root element or nil.
func (c *Chain) Root() Element {
	if c.root == NoNode {
		return nil
	}
	return c.node(c.root).elem
}

// SetBreakBatches toggles draw coalescing.
func (c *Chain) SetBreakBatches(on bool) { c.cfg.BreakBatches = on }

// SetTextRegenPerFrame changes the text regeneration budget. Values below
// one are ignored.
func (c *Chain) SetTextRegenPerFrame(n int) {
	if n > 0 {
		c.cfg.TextRegenPerFrame = n
	}
}

// Blocked reports whether element mutation is currently rejected.
func (c *Chain) Blocked() bool { return c.blocked }

func (c *Chain) checkMutable() error {
	if c.closed {
		return ErrClosed
	}
	if c.blocked {
		return ErrRegistrationBlocked
	}
	return nil
}

// SetRoot replaces the root element. nil clears the chain.
func (c *Chain) SetRoot(e Element) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if c.root != NoNode {
		if err := c.removeSubtree(c.root); err != nil {
			return err
		}
		c.root = NoNode
	}
	if e == nil {
		return nil
	}
	if e.ChainNode() != NoNode {
		return ErrAlreadyInChain
	}
	c.root = c.addSubtree(e, NoNode)
	return nil
}

// OnChildAdded registers child, already attached to parent, with its
// subtree.
func (c *Chain) OnChildAdded(parent, child Element) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	pid, err := c.lookup(parent)
	if err != nil {
		return err
	}
	if child.ChainNode() != NoNode {
		return ErrAlreadyInChain
	}
	c.addSubtree(child, pid)
	return nil
}

// OnChildRemoving releases the render data of child and its subtree. It
// must be called before child is detached from its parent.
func (c *Chain) OnChildRemoving(child Element) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	id, err := c.lookup(child)
	if err != nil {
		return err
	}
	if id == c.root {
		c.root = NoNode
	}
	return c.removeSubtree(id)
}

// OnChildReordered moves the commands of parent's subtree to match the
// current child order.
func (c *Chain) OnChildReordered(parent Element) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	id, err := c.lookup(parent)
	if err != nil {
		return err
	}
	c.relinkSubtree(id)
	return nil
}

// OnRenderHintsChanged rebuilds e with its new hints.
func (c *Chain) OnRenderHintsChanged(e Element) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	id, err := c.lookup(e)
	if err != nil {
		return err
	}
	n := c.node(id)
	n.hints = e.Layout().Hints
	c.walk(id, func(sub NodeID) {
		_ = c.markDirty(sub, DirtyClipping|DirtyOpacity|DirtyColor|DirtyTransform|DirtyClipRectSize|DirtyVisuals)
	})
	return nil
}

// OnClippingChanged queues a clipping update.
func (c *Chain) OnClippingChanged(e Element, hierarchy bool) error {
	f := DirtyClipping
	if hierarchy {
		f |= DirtyClippingHierarchy
	}
	return c.RegisterDirty(e, f, ClassClipping)
}

// OnOpacityChanged queues an opacity update.
func (c *Chain) OnOpacityChanged(e Element, hierarchy bool) error {
	f := DirtyOpacity
	if hierarchy {
		f |= DirtyOpacityHierarchy
	}
	return c.RegisterDirty(e, f, ClassOpacity)
}

// OnColorChanged queues a color update.
func (c *Chain) OnColorChanged(e Element) error {
	return c.RegisterDirty(e, DirtyColor, ClassColor)
}

// OnTransformOrSizeChanged queues a transform or size update. A size
// change also repaints the element.
func (c *Chain) OnTransformOrSizeChanged(e Element, transform, size bool) error {
	var f DirtyFlags
	if transform {
		f |= DirtyTransform
	}
	if size {
		f |= DirtyClipRectSize | DirtyVisuals
	}
	return c.MarkDirty(e, f)
}

// OnVisualsChanged queues a repaint.
func (c *Chain) OnVisualsChanged(e Element, hierarchy bool) error {
	f := DirtyVisuals
	if hierarchy {
		f |= DirtyVisualsHierarchy
	}
	return c.RegisterDirty(e, f, ClassVisuals)
}

func (c *Chain) addSubtree(e Element, parent NodeID) NodeID {
	id := c.newNode(e, parent)
	_ = c.markDirty(id, DirtyClipping|DirtyOpacity|DirtyColor|DirtyTransform|DirtyClipRectSize|DirtyVisuals)
	if e.Layout().Text {
		c.linkText(id)
	}
	for _, ch := range e.Children() {
		if ch.ChainNode() == NoNode {
			c.addSubtree(ch, id)
		}
	}
	return id
}

func (c *Chain) removeSubtree(id NodeID) error {
	for _, ch := range c.children(id) {
		if err := c.removeSubtree(ch); err != nil {
			return err
		}
	}
	n := c.node(id)
	c.freeCommands(n.opening)
	c.freeCommands(n.closing)
	var errs error
	for _, m := range n.meshes {
		errs = errors.CombineErrors(errs, c.dev.Free(m))
	}
	if n.mask != nil {
		errs = errors.CombineErrors(errs, c.dev.Free(n.mask))
	}
	errs = errors.CombineErrors(errs, c.freeSlots(n))
	c.dequeueAll(id)
	c.unlinkText(id)
	c.releaseNode(id)
	return errs
}

func (c *Chain) freeSlots(n *node) error {
	err := c.info.Free(gfx.ShaderInfoTransform, n.slots.Transform)
	err = errors.CombineErrors(err, c.info.Free(gfx.ShaderInfoClipRect, n.childClip))
	err = errors.CombineErrors(err, c.info.Free(gfx.ShaderInfoOpacity, n.slots.Opacity))
	err = errors.CombineErrors(err, c.info.Free(gfx.ShaderInfoColor, n.slots.Color))
	return errors.CombineErrors(err, c.info.Free(gfx.ShaderInfoTextSettings, n.slots.TextSettings))
}

// ProcessChanges applies every queued change: the dirty classes in fixed
// order, then text regeneration. Registration is blocked from the start of
// the visuals pass until ProcessChanges returns.
func (c *Chain) ProcessChanges() error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	ev := c.events
	passes := [numClasses]func(NodeID, uint32) error{
		ClassClipping:      func(id NodeID, d uint32) error { return ev.UpdateClipping(c, id, d) },
		ClassOpacity:       func(id NodeID, d uint32) error { return ev.UpdateOpacity(c, id, d) },
		ClassColor:         func(id NodeID, d uint32) error { return ev.UpdateColor(c, id, d) },
		ClassTransformSize: func(id NodeID, d uint32) error { return ev.UpdateTransformSize(c, id, d) },
		ClassVisuals:       func(id NodeID, d uint32) error { return ev.UpdateVisuals(c, id, d) },
	}
	for k := DirtyClass(0); k < numClasses; k++ {
		if k == ClassVisuals {
			c.blocked = true
		}
		if err := c.processClass(k, passes[k]); err != nil {
			c.blocked = false
			return err
		}
	}
	err := c.regenerateText()
	c.blocked = false
	return err
}

// Render uploads shader info and evaluates the command list. It must be
// called between Backend.BeginFrame and Backend.EndFrame. Registration is
// unblocked when it returns.
func (c *Chain) Render() error {
	if c.closed {
		return ErrClosed
	}
	c.blocked = true
	defer func() { c.blocked = false }()
	if err := c.info.Flush(c.dev.Backend()); err != nil {
		return errors.Wrap(err, "chain: upload shader info")
	}
	return c.dev.EvaluateChain(c.head, device.EvaluateOptions{
		BreakBatches:      c.cfg.BreakBatches,
		ConsiderMaterials: c.customMaterials > 0,
	})
}

// Close releases every element and unregisters the chain.
func (c *Chain) Close() error {
	if c.closed {
		return nil
	}
	var err error
	if c.root != NoNode {
		err = c.removeSubtree(c.root)
		c.root = NoNode
	}
	c.closed = true
	if c.cfg.Registry != nil {
		c.cfg.Registry.Unregister(c.handle)
	}
	return err
}

// Stats returns the chain statistics.
func (c *Chain) Stats() Statistics {
	s := c.stats
	s.Elements = c.live
	s.Commands = c.commands
	s.CustomMaterials = c.customMaterials
	s.TextPending = c.textPending
	return s
}

// ClipMethod returns how e clips its children.
func (c *Chain) ClipMethod(e Element) ClipMethod {
	id, err := c.lookup(e)
	if err != nil {
		return ClipNone
	}
	return c.node(id).clipMethod
}

// Slots returns the shader info entries packed into e's vertices.
func (c *Chain) Slots(e Element) shaderinfo.Slots {
	id, err := c.lookup(e)
	if err != nil {
		return shaderinfo.DefaultSlots()
	}
	return c.node(id).slots
}

// Meshes returns the meshes e painted.
func (c *Chain) Meshes(e Element) []*device.MeshHandle {
	id, err := c.lookup(e)
	if err != nil {
		return nil
	}
	return c.node(id).meshes
}

// Commands returns the opening and closing commands of e.
func (c *Chain) Commands(e Element) (opening, closing []*device.Command) {
	id, err := c.lookup(e)
	if err != nil {
		return nil, nil
	}
	n := c.node(id)
	return n.opening, n.closing
}

// WorldTransform returns the transform from e's space to the render
// target as of the last ProcessChanges.
func (c *Chain) WorldTransform(e Element) gfx.Transform {
	id, err := c.lookup(e)
	if err != nil {
		return gfx.Identity
	}
	return c.node(id).world
}
