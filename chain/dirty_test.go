package chain

import (
	"slices"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/shaderinfo"
)

type visit struct {
	class DirtyClass
	id    NodeID
}

type recordingEvents struct {
	DefaultEvents
	visits []visit
}

func (r *recordingEvents) UpdateClipping(c *Chain, id NodeID, d uint32) error {
	r.visits = append(r.visits, visit{ClassClipping, id})
	return r.DefaultEvents.UpdateClipping(c, id, d)
}

func (r *recordingEvents) UpdateOpacity(c *Chain, id NodeID, d uint32) error {
	r.visits = append(r.visits, visit{ClassOpacity, id})
	return r.DefaultEvents.UpdateOpacity(c, id, d)
}

func (r *recordingEvents) UpdateColor(c *Chain, id NodeID, d uint32) error {
	r.visits = append(r.visits, visit{ClassColor, id})
	return r.DefaultEvents.UpdateColor(c, id, d)
}

func (r *recordingEvents) UpdateTransformSize(c *Chain, id NodeID, d uint32) error {
	r.visits = append(r.visits, visit{ClassTransformSize, id})
	return r.DefaultEvents.UpdateTransformSize(c, id, d)
}

func (r *recordingEvents) UpdateVisuals(c *Chain, id NodeID, d uint32) error {
	r.visits = append(r.visits, visit{ClassVisuals, id})
	return r.DefaultEvents.UpdateVisuals(c, id, d)
}

func TestRegisterDirtyIdempotent(t *testing.T) {
	c, _ := newTestChain(t, nil, nil)
	root := newElement(0, 0, 100, 100)
	mustRoot(t, c, root)
	before := root.paints

	for range 3 {
		if err := c.OnVisualsChanged(root, false); err != nil {
			t.Fatalf("OnVisualsChanged: %v", err)
		}
	}
	if !c.IsDirty(root, DirtyVisuals) {
		t.Fatal("root not dirty")
	}
	mustProcess(t, c)
	if got := root.paints - before; got != 1 {
		t.Errorf("paints = %d, want 1", got)
	}
	if c.IsDirty(root, DirtyVisuals) {
		t.Error("root still dirty after ProcessChanges")
	}
}

func TestClearDirtyPartial(t *testing.T) {
	ev := &recordingEvents{}
	c, _ := newTestChain(t, nil, ev)
	root := newElement(0, 0, 100, 100)
	mustRoot(t, c, root)
	ev.visits = nil

	if err := c.MarkDirty(root, DirtyClipping|DirtyClippingHierarchy); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearDirty(root, DirtyClippingHierarchy, ClassClipping); err != nil {
		t.Fatal(err)
	}
	if !c.IsDirty(root, DirtyClipping) {
		t.Fatal("clearing one flag dequeued the element")
	}
	if err := c.ClearDirty(root, DirtyClipping, ClassClipping); err != nil {
		t.Fatal(err)
	}
	if c.IsDirty(root, DirtyClipping|DirtyClippingHierarchy) {
		t.Fatal("element still dirty")
	}
	mustProcess(t, c)
	if len(ev.visits) != 0 {
		t.Errorf("visits = %v, want none", ev.visits)
	}
}

func TestRegisterDirtyForeignFlags(t *testing.T) {
	c, _ := newTestChain(t, nil, nil)
	root := newElement(0, 0, 10, 10)
	mustRoot(t, c, root)
	err := c.RegisterDirty(root, DirtyVisuals, ClassClipping)
	if !errors.HasAssertionFailure(err) {
		t.Fatalf("err = %v, want assertion failure", err)
	}
	if err := c.RegisterDirty(newElement(0, 0, 1, 1), DirtyVisuals, ClassVisuals); !errors.Is(err, ErrNotInChain) {
		t.Fatalf("unregistered element: err = %v, want ErrNotInChain", err)
	}
}

func TestProcessOrder(t *testing.T) {
	ev := &recordingEvents{}
	c, _ := newTestChain(t, nil, ev)
	root := newElement(0, 0, 100, 100)
	a := newElement(0, 0, 50, 50)
	b := newElement(50, 0, 50, 50)
	aa := newElement(0, 0, 10, 10)
	root.add(a.add(aa), b)
	mustRoot(t, c, root)
	ev.visits = nil

	steps := []func() error{
		func() error { return c.OnVisualsChanged(aa, false) },
		func() error { return c.OnOpacityChanged(root, false) },
		func() error { return c.OnClippingChanged(a, false) },
		func() error { return c.OnVisualsChanged(b, false) },
		func() error { return c.OnVisualsChanged(root, false) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
	mustProcess(t, c)

	want := []visit{
		{ClassClipping, a.node},
		{ClassOpacity, root.node},
		{ClassVisuals, root.node},
		{ClassVisuals, b.node},
		{ClassVisuals, aa.node},
	}
	if !slices.Equal(ev.visits, want) {
		t.Errorf("visits = %v, want %v", ev.visits, want)
	}
}

func TestInitialPassOrder(t *testing.T) {
	ev := &recordingEvents{}
	c, _ := newTestChain(t, nil, ev)
	root := newElement(0, 0, 100, 100)
	root.add(newElement(0, 0, 10, 10).add(newElement(0, 0, 5, 5)), newElement(10, 0, 10, 10))
	mustRoot(t, c, root)

	lastClass := DirtyClass(-1)
	lastDepth := -1
	for _, v := range ev.visits {
		if v.class < lastClass {
			t.Fatalf("class %s visited after %s", v.class, lastClass)
		}
		depth := c.node(v.id).depth
		if v.class != lastClass {
			lastClass, lastDepth = v.class, depth
			continue
		}
		if depth < lastDepth {
			t.Fatalf("%s: depth %d visited after %d", v.class, depth, lastDepth)
		}
		lastDepth = depth
	}
}

func TestHierarchySkipsProcessedNodes(t *testing.T) {
	c, _ := newTestChain(t, nil, nil)
	root := newElement(0, 0, 100, 100)
	child := newElement(0, 0, 10, 10)
	leaf := newElement(0, 0, 5, 5)
	root.add(child.add(leaf))
	mustRoot(t, c, root)
	rootBefore, childBefore, leafBefore := root.paints, child.paints, leaf.paints
	processed := c.Stats().Processed[ClassVisuals]

	if err := c.OnVisualsChanged(root, true); err != nil {
		t.Fatal(err)
	}
	if err := c.OnVisualsChanged(leaf, false); err != nil {
		t.Fatal(err)
	}
	mustProcess(t, c)

	if root.paints-rootBefore != 1 || child.paints-childBefore != 1 || leaf.paints-leafBefore != 1 {
		t.Errorf("paints root=%d child=%d leaf=%d, want one each",
			root.paints-rootBefore, child.paints-childBefore, leaf.paints-leafBefore)
	}
	if got := c.Stats().Processed[ClassVisuals] - processed; got != 3 {
		t.Errorf("processed %d visuals updates, want 3", got)
	}
	if c.IsDirty(leaf, DirtyVisuals) {
		t.Error("leaf left queued")
	}
}

func TestOpacityHierarchy(t *testing.T) {
	c, _ := newTestChain(t, nil, nil)
	root := newElement(0, 0, 100, 100)
	child := newElement(0, 0, 10, 10)
	root.add(child)
	mustRoot(t, c, root)

	root.layout.Opacity = 0.5
	if err := c.OnOpacityChanged(root, false); err != nil {
		t.Fatal(err)
	}
	mustProcess(t, c)

	rs := c.Slots(root)
	if !rs.Opacity.IsValid() || rs.Opacity.OwnedState != shaderinfo.Owned {
		t.Fatalf("root opacity slot = %v, want owned", rs.Opacity)
	}
	cs := c.Slots(child)
	if cs.Opacity.Index() != rs.Opacity.Index() {
		t.Errorf("child opacity slot %v, want inherited %v", cs.Opacity, rs.Opacity)
	}
	if got := c.node(child.node).opacity; got != 0.5 {
		t.Errorf("child accumulated opacity = %v, want 0.5", got)
	}
	if got := c.ShaderInfo().Texels(gfx.ShaderInfoOpacity, rs.Opacity); len(got) == 0 {
		t.Error("opacity entry has no texels")
	}
}

func TestBlockedRegistration(t *testing.T) {
	c, rec := newTestChain(t, nil, nil)
	root := newElement(0, 0, 100, 100)
	var paintErr, immediateBlocked error
	root.paint = func(p *Painter) {
		paintErr = c.OnVisualsChanged(root, false)
		p.Immediate(func(gfx.Backend) error {
			immediateBlocked = c.OnVisualsChanged(root, false)
			return nil
		})
	}
	mustRoot(t, c, root)
	if !errors.Is(paintErr, ErrRegistrationBlocked) {
		t.Fatalf("register during paint: err = %v, want ErrRegistrationBlocked", paintErr)
	}
	if c.Blocked() {
		t.Fatal("chain still blocked after ProcessChanges")
	}
	if err := c.SetRoot(nil); err != nil {
		t.Fatal(err)
	}
	if err := c.SetRoot(root); err != nil {
		t.Fatal(err)
	}
	mustProcess(t, c)

	if err := rec.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := c.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := rec.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(immediateBlocked, ErrRegistrationBlocked) {
		t.Errorf("register during render: err = %v, want ErrRegistrationBlocked", immediateBlocked)
	}
	if err := c.OnVisualsChanged(root, false); err != nil {
		t.Errorf("register after render: %v", err)
	}
}
