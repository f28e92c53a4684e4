package chain

import (
	"image/color"
	"testing"

	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/gfx/recorder"
	"github.com/gogpu/uir/tess"
)

type testElement struct {
	parent   *testElement
	children []*testElement
	layout   Layout
	node     NodeID

	paint  func(p *Painter)
	paints int
}

func newElement(x, y, w, h float32) *testElement {
	return &testElement{layout: Layout{
		Transform: gfx.Identity,
		Rect:      gfx.Rect{X: x, Y: y, W: w, H: h},
		Opacity:   1,
		Color:     color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}}
}

func (e *testElement) add(children ...*testElement) *testElement {
	for _, ch := range children {
		ch.parent = e
		e.children = append(e.children, ch)
	}
	return e
}

func (e *testElement) Parent() Element {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *testElement) Children() []Element {
	out := make([]Element, len(e.children))
	for i, ch := range e.children {
		out[i] = ch
	}
	return out
}

func (e *testElement) Layout() Layout { return e.layout }

func (e *testElement) Paint(p *Painter) {
	e.paints++
	if e.paint != nil {
		e.paint(p)
		return
	}
	p.Rect(tess.RectParams{Rect: e.layout.Rect, Tint: p.Tint()})
}

func (e *testElement) ChainNode() NodeID      { return e.node }
func (e *testElement) SetChainNode(id NodeID) { e.node = id }

func newTestChain(t *testing.T, mutate func(*Config), events Events) (*Chain, *recorder.Backend) {
	t.Helper()
	rec := recorder.New(1)
	dev, err := device.New(rec, device.DefaultConfig())
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(dev, cfg, events)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func mustProcess(t *testing.T, c *Chain) {
	t.Helper()
	if err := c.ProcessChanges(); err != nil {
		t.Fatalf("ProcessChanges: %v", err)
	}
}

func mustRoot(t *testing.T, c *Chain, root *testElement) {
	t.Helper()
	if err := c.SetRoot(root); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}
	mustProcess(t, c)
}

// commandTypes lists the command types of the chain in paint order.
func commandTypes(c *Chain) []device.CommandType {
	var out []device.CommandType
	for cmd := c.Head(); cmd != nil; cmd = cmd.Next() {
		out = append(out, cmd.Type)
	}
	return out
}

func typesOf(cmds []*device.Command) []device.CommandType {
	out := make([]device.CommandType, len(cmds))
	for i, cmd := range cmds {
		out[i] = cmd.Type
	}
	return out
}

// owners lists the owners of the chain's commands in paint order.
func owners(c *Chain) []int32 {
	var out []int32
	for cmd := c.Head(); cmd != nil; cmd = cmd.Next() {
		out = append(out, cmd.Owner)
	}
	return out
}
