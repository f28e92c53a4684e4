package chain

import (
	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/shaderinfo"
)

// node is the render data of one element.
type node struct {
	elem   Element
	parent NodeID
	depth  int
	live   bool

	dirty  DirtyFlags
	stamps [numClasses]uint32
	hints  RenderHints

	// world maps element space to the render target.
	world gfx.Transform
	// space maps element space to the space of the enclosing group.
	space gfx.Transform
	// view is the transform pushed by a group element.
	view gfx.Transform
	// worldClip is the clip rect applied to children, in world space.
	worldClip  gfx.Rect
	clipMethod ClipMethod
	// stencilRef is the stencil reference of the element's own content.
	stencilRef uint32
	opacity    float32

	// slots are packed into the element's vertices; childClip is the clip
	// rect entry children inherit.
	slots     shaderinfo.Slots
	childClip shaderinfo.BMPAlloc

	meshes  []*device.MeshHandle
	mask    *device.MeshHandle
	opening []*device.Command
	closing []*device.Command

	text               bool
	textDirty          bool
	textNext, textPrev NodeID
}

func (c *Chain) node(id NodeID) *node { return &c.nodes[id] }

// lookup returns the live node of e.
func (c *Chain) lookup(e Element) (NodeID, error) {
	if e == nil {
		return NoNode, ErrNotInChain
	}
	id := e.ChainNode()
	if id <= NoNode || int(id) >= len(c.nodes) || !c.nodes[id].live || c.nodes[id].elem != e {
		return NoNode, ErrNotInChain
	}
	return id, nil
}

func (c *Chain) newNode(e Element, parent NodeID) NodeID {
	var id NodeID
	if n := len(c.freeIDs); n > 0 {
		id = c.freeIDs[n-1]
		c.freeIDs = c.freeIDs[:n-1]
	} else {
		id = NodeID(len(c.nodes))
		c.nodes = append(c.nodes, node{})
		for k := range c.links {
			c.links[k].next = append(c.links[k].next, NoNode)
			c.links[k].prev = append(c.links[k].prev, NoNode)
		}
	}
	depth := 0
	if parent != NoNode {
		depth = c.nodes[parent].depth + 1
	}
	c.nodes[id] = node{
		elem:    e,
		parent:  parent,
		depth:   depth,
		live:    true,
		hints:   e.Layout().Hints,
		world:   gfx.Identity,
		space:   gfx.Identity,
		view:    gfx.Identity,
		opacity: 1,
		slots:   shaderinfo.DefaultSlots(),
	}
	c.nodes[id].childClip = shaderinfo.Default()
	c.nodes[id].worldClip = gfx.InfiniteRect
	c.live++
	e.SetChainNode(id)
	return id
}

func (c *Chain) releaseNode(id NodeID) {
	n := c.node(id)
	n.elem.SetChainNode(NoNode)
	*n = node{}
	c.freeIDs = append(c.freeIDs, id)
	c.live--
}

// children returns the registered children of id in paint order.
func (c *Chain) children(id NodeID) []NodeID {
	var out []NodeID
	for _, ch := range c.node(id).elem.Children() {
		if cid := ch.ChainNode(); cid != NoNode && int(cid) < len(c.nodes) && c.nodes[cid].live && c.nodes[cid].parent == id {
			out = append(out, cid)
		}
	}
	return out
}

// walk visits the subtree of id in pre-order.
func (c *Chain) walk(id NodeID, fn func(NodeID)) {
	fn(id)
	for _, ch := range c.children(id) {
		c.walk(ch, fn)
	}
}
