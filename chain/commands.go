package chain

import (
	"slices"

	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
)

func (c *Chain) allocCommand() *device.Command {
	if n := len(c.pool); n > 0 {
		cmd := c.pool[n-1]
		c.pool = c.pool[:n-1]
		return cmd
	}
	return &device.Command{}
}

func (c *Chain) freeCommands(cmds []*device.Command) {
	for _, cmd := range cmds {
		c.removeCommand(cmd)
		cmd.Reset()
		c.pool = append(c.pool, cmd)
	}
}

// insertCommand links cmd after prev, or at the head when prev is nil.
func (c *Chain) insertCommand(cmd, prev *device.Command) {
	if prev == nil {
		if c.head != nil {
			cmd.InsertBefore(c.head)
		}
		c.head = cmd
	} else {
		cmd.InsertAfter(prev)
	}
	c.onCommandAdded(cmd)
}

func (c *Chain) removeCommand(cmd *device.Command) {
	if c.head == cmd {
		c.head = cmd.Next()
	}
	cmd.Unlink()
	c.onCommandRemoved(cmd)
}

func (c *Chain) onCommandAdded(cmd *device.Command) {
	c.commands++
	if cmd.State.Material != gfx.MaterialDefault {
		c.customMaterials++
	}
}

func (c *Chain) onCommandRemoved(cmd *device.Command) {
	c.commands--
	if cmd.State.Material != gfx.MaterialDefault {
		c.customMaterials--
	}
}

func last(cmds []*device.Command) *device.Command {
	if len(cmds) == 0 {
		return nil
	}
	return cmds[len(cmds)-1]
}

// lastCommandIn returns the last command of the subtree of id.
func (c *Chain) lastCommandIn(id NodeID) *device.Command {
	n := c.node(id)
	if cmd := last(n.closing); cmd != nil {
		return cmd
	}
	if cmd := c.lastChildCommand(id); cmd != nil {
		return cmd
	}
	return last(n.opening)
}

// lastChildCommand returns the last command of id's children subtrees.
func (c *Chain) lastChildCommand(id NodeID) *device.Command {
	ch := c.children(id)
	for i := len(ch) - 1; i >= 0; i-- {
		if cmd := c.lastCommandIn(ch[i]); cmd != nil {
			return cmd
		}
	}
	return nil
}

// prevCommand returns the command preceding the subtree of id in paint
// order, or nil when the subtree comes first.
func (c *Chain) prevCommand(id NodeID) *device.Command {
	for {
		parent := c.node(id).parent
		if parent == NoNode {
			return nil
		}
		sibs := c.children(parent)
		for i := slices.Index(sibs, id) - 1; i >= 0; i-- {
			if cmd := c.lastCommandIn(sibs[i]); cmd != nil {
				return cmd
			}
		}
		if cmd := last(c.node(parent).opening); cmd != nil {
			return cmd
		}
		id = parent
	}
}

// setCommands replaces the commands of id and links them in paint order.
func (c *Chain) setCommands(id NodeID, opening, closing []*device.Command) {
	n := c.node(id)
	c.freeCommands(n.opening)
	c.freeCommands(n.closing)
	n.opening, n.closing = opening, closing

	prev := c.prevCommand(id)
	for _, cmd := range opening {
		c.insertCommand(cmd, prev)
		prev = cmd
	}
	if len(closing) == 0 {
		return
	}
	if cmd := c.lastChildCommand(id); cmd != nil {
		prev = cmd
	}
	for _, cmd := range closing {
		c.insertCommand(cmd, prev)
		prev = cmd
	}
}

// relinkSubtree moves the commands of id's subtree to follow the current
// child order.
func (c *Chain) relinkSubtree(id NodeID) {
	var cmds []*device.Command
	var collect func(NodeID)
	collect = func(at NodeID) {
		n := c.node(at)
		cmds = append(cmds, n.opening...)
		for _, ch := range c.children(at) {
			collect(ch)
		}
		cmds = append(cmds, n.closing...)
	}
	collect(id)
	for _, cmd := range cmds {
		c.removeCommand(cmd)
	}
	prev := c.prevCommand(id)
	for _, cmd := range cmds {
		c.insertCommand(cmd, prev)
		prev = cmd
	}
}
