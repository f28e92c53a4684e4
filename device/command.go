// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import "github.com/gogpu/uir/gfx"

// CommandType selects what a Command does when the chain is evaluated.
type CommandType uint8

const (
	// CommandDraw draws a mesh with the command's DrawState.
	CommandDraw CommandType = iota
	// CommandImmediate runs an immediate-mode callback.
	CommandImmediate
	CommandPushView
	CommandPopView
	CommandPushScissor
	CommandPopScissor
	CommandPushRenderTexture
	CommandPopRenderTexture
	CommandPushDefaultMaterial
	CommandPopDefaultMaterial
)

var commandTypeNames = [...]string{
	CommandDraw:                "Draw",
	CommandImmediate:           "Immediate",
	CommandPushView:            "PushView",
	CommandPopView:             "PopView",
	CommandPushScissor:         "PushScissor",
	CommandPopScissor:          "PopScissor",
	CommandPushRenderTexture:   "PushRenderTexture",
	CommandPopRenderTexture:    "PopRenderTexture",
	CommandPushDefaultMaterial: "PushDefaultMaterial",
	CommandPopDefaultMaterial:  "PopDefaultMaterial",
}

// String returns the command type name.
func (t CommandType) String() string {
	if int(t) < len(commandTypeNames) {
		return commandTypeNames[t]
	}
	return "Unknown"
}

// IsDraw reports whether the command only issues geometry and can be
// batched with its neighbours.
func (t CommandType) IsDraw() bool { return t == CommandDraw }

// DrawState is the GPU state a draw command needs bound.
type DrawState struct {
	// Material is the custom material, or MaterialDefault to inherit the
	// innermost pushed default material.
	Material   gfx.MaterialID
	Font       gfx.TextureID
	Texture    gfx.TextureID
	StencilRef uint32
}

// Command is a node of the render chain: a doubly linked list in paint
// order. Commands are owned by the chain element named by Owner.
type Command struct {
	Type  CommandType
	Owner int32
	// Closing marks commands emitted after an element's children, such as
	// the pop of a clip or view.
	Closing bool

	Mesh      *MeshHandle
	State     DrawState
	Transform gfx.Transform
	Scissor   gfx.Rect
	Immediate gfx.ImmediateFunc

	prev, next *Command
}

// Next returns the following command or nil.
func (c *Command) Next() *Command { return c.next }

// Prev returns the preceding command or nil.
func (c *Command) Prev() *Command { return c.prev }

// InsertAfter links c after at. c must be unlinked.
func (c *Command) InsertAfter(at *Command) {
	c.prev = at
	c.next = at.next
	if at.next != nil {
		at.next.prev = c
	}
	at.next = c
}

// InsertBefore links c before at. c must be unlinked.
func (c *Command) InsertBefore(at *Command) {
	c.next = at
	c.prev = at.prev
	if at.prev != nil {
		at.prev.next = c
	}
	at.prev = c
}

// Unlink removes c from its list.
func (c *Command) Unlink() {
	if c.prev != nil {
		c.prev.next = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
	c.prev = nil
	c.next = nil
}

// Reset clears c for reuse. c must be unlinked.
func (c *Command) Reset() {
	*c = Command{}
}
