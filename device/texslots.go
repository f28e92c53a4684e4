// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import "github.com/gogpu/uir/gfx"

// TextureSlotManager maps textures to the shader's texture slots with
// least-recently-used replacement.
type TextureSlotManager struct {
	slots      [gfx.TextureSlotCount]gfx.TextureID
	stamps     [gfx.TextureSlotCount]uint64
	clock      uint64
	generation uint32
}

// NewTextureSlotManager returns a manager with all slots empty.
func NewTextureSlotManager() *TextureSlotManager {
	return &TextureSlotManager{}
}

// IndexOf returns the slot holding t and marks it used, or -1.
func (m *TextureSlotManager) IndexOf(t gfx.TextureID) int {
	for i, s := range m.slots {
		if s == t && t != gfx.InvalidID {
			m.clock++
			m.stamps[i] = m.clock
			return i
		}
	}
	return -1
}

// Assign places t in an empty slot or evicts the least recently used one,
// and returns the slot. Every assignment starts a new generation.
func (m *TextureSlotManager) Assign(t gfx.TextureID) int {
	victim := 0
	for i := range m.slots {
		if m.slots[i] == gfx.InvalidID {
			victim = i
			break
		}
		if m.stamps[i] < m.stamps[victim] {
			victim = i
		}
	}
	m.clock++
	m.slots[victim] = t
	m.stamps[victim] = m.clock
	m.generation++
	return victim
}

// Slots returns the bound textures indexed by slot.
func (m *TextureSlotManager) Slots() []gfx.TextureID { return m.slots[:] }

// Empty reports whether no slot holds a texture.
func (m *TextureSlotManager) Empty() bool {
	for _, s := range m.slots {
		if s != gfx.InvalidID {
			return false
		}
	}
	return true
}

// Generation identifies the current slot contents. The evaluator binds
// the slot table again whenever it changes.
func (m *TextureSlotManager) Generation() uint32 { return m.generation }

// Reset empties every slot.
func (m *TextureSlotManager) Reset() {
	m.slots = [gfx.TextureSlotCount]gfx.TextureID{}
	m.stamps = [gfx.TextureSlotCount]uint64{}
	m.generation++
}
