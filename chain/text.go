package chain

import "log/slog"

// linkText appends id to the list of text elements.
func (c *Chain) linkText(id NodeID) {
	n := c.node(id)
	n.text = true
	n.textNext = NoNode
	n.textPrev = c.textTail
	if c.textTail != NoNode {
		c.node(c.textTail).textNext = id
	} else {
		c.textHead = id
	}
	c.textTail = id
}

func (c *Chain) unlinkText(id NodeID) {
	n := c.node(id)
	if !n.text {
		return
	}
	c.clearTextDirty(n)
	if n.textPrev != NoNode {
		c.node(n.textPrev).textNext = n.textNext
	} else {
		c.textHead = n.textNext
	}
	if n.textNext != NoNode {
		c.node(n.textNext).textPrev = n.textPrev
	} else {
		c.textTail = n.textPrev
	}
	n.text = false
	n.textNext, n.textPrev = NoNode, NoNode
}

func (c *Chain) setTextDirty(n *node) {
	if !n.textDirty {
		n.textDirty = true
		c.textPending++
	}
}

func (c *Chain) clearTextDirty(n *node) {
	if n.textDirty {
		n.textDirty = false
		c.textPending--
	}
}

// MarkTextDirty queues e for text regeneration. Regeneration is spread
// over ProcessChanges calls, at most TextRegenPerFrame elements each.
func (c *Chain) MarkTextDirty(e Element) error {
	id, err := c.lookup(e)
	if err != nil {
		return err
	}
	n := c.node(id)
	if !n.text {
		c.linkText(id)
	}
	c.setTextDirty(n)
	return nil
}

// ResetFontAtlas reports that the font atlas was rebuilt. The next
// ProcessChanges regenerates every text element regardless of the
// per-call budget.
func (c *Chain) ResetFontAtlas() { c.atlasReset = true }

// regenerateText repaints queued text elements. After an atlas reset all
// text elements are repainted; a pass that resets the atlas again is
// retried a bounded number of times.
func (c *Chain) regenerateText() error {
	if c.atlasReset {
		return c.regenerateAllText()
	}
	budget := c.cfg.TextRegenPerFrame
	var batch []NodeID
	for id := c.textHead; id != NoNode && len(batch) < budget; id = c.node(id).textNext {
		if c.node(id).textDirty {
			batch = append(batch, id)
		}
	}
	for _, id := range batch {
		if err := c.repaint(id); err != nil {
			return err
		}
		c.stats.TextRegenerated++
		// Move to the back so the next call starts with older entries.
		c.unlinkText(id)
		c.linkText(id)
	}
	if c.atlasReset {
		return c.regenerateAllText()
	}
	return nil
}

func (c *Chain) regenerateAllText() error {
	for attempt := 0; attempt <= maxAtlasRetries; attempt++ {
		c.atlasReset = false
		c.stats.AtlasResets++
		for id := c.textHead; id != NoNode; id = c.node(id).textNext {
			c.setTextDirty(c.node(id))
		}
		for id := c.textHead; id != NoNode; id = c.node(id).textNext {
			if err := c.repaint(id); err != nil {
				return err
			}
			c.stats.TextRegenerated++
		}
		if !c.atlasReset {
			return nil
		}
	}
	slogger().Warn("font atlas still resetting after text regeneration",
		slog.Int("attempts", maxAtlasRetries+1))
	c.atlasReset = false
	return nil
}
