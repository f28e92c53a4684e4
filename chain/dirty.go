package chain

import (
	"math"

	"github.com/cockroachdb/errors"
)

// DirtyClass is one of the independently processed kinds of change.
type DirtyClass int

const (
	ClassClipping DirtyClass = iota
	ClassOpacity
	ClassColor
	ClassTransformSize
	ClassVisuals
	numClasses
)

// NumClasses is the number of dirty classes.
const NumClasses = int(numClasses)

var classNames = [...]string{"Clipping", "Opacity", "Color", "TransformSize", "Visuals"}

func (k DirtyClass) String() string {
	if k >= 0 && int(k) < len(classNames) {
		return classNames[k]
	}
	return "Unknown"
}

// DirtyFlags is the per-element set of pending changes.
type DirtyFlags uint32

const (
	DirtyClipping DirtyFlags = 1 << iota
	DirtyClippingHierarchy
	DirtyOpacity
	DirtyOpacityHierarchy
	DirtyColor
	DirtyTransform
	DirtyClipRectSize
	DirtyVisuals
	DirtyVisualsHierarchy
)

// classMask holds the flags owned by each class.
var classMask = [numClasses]DirtyFlags{
	ClassClipping:      DirtyClipping | DirtyClippingHierarchy,
	ClassOpacity:       DirtyOpacity | DirtyOpacityHierarchy,
	ClassColor:         DirtyColor,
	ClassTransformSize: DirtyTransform | DirtyClipRectSize,
	ClassVisuals:       DirtyVisuals | DirtyVisualsHierarchy,
}

// Flags returns the flags belonging to class k.
func (k DirtyClass) Flags() DirtyFlags { return classMask[k] }

// links stores the intrusive list pointers of one class, indexed by
// NodeID.
type links struct {
	next, prev []NodeID
}

// depthLists holds one list per hierarchy depth and the range of depths
// that may be non-empty.
type depthLists struct {
	heads, tails       []NodeID
	minDepth, maxDepth int
}

func (l *depthLists) reset() {
	l.minDepth = math.MaxInt
	l.maxDepth = -1
}

// shrink narrows the depth range to the non-empty lists.
func (l *depthLists) shrink() {
	lo, hi := l.minDepth, l.maxDepth
	l.reset()
	for d := lo; d <= hi && d < len(l.heads); d++ {
		if l.heads[d] != NoNode {
			l.minDepth = min(l.minDepth, d)
			l.maxDepth = max(l.maxDepth, d)
		}
	}
}

func (c *Chain) link(k DirtyClass, id NodeID) {
	l := &c.lists[k]
	depth := c.node(id).depth
	for len(l.heads) <= depth {
		l.heads = append(l.heads, NoNode)
		l.tails = append(l.tails, NoNode)
	}
	ln := &c.links[k]
	tail := l.tails[depth]
	ln.prev[id] = tail
	ln.next[id] = NoNode
	if tail == NoNode {
		l.heads[depth] = id
	} else {
		ln.next[tail] = id
	}
	l.tails[depth] = id
	l.minDepth = min(l.minDepth, depth)
	l.maxDepth = max(l.maxDepth, depth)
}

func (c *Chain) unlink(k DirtyClass, id NodeID) {
	l := &c.lists[k]
	ln := &c.links[k]
	depth := c.node(id).depth
	prev, next := ln.prev[id], ln.next[id]
	if prev == NoNode {
		l.heads[depth] = next
	} else {
		ln.next[prev] = next
	}
	if next == NoNode {
		l.tails[depth] = prev
	} else {
		ln.prev[next] = prev
	}
	ln.prev[id] = NoNode
	ln.next[id] = NoNode
}

// RegisterDirty ORs flags into the element's pending changes of class k
// and queues the element for that class if it was not queued yet.
func (c *Chain) RegisterDirty(e Element, flags DirtyFlags, k DirtyClass) error {
	id, err := c.lookup(e)
	if err != nil {
		return err
	}
	return c.registerDirty(id, flags, k)
}

func (c *Chain) registerDirty(id NodeID, flags DirtyFlags, k DirtyClass) error {
	if c.blocked {
		return errors.Wrapf(ErrRegistrationBlocked, "register %s", k)
	}
	if flags&^classMask[k] != 0 {
		return errors.AssertionFailedf("chain: flags %#x do not belong to class %s", flags, k)
	}
	if flags == 0 {
		return nil
	}
	n := c.node(id)
	if n.dirty&classMask[k] == 0 {
		c.link(k, id)
	}
	n.dirty |= flags
	return nil
}

// MarkDirty registers flags that may span several classes.
func (c *Chain) MarkDirty(e Element, flags DirtyFlags) error {
	id, err := c.lookup(e)
	if err != nil {
		return err
	}
	return c.markDirty(id, flags)
}

func (c *Chain) markDirty(id NodeID, flags DirtyFlags) error {
	for k := DirtyClass(0); k < numClasses; k++ {
		if f := flags & classMask[k]; f != 0 {
			if err := c.registerDirty(id, f, k); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearDirty clears flags of class k. The element stays queued while any
// flag of the class remains.
func (c *Chain) ClearDirty(e Element, flags DirtyFlags, k DirtyClass) error {
	id, err := c.lookup(e)
	if err != nil {
		return err
	}
	c.clearDirty(id, flags, k)
	return nil
}

func (c *Chain) clearDirty(id NodeID, flags DirtyFlags, k DirtyClass) {
	n := c.node(id)
	had := n.dirty&classMask[k] != 0
	n.dirty &^= flags & classMask[k]
	if had && n.dirty&classMask[k] == 0 {
		c.unlink(k, id)
	}
}

// IsDirty reports whether any of flags is pending for e.
func (c *Chain) IsDirty(e Element, flags DirtyFlags) bool {
	id, err := c.lookup(e)
	if err != nil {
		return false
	}
	return c.node(id).dirty&flags != 0
}

// dequeueAll removes id from every dirty list.
func (c *Chain) dequeueAll(id NodeID) {
	for k := DirtyClass(0); k < numClasses; k++ {
		c.clearDirty(id, classMask[k], k)
	}
}

// processClass walks the dirty lists of k from the shallowest to the
// deepest depth. Nodes already stamped with this pass's dirty ID were
// updated through a parent and are only dequeued.
func (c *Chain) processClass(k DirtyClass, update func(NodeID, uint32) error) error {
	c.dirtyIDs[k]++
	dirtyID := c.dirtyIDs[k]
	l := &c.lists[k]
	for depth := l.minDepth; depth <= l.maxDepth; depth++ {
		id := l.heads[depth]
		for id != NoNode {
			n := c.node(id)
			if n.stamps[k] != dirtyID {
				n.stamps[k] = dirtyID
				c.stats.Processed[k]++
				if err := update(id, dirtyID); err != nil {
					return errors.Wrapf(err, "chain: %s pass", k)
				}
			}
			next := c.links[k].next[id]
			c.clearDirty(id, classMask[k], k)
			id = next
		}
	}
	l.shrink()
	return nil
}
