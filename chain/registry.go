package chain

import "sync"

// Registry maps small integer handles to live chains so that hosts can
// refer to a chain without holding a pointer. A chain joins the registry
// named in its Config and leaves it on Close. The zero value is ready to
// use.
type Registry struct {
	mu    sync.Mutex
	slots []*Chain
	free  []int
}

// Register stores c and returns its handle. Handles of unregistered
// chains are reused.
func (r *Registry) Register(c *Chain) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.free); n > 0 {
		h := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[h] = c
		return h
	}
	r.slots = append(r.slots, c)
	return len(r.slots) - 1
}

// Lookup returns the chain of handle h, or nil.
func (r *Registry) Lookup(h int) *Chain {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h < 0 || h >= len(r.slots) {
		return nil
	}
	return r.slots[h]
}

// Unregister releases handle h.
func (r *Registry) Unregister(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h < 0 || h >= len(r.slots) || r.slots[h] == nil {
		return
	}
	r.slots[h] = nil
	r.free = append(r.free, h)
}

// Len returns the number of registered chains.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots) - len(r.free)
}
