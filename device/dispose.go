// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"sync"

	"github.com/gogpu/uir/gfx"
)

type disposedPage struct {
	backend gfx.Backend
	page    *Page
	fence   uint64
}

// disposeQueue holds pages of disposed devices until the GPU is done with
// them. It is shared by all devices of the process.
var disposeQueue struct {
	mu    sync.Mutex
	pages []disposedPage
}

// Dispose releases the device. Pages still referenced by in-flight frames
// are queued and released by DrainDisposed once their fence passes; with
// SynchronousShutdown the device waits for the GPU and releases them now.
//
// Handles of a disposed device must not be used again.
func (d *Device) Dispose() error {
	if d.disposed {
		return nil
	}
	d.disposed = true

	pages := d.pages
	for _, r := range d.retired {
		pages = append(pages, r.page)
	}
	d.pages = nil
	d.retired = nil
	d.updates = nil
	for i := range d.slots {
		d.slots[i] = frameSlot{}
	}

	slogger().Info("device: disposed", "id", d.id, "pages", len(pages), "sync", d.cfg.SynchronousShutdown)
	if d.cfg.SynchronousShutdown || d.lastFence == 0 || d.backend.FencePassed(d.lastFence) {
		var err error
		if d.lastFence != 0 && !d.backend.FencePassed(d.lastFence) {
			err = d.backend.WaitFence(d.lastFence)
		}
		for _, p := range pages {
			p.destroy(d.backend)
		}
		return err
	}

	disposeQueue.mu.Lock()
	defer disposeQueue.mu.Unlock()
	for _, p := range pages {
		disposeQueue.pages = append(disposeQueue.pages, disposedPage{backend: d.backend, page: p, fence: d.lastFence})
	}
	return nil
}

// DrainDisposed releases queued pages whose fence has passed and returns
// how many remain queued.
func DrainDisposed() int {
	disposeQueue.mu.Lock()
	defer disposeQueue.mu.Unlock()
	n := 0
	for _, e := range disposeQueue.pages {
		if e.backend.FencePassed(e.fence) {
			e.page.destroy(e.backend)
			continue
		}
		disposeQueue.pages[n] = e
		n++
	}
	clear(disposeQueue.pages[n:])
	disposeQueue.pages = disposeQueue.pages[:n]
	return n
}

// PendingDisposed returns the number of queued pages.
func PendingDisposed() int {
	disposeQueue.mu.Lock()
	defer disposeQueue.mu.Unlock()
	return len(disposeQueue.pages)
}
