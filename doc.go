// Package uir is a retained-mode 2D renderer core.
//
// # Overview
//
// A UI toolkit keeps an element tree; uir keeps, per element, the GPU
// geometry and the commands that draw it. Edits to the tree are reported as
// dirty flags and the next frame re-derives only what changed: transforms,
// clips and opacity through shared shader info tables, geometry through
// per-element meshes allocated in pooled vertex and index pages.
//
// # Quick Start
//
//	backend, _ := halgfx.New(device, queue, halgfx.Options{Target: view, Width: w, Height: h})
//	r, _ := uir.New(backend)
//	defer r.Close()
//
//	root := visual.New(gfx.Rect{W: 800, H: 600}, visual.Box{})
//	_ = r.SetRoot(root)
//
//	for running {
//	    // mutate root and its children
//	    if err := r.Frame(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Architecture
//
// The module is organized into:
//   - gfx: the graphics API seam, vertex layout and shared types
//   - gfx/halgfx: the seam on top of gogpu/wgpu HAL devices
//   - gfx/recorder: a CPU backend that records calls, for tests and tools
//   - device: geometry pages, mesh handles, command evaluation, statistics
//   - shaderinfo: slot allocation in the shared shader info tables
//   - tess: tessellation of rects, borders, paths, nine-slices and glyphs
//   - chain: dirty tracking and command lists for one element tree
//   - visual: a concrete element tree
//
// # Coordinate System
//
// Origin at top-left, X right, Y down, units in target pixels.
package uir

// Version is the current version of the module.
const Version = "0.1.0"
