// Package gfx defines the seam between the UIR core and a graphics API.
//
// Everything the core needs from the GPU goes through [Backend]: buffer
// creation and upload, CPU fences, multi-range indexed draws, state binding
// and render-target redirection. The core never talks to a driver directly.
//
// Two implementations live in subpackages:
//
//   - recorder: a CPU backend that records every call and simulates GPU
//     latency on its fences. Used by tests and the demo.
//   - halgfx: a backend on top of gogpu/wgpu's HAL.
//
// The package also owns the shared value types that cross the seam: the
// 64-byte [Vertex] layout, [Rect], [DrawBufferRange] and opaque resource IDs.
package gfx
