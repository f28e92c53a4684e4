// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halgfx implements gfx.Backend on top of the gogpu/wgpu HAL.
//
// Vertex and index buffers map one to one onto HAL buffers. The shader
// info tables live in read-only storage buffers indexed by the page and
// slot bytes packed into each vertex. Fences are timeline values backed by
// queue submission indices: a fence inserted during a frame passes once
// the submission made by EndFrame completes.
//
// Stencil clip masks use two built-in pipelines that increment and
// decrement the stencil buffer. Custom materials are registered as
// pipelines created against [Backend.PipelineLayout] and [VertexLayout].
package halgfx
