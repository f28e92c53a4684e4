// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device implements the UIR render device: GPU buffer pages with
// sub-allocation, the mesh lifecycle, fence-gated deferred frees and the
// batching evaluator that turns a command chain into DrawRanges calls.
//
// # Frames and fences
//
// The device keeps a ring of [FramesInFlight] slots. Frees and copy-backs
// issued during frame F land in slot F mod FramesInFlight. EvaluateChain
// stamps a fence into the current slot; AdvanceFrame waits on the fence of
// the slot it is about to reuse before draining it. A range freed in frame
// F therefore cannot be handed out again before the GPU has finished every
// frame up to F.
//
// # Updates
//
// Meshes drawn in an earlier frame may still be read by the GPU. Update
// never writes into such an allocation. It places the new data in a
// short-lived allocation of the same page and schedules a copy-back into
// the permanent allocation once that allocation is provably idle.
//
// A Device is not safe for concurrent use. Call every method from the
// render thread.
package device
