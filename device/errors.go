// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMeshTooLarge is returned when a mesh exceeds the per-page vertex
	// ceiling imposed by 16-bit indices.
	ErrMeshTooLarge = errors.New("device: mesh exceeds page vertex limit")

	// ErrEmptyMesh is returned for allocations with no vertices or indices.
	ErrEmptyMesh = errors.New("device: mesh must have vertices and indices")

	// ErrHandleFreed is returned when a freed MeshHandle is used.
	ErrHandleFreed = errors.New("device: mesh handle already freed")

	// ErrForeignHandle is returned when a MeshHandle from another device
	// is passed in.
	ErrForeignHandle = errors.New("device: mesh handle belongs to another device")

	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("device: device disposed")
)

// ImmediateError reports a failure of an immediate-mode callback during
// EvaluateChain. The chain was flushed up to the failing command and all
// pushed state was unwound before it was returned.
type ImmediateError struct {
	// Command is the immediate command whose callback failed.
	Command *Command
	// Panicked is set when the callback panicked rather than returning an
	// error.
	Panicked bool
	Err      error
}

func (e *ImmediateError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("device: immediate callback panicked: %v", e.Err)
	}
	return fmt.Sprintf("device: immediate callback failed: %v", e.Err)
}

func (e *ImmediateError) Unwrap() error { return e.Err }
