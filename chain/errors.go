package chain

import "github.com/cockroachdb/errors"

var (
	// ErrRegistrationBlocked is returned when the element tree is mutated
	// or marked dirty while the chain is repainting or rendering.
	ErrRegistrationBlocked = errors.New("chain: dirty registration is blocked")

	// ErrNotInChain is returned for elements that were never added or have
	// been removed.
	ErrNotInChain = errors.New("chain: element is not part of the chain")

	// ErrAlreadyInChain is returned when an element is added twice.
	ErrAlreadyInChain = errors.New("chain: element already added")

	// ErrSlotsExhausted is returned when a shader info table is full.
	ErrSlotsExhausted = errors.New("chain: shader info slots exhausted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chain: closed")
)
