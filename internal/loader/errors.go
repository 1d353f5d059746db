package loader

import (
	"errors"
	"fmt"

	"github.com/l1jgo/cubic/internal/store"
)

var (
	// ErrReadFailure wraps an I/O error from the store.
	ErrReadFailure = errors.New("read failure")
	// ErrCorruptData marks a stored document that could not be decoded or
	// belongs to another coordinate.
	ErrCorruptData = errors.New("corrupt data")
	// ErrGenerationFailure means the generator produced nothing. The object
	// is not available yet; callers may retry later.
	ErrGenerationFailure = errors.New("generation failure")
)

// ReentrantGenerationError is raised (as a panic) when a coordinate's
// generation is requested while a stage for that coordinate is already
// running. It is a generator bug.
type ReentrantGenerationError struct {
	Key store.Key
}

func (e *ReentrantGenerationError) Error() string {
	return fmt.Sprintf("reentrant generation of %v", e.Key)
}

// InvariantViolationError is raised (as a panic) when the loader is asked
// to do something that would break its table invariants.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return "loader invariant violated: " + e.Msg
}
