package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller mistakes and data-integrity guards. These are
// surfaced, never retried.
var (
	// ErrPrereqNotMet means a stage was requested before its prerequisite,
	// e.g. summarizing a paper that has no extracted text yet.
	ErrPrereqNotMet = errors.New("prerequisite stage not reached")

	// ErrInvalidTransition means a stage flag is already set and no force
	// flag was passed.
	ErrInvalidTransition = errors.New("stage already reached")

	// ErrModelVersionMismatch means a similarity query was attempted with
	// an embedding model incompatible with the persisted index.
	ErrModelVersionMismatch = errors.New("embedding model version mismatch")

	// ErrPaperNotFound means the requested paper id is unknown to the store.
	ErrPaperNotFound = errors.New("paper not found")
)

// TransientError wraps a failed external call that is worth a bounded
// retry before the item is marked failed for this run.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable, keeping the operation name for logs.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
