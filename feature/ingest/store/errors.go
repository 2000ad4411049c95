package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// CommitErrorKind classifies commit failures.
type CommitErrorKind string

const (
	// ErrStorageUnavailable covers connection loss, timeouts and anything
	// else that makes the store unreachable mid-commit.
	ErrStorageUnavailable CommitErrorKind = "storage_unavailable"
	// ErrIntegrityViolation covers constraint failures inside a chunk.
	ErrIntegrityViolation CommitErrorKind = "integrity_violation"
)

// CommitError is fatal to the current batch. The failing chunk has been
// rolled back; the checkpoint reflects only fully-committed chunks.
type CommitError struct {
	Kind CommitErrorKind
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed (%s): %v", e.Kind, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// classifyCommitError wraps a chunk failure in a CommitError.
func classifyCommitError(err error) error {
	kind := ErrStorageUnavailable
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(strings.ToLower(err.Error()), "constraint") {
		kind = ErrIntegrityViolation
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = ErrStorageUnavailable
	}
	return &CommitError{Kind: kind, Err: err}
}
