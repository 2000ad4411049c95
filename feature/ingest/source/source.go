// Package source provides the two ingestion collaborators: the live vendor
// feed and the bulk export archive.
//
// Both are exposed through the same paging contract so the orchestrator can
// drive either without caring which it is. Sources are treated as untrusted
// and unstable: every fetch failure is classified Transient or Permanent, and
// only Transient failures are retried upstream.
package source

import (
	"context"
	"errors"
	"fmt"

	"vitals-manager/feature/ingest/record"
)

// Page is one fetched slice of raw items plus the cursor to the next slice.
type Page struct {
	// Items are the raw items of this page, already tagged with their
	// canonical dataset name.
	Items []record.Raw

	// Cursor addresses the next page. Meaningless when Done.
	Cursor string

	// Done marks the final page of the run.
	Done bool
}

// Source is a paginated supplier of raw items for one provenance.
type Source interface {
	// Name identifies the provenance records from this source carry.
	Name() record.Source

	// Begin prepares a run against the persisted checkpoint. It returns the
	// opening cursor, the checkpoint value the writer should persist when the
	// run commits, and skip=true when the checkpoint proves there is nothing
	// new to fetch (an already-applied archive, an up-to-date feed window).
	Begin(ctx context.Context, checkpoint string) (cursor, nextCheckpoint string, skip bool, err error)

	// FetchPage pulls the page addressed by cursor. Failures must be
	// classified through Transient or Permanent.
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	// ErrTransient failures (network flaps, timeouts, throttling, 5xx) are
	// retried with bounded backoff.
	ErrTransient FetchErrorKind = "transient"
	// ErrPermanent failures (bad credentials, malformed archive) end the run
	// without touching checkpoint or store.
	ErrPermanent FetchErrorKind = "permanent"
)

// FetchError wraps a source failure with its retry classification.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable fetch failure.
func Transient(err error) error {
	return &FetchError{Kind: ErrTransient, Err: err}
}

// Permanent wraps err as a non-retryable fetch failure.
func Permanent(err error) error {
	return &FetchError{Kind: ErrPermanent, Err: err}
}

// IsTransient reports whether err is a retryable fetch failure. Unclassified
// errors are treated as permanent.
func IsTransient(err error) bool {
	var ferr *FetchError
	return errors.As(err, &ferr) && ferr.Kind == ErrTransient
}
