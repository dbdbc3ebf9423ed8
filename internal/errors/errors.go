// Package errors provides error handling for p2g.
//
// It re-exports github.com/cockroachdb/errors and defines the markers used to
// classify failures during a sync pass:
//
//	ErrUpstreamTransient  retried by the provider client, never seen by the engine
//	ErrUpstreamFatal      entity-scoped, the entity is skipped for this pass
//	ErrSinkFatal          run-scoped, delivery stops and the pass fails
//	ErrStateCorrupt       persisted state unreadable, treated as empty
//
// Mark an error with errors.Mark(err, ErrSinkFatal) and test it with errors.Is.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark

	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Failure classes of a sync pass.
var (
	ErrUpstreamTransient = New("upstream transient failure")
	ErrUpstreamFatal     = New("upstream fatal failure")
	ErrSinkFatal         = New("sink fatal failure")
	ErrStateCorrupt      = New("persisted state corrupt")
)

// IsUpstreamFatal reports whether err is marked as a non-retryable provider failure.
func IsUpstreamFatal(err error) bool {
	return err != nil && Is(err, ErrUpstreamFatal)
}

// IsSinkFatal reports whether err must abort the remaining delivery of a pass.
func IsSinkFatal(err error) bool {
	return err != nil && Is(err, ErrSinkFatal)
}

// IsStateCorrupt reports whether err came from unreadable persisted state.
func IsStateCorrupt(err error) bool {
	return err != nil && Is(err, ErrStateCorrupt)
}

// UpstreamFatal marks err as an entity-scoped provider failure.
func UpstreamFatal(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrUpstreamFatal)
}

// SinkFatal marks err as a run-scoped delivery failure.
func SinkFatal(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrSinkFatal)
}

// StateCorrupt marks err as a persisted-state decoding failure.
func StateCorrupt(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrStateCorrupt)
}
