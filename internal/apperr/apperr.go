// Package apperr provides the typed errors surfaced by ingestion and search.
//
// Errors carry a Kind so callers can tell "cannot fetch" apart from "fetched but
// garbage" with errors.Is, regardless of how deeply the error was wrapped.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindSourceUnreadable      Kind = "source_unreadable"
	KindMalformedSource       Kind = "malformed_source"
	KindSuspiciousEmptyResult Kind = "suspicious_empty_result"
	KindIndexIntegrityFailure Kind = "index_integrity_failure"
	KindIndexUnavailable      Kind = "index_unavailable"
)

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrSourceUnreadable      = &Error{Kind: KindSourceUnreadable}
	ErrMalformedSource       = &Error{Kind: KindMalformedSource}
	ErrSuspiciousEmptyResult = &Error{Kind: KindSuspiciousEmptyResult}
	ErrIndexIntegrityFailure = &Error{Kind: KindIndexIntegrityFailure}
	ErrIndexUnavailable      = &Error{Kind: KindIndexUnavailable}
)

// Error is a classified error.
type Error struct {
	Kind Kind
	// Op is the operation that failed (e.g. "read file", "parse header").
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// SourceUnreadable reports that the origin could not be opened or fetched.
func SourceUnreadable(op string, err error) *Error {
	return New(KindSourceUnreadable, op, err)
}

// MalformedSource reports a structural validation failure of the source.
func MalformedSource(op string, err error) *Error {
	return New(KindMalformedSource, op, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
