// Package apperr holds the sentinel errors shared across Lattice packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidReference is returned when an operation names an id that does
	// not resolve. Store mutations on notes and links swallow it; only note
	// creation against an unknown space reports it.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrExternalService wraps failures of the suggestion provider, the
	// explanation call, and import sources.
	ErrExternalService = errors.New("external service failure")

	// ErrParse marks malformed block-document content.
	ErrParse = errors.New("parse failure")
)
