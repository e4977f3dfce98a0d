// Package service implements the reconciliation and classification
// pipeline: classify, detect recurring charges, detect internal transfers,
// reconcile imported transactions against manual expenses.
package service

import "errors"

// Sentinel errors. The HTTP layer maps these to response codes; everything
// else is an internal failure surfaced generically.
var (
	// ErrValidation marks malformed input rejected before any stage ran.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound marks lookups of ids that do not exist or belong to
	// another user. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks operations rejected by current state, e.g. a
	// reconciliation side that is already paired.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks mutations of read-only system rows.
	ErrForbidden = errors.New("forbidden")
)
