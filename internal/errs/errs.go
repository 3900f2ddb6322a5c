// Package errs defines the error categories shared by all archive packages.
//
// Typed errors elsewhere in the module match one of these categories through
// their Is method, so callers can separate bad arguments from bad data:
//
//	if errors.Is(err, errs.ErrConsistency) { ... }
package errs

import "errors"

var (
	// ErrValidation marks bad caller input: wrong file extension, missing
	// mandatory field, unknown format code, non-monotonic write, a sample
	// type that cannot be stored losslessly.
	ErrValidation = errors.New("validation error")

	// ErrConsistency marks a violated structural invariant in stored data.
	ErrConsistency = errors.New("data consistency error")

	// ErrUnavailable marks an optional capability that is not available in
	// this build or configuration.
	ErrUnavailable = errors.New("capability unavailable")
)
