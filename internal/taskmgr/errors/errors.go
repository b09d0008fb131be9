package errors

import (
	"fmt"
)

var (
	// ErrValidation marks a missing or invalid required field.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrAuthFailure is the expected outcome of a credential mismatch.
	ErrAuthFailure = fmt.Errorf("invalid credentials")
	// ErrStoreUnavailable wraps transport or database failures.
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrNotFound         = fmt.Errorf("not found")
	// ErrUnauthorized is returned when no valid session backs a request.
	ErrUnauthorized = fmt.Errorf("unauthorized")
)
