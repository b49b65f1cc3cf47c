package errors

import (
	"errors"
	"fmt"
)

// Error kinds shared by the identity store, the credential validator and the
// session registry.
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials") // unknown user or wrong password, never distinguished
	ErrUserNotFound       = errors.New("user not found")      // store-level only, never surfaced to the end user

	// Identity store errors
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrStoreUnavailable  = errors.New("identity store unavailable")

	// Session errors
	ErrSessionLimitReached = errors.New("maximum sessions for principal reached")

	// Configuration errors
	ErrInvalidRule   = errors.New("invalid authorization rule")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
