package authority

import (
	"errors"
	"fmt"
)

// Common authority errors
var (
	// ErrCredential is returned when the credential exchange fails or the authority
	// rejects the bearer token. It is fatal for a whole batch.
	ErrCredential = errors.New("authority credential failure")

	// ErrValidationCall is returned when a validation call fails for transport or
	// service reasons. It affects only the current document.
	ErrValidationCall = errors.New("authority validation call failed")

	// ErrNotFound is returned when the authority answers HTTP 404 for a query.
	ErrNotFound = errors.New("document not found at authority")

	// ErrMalformedResponse is returned when the response cannot be decoded or
	// carries a status code outside the documented set.
	ErrMalformedResponse = errors.New("malformed authority response")

	// ErrInvalidConfiguration is returned when the client is missing required settings.
	ErrInvalidConfiguration = errors.New("invalid authority configuration")

	// ErrRegistryLookup is returned when the taxpayer registry cannot be queried.
	ErrRegistryLookup = errors.New("taxpayer registry lookup failed")
)

// AuthorityError wraps errors with additional context about authority failures.
type AuthorityError struct {
	// Op is the operation that failed (e.g., "AcquireCredential", "Validate").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// StatusCode is the HTTP status returned by the authority (if any).
	StatusCode int
}

// Error implements the error interface.
func (e *AuthorityError) Error() string {
	switch {
	case e.Details != "" && e.StatusCode != 0:
		return fmt.Sprintf("authority: %s failed (HTTP %d): %s: %v", e.Op, e.StatusCode, e.Details, e.Err)
	case e.Details != "":
		return fmt.Sprintf("authority: %s failed: %s: %v", e.Op, e.Details, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("authority: %s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authority: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *AuthorityError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *AuthorityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapAuthorityError wraps an error as an AuthorityError if it isn't already one.
func WrapAuthorityError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var authErr *AuthorityError
	if errors.As(err, &authErr) {
		return err // Already wrapped
	}

	return &AuthorityError{Op: op, Err: err, Details: details}
}

// IsFatal reports whether err must stop a whole batch rather than a single document.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCredential)
}
