package invoice

import (
	"errors"
	"fmt"
)

// Common completion errors
var (
	// ErrCompletionFailed is returned when every completion attempt failed.
	ErrCompletionFailed = errors.New("field completion failed")

	// ErrInvalidCompletion is returned when the model's answer does not match the expected schema.
	ErrInvalidCompletion = errors.New("completion response does not match schema")

	// ErrNoText is returned when there is no document text to complete from.
	ErrNoText = errors.New("no document text")
)

// CompletionError wraps errors with additional context about completion failures.
type CompletionError struct {
	// Op is the operation that failed (e.g., "Complete", "requestCompletion").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// Model is the model that was asked (if available).
	Model string
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("invoice: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	if e.Model != "" {
		return fmt.Sprintf("invoice: %s failed (model: %s): %v", e.Op, e.Model, e.Err)
	}
	return fmt.Sprintf("invoice: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CompletionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *CompletionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapCompletionError wraps an error as a CompletionError if it isn't already one.
func WrapCompletionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var completionErr *CompletionError
	if errors.As(err, &completionErr) {
		return err // Already wrapped
	}

	return &CompletionError{Op: op, Err: err, Details: details}
}
