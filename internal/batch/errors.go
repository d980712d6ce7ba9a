package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchAborted is returned when a run stops before the end of its worklist.
	ErrBatchAborted = errors.New("batch aborted")

	// ErrNoInput is recorded for documents with neither OCR output, an image nor fields.
	ErrNoInput = errors.New("document has no OCR text, image or extracted fields")

	// ErrInvalidConfiguration is returned when required collaborators are missing.
	ErrInvalidConfiguration = errors.New("invalid batch configuration")
)

// AbortError reports where and why a run stopped. It matches ErrBatchAborted
// and unwraps to the cause, so authority.IsFatal still sees a credential failure.
type AbortError struct {
	RunID      string
	DocumentID string
	Cause      error
}

func (e *AbortError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("batch: run %s aborted at document %s: %v", e.RunID, e.DocumentID, e.Cause)
	}
	return fmt.Sprintf("batch: run %s aborted: %v", e.RunID, e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

func (e *AbortError) Is(target error) bool {
	return target == ErrBatchAborted
}
