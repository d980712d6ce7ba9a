package ocr

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common OCR processing errors
var (
	// ErrDocumentTooLarge is returned when the input exceeds the synchronous size limit (20MB).
	ErrDocumentTooLarge = errors.New("document size exceeds the maximum limit (20MB)")

	// ErrUnsupportedFormat is returned for inputs that are neither a PDF/TIFF nor an image.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrOCRFailed is returned when the OCR engine fails to process the document.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no Google Cloud credentials can be found.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidCredentials is returned when the engine rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid Google Cloud credentials or insufficient permissions")

	// ErrQuotaExceeded is returned when the engine's quota is exhausted.
	ErrQuotaExceeded = errors.New("OCR quota exceeded")

	// ErrProcessorNotFound is returned when the configured Document AI processor does not exist.
	ErrProcessorNotFound = errors.New("OCR processor not found")

	// ErrTooManyPages is returned when a PDF has more pages than synchronous processing allows.
	ErrTooManyPages = errors.New("document has too many pages (maximum 5 pages for synchronous processing)")

	// ErrEmptyDocument is returned when the document contains no readable text.
	ErrEmptyDocument = errors.New("document contains no readable text")

	// ErrTimeout is returned when the engine did not answer before the deadline.
	ErrTimeout = errors.New("OCR processing timed out")

	// ErrContextCanceled is returned when the context is canceled during processing.
	ErrContextCanceled = errors.New("OCR processing was canceled")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "ProcessDocument", "NewDocumentAIOCRService").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}

// classifyEngineError maps a Google API error onto the package sentinels by its gRPC code.
func classifyEngineError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return WrapOCRError(op, ErrContextCanceled, "processing was canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapOCRError(op, ErrTimeout, "processing deadline exceeded")
	}

	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapOCRError(op, ErrInvalidCredentials, st.Message())
	case codes.ResourceExhausted:
		return WrapOCRError(op, ErrQuotaExceeded, st.Message())
	case codes.NotFound:
		return WrapOCRError(op, ErrProcessorNotFound, st.Message())
	case codes.InvalidArgument:
		return WrapOCRError(op, ErrUnsupportedFormat, st.Message())
	case codes.DeadlineExceeded:
		return WrapOCRError(op, ErrTimeout, st.Message())
	case codes.Canceled:
		return WrapOCRError(op, ErrContextCanceled, st.Message())
	default:
		return WrapOCRError(op, ErrOCRFailed, err.Error())
	}
}
