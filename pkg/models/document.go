package models

import "time"

// Record statuses written by the batch orchestrator.
const (
	RecordValid    = "valid"
	RecordNotFound = "not_found"
	RecordAnnulled = "annulled"
	RecordRejected = "rejected"
	RecordSkipped  = "skipped"
	RecordError    = "error"
)

// Document is one worklist entry supplied by the document store.
type Document struct {
	ID       string
	OCR      *OCRResult
	Image    []byte
	MimeType string
	// Fields is set when extraction already happened upstream.
	Fields *ExtractedInvoiceFields
}

// ValidationRecord is the per-document result handed to the store and reporting sinks.
type ValidationRecord struct {
	RunID        string
	DocumentID   string
	Fields       ExtractedInvoiceFields
	Outcome      *ValidationOutcome
	Status       string
	AttemptCount int
	Perturbation string
	Attempts     []RetryAttempt
	VerifiedAt   time.Time
	Error        string
	Counterparty *CounterpartyRecord
}

// RecordStatusFor maps a final authority status to a record status.
func RecordStatusFor(status ValidationStatus) string {
	switch status {
	case StatusValid:
		return RecordValid
	case StatusAnnulled:
		return RecordAnnulled
	case StatusRejected:
		return RecordRejected
	default:
		return RecordNotFound
	}
}
