package services

import (
	"context"

	"comprobantes/pkg/models"
)

// AuthorityService performs a single exact-match validation call against the tax authority.
type AuthorityService interface {
	// Validate sends one query and maps the answer to a ValidationOutcome.
	Validate(ctx context.Context, query models.ValidationQuery) (models.ValidationOutcome, error)
}

// CounterpartyLookup resolves a tax id against the taxpayer registry.
// It is only used to enrich reports, never by the retry controller.
type CounterpartyLookup interface {
	LookupCounterparty(ctx context.Context, taxID string) (*models.CounterpartyRecord, error)
}

// DocumentStore supplies the worklist and accepts per-document results.
type DocumentStore interface {
	// ListPending returns documents that still need validation, at most limit (0 = no limit).
	ListPending(ctx context.Context, limit int) ([]models.Document, error)

	// SaveResult stores the updated fields and the validation outcome of one document.
	SaveResult(ctx context.Context, record models.ValidationRecord) error
}

// ReportingSink mirrors validation results for display (spreadsheet, workbook, ...).
type ReportingSink interface {
	Report(ctx context.Context, record models.ValidationRecord) error

	// Flush writes anything buffered. Called once at the end of a batch.
	Flush(ctx context.Context) error
}
