// Package batch drives the validation of a worklist of documents: OCR when only
// an image is available, field extraction, optional completion, validation with
// retries, registry enrichment, then storage and reporting.
//
// Documents are processed one at a time with a fixed pause between them. A
// credential failure stops the run; every other per-document problem is recorded
// and the run moves on.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"comprobantes/internal/authority"
	"comprobantes/internal/invoice"
	"comprobantes/internal/logger"
	"comprobantes/internal/ocr"
	"comprobantes/internal/verify"
	"comprobantes/pkg/models"
	"comprobantes/pkg/services"
)

// Validator is the retry controller as seen by the orchestrator.
type Validator interface {
	ValidateWithRetries(ctx context.Context, fields models.ExtractedInvoiceFields, maxAttempts int) (*models.RetryResult, error)
}

// Config controls pacing and limits.
type Config struct {
	// Pause is waited after each document before the next one starts. Zero disables pacing.
	Pause time.Duration
	// Limit caps the worklist size (0 = no limit).
	Limit int
	// MaxAttempts is passed to the controller (0 = controller default).
	MaxAttempts int
}

// Dependencies are the collaborators of an Orchestrator. Store, Extractor and
// Validator are required; the rest may be nil.
type Dependencies struct {
	Store          services.DocumentStore
	OCR            ocr.OCRService
	Extractor      *invoice.Extractor
	Completer      invoice.FieldCompleter
	Validator      Validator
	Counterparties services.CounterpartyLookup
	Sinks          []services.ReportingSink
}

// Summary counts the outcome of one run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Valid     int           `json:"valid"`
	NotFound  int           `json:"not_found"`
	Annulled  int           `json:"annulled"`
	Rejected  int           `json:"rejected"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Aborted   bool          `json:"aborted"`
	Duration  time.Duration `json:"duration"`
}

func (s *Summary) count(status string) {
	s.Processed++
	switch status {
	case models.RecordValid:
		s.Valid++
	case models.RecordNotFound:
		s.NotFound++
	case models.RecordAnnulled:
		s.Annulled++
	case models.RecordRejected:
		s.Rejected++
	case models.RecordSkipped:
		s.Skipped++
	default:
		s.Errors++
	}
}

// Orchestrator runs batches. It is not meant to run two batches at once.
type Orchestrator struct {
	deps     Dependencies
	config   Config
	now      func() time.Time
	newRunID func() string
	log      zerolog.Logger
}

// NewOrchestrator checks the required collaborators.
func NewOrchestrator(deps Dependencies, config Config) (*Orchestrator, error) {
	const op = "NewOrchestrator"

	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%s: %w: document store is required", op, ErrInvalidConfiguration)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%s: %w: extractor is required", op, ErrInvalidConfiguration)
	case deps.Validator == nil:
		return nil, fmt.Errorf("%s: %w: validator is required", op, ErrInvalidConfiguration)
	}

	return &Orchestrator{
		deps:     deps,
		config:   config,
		now:      time.Now,
		newRunID: uuid.NewString,
		log:      logger.WithComponent("batch"),
	}, nil
}

// Run processes the pending worklist once. On abort the summary covers the
// documents handled before the stop and the error is an *AbortError.
// Sinks are flushed in every case.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	const op = "Run"

	start := o.now()
	runID := o.newRunID()
	log := logger.WithRunID(o.log, runID)

	docs, err := o.deps.Store.ListPending(ctx, o.config.Limit)
	if err != nil {
		return nil, fmt.Errorf("%s: list pending documents: %w", op, err)
	}

	summary := &Summary{RunID: runID, Total: len(docs)}
	log.Info().Int("documents", len(docs)).Dur("pause", o.config.Pause).Msg("Starting batch run")

	defer func() {
		o.flushSinks(context.WithoutCancel(ctx), log)
		summary.Duration = o.now().Sub(start)
		log.Info().
			Int("total", summary.Total).
			Int("processed", summary.Processed).
			Int("valid", summary.Valid).
			Int("not_found", summary.NotFound).
			Int("annulled", summary.Annulled).
			Int("rejected", summary.Rejected).
			Int("skipped", summary.Skipped).
			Int("errors", summary.Errors).
			Bool("aborted", summary.Aborted).
			Dur("duration", summary.Duration).
			Msg("Batch run finished")
	}()

	for i, doc := range docs {
		if i > 0 {
			err = o.pause(ctx)
		} else {
			err = ctx.Err()
		}
		if err != nil {
			summary.Aborted = true
			return summary, &AbortError{RunID: runID, DocumentID: doc.ID, Cause: err}
		}

		record, err := o.processDocument(ctx, runID, doc)
		if err != nil {
			summary.Aborted = true
			log.Error().Err(err).Str("document_id", doc.ID).Msg("Fatal error, stopping batch")
			return summary, &AbortError{RunID: runID, DocumentID: doc.ID, Cause: err}
		}

		o.persist(ctx, &record)
		summary.count(record.Status)
	}

	return summary, nil
}

// pause waits the configured gap, returning early when ctx is done.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.config.Pause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.config.Pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// processDocument returns a record for every per-document outcome and an error
// only when the whole run must stop.
func (o *Orchestrator) processDocument(ctx context.Context, runID string, doc models.Document) (models.ValidationRecord, error) {
	log := logger.WithDocumentID(logger.WithRunID(o.log, runID), doc.ID)

	record := models.ValidationRecord{RunID: runID, DocumentID: doc.ID}
	fail := func(status string, err error) (models.ValidationRecord, error) {
		record.Status = status
		record.Error = err.Error()
		record.VerifiedAt = o.now().UTC()
		return record, nil
	}

	fields, text, err := o.fieldsFor(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return record, ctx.Err()
		}
		log.Warn().Err(err).Msg("Could not obtain fields")
		return fail(models.RecordError, err)
	}

	if _, err := verify.BuildQuery(fields); err != nil && o.deps.Completer != nil && text != "" {
		completed, filled, cerr := o.deps.Completer.Complete(ctx, fields, text)
		switch {
		case cerr != nil:
			log.Warn().Err(cerr).Msg("Field completion failed, continuing with extracted fields")
		case len(filled) > 0:
			log.Info().Strs("filled", filled).Msg("Completed missing fields")
			fields = completed
		}
	}
	record.Fields = fields

	result, err := o.deps.Validator.ValidateWithRetries(ctx, fields, o.config.MaxAttempts)
	if result != nil {
		record.AttemptCount = result.AttemptsUsed
		record.Attempts = result.Attempts
	}
	switch {
	case err == nil:
	case authority.IsFatal(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return record, err
	case errors.Is(err, verify.ErrInsufficientFields):
		log.Info().Err(err).Msg("Skipping document")
		return fail(models.RecordSkipped, err)
	default:
		log.Warn().Err(err).Msg("Validation failed")
		return fail(models.RecordError, err)
	}

	outcome := result.Outcome
	record.Outcome = &outcome
	record.Status = models.RecordStatusFor(outcome.Status)
	record.Perturbation = result.Perturbation
	record.VerifiedAt = o.now().UTC()

	if o.deps.Counterparties != nil && fields.IssuerTaxID != "" {
		cp, err := o.deps.Counterparties.LookupCounterparty(ctx, fields.IssuerTaxID)
		if err != nil {
			log.Warn().Err(err).Str("tax_id", fields.IssuerTaxID).Msg("Registry lookup failed")
		} else {
			record.Counterparty = cp
		}
	}

	log.Info().
		Str("status", record.Status).
		Int("attempts", record.AttemptCount).
		Str("perturbation", record.Perturbation).
		Msg("Document validated")
	return record, nil
}

// fieldsFor returns the document's fields and the text they came from.
// Non-empty pre-extracted fields win without an OCR call; otherwise the stored OCR
// result or a fresh OCR pass is used.
func (o *Orchestrator) fieldsFor(ctx context.Context, doc models.Document) (models.ExtractedInvoiceFields, string, error) {
	if doc.Fields != nil && !doc.Fields.IsEmpty() {
		return *doc.Fields, ocrText(doc.OCR), nil
	}

	result := doc.OCR
	if result == nil && len(doc.Image) > 0 && o.deps.OCR != nil {
		var err error
		result, err = o.deps.OCR.ProcessDocument(ctx, doc.Image, doc.MimeType)
		if err != nil {
			return models.ExtractedInvoiceFields{}, "", err
		}
	}
	if result == nil {
		return models.ExtractedInvoiceFields{}, "", ErrNoInput
	}
	return o.deps.Extractor.Extract(*result), ocrText(result), nil
}

func ocrText(result *models.OCRResult) string {
	if result == nil {
		return ""
	}
	if result.Text == "" && len(result.Words) > 0 {
		return strings.Join(invoice.SegmentLines(result.Words, invoice.DefaultLineThreshold), "\n")
	}
	return result.Text
}

// persist stores the record and mirrors it to every sink. A store failure turns the
// record into an error record; sink failures are only logged.
func (o *Orchestrator) persist(ctx context.Context, record *models.ValidationRecord) {
	log := logger.WithDocumentID(logger.WithRunID(o.log, record.RunID), record.DocumentID)

	if err := o.deps.Store.SaveResult(ctx, *record); err != nil {
		log.Error().Err(err).Msg("Failed to save validation result")
		record.Status = models.RecordError
		record.Error = fmt.Sprintf("save result: %v", err)
	}
	for _, sink := range o.deps.Sinks {
		if err := sink.Report(ctx, *record); err != nil {
			log.Warn().Err(err).Msg("Reporting sink failed")
		}
	}
}

func (o *Orchestrator) flushSinks(ctx context.Context, log zerolog.Logger) {
	for _, sink := range o.deps.Sinks {
		if err := sink.Flush(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush reporting sink")
		}
	}
}
