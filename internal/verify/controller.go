// Package verify reconciles extracted invoice fields with the authority's
// exact-match validation service. Because extraction is noisy, the controller
// tries a short, deterministic list of perturbed queries (rounding, date shifts,
// day/month transposition) until one is recognised or the budget runs out.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"comprobantes/internal/authority"
	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
	"comprobantes/pkg/services"
)

// DefaultMaxAttempts is the budget used when the caller passes a non-positive one.
const DefaultMaxAttempts = 3

// Controller drives validation attempts against an AuthorityService.
type Controller struct {
	authority       services.AuthorityService
	defaultAttempts int
	log             zerolog.Logger
}

// NewController creates a controller. defaultAttempts <= 0 means DefaultMaxAttempts.
func NewController(authority services.AuthorityService, defaultAttempts int) *Controller {
	if defaultAttempts <= 0 {
		defaultAttempts = DefaultMaxAttempts
	}
	return &Controller{
		authority:       authority,
		defaultAttempts: defaultAttempts,
		log:             logger.WithComponent("verify"),
	}
}

// BuildQuery turns extracted fields into the exact-match query. The document type
// is inferred from the series letter (F invoice, B receipt) when it was not printed.
func BuildQuery(fields models.ExtractedInvoiceFields) (models.ValidationQuery, error) {
	var missing []string

	if fields.IssuerTaxID == "" {
		missing = append(missing, "issuer_tax_id")
	}
	series, number := fields.Series(), fields.Number()
	if series == "" || number == "" {
		missing = append(missing, "series_number")
	}
	if !fields.HasIssueDate() {
		missing = append(missing, "issue_date")
	}
	if !fields.TotalAmount.Valid {
		missing = append(missing, "total_amount")
	}

	docType := fields.DocumentType
	if docType == models.DocumentTypeUnknown && series != "" {
		switch strings.ToUpper(series[:1]) {
		case "F":
			docType = models.DocumentTypeInvoice
		case "B":
			docType = models.DocumentTypeReceipt
		}
	}
	if docType.Code() == "" {
		missing = append(missing, "document_type")
	}

	if len(missing) > 0 {
		return models.ValidationQuery{}, &MissingFieldsError{Fields: missing}
	}

	return models.ValidationQuery{
		IssuerTaxID:      fields.IssuerTaxID,
		DocumentTypeCode: docType.Code(),
		Series:           strings.ToUpper(series),
		Number:           number,
		IssueDate:        fields.IssueDate,
		Amount:           fields.TotalAmount.Decimal,
	}, nil
}

// ValidateWithRetries sends candidates in order until the authority answers
// anything other than NOT_FOUND or maxAttempts queries have been sent.
// maxAttempts <= 0 uses the controller default; AllCandidates tries everything.
//
// Exhausting the budget is not an error: the result carries NOT_FOUND. A credential
// failure is returned as is so callers can stop the batch; other call failures end
// this document with the attempts made so far.
func (c *Controller) ValidateWithRetries(ctx context.Context, fields models.ExtractedInvoiceFields, maxAttempts int) (*models.RetryResult, error) {
	const op = "ValidateWithRetries"

	query, err := BuildQuery(fields)
	if err != nil {
		return nil, err
	}

	budget := maxAttempts
	if budget <= 0 {
		budget = c.defaultAttempts
	}

	candidates := Candidates(query)
	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	result := &models.RetryResult{Outcome: models.ValidationOutcome{Status: models.StatusNotFound}}
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}

		outcome, err := c.authority.Validate(ctx, candidate.Query)
		if errors.Is(err, authority.ErrNotFound) {
			outcome, err = models.ValidationOutcome{Status: models.StatusNotFound}, nil
		}
		if err != nil {
			c.log.Warn().
				Err(err).
				Int("attempt", i+1).
				Str("perturbation", candidate.Perturbation).
				Msg("Validation attempt failed")
			return result, fmt.Errorf("%s: attempt %d: %w", op, i+1, err)
		}

		result.AttemptsUsed = i + 1
		result.Attempts = append(result.Attempts, models.RetryAttempt{
			SequenceNumber: i + 1,
			Perturbation:   candidate.Perturbation,
			Query:          candidate.Query,
			Outcome:        outcome,
		})

		c.log.Debug().
			Int("attempt", i+1).
			Str("perturbation", candidate.Perturbation).
			Str("status", string(outcome.Status)).
			Msg("Validation attempt")

		if outcome.Status != models.StatusNotFound {
			result.Outcome = outcome
			result.Perturbation = candidate.Perturbation
			return result, nil
		}
		result.Outcome = outcome
	}

	c.log.Info().
		Int("attempts", result.AttemptsUsed).
		Str("series_number", fields.DocumentSeriesNumber).
		Msg("No candidate recognised by the authority")
	return result, nil
}
