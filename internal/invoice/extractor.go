package invoice

import (
	"strings"

	"github.com/rs/zerolog"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	// LineThreshold is the vertical gap in pixels that separates two lines.
	LineThreshold float64
	Reconciler    ReconcilerConfig
}

// Extractor turns OCR output into structured invoice fields.
type Extractor struct {
	lineThreshold float64
	reconciler    *CoherenceReconciler
	log           zerolog.Logger
}

// NewExtractor creates an Extractor; zero config values fall back to defaults.
func NewExtractor(config ExtractorConfig) *Extractor {
	if config.LineThreshold <= 0 {
		config.LineThreshold = DefaultLineThreshold
	}
	return &Extractor{
		lineThreshold: config.LineThreshold,
		reconciler:    NewCoherenceReconciler(config.Reconciler),
		log:           logger.WithComponent("extractor"),
	}
}

// Extract segments the OCR words into lines (or splits the plain text when the
// engine gave no word boxes) and extracts the fields. Missing information leaves
// fields unset; extraction itself never fails.
func (e *Extractor) Extract(result models.OCRResult) models.ExtractedInvoiceFields {
	var lines []string
	if len(result.Words) > 0 {
		lines = SegmentLines(result.Words, e.lineThreshold)
	} else {
		lines = SplitText(result.Text)
	}
	fullText := result.Text
	if fullText == "" {
		fullText = strings.Join(lines, "\n")
	}
	return e.extract(lines, fullText)
}

// ExtractLines extracts fields from already segmented lines.
func (e *Extractor) ExtractLines(lines []string) models.ExtractedInvoiceFields {
	return e.extract(lines, strings.Join(lines, "\n"))
}

// ExtractText extracts fields from plain text, one line per text line.
func (e *Extractor) ExtractText(text string) models.ExtractedInvoiceFields {
	return e.extract(SplitText(text), text)
}

func (e *Extractor) extract(lines []string, fullText string) models.ExtractedInvoiceFields {
	fields := ScanLines(lines)
	reconciled := e.reconciler.Reconcile(&fields, fullText)

	e.log.Debug().
		Int("lines", len(lines)).
		Str("issuer_tax_id", fields.IssuerTaxID).
		Str("series_number", fields.DocumentSeriesNumber).
		Str("document_type", string(fields.DocumentType)).
		Bool("has_issue_date", fields.HasIssueDate()).
		Bool("has_total", fields.TotalAmount.Valid).
		Strs("derived", reconciled.Derived).
		Bool("advisory", fields.AmountsAdvisory).
		Msg("Extracted invoice fields")

	return fields
}

// MissingFields lists the fields required for authority validation that are unset.
func MissingFields(fields models.ExtractedInvoiceFields) []string {
	var missing []string
	if fields.IssuerTaxID == "" {
		missing = append(missing, "issuer_tax_id")
	}
	if fields.DocumentSeriesNumber == "" || fields.Number() == "" {
		missing = append(missing, "series_number")
	}
	if !fields.HasIssueDate() {
		missing = append(missing, "issue_date")
	}
	if !fields.TotalAmount.Valid {
		missing = append(missing, "total_amount")
	}
	return missing
}
