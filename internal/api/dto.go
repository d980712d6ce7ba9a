package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

// Fields is the wire form of models.ExtractedInvoiceFields. Unset values are omitted.
type Fields struct {
	IssuerTaxID            string           `json:"issuer_tax_id,omitempty"`
	BusinessName           string           `json:"business_name,omitempty"`
	BusinessAddress        string           `json:"business_address,omitempty"`
	SeriesNumber           string           `json:"series_number,omitempty"`
	DocumentType           string           `json:"document_type,omitempty"`
	DocumentTypeCode       string           `json:"document_type_code,omitempty"`
	IssueDate              string           `json:"issue_date,omitempty"` // YYYY-MM-DD
	Subtotal               *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount              *decimal.Decimal `json:"tax_amount,omitempty"`
	TaxRatePercent         *decimal.Decimal `json:"tax_rate_percent,omitempty"`
	TotalAmount            *decimal.Decimal `json:"total_amount,omitempty"`
	Currency               string           `json:"currency,omitempty"`
	CounterpartyTaxID      string           `json:"counterparty_tax_id,omitempty"`
	CounterpartyNationalID string           `json:"counterparty_national_id,omitempty"`
	TotalFromAnchor        bool             `json:"total_from_anchor,omitempty"`
	AmountsAdvisory        bool             `json:"amounts_advisory,omitempty"`
}

// NewFields converts extracted fields to their wire form.
func NewFields(f models.ExtractedInvoiceFields) Fields {
	out := Fields{
		IssuerTaxID:            f.IssuerTaxID,
		BusinessName:           f.BusinessName,
		BusinessAddress:        f.BusinessAddress,
		SeriesNumber:           f.DocumentSeriesNumber,
		DocumentType:           string(f.DocumentType),
		DocumentTypeCode:       f.DocumentType.Code(),
		Subtotal:               amountPtr(f.Subtotal),
		TaxAmount:              amountPtr(f.TaxAmount),
		TaxRatePercent:         amountPtr(f.TaxRatePercent),
		TotalAmount:            amountPtr(f.TotalAmount),
		Currency:               f.Currency,
		CounterpartyTaxID:      f.CounterpartyTaxID,
		CounterpartyNationalID: f.CounterpartyNationalID,
		TotalFromAnchor:        f.TotalFromAnchor,
		AmountsAdvisory:        f.AmountsAdvisory,
	}
	if f.HasIssueDate() {
		out.IssueDate = f.IssueDate.Format(time.DateOnly)
	}
	return out
}

func (f Fields) ToModel() (models.ExtractedInvoiceFields, error) {
	out := models.ExtractedInvoiceFields{
		IssuerTaxID:            f.IssuerTaxID,
		BusinessName:           f.BusinessName,
		BusinessAddress:        f.BusinessAddress,
		DocumentSeriesNumber:   f.SeriesNumber,
		DocumentType:           models.DocumentType(f.DocumentType),
		Subtotal:               nullAmount(f.Subtotal),
		TaxAmount:              nullAmount(f.TaxAmount),
		TaxRatePercent:         nullAmount(f.TaxRatePercent),
		TotalAmount:            nullAmount(f.TotalAmount),
		Currency:               f.Currency,
		CounterpartyTaxID:      f.CounterpartyTaxID,
		CounterpartyNationalID: f.CounterpartyNationalID,
		TotalFromAnchor:        f.TotalFromAnchor,
		AmountsAdvisory:        f.AmountsAdvisory,
	}
	switch out.DocumentType {
	case models.DocumentTypeUnknown, models.DocumentTypeInvoice, models.DocumentTypeReceipt,
		models.DocumentTypeCreditNote, models.DocumentTypeDebitNote:
	default:
		return out, fmt.Errorf("unknown document_type %q", f.DocumentType)
	}
	if f.IssueDate != "" {
		d, err := time.Parse(time.DateOnly, f.IssueDate)
		if err != nil {
			return out, fmt.Errorf("issue_date must be YYYY-MM-DD: %q", f.IssueDate)
		}
		out.IssueDate = d
	}
	for name, v := range map[string]*decimal.Decimal{
		"subtotal": f.Subtotal, "tax_amount": f.TaxAmount, "total_amount": f.TotalAmount,
	} {
		if v != nil && v.IsNegative() {
			return out, fmt.Errorf("%s must not be negative", name)
		}
	}
	return out, nil
}

func amountPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullAmount(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return models.Amount(*d)
}

type extractRequest struct {
	Text  string           `json:"text,omitempty"`
	Lines []string         `json:"lines,omitempty"`
	Words []models.OCRWord `json:"words,omitempty"`
}

type extractResponse struct {
	Fields  Fields   `json:"fields"`
	Missing []string `json:"missing,omitempty"`
}

type validateRequest struct {
	Fields      Fields `json:"fields"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

type attemptResponse struct {
	Sequence     int                     `json:"sequence"`
	Perturbation string                  `json:"perturbation,omitempty"`
	IssueDate    string                  `json:"issue_date"`
	Amount       string                  `json:"amount"`
	Status       models.ValidationStatus `json:"status"`
}

type validateResponse struct {
	Outcome        models.ValidationOutcome `json:"outcome"`
	AttemptsUsed   int                      `json:"attempts_used"`
	Perturbation   string                   `json:"perturbation,omitempty"`
	Attempts       []attemptResponse        `json:"attempts,omitempty"`
	IsValid        bool                     `json:"is_valid"`
	DisplayMessage string                   `json:"display_message"`
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}
