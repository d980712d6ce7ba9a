package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType is the kind of comprobante printed on the document.
type DocumentType string

const (
	DocumentTypeUnknown    DocumentType = ""
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeReceipt    DocumentType = "receipt"
	DocumentTypeCreditNote DocumentType = "credit-note"
	DocumentTypeDebitNote  DocumentType = "debit-note"
)

// Code returns the two-digit authority code for the document type, or "" if unknown.
func (t DocumentType) Code() string {
	switch t {
	case DocumentTypeInvoice:
		return "01"
	case DocumentTypeReceipt:
		return "03"
	case DocumentTypeCreditNote:
		return "07"
	case DocumentTypeDebitNote:
		return "08"
	default:
		return ""
	}
}

// Currency codes recognised on documents.
const (
	CurrencyPEN = "PEN"
	CurrencyUSD = "USD"
)

// ExtractedInvoiceFields is the structured result of extracting one document.
// String fields are unset when empty, IssueDate when zero, amounts when !Valid.
type ExtractedInvoiceFields struct {
	// Issuer
	IssuerTaxID     string // RUC, 11 digits
	BusinessName    string // name found next to a legal-entity suffix
	BusinessAddress string

	// Identity of the document
	DocumentSeriesNumber string // e.g. F001-00012345
	DocumentType         DocumentType
	IssueDate            time.Time // UTC midnight, no time component

	// Amounts, always non-negative
	Subtotal       decimal.NullDecimal
	TaxAmount      decimal.NullDecimal
	TaxRatePercent decimal.NullDecimal
	TotalAmount    decimal.NullDecimal
	Currency       string

	// Buyer
	CounterpartyTaxID      string
	CounterpartyNationalID string

	// TotalFromAnchor is set when TotalAmount came from an explicit "total a pagar" label.
	TotalFromAnchor bool
	// AmountsAdvisory is set when subtotal and tax disagree with the total beyond tolerance.
	AmountsAdvisory bool
}

// Series returns the part of DocumentSeriesNumber before the dash.
func (f ExtractedInvoiceFields) Series() string {
	series, _, _ := strings.Cut(f.DocumentSeriesNumber, "-")
	return series
}

// Number returns the correlative part of DocumentSeriesNumber.
func (f ExtractedInvoiceFields) Number() string {
	_, number, ok := strings.Cut(f.DocumentSeriesNumber, "-")
	if !ok {
		return ""
	}
	return number
}

// HasIssueDate reports whether an issue date was extracted.
func (f ExtractedInvoiceFields) HasIssueDate() bool {
	return !f.IssueDate.IsZero()
}

// IsEmpty reports whether nothing at all was extracted.
func (f ExtractedInvoiceFields) IsEmpty() bool {
	return f.IssuerTaxID == "" && f.BusinessName == "" && f.BusinessAddress == "" &&
		f.DocumentSeriesNumber == "" && f.DocumentType == "" && f.IssueDate.IsZero() &&
		!f.Subtotal.Valid && !f.TaxAmount.Valid && !f.TaxRatePercent.Valid && !f.TotalAmount.Valid &&
		f.Currency == "" && f.CounterpartyTaxID == "" && f.CounterpartyNationalID == ""
}

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Amount wraps a decimal as a set optional amount.
func Amount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// MustAmount parses a literal amount; it panics on malformed input and is meant for tests and constants.
func MustAmount(s string) decimal.NullDecimal {
	return Amount(decimal.RequireFromString(s))
}
