package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValidationStatus is the authority's verdict for one exact-match query.
type ValidationStatus string

const (
	StatusValid    ValidationStatus = "VALID"
	StatusNotFound ValidationStatus = "NOT_FOUND"
	StatusAnnulled ValidationStatus = "ANNULLED"
	StatusRejected ValidationStatus = "REJECTED"
)

// ValidationQuery is the exact-match tuple sent to the authority. Treat it as immutable;
// the With* methods return modified copies.
type ValidationQuery struct {
	IssuerTaxID      string
	DocumentTypeCode string
	Series           string
	Number           string
	IssueDate        time.Time
	Amount           decimal.Decimal
}

// DateString renders the issue date as DD/MM/YYYY.
func (q ValidationQuery) DateString() string {
	return q.IssueDate.Format("02/01/2006")
}

// AmountString renders the amount with exactly two decimals.
func (q ValidationQuery) AmountString() string {
	return q.Amount.StringFixed(2)
}

// WithAmount returns a copy of q with a different amount.
func (q ValidationQuery) WithAmount(amount decimal.Decimal) ValidationQuery {
	q.Amount = amount
	return q
}

// WithDate returns a copy of q with a different issue date.
func (q ValidationQuery) WithDate(date time.Time) ValidationQuery {
	q.IssueDate = date
	return q
}

// ValidationOutcome is the mapped response of one validation call.
type ValidationOutcome struct {
	Status                     ValidationStatus `json:"status"`
	CounterpartyRegistryStatus string           `json:"counterparty_registry_status,omitempty"`
	DomicileCondition          string           `json:"domicile_condition,omitempty"`
	Notes                      []string         `json:"notes,omitempty"`
}

// RetryAttempt records one query sent by the retry controller.
type RetryAttempt struct {
	SequenceNumber int               `json:"sequence_number"`
	Perturbation   string            `json:"perturbation,omitempty"`
	Query          ValidationQuery   `json:"-"`
	Outcome        ValidationOutcome `json:"outcome"`
}

// RetryResult is what the retry controller hands back to its caller.
type RetryResult struct {
	Outcome      ValidationOutcome `json:"outcome"`
	AttemptsUsed int               `json:"attempts_used"`
	// Perturbation names the candidate that produced Outcome; empty for the exact values.
	Perturbation string         `json:"perturbation,omitempty"`
	Attempts     []RetryAttempt `json:"attempts,omitempty"`
}

// CachedCredential is a bearer token with its effective (margin-adjusted) expiry.
type CachedCredential struct {
	Token     string
	ExpiresAt time.Time
}

// ExpiresAtEpochMillis returns the expiry as milliseconds since the Unix epoch.
func (c CachedCredential) ExpiresAtEpochMillis() int64 {
	return c.ExpiresAt.UnixMilli()
}

// Valid reports whether the credential can still be used at now.
func (c CachedCredential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// CounterpartyRecord is the taxpayer registry entry for a tax id.
type CounterpartyRecord struct {
	TaxID      string `json:"tax_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Condition  string `json:"condition"`
	Address    string `json:"address,omitempty"`
	District   string `json:"district,omitempty"`
	Province   string `json:"province,omitempty"`
	Department string `json:"department,omitempty"`
}
