package invoice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// DiscrepancyPolicy decides what happens to subtotal and tax when they disagree with the total.
type DiscrepancyPolicy string

const (
	// PolicyKeep keeps all amounts and marks subtotal and tax as advisory.
	PolicyKeep DiscrepancyPolicy = "keep"
	// PolicyClear drops subtotal and tax, keeping only the total.
	PolicyClear DiscrepancyPolicy = "clear"
)

// DefaultTolerance is the accepted gap between subtotal+tax and total, in currency units.
var DefaultTolerance = decimal.NewFromInt(1)

// DefaultTaxRates are the IGV rates a derived rate may take.
var DefaultTaxRates = []int64{10, 18}

// How far past an anchor label the amount may appear.
const anchorReach = 120

var (
	totalAnchor    = regexp.MustCompile(`(?i)TOTAL\s+A\s+PAGAR`)
	subtotalAnchor = regexp.MustCompile(`(?i)OP\s*\.?\s*GRAVADAS?|OPERACI[OÓ]N(?:ES)?\s+GRAVADAS?|BASE\s+IMPONIBLE`)
	taxRateAnchor  = regexp.MustCompile(`(?i)I\s*\.?\s*G\s*\.?\s*V\s*\.?\s*\(\s*(\d{1,2}(?:[.,]\d{1,2})?)\s*%\s*\)`)
)

// ReconcilerConfig configures a CoherenceReconciler.
type ReconcilerConfig struct {
	Tolerance     decimal.Decimal
	ValidTaxRates []int64
	Policy        DiscrepancyPolicy
}

// ReconcileResult describes what the reconciler changed or doubted.
type ReconcileResult struct {
	Derived        []string
	Warnings       []string
	HasDiscrepancy bool
}

// CoherenceReconciler makes subtotal, tax, rate and total agree with each other
// and with the explicit labels in the document text.
type CoherenceReconciler struct {
	config ReconcilerConfig
	log    zerolog.Logger
}

// NewCoherenceReconciler builds a reconciler, filling unset config with defaults.
func NewCoherenceReconciler(config ReconcilerConfig) *CoherenceReconciler {
	if config.Tolerance.IsZero() {
		config.Tolerance = DefaultTolerance
	}
	if len(config.ValidTaxRates) == 0 {
		config.ValidTaxRates = DefaultTaxRates
	}
	if config.Policy == "" {
		config.Policy = PolicyKeep
	}
	return &CoherenceReconciler{
		config: config,
		log:    logger.WithComponent("coherence"),
	}
}

// Reconcile adjusts fields in place. Anchored amounts found in fullText override
// the line scan; a single missing amount is derived from the other two; the tax
// rate is derived when it lands on a known rate. The total is never changed on
// a discrepancy.
func (r *CoherenceReconciler) Reconcile(fields *models.ExtractedInvoiceFields, fullText string) *ReconcileResult {
	result := &ReconcileResult{}

	if total, ok := anchoredAmount(fullText, totalAnchor); ok {
		fields.TotalAmount = models.Amount(total)
		fields.TotalFromAnchor = true
	}
	if subtotal, ok := anchoredAmount(fullText, subtotalAnchor); ok {
		fields.Subtotal = models.Amount(subtotal)
	}
	if rate, tax, ok := anchoredTax(fullText); ok {
		fields.TaxRatePercent = models.Amount(rate)
		fields.TaxAmount = models.Amount(tax)
	}

	r.deriveMissingAmount(fields, result)
	r.deriveRate(fields, result)

	if fields.Subtotal.Valid && fields.TaxAmount.Valid && fields.TotalAmount.Valid {
		sum := fields.Subtotal.Decimal.Add(fields.TaxAmount.Decimal)
		diff := sum.Sub(fields.TotalAmount.Decimal).Abs()
		if diff.GreaterThan(r.config.Tolerance) {
			msg := fmt.Sprintf("subtotal %s + tax %s = %s differs from total %s by %s",
				fields.Subtotal.Decimal.StringFixed(2),
				fields.TaxAmount.Decimal.StringFixed(2),
				sum.StringFixed(2),
				fields.TotalAmount.Decimal.StringFixed(2),
				diff.StringFixed(2))
			result.Warnings = append(result.Warnings, msg)
			result.HasDiscrepancy = true
			fields.AmountsAdvisory = true

			r.log.Warn().
				Str("subtotal", fields.Subtotal.Decimal.StringFixed(2)).
				Str("tax", fields.TaxAmount.Decimal.StringFixed(2)).
				Str("total", fields.TotalAmount.Decimal.StringFixed(2)).
				Str("policy", string(r.config.Policy)).
				Msg("Amounts do not add up, keeping total")

			if r.config.Policy == PolicyClear {
				fields.Subtotal = decimal.NullDecimal{}
				fields.TaxAmount = decimal.NullDecimal{}
			}
		}
	}

	return result
}

func (r *CoherenceReconciler) deriveMissingAmount(fields *models.ExtractedInvoiceFields, result *ReconcileResult) {
	sub, tax, total := fields.Subtotal, fields.TaxAmount, fields.TotalAmount
	switch {
	case !total.Valid && sub.Valid && tax.Valid:
		fields.TotalAmount = models.Amount(sub.Decimal.Add(tax.Decimal))
		result.Derived = append(result.Derived, "total")
	case !sub.Valid && tax.Valid && total.Valid:
		if v := total.Decimal.Sub(tax.Decimal); !v.IsNegative() {
			fields.Subtotal = models.Amount(v)
			result.Derived = append(result.Derived, "subtotal")
		}
	case !tax.Valid && sub.Valid && total.Valid:
		if v := total.Decimal.Sub(sub.Decimal); !v.IsNegative() {
			fields.TaxAmount = models.Amount(v)
			result.Derived = append(result.Derived, "tax")
		}
	default:
		return
	}
	r.log.Debug().Strs("derived", result.Derived).Msg("Derived missing amount")
}

func (r *CoherenceReconciler) deriveRate(fields *models.ExtractedInvoiceFields, result *ReconcileResult) {
	if fields.TaxRatePercent.Valid || !fields.Subtotal.Valid || !fields.TaxAmount.Valid || !fields.Subtotal.Decimal.IsPositive() {
		return
	}
	rate := fields.TaxAmount.Decimal.Div(fields.Subtotal.Decimal).Mul(decimal.NewFromInt(100)).Round(0)
	for _, valid := range r.config.ValidTaxRates {
		if rate.Equal(decimal.NewFromInt(valid)) {
			fields.TaxRatePercent = models.Amount(rate)
			result.Derived = append(result.Derived, "tax_rate")
			return
		}
	}
	r.log.Debug().Str("rate", rate.String()).Msg("Derived tax rate is not a known rate, leaving it unset")
}

// anchoredAmount returns the first amount starting within anchorReach bytes of
// any occurrence of the anchor. The amount itself may run past the reach.
func anchoredAmount(text string, anchor *regexp.Regexp) (decimal.Decimal, bool) {
	for _, loc := range anchor.FindAllStringIndex(text, -1) {
		matches := matchAmounts(text, loc[1])
		if len(matches) > 0 && matches[0].start <= loc[1]+anchorReach {
			return matches[0].value, true
		}
	}
	return decimal.Zero, false
}

// anchoredTax reads "IGV (18%) 18.00". It reports ok only when both the rate
// and the amount come from the same label.
func anchoredTax(text string) (rate, tax decimal.Decimal, ok bool) {
	loc := taxRateAnchor.FindStringSubmatchIndex(text)
	if loc == nil {
		return decimal.Zero, decimal.Zero, false
	}
	rate, err := ParseAmount(text[loc[2]:loc[3]])
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	// The amount sits on the same line or the next one, never past a total label.
	rest := text[loc[1]:]
	lines := strings.SplitN(rest, "\n", 3)
	for i, line := range lines[:min(2, len(lines))] {
		if i > 0 && totalKeyword.MatchString(normalizeLine(line)) {
			break
		}
		if amount, found := firstAmount(line, 0); found {
			return rate, amount, true
		}
	}
	return decimal.Zero, decimal.Zero, false
}
