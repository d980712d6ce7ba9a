package invoice

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name         string
		policy       DiscrepancyPolicy
		fields       models.ExtractedInvoiceFields
		text         string
		wantSubtotal string
		wantTax      string
		wantRate     string
		wantTotal    string
		wantAdvisory bool
	}{
		{
			name:         "total derived from subtotal and tax",
			fields:       models.ExtractedInvoiceFields{Subtotal: models.MustAmount("100.00"), TaxAmount: models.MustAmount("18.00")},
			wantSubtotal: "100", wantTax: "18", wantRate: "18", wantTotal: "118",
		},
		{
			name:         "tax derived from total and subtotal",
			fields:       models.ExtractedInvoiceFields{Subtotal: models.MustAmount("50.00"), TotalAmount: models.MustAmount("55.00")},
			wantSubtotal: "50", wantTax: "5", wantRate: "10", wantTotal: "55",
		},
		{
			name:         "unknown rate is not derived",
			fields:       models.ExtractedInvoiceFields{Subtotal: models.MustAmount("100.00"), TaxAmount: models.MustAmount("15.00")},
			wantSubtotal: "100", wantTax: "15", wantRate: "", wantTotal: "115",
		},
		{
			name:         "anchor overrides scanned total",
			fields:       models.ExtractedInvoiceFields{TotalAmount: models.MustAmount("18.00")},
			text:         "OP. GRAVADA S/ 100.00\nIGV (18%) S/ 18.00\nTOTAL A PAGAR\nS/ 118.00",
			wantSubtotal: "100", wantTax: "18", wantRate: "18", wantTotal: "118",
		},
		{
			name:         "anchored amount may run past the reach",
			text:         "TOTAL A PAGAR " + strings.Repeat("x", 110) + "\n 1,234.56",
			wantSubtotal: "", wantTax: "", wantRate: "", wantTotal: "1234.56",
		},
		{
			name:         "amount starting past the reach is ignored",
			text:         "TOTAL A PAGAR " + strings.Repeat("x", 130) + " 99.00",
			wantSubtotal: "", wantTax: "", wantRate: "", wantTotal: "",
		},
		{
			name:         "rate label without an amount leaves the rate to derivation",
			fields:       models.ExtractedInvoiceFields{Subtotal: models.MustAmount("100.00"), TaxAmount: models.MustAmount("10.00")},
			text:         "OP GRAVADA 100.00\nIGV 10.00\nTasa I.G.V. (18%)\nTOTAL\nA PAGAR 110.00",
			wantSubtotal: "100", wantTax: "10", wantRate: "10", wantTotal: "110",
		},
		{
			name: "discrepancy keeps total and flags",
			fields: models.ExtractedInvoiceFields{
				Subtotal: models.MustAmount("100.00"), TaxAmount: models.MustAmount("18.00"), TotalAmount: models.MustAmount("150.00"),
			},
			wantSubtotal: "100", wantTax: "18", wantRate: "18", wantTotal: "150", wantAdvisory: true,
		},
		{
			name:   "discrepancy with clear policy",
			policy: PolicyClear,
			fields: models.ExtractedInvoiceFields{
				Subtotal: models.MustAmount("100.00"), TaxAmount: models.MustAmount("18.00"), TotalAmount: models.MustAmount("150.00"),
			},
			wantSubtotal: "", wantTax: "", wantRate: "18", wantTotal: "150", wantAdvisory: true,
		},
		{
			name: "within tolerance",
			fields: models.ExtractedInvoiceFields{
				Subtotal: models.MustAmount("84.75"), TaxAmount: models.MustAmount("15.25"), TotalAmount: models.MustAmount("100.90"),
			},
			wantSubtotal: "84.75", wantTax: "15.25", wantRate: "18", wantTotal: "100.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCoherenceReconciler(ReconcilerConfig{Policy: tt.policy})
			fields := tt.fields
			result := r.Reconcile(&fields, tt.text)

			assertAmount(t, "Subtotal", fields.Subtotal, tt.wantSubtotal)
			assertAmount(t, "TaxAmount", fields.TaxAmount, tt.wantTax)
			assertAmount(t, "TaxRatePercent", fields.TaxRatePercent, tt.wantRate)
			assertAmount(t, "TotalAmount", fields.TotalAmount, tt.wantTotal)
			if fields.AmountsAdvisory != tt.wantAdvisory {
				t.Errorf("AmountsAdvisory = %v, want %v", fields.AmountsAdvisory, tt.wantAdvisory)
			}
			if result.HasDiscrepancy != tt.wantAdvisory {
				t.Errorf("HasDiscrepancy = %v, want %v", result.HasDiscrepancy, tt.wantAdvisory)
			}
			if tt.wantAdvisory && len(result.Warnings) == 0 {
				t.Error("expected a warning")
			}
		})
	}
}

func TestReconcileCustomTolerance(t *testing.T) {
	r := NewCoherenceReconciler(ReconcilerConfig{Tolerance: decimal.RequireFromString("0.05")})
	fields := models.ExtractedInvoiceFields{
		Subtotal: models.MustAmount("100.00"), TaxAmount: models.MustAmount("18.00"), TotalAmount: models.MustAmount("118.50"),
	}
	if result := r.Reconcile(&fields, ""); !result.HasDiscrepancy {
		t.Error("0.50 gap should exceed a 0.05 tolerance")
	}
}
