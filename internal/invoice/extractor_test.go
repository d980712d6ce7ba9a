package invoice

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

var sampleInvoiceLines = []string{
	"FACTURA ELECTRONICA",
	"RUC: 20123456789",
	"F001-00012345",
	"Fecha: 15/03/2025",
	"OP GRAVADA 100.00",
	"I.G.V (18%) 18.00",
	"TOTAL A PAGAR 118.00",
}

func assertAmount(t *testing.T, name string, got decimal.NullDecimal, want string) {
	t.Helper()
	if want == "" {
		if got.Valid {
			t.Errorf("%s = %s, want unset", name, got.Decimal)
		}
		return
	}
	if !got.Valid {
		t.Errorf("%s unset, want %s", name, want)
		return
	}
	if !got.Decimal.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", name, got.Decimal, want)
	}
}

func TestExtractLinesSampleInvoice(t *testing.T) {
	fields := NewExtractor(ExtractorConfig{}).ExtractLines(sampleInvoiceLines)

	if fields.IssuerTaxID != "20123456789" {
		t.Errorf("IssuerTaxID = %q", fields.IssuerTaxID)
	}
	if fields.DocumentSeriesNumber != "F001-00012345" {
		t.Errorf("DocumentSeriesNumber = %q", fields.DocumentSeriesNumber)
	}
	if fields.DocumentType != models.DocumentTypeInvoice {
		t.Errorf("DocumentType = %q", fields.DocumentType)
	}
	if !fields.IssueDate.Equal(models.Date(2025, 3, 15)) {
		t.Errorf("IssueDate = %s", fields.IssueDate)
	}
	assertAmount(t, "Subtotal", fields.Subtotal, "100.00")
	assertAmount(t, "TaxAmount", fields.TaxAmount, "18.00")
	assertAmount(t, "TaxRatePercent", fields.TaxRatePercent, "18")
	assertAmount(t, "TotalAmount", fields.TotalAmount, "118.00")
	if fields.Currency != models.CurrencyPEN {
		t.Errorf("Currency = %q", fields.Currency)
	}
	if fields.AmountsAdvisory {
		t.Error("AmountsAdvisory set for consistent amounts")
	}
	if !fields.TotalFromAnchor {
		t.Error("TotalFromAnchor not set")
	}
}

func TestExtractFromWordBoxes(t *testing.T) {
	var words []models.OCRWord
	for i, line := range sampleInvoiceLines {
		for _, w := range strings.Fields(line) {
			words = append(words, models.OCRWord{Text: w, Top: float64(20 * i), Page: 1})
		}
	}

	fields := NewExtractor(ExtractorConfig{}).Extract(models.OCRResult{Words: words})
	if fields.IssuerTaxID != "20123456789" || fields.DocumentSeriesNumber != "F001-00012345" {
		t.Fatalf("got %q %q", fields.IssuerTaxID, fields.DocumentSeriesNumber)
	}
	assertAmount(t, "TotalAmount", fields.TotalAmount, "118.00")
}

func TestExtractIsIdempotent(t *testing.T) {
	e := NewExtractor(ExtractorConfig{})
	first := e.ExtractLines(sampleInvoiceLines)
	second := e.ExtractLines(sampleInvoiceLines)
	if fmt.Sprintf("%+v", first) != fmt.Sprintf("%+v", second) {
		t.Errorf("extraction differs between runs:\n%+v\n%+v", first, second)
	}
}

func TestExtractNeverSelectsPercentAsAmount(t *testing.T) {
	fields := NewExtractor(ExtractorConfig{}).ExtractLines([]string{
		"IGV 18% 36.00",
		"TOTAL A PAGAR 18.00% 236.00",
	})
	assertAmount(t, "TaxAmount", fields.TaxAmount, "36.00")
	assertAmount(t, "TaxRatePercent", fields.TaxRatePercent, "18")
	assertAmount(t, "TotalAmount", fields.TotalAmount, "236.00")
	assertAmount(t, "Subtotal", fields.Subtotal, "200.00")
}

func TestExtractTotalOnFollowingLine(t *testing.T) {
	fields := NewExtractor(ExtractorConfig{}).ExtractLines([]string{
		"IMPORTE TOTAL",
		"A PAGAR",
		"S/ 59.00",
	})
	assertAmount(t, "TotalAmount", fields.TotalAmount, "59.00")
}

func TestExtractMissingFieldsStayUnset(t *testing.T) {
	fields := NewExtractor(ExtractorConfig{}).ExtractLines([]string{"GRACIAS POR SU COMPRA"})
	if fields.IssuerTaxID != "" || fields.DocumentSeriesNumber != "" || fields.HasIssueDate() || fields.TotalAmount.Valid {
		t.Errorf("expected empty fields, got %+v", fields)
	}
	if got := MissingFields(fields); len(got) != 4 {
		t.Errorf("MissingFields() = %v, want 4 entries", got)
	}
}

func TestScanLinesDetectors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		check func(t *testing.T, f models.ExtractedInvoiceFields)
	}{
		{
			name:  "receipt series 8 read for B",
			lines: []string{"BOLETA DE VENTA ELECTRONICA", "8001-00000123"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.DocumentSeriesNumber != "B001-00000123" {
					t.Errorf("DocumentSeriesNumber = %q", f.DocumentSeriesNumber)
				}
			},
		},
		{
			name:  "invoice series 7 read for F",
			lines: []string{"FACTURA ELECTRONICA", "7001 - 456"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.DocumentSeriesNumber != "F001-456" {
					t.Errorf("DocumentSeriesNumber = %q", f.DocumentSeriesNumber)
				}
			},
		},
		{
			name:  "phone number is not a series",
			lines: []string{"Telf: (01) 4567-8901", "E001-99"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.DocumentSeriesNumber != "E001-99" {
					t.Errorf("DocumentSeriesNumber = %q", f.DocumentSeriesNumber)
				}
			},
		},
		{
			name:  "client RUC is not the issuer",
			lines: []string{"SEÑOR(ES): ACME S.A.C.", "RUC: 20987654321", "RUC 20123456789"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.IssuerTaxID != "20123456789" {
					t.Errorf("IssuerTaxID = %q", f.IssuerTaxID)
				}
				if f.CounterpartyTaxID != "20987654321" {
					t.Errorf("CounterpartyTaxID = %q", f.CounterpartyTaxID)
				}
				if f.BusinessName != "" {
					t.Errorf("BusinessName = %q, want unset", f.BusinessName)
				}
			},
		},
		{
			name:  "buyer DNI on next line",
			lines: []string{"CLIENTE: JUAN PEREZ", "DNI 45678912"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.CounterpartyNationalID != "45678912" {
					t.Errorf("CounterpartyNationalID = %q", f.CounterpartyNationalID)
				}
			},
		},
		{
			name:  "due date ignored",
			lines: []string{"Fecha de vencimiento: 20/04/2025", "Fecha de emisión: 15/03/2025"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if !f.IssueDate.Equal(models.Date(2025, 3, 15)) {
					t.Errorf("IssueDate = %s", f.IssueDate)
				}
			},
		},
		{
			name:  "date on line after label",
			lines: []string{"FECHA DE EMISIÓN", "05-03-25"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if !f.IssueDate.Equal(models.Date(2025, 3, 5)) {
					t.Errorf("IssueDate = %s", f.IssueDate)
				}
			},
		},
		{
			name:  "business name wrapped over lines",
			lines: []string{"DISTRIBUIDORA DEL", "SUR PERUANO", "S.A.C.", "RUC 20123456789"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.BusinessName != "DISTRIBUIDORA DEL SUR PERUANO S.A.C." {
					t.Errorf("BusinessName = %q", f.BusinessName)
				}
			},
		},
		{
			name:  "business name on one line",
			lines: []string{"Razón Social: Inversiones Lima E.I.R.L."},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.BusinessName != "Inversiones Lima E.I.R.L." {
					t.Errorf("BusinessName = %q", f.BusinessName)
				}
			},
		},
		{
			name:  "address continues on next line",
			lines: []string{"Av. Los Próceres 123", "Miraflores - Lima", "RUC 20123456789"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.BusinessAddress != "Av. Los Próceres 123 Miraflores - Lima" {
					t.Errorf("BusinessAddress = %q", f.BusinessAddress)
				}
			},
		},
		{
			name:  "address stops before tax id",
			lines: []string{"Jr. Junín 456", "RUC 20123456789"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.BusinessAddress != "Jr. Junín 456" {
					t.Errorf("BusinessAddress = %q", f.BusinessAddress)
				}
			},
		},
		{
			name:  "dollars",
			lines: []string{"MONEDA: DÓLARES AMERICANOS"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.Currency != models.CurrencyUSD {
					t.Errorf("Currency = %q", f.Currency)
				}
			},
		},
		{
			name:  "credit note",
			lines: []string{"NOTA DE CRÉDITO ELECTRÓNICA", "FC01-00000042", "Documento que modifica: FACTURA F001-00012345"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				if f.DocumentType != models.DocumentTypeCreditNote {
					t.Errorf("DocumentType = %q", f.DocumentType)
				}
				if f.DocumentSeriesNumber != "FC01-00000042" {
					t.Errorf("DocumentSeriesNumber = %q", f.DocumentSeriesNumber)
				}
			},
		},
		{
			name:  "first total wins",
			lines: []string{"TOTAL A PAGAR 50.00", "TOTAL A PAGAR 70.00"},
			check: func(t *testing.T, f models.ExtractedInvoiceFields) {
				assertAmount(t, "TotalAmount", f.TotalAmount, "50.00")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ScanLines(tt.lines))
		})
	}
}
