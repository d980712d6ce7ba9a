package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"comprobantes/pkg/models"
)

func sampleRecord(id string) models.ValidationRecord {
	return models.ValidationRecord{
		RunID:      "run-1",
		DocumentID: id,
		Fields: models.ExtractedInvoiceFields{
			IssuerTaxID:          "20123456789",
			BusinessName:         "COMERCIAL ANDINA SAC",
			DocumentSeriesNumber: "F001-00012345",
			DocumentType:         models.DocumentTypeInvoice,
			IssueDate:            models.Date(2025, 3, 15),
			Subtotal:             models.MustAmount("100.00"),
			TaxAmount:            models.MustAmount("18.00"),
			TotalAmount:          models.MustAmount("118.00"),
			Currency:             models.CurrencyPEN,
		},
		Outcome: &models.ValidationOutcome{
			Status:                     models.StatusValid,
			CounterpartyRegistryStatus: "ACTIVO",
			DomicileCondition:          "HABIDO",
			Notes:                      []string{"emitido por contingencia"},
		},
		Status:       models.RecordValid,
		AttemptCount: 3,
		Perturbation: "amount -0.01",
		VerifiedAt:   time.Date(2025, 3, 20, 10, 30, 0, 0, time.UTC),
	}
}

func TestRecordValuesLayout(t *testing.T) {
	values := RecordValues(sampleRecord("doc-1"))
	if len(values) != len(Headers) {
		t.Fatalf("got %d values for %d headers", len(values), len(Headers))
	}

	want := map[int]interface{}{
		0:  "doc-1",
		2:  "20123456789",
		3:  "COMERCIAL ANDINA SAC",
		4:  "01",
		6:  "15/03/2025",
		10: 118.0,
		11: models.RecordValid,
		12: 3,
		13: "amount -0.01",
		14: "ACTIVO",
		16: "emitido por contingencia",
		17: "2025-03-20 10:30:00",
	}
	for i, v := range want {
		if values[i] != v {
			t.Errorf("%s = %v, want %v", Headers[i], values[i], v)
		}
	}
}

func TestRecordValuesPrefersRegistryName(t *testing.T) {
	rec := sampleRecord("doc-1")
	rec.Counterparty = &models.CounterpartyRecord{Name: "COMERCIAL ANDINA S.A.C."}
	rec.Fields.Subtotal = decimal.NullDecimal{}

	values := RecordValues(rec)
	if values[3] != "COMERCIAL ANDINA S.A.C." {
		t.Errorf("name = %v", values[3])
	}
	if values[8] != "" {
		t.Errorf("unset subtotal rendered as %v", values[8])
	}
}

func TestXLSXSinkAppendsAcrossFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reporte.xlsx")
	ctx := context.Background()

	sink, err := NewXLSXSink(path, "")
	if err != nil {
		t.Fatalf("NewXLSXSink: %v", err)
	}
	if err := sink.Report(ctx, sampleRecord("doc-1")); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("first Flush: %v", err)
	}
	if err := sink.Report(ctx, sampleRecord("doc-2")); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(DefaultSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "Documento" || rows[1][0] != "doc-1" || rows[2][0] != "doc-2" {
		t.Errorf("unexpected first column: %q %q %q", rows[0][0], rows[1][0], rows[2][0])
	}
	if rows[1][10] != "118" {
		t.Errorf("total cell = %q", rows[1][10])
	}
}

func TestXLSXSinkFlushWithoutRowsWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vacio.xlsx")
	sink, err := NewXLSXSink(path, "Hoja")
	if err != nil {
		t.Fatalf("NewXLSXSink: %v", err)
	}
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := excelize.OpenFile(path); err == nil {
		t.Error("expected no workbook to be created")
	}
}
