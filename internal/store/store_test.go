package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"comprobantes/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddDocumentAndListPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fields := &models.ExtractedInvoiceFields{
		IssuerTaxID:          "20123456789",
		DocumentSeriesNumber: "F001-00012345",
		DocumentType:         models.DocumentTypeInvoice,
		IssueDate:            models.Date(2025, 3, 15),
		TotalAmount:          models.MustAmount("118.00"),
	}
	docs := []struct {
		doc  models.Document
		path string
	}{
		{models.Document{ID: "a", OCR: &models.OCRResult{Text: "FACTURA", Words: []models.OCRWord{{Text: "FACTURA", Top: 10, Page: 1}}}}, "a.json"},
		{models.Document{ID: "b", Image: []byte("%PDF-1.4"), MimeType: "application/pdf"}, "b.pdf"},
		{models.Document{ID: "c", Fields: fields}, ""},
	}
	for _, d := range docs {
		if err := s.AddDocument(ctx, d.doc, d.path); err != nil {
			t.Fatalf("AddDocument(%s): %v", d.doc.ID, err)
		}
	}

	pending, err := s.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("got %d pending, want 3", len(pending))
	}

	byID := map[string]models.Document{}
	for _, d := range pending {
		byID[d.ID] = d
	}
	if a := byID["a"]; a.OCR == nil || len(a.OCR.Words) != 1 || a.OCR.Words[0].Top != 10 {
		t.Errorf("document a = %+v", a)
	}
	if b := byID["b"]; string(b.Image) != "%PDF-1.4" || b.MimeType != "application/pdf" || b.OCR != nil {
		t.Errorf("document b = %+v", b)
	}
	c := byID["c"]
	if c.Fields == nil || !c.Fields.TotalAmount.Decimal.Equal(fields.TotalAmount.Decimal) || !c.Fields.IssueDate.Equal(fields.IssueDate) {
		t.Errorf("document c fields = %+v", c.Fields)
	}

	limited, err := s.ListPending(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("ListPending(2) = %d docs, %v", len(limited), err)
	}
}

func TestSaveResultUpdatesStatusAndAuditLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddDocument(ctx, models.Document{ID: "doc-1"}, ""); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	query := models.ValidationQuery{
		IssuerTaxID:      "20123456789",
		DocumentTypeCode: "01",
		Series:           "F001",
		Number:           "12345",
		IssueDate:        models.Date(2025, 3, 15),
	}
	record := models.ValidationRecord{
		RunID:        "run-1",
		DocumentID:   "doc-1",
		Status:       models.RecordValid,
		AttemptCount: 2,
		Perturbation: "amount +0.01",
		Outcome:      &models.ValidationOutcome{Status: models.StatusValid},
		VerifiedAt:   time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
		Attempts: []models.RetryAttempt{
			{SequenceNumber: 1, Query: query.WithAmount(models.MustAmount("118.00").Decimal), Outcome: models.ValidationOutcome{Status: models.StatusNotFound}},
			{SequenceNumber: 2, Perturbation: "amount +0.01", Query: query.WithAmount(models.MustAmount("118.01").Decimal), Outcome: models.ValidationOutcome{Status: models.StatusValid}},
		},
	}
	if err := s.SaveResult(ctx, record); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	status, err := s.DocumentStatus(ctx, "doc-1")
	if err != nil || status != models.RecordValid {
		t.Errorf("DocumentStatus = %q, %v", status, err)
	}

	attempts, err := s.Attempts(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(attempts))
	}
	if attempts[1].Amount != "118.01" || attempts[1].Perturbation != "amount +0.01" || attempts[1].Status != models.StatusValid {
		t.Errorf("second attempt = %+v", attempts[1])
	}
	if attempts[0].IssueDate != "15/03/2025" || attempts[0].Perturbation != "" {
		t.Errorf("first attempt = %+v", attempts[0])
	}

	pending, err := s.ListPending(ctx, 0)
	if err != nil || len(pending) != 0 {
		t.Errorf("validated document still pending: %d, %v", len(pending), err)
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil || counts[models.RecordValid] != 1 {
		t.Errorf("CountByStatus = %v, %v", counts, err)
	}
}

func TestErroredDocumentsAreRetried(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.AddDocument(ctx, models.Document{ID: "flaky"}, "")
	s.AddDocument(ctx, models.Document{ID: "skipped"}, "")
	if err := s.SaveResult(ctx, models.ValidationRecord{RunID: "r", DocumentID: "flaky", Status: models.RecordError, Error: "timeout"}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := s.SaveResult(ctx, models.ValidationRecord{RunID: "r", DocumentID: "skipped", Status: models.RecordSkipped}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	pending, err := s.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "flaky" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestErrorRecordKeepsStoredFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fields := &models.ExtractedInvoiceFields{IssuerTaxID: "20123456789", DocumentSeriesNumber: "F001-1"}
	s.AddDocument(ctx, models.Document{ID: "doc", Fields: fields}, "")
	s.AddDocument(ctx, models.Document{ID: "scan", Image: []byte("img")}, "")
	for _, id := range []string{"doc", "scan"} {
		if err := s.SaveResult(ctx, models.ValidationRecord{RunID: "r", DocumentID: id, Status: models.RecordError, Error: "ocr failed"}); err != nil {
			t.Fatalf("SaveResult %s: %v", id, err)
		}
	}

	pending, err := s.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %+v", pending)
	}
	for _, doc := range pending {
		switch doc.ID {
		case "doc":
			if doc.Fields == nil || doc.Fields.DocumentSeriesNumber != "F001-1" {
				t.Errorf("stored fields lost: %+v", doc.Fields)
			}
		case "scan":
			if doc.Fields != nil {
				t.Errorf("empty fields were stored: %+v", doc.Fields)
			}
		}
	}
}

func TestSaveResultUnknownDocument(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveResult(context.Background(), models.ValidationRecord{RunID: "r", DocumentID: "ghost", Status: models.RecordValid})
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := s.DocumentStatus(context.Background(), "ghost"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}
