package cmd

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"comprobantes/internal/api"
	"comprobantes/pkg/models"
)

func TestApplyFieldFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("ruc", "", "")
	cmd.Flags().String("type", "", "")
	cmd.Flags().String("series-number", "", "")
	cmd.Flags().String("date", "", "")
	cmd.Flags().String("total", "", "")
	cmd.Flags().Set("type", "Receipt")
	cmd.Flags().Set("series-number", "b001-42")
	cmd.Flags().Set("date", "2024-03-15")
	cmd.Flags().Set("total", "25.50")

	fields := models.ExtractedInvoiceFields{IssuerTaxID: "20123456789", TotalAmount: models.MustAmount("2.55")}
	if err := applyFieldFlags(cmd, &fields); err != nil {
		t.Fatalf("applyFieldFlags: %v", err)
	}
	if fields.IssuerTaxID != "20123456789" {
		t.Errorf("unset flag overwrote RUC: %q", fields.IssuerTaxID)
	}
	if fields.DocumentType != models.DocumentTypeReceipt || fields.DocumentSeriesNumber != "B001-42" {
		t.Errorf("identity = %q %q", fields.DocumentType, fields.DocumentSeriesNumber)
	}
	if !fields.IssueDate.Equal(models.Date(2024, 3, 15)) || fields.TotalAmount.Decimal.StringFixed(2) != "25.50" {
		t.Errorf("date/total = %v %v", fields.IssueDate, fields.TotalAmount)
	}

	for flag, value := range map[string]string{"type": "ticket", "date": "15/03/2024", "total": "-1"} {
		bad := &cobra.Command{}
		bad.Flags().String(flag, "", "")
		bad.Flags().Set(flag, value)
		if err := applyFieldFlags(bad, &models.ExtractedInvoiceFields{}); err == nil {
			t.Errorf("--%s=%s: expected an error", flag, value)
		}
	}
}

func TestCollectImportFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.JPG", "c.ocr.json", "notes.txt", "skip.docx", "sub/d.png"} {
		path := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(path), 0o755)
		os.WriteFile(path, []byte("x"), 0o644)
	}

	files, err := collectImportFiles([]string{dir})
	if err != nil {
		t.Fatalf("collectImportFiles: %v", err)
	}
	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f)
		names = append(names, filepath.ToSlash(rel))
	}
	sort.Strings(names)
	want := "a.pdf b.JPG c.ocr.json notes.txt sub/d.png"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("files = %q, want %q", got, want)
	}

	if _, err := collectImportFiles([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestDocumentIDIsStablePerPath(t *testing.T) {
	a, _ := documentID("scans/f1.pdf")
	b, _ := documentID("./scans/../scans/f1.pdf")
	c, _ := documentID("scans/f2.pdf")
	if a != b {
		t.Errorf("equivalent paths got %q and %q", a, b)
	}
	if a == c {
		t.Error("different files share an id")
	}
}

func TestFormatExtraction(t *testing.T) {
	total := models.MustAmount("118.00").Decimal
	out := formatExtraction(ExtractOutput{
		Fields: api.Fields{
			IssuerTaxID:      "20123456789",
			SeriesNumber:     "F001-1",
			DocumentTypeCode: "01",
			DocumentType:     "invoice",
			TotalAmount:      &total,
			AmountsAdvisory:  true,
		},
		Missing: []string{"issue_date"},
	})
	for _, want := range []string{"20123456789", "01 invoice", "118.00", "Aviso", "Faltan: issue_date"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "Subtotal:") || !strings.Contains(out, " -\n") {
		t.Errorf("unset values should print as '-':\n%s", out)
	}
}
