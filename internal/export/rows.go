// Package export renders validation records as spreadsheet rows and writes
// them to an XLSX workbook. The Google Sheets sink shares the same layout.
package export

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

// Headers are the column titles of a report row.
var Headers = []string{
	"Documento", "Ejecución", "RUC Emisor", "Razón Social", "Tipo", "Serie-Número",
	"Fecha Emisión", "Moneda", "Subtotal", "IGV", "Total", "Estado", "Intentos",
	"Ajuste", "Estado RUC", "Condición Domicilio", "Observaciones", "Verificado", "Error",
}

// LastColumn is the column letter of the last header.
const LastColumn = "S"

// RecordValues lays a record out in Headers order. Amounts are numbers so
// spreadsheets can sum them; unknown values are empty strings.
func RecordValues(record models.ValidationRecord) []interface{} {
	f := record.Fields

	name := f.BusinessName
	var registryStatus, domicile, notes string
	if record.Counterparty != nil && record.Counterparty.Name != "" {
		name = record.Counterparty.Name
	}
	if record.Outcome != nil {
		registryStatus = record.Outcome.CounterpartyRegistryStatus
		domicile = record.Outcome.DomicileCondition
		notes = strings.Join(record.Outcome.Notes, "; ")
	}

	var issueDate string
	if f.HasIssueDate() {
		issueDate = f.IssueDate.Format("02/01/2006")
	}
	var verified string
	if !record.VerifiedAt.IsZero() {
		verified = record.VerifiedAt.In(time.UTC).Format("2006-01-02 15:04:05")
	}

	return []interface{}{
		record.DocumentID,
		record.RunID,
		f.IssuerTaxID,
		name,
		f.DocumentType.Code(),
		f.DocumentSeriesNumber,
		issueDate,
		f.Currency,
		amountValue(f.Subtotal),
		amountValue(f.TaxAmount),
		amountValue(f.TotalAmount),
		record.Status,
		record.AttemptCount,
		record.Perturbation,
		registryStatus,
		domicile,
		notes,
		verified,
		record.Error,
	}
}

func amountValue(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return ""
	}
	return d.Decimal.Round(2).InexactFloat64()
}
