// Package register reads purchase registers (registro de compras) kept in a
// spreadsheet and turns each row into a document ready for validation, with
// its fields already filled in.
package register

import (
	"github.com/google/uuid"

	"comprobantes/pkg/models"
)

// Column layout of a register sheet, header in row 1:
// A=Fecha de emisión, B=Tipo, C=Serie, D=Número, E=RUC del emisor,
// F=Razón social, G=Base imponible, H=IGV, I=Importe total, J=Moneda.
const (
	colIssueDate = iota
	colTypeCode
	colSeries
	colNumber
	colIssuerRUC
	colBusinessName
	colSubtotal
	colTax
	colTotal
	colCurrency

	columnCount
)

// Columns is the sheet range holding a register.
const Columns = "A:J"

// DefaultSheet is the worksheet read when none is named.
const DefaultSheet = "Compras"

// namespace keeps register ids apart from ids derived from file paths.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("comprobantes:register"))

// Entry is one parsed register row.
type Entry struct {
	Row    int
	Fields models.ExtractedInvoiceFields
}

// ID identifies the comprobante, so re-reading the same register does not
// queue duplicates.
func (e Entry) ID() string {
	key := e.Fields.IssuerTaxID + "|" + e.Fields.DocumentType.Code() + "|" + e.Fields.DocumentSeriesNumber
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Document returns the entry as a document whose fields skip extraction.
func (e Entry) Document() models.Document {
	fields := e.Fields
	return models.Document{ID: e.ID(), Fields: &fields}
}
