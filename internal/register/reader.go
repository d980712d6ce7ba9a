package register

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"comprobantes/internal/invoice"
	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// RowSource reads a cell range such as "Compras!A:J".
type RowSource interface {
	ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error)
}

var (
	rucPattern    = regexp.MustCompile(`^\d{11}$`)
	seriesPattern = regexp.MustCompile(`^[A-Z0-9]{4}$`)
	numberPattern = regexp.MustCompile(`^\d{1,8}$`)
)

var typeCodes = map[string]models.DocumentType{
	"01": models.DocumentTypeInvoice,
	"03": models.DocumentTypeReceipt,
	"07": models.DocumentTypeCreditNote,
	"08": models.DocumentTypeDebitNote,
}

// Reader handles reading register rows from a spreadsheet
type Reader struct {
	source RowSource
	log    zerolog.Logger
}

// NewReader creates a reader over source.
func NewReader(source RowSource) *Reader {
	return &Reader{
		source: source,
		log:    logger.WithComponent("register-reader"),
	}
}

// Read parses every data row of sheet. Rows that cannot be parsed are logged
// and skipped; the error reports only a failed or empty read.
func (r *Reader) Read(ctx context.Context, sheet string) ([]Entry, error) {
	const op = "Read"

	if sheet == "" {
		sheet = DefaultSheet
	}
	r.log.Info().Str("sheet", sheet).Msg("Reading register")

	values, err := r.source.ReadRange(ctx, sheet+"!"+Columns)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read %s sheet: %w", op, sheet, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %s sheet is empty", op, sheet)
	}

	var entries []Entry
	for i, row := range values[1:] {
		rowNum := i + 2 // header plus 1-based rows

		if isBlank(row) {
			continue
		}
		fields, err := parseRow(row)
		if err != nil {
			r.log.Warn().
				Err(err).
				Int("row", rowNum).
				Str("sheet", sheet).
				Msg("Skipping register row")
			continue
		}
		entries = append(entries, Entry{Row: rowNum, Fields: fields})
	}

	r.log.Info().
		Int("total_rows", len(values)-1).
		Int("parsed_rows", len(entries)).
		Str("sheet", sheet).
		Msg("Register read")

	return entries, nil
}

// parseRow requires everything the authority query needs; subtotal, IGV,
// business name and currency are optional.
func parseRow(row []interface{}) (models.ExtractedInvoiceFields, error) {
	var fields models.ExtractedInvoiceFields

	date, ok := invoice.ParseDate(cell(row, colIssueDate))
	if !ok {
		return fields, fmt.Errorf("invalid issue date %q", cell(row, colIssueDate))
	}
	fields.IssueDate = date

	code := cell(row, colTypeCode)
	if len(code) == 1 {
		code = "0" + code
	}
	docType, ok := typeCodes[code]
	if !ok {
		return fields, fmt.Errorf("unknown document type %q", cell(row, colTypeCode))
	}
	fields.DocumentType = docType

	series := strings.ToUpper(cell(row, colSeries))
	number := strings.TrimLeft(cell(row, colNumber), "0")
	if number == "" {
		number = "0"
	}
	if !seriesPattern.MatchString(series) || !numberPattern.MatchString(number) {
		return fields, fmt.Errorf("invalid series-number %q-%q", cell(row, colSeries), cell(row, colNumber))
	}
	fields.DocumentSeriesNumber = series + "-" + number

	ruc := cell(row, colIssuerRUC)
	if !rucPattern.MatchString(ruc) {
		return fields, fmt.Errorf("invalid issuer RUC %q", ruc)
	}
	fields.IssuerTaxID = ruc
	fields.BusinessName = cell(row, colBusinessName)

	total, err := invoice.ParseAmount(cell(row, colTotal))
	if err != nil {
		return fields, fmt.Errorf("total: %w", err)
	}
	fields.TotalAmount = models.Amount(total)

	if fields.Subtotal, err = optionalAmount(row, colSubtotal); err != nil {
		return fields, fmt.Errorf("subtotal: %w", err)
	}
	if fields.TaxAmount, err = optionalAmount(row, colTax); err != nil {
		return fields, fmt.Errorf("IGV: %w", err)
	}

	switch strings.ToUpper(cell(row, colCurrency)) {
	case "", "PEN", "S/", "SOLES":
		fields.Currency = models.CurrencyPEN
	case "USD", "US$", "DOLARES", "DÓLARES":
		fields.Currency = models.CurrencyUSD
	default:
		return fields, fmt.Errorf("unknown currency %q", cell(row, colCurrency))
	}

	return fields, nil
}

func optionalAmount(row []interface{}, col int) (decimal.NullDecimal, error) {
	raw := cell(row, col)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := invoice.ParseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return models.Amount(v), nil
}

// cell safely extracts a trimmed string value from a row slice
func cell(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[index]))
}

func isBlank(row []interface{}) bool {
	for i := 0; i < columnCount; i++ {
		if cell(row, i) != "" {
			return false
		}
	}
	return true
}
