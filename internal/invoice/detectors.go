package invoice

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

// Lines after a label that are searched for its amount.
const amountWindow = 10

// Business names shorter than this are OCR noise.
const minBusinessNameLength = 6

// How many lines above a bare legal suffix are joined into the business name.
const maxNameContinuationLines = 3

var (
	issuerTaxIDPattern   = regexp.MustCompile(`\b(?:10|20)\d{9}\b`)
	anyTaxIDPattern      = regexp.MustCompile(`\b\d{11}\b`)
	nationalIDPattern    = regexp.MustCompile(`\b\d{8}\b`)
	letterSeriesPattern  = regexp.MustCompile(`\b([FBE][A-Z0-9]{3})\s*-\s*(\d{1,8})\b`)
	numericSeriesPattern = regexp.MustCompile(`\b(\d{4})\s*-\s*(\d{1,8})\b`)
	taxRatePattern       = regexp.MustCompile(`(\d{1,2}(?:[.,]\d{1,2})?)\s*%`)
	taxLabelPattern      = regexp.MustCompile(`(?i)I\s*\.?\s*G\s*\.?\s*V`)

	// The patterns below run on normalized lines.
	creditNoteKeyword   = regexp.MustCompile(`\bNOTA DE CREDITO\b|\bNOTA CREDITO\b`)
	debitNoteKeyword    = regexp.MustCompile(`\bNOTA DE DEBITO\b|\bNOTA DEBITO\b`)
	invoiceKeyword      = regexp.MustCompile(`\bFACTURA\b`)
	receiptKeyword      = regexp.MustCompile(`\bBOLETA\b`)
	clientKeyword       = regexp.MustCompile(`\b(?:CLIENTE|ADQUIRIENTE|ADQUIRENTE|SENOR|SENORES|SENOR\(ES\)|SR|SRES|COMPRADOR)\b`)
	legalSuffixKeyword  = regexp.MustCompile(`\b(?:SAC|SAA|SA|EIRL|SRL|SCRL|SOCIEDAD ANONIMA(?: CERRADA)?|EMPRESA INDIVIDUAL DE RESPONSABILIDAD LIMITADA)\s*$`)
	headerLabelKeyword  = regexp.MustCompile(`\b(?:RUC|FACTURA|BOLETA|ELECTRONICA|NOTA|TELF|TELEFONO|CEL|EMAIL|WWW|DIRECCION|FECHA)\b`)
	addressKeyword      = regexp.MustCompile(`\b(?:AV|AVDA|AVENIDA|JR|JIRON|CALLE|CAL|PSJE|PASAJE|PJE|MZ|MZA|URB|CARRETERA|CARR|PROLONGACION|PROL)\b`)
	dateContextKeyword  = regexp.MustCompile(`\b(?:FECHA|EMISION|EMITIDO|EMITIDA)\b`)
	dueDateKeyword      = regexp.MustCompile(`VENC`)
	totalKeyword        = regexp.MustCompile(`\bTOTAL\b`)
	payKeyword          = regexp.MustCompile(`\bPAGAR\b`)
	subtotalKeyword     = regexp.MustCompile(`\b(?:OP GRAVADAS?|OPERACION(?:ES)? GRAVADAS?|VALOR VENTA|VALOR DE VENTA|BASE IMPONIBLE|SUBTOTAL|SUB TOTAL)\b`)
	taxKeyword          = regexp.MustCompile(`\bIGV\b`)
	dollarKeyword       = regexp.MustCompile(`US\$|\bUSD\b|\bDOLARES\b|\bDOLAR\b`)
	phoneKeyword        = regexp.MustCompile(`\b(?:TELF|TELEFONO|TEL|CEL|CELULAR|FAX)\b`)
	subtotalLabelsUpper = []string{"GRAVADA", "GRAVADAS", "VALOR VENTA", "VALOR DE VENTA", "IMPONIBLE", "SUBTOTAL", "SUB TOTAL"}
)

type field int

const (
	fieldDocumentType field = iota
	fieldIssuerTaxID
	fieldSeriesNumber
	fieldBusinessName
	fieldBusinessAddress
	fieldIssueDate
	fieldTotal
	fieldSubtotal
	fieldTaxAmount
	fieldTaxRate
	fieldCounterpartyTaxID
	fieldCounterpartyNationalID
	fieldCurrency
)

// fieldUpdate is a candidate value produced by a detector. Only the slot
// matching field is meaningful.
type fieldUpdate struct {
	field   field
	text    string
	date    time.Time
	amount  decimal.Decimal
	docType models.DocumentType
}

// scanDoc is the immutable input every detector reads.
type scanDoc struct {
	lines []string
	norm  []string
}

func (d *scanDoc) clientContext(i int) bool {
	if clientKeyword.MatchString(d.norm[i]) {
		return true
	}
	return i > 0 && clientKeyword.MatchString(d.norm[i-1])
}

// detector inspects line i and proposes updates. Detectors never see the
// accumulated fields; first-found-wins is enforced by the caller.
type detector func(d *scanDoc, i int) []fieldUpdate

// detectors in the order they run on each line.
var detectors = []detector{
	detectDocumentType,
	detectIssuerTaxID,
	detectSeriesNumber,
	detectBusinessName,
	detectAddress,
	detectIssueDate,
	detectTotal,
	detectSubtotal,
	detectTax,
	detectCounterpartyID,
	detectCurrency,
}

func detectDocumentType(d *scanDoc, i int) []fieldUpdate {
	line := d.norm[i]
	var t models.DocumentType
	switch {
	case creditNoteKeyword.MatchString(line):
		t = models.DocumentTypeCreditNote
	case debitNoteKeyword.MatchString(line):
		t = models.DocumentTypeDebitNote
	case invoiceKeyword.MatchString(line):
		t = models.DocumentTypeInvoice
	case receiptKeyword.MatchString(line):
		t = models.DocumentTypeReceipt
	default:
		return nil
	}
	return []fieldUpdate{{field: fieldDocumentType, docType: t}}
}

func detectIssuerTaxID(d *scanDoc, i int) []fieldUpdate {
	if d.clientContext(i) {
		return nil
	}
	m := issuerTaxIDPattern.FindString(d.lines[i])
	if m == "" {
		return nil
	}
	return []fieldUpdate{{field: fieldIssuerTaxID, text: m}}
}

func detectSeriesNumber(d *scanDoc, i int) []fieldUpdate {
	line := strings.ToUpper(d.lines[i])
	if m := letterSeriesPattern.FindStringSubmatch(line); m != nil {
		return []fieldUpdate{{field: fieldSeriesNumber, text: m[1] + "-" + m[2]}}
	}
	if phoneKeyword.MatchString(d.norm[i]) {
		return nil
	}
	if m := numericSeriesPattern.FindStringSubmatch(line); m != nil {
		return []fieldUpdate{{field: fieldSeriesNumber, text: m[1] + "-" + m[2]}}
	}
	return nil
}

// fixSeriesPrefix repairs the usual OCR confusions of the series letter once
// the document type is known: 8 read for B on receipts, 7 read for F on invoices.
func fixSeriesPrefix(series string, t models.DocumentType) string {
	if series == "" {
		return series
	}
	switch {
	case t == models.DocumentTypeReceipt && series[0] == '8':
		return "B" + series[1:]
	case t == models.DocumentTypeInvoice && series[0] == '7':
		return "F" + series[1:]
	}
	return series
}

func detectBusinessName(d *scanDoc, i int) []fieldUpdate {
	if !legalSuffixKeyword.MatchString(d.norm[i]) || d.clientContext(i) {
		return nil
	}
	name := strings.TrimSpace(d.lines[i])
	if _, after, ok := strings.Cut(name, ":"); ok {
		name = strings.TrimSpace(after)
	}
	body := strings.TrimSpace(legalSuffixKeyword.ReplaceAllString(normalizeLine(name), ""))
	if len(body) < minBusinessNameLength {
		// The name wrapped and only its suffix is on this line.
		parts := []string{name}
		for j := i - 1; j >= 0 && j >= i-maxNameContinuationLines; j-- {
			if !isNameContinuation(d.norm[j]) {
				break
			}
			parts = append([]string{strings.TrimSpace(d.lines[j])}, parts...)
		}
		name = strings.Join(parts, " ")
	}
	if len(name) < minBusinessNameLength {
		return nil
	}
	return []fieldUpdate{{field: fieldBusinessName, text: name}}
}

func isNameContinuation(norm string) bool {
	if norm == "" || headerLabelKeyword.MatchString(norm) {
		return false
	}
	return !strings.ContainsAny(norm, "0123456789")
}

func detectAddress(d *scanDoc, i int) []fieldUpdate {
	if !addressKeyword.MatchString(d.norm[i]) || d.clientContext(i) {
		return nil
	}
	address := strings.TrimSpace(d.lines[i])
	if label, rest, ok := strings.Cut(address, ":"); ok && strings.Contains(normalizeLine(label), "DIRECCION") {
		address = strings.TrimSpace(rest)
	}
	if i+1 < len(d.lines) && continuesAddress(d.lines[i+1], d.norm[i+1]) {
		address += " " + strings.TrimSpace(d.lines[i+1])
	}
	return []fieldUpdate{{field: fieldBusinessAddress, text: address}}
}

func continuesAddress(line, norm string) bool {
	if norm == "" || anyTaxIDPattern.MatchString(line) {
		return false
	}
	if letterSeriesPattern.MatchString(strings.ToUpper(line)) {
		return false
	}
	return !headerLabelKeyword.MatchString(norm)
}

func detectIssueDate(d *scanDoc, i int) []fieldUpdate {
	if dueDateKeyword.MatchString(d.norm[i]) {
		return nil
	}
	inContext := dateContextKeyword.MatchString(d.norm[i]) ||
		i > 0 && dateContextKeyword.MatchString(d.norm[i-1]) && !dueDateKeyword.MatchString(d.norm[i-1])
	if !inContext {
		return nil
	}
	date, ok := ParseDate(d.lines[i])
	if !ok {
		return nil
	}
	return []fieldUpdate{{field: fieldIssueDate, date: date}}
}

// amountAfterLabel returns the first amount on line i at or after offset, or on the
// following lines up to the window.
func (d *scanDoc) amountAfterLabel(i, offset int) (decimal.Decimal, bool) {
	if amount, ok := firstAmount(d.lines[i], offset); ok {
		return amount, true
	}
	for j := i + 1; j < len(d.lines) && j <= i+amountWindow; j++ {
		if amount, ok := firstAmount(d.lines[j], 0); ok {
			return amount, true
		}
	}
	return decimal.Zero, false
}

func detectTotal(d *scanDoc, i int) []fieldUpdate {
	if !totalKeyword.MatchString(d.norm[i]) {
		return nil
	}
	if !payKeyword.MatchString(d.norm[i]) && (i+1 >= len(d.norm) || !payKeyword.MatchString(d.norm[i+1])) {
		return nil
	}
	amount, ok := d.amountAfterLabel(i, labelOffset(d.lines[i], "TOTAL"))
	if !ok {
		return nil
	}
	return []fieldUpdate{{field: fieldTotal, amount: amount}}
}

func detectSubtotal(d *scanDoc, i int) []fieldUpdate {
	if !subtotalKeyword.MatchString(d.norm[i]) {
		return nil
	}
	amount, ok := d.amountAfterLabel(i, labelOffset(d.lines[i], subtotalLabelsUpper...))
	if !ok {
		return nil
	}
	return []fieldUpdate{{field: fieldSubtotal, amount: amount}}
}

func detectTax(d *scanDoc, i int) []fieldUpdate {
	if !taxKeyword.MatchString(d.norm[i]) || totalKeyword.MatchString(d.norm[i]) {
		return nil
	}
	var updates []fieldUpdate
	line := d.lines[i]
	if m := taxRatePattern.FindStringSubmatch(line); m != nil {
		if rate, err := ParseAmount(m[1]); err == nil {
			updates = append(updates, fieldUpdate{field: fieldTaxRate, amount: rate})
		}
	}
	offset := 0
	if loc := taxLabelPattern.FindStringIndex(line); loc != nil {
		offset = loc[1]
	}
	amount, ok := firstAmount(line, offset)
	if !ok && i+1 < len(d.lines) && !totalKeyword.MatchString(d.norm[i+1]) {
		amount, ok = firstAmount(d.lines[i+1], 0)
	}
	if ok {
		updates = append(updates, fieldUpdate{field: fieldTaxAmount, amount: amount})
	}
	return updates
}

func detectCounterpartyID(d *scanDoc, i int) []fieldUpdate {
	if !clientKeyword.MatchString(d.norm[i]) {
		return nil
	}
	// Original text: normalization drops the dots of "15.03.2025" and would turn it into a DNI.
	candidates := []string{d.lines[i]}
	if i+1 < len(d.lines) {
		candidates = append(candidates, d.lines[i+1])
	}
	for _, text := range candidates {
		if m := anyTaxIDPattern.FindString(text); m != "" {
			return []fieldUpdate{{field: fieldCounterpartyTaxID, text: m}}
		}
		if m := nationalIDPattern.FindString(text); m != "" {
			return []fieldUpdate{{field: fieldCounterpartyNationalID, text: m}}
		}
	}
	return nil
}

func detectCurrency(d *scanDoc, i int) []fieldUpdate {
	if dollarKeyword.MatchString(strings.ToUpper(d.lines[i])) || dollarKeyword.MatchString(d.norm[i]) {
		return []fieldUpdate{{field: fieldCurrency, text: models.CurrencyUSD}}
	}
	return nil
}

func isSet(f *models.ExtractedInvoiceFields, which field) bool {
	switch which {
	case fieldDocumentType:
		return f.DocumentType != models.DocumentTypeUnknown
	case fieldIssuerTaxID:
		return f.IssuerTaxID != ""
	case fieldSeriesNumber:
		return f.DocumentSeriesNumber != ""
	case fieldBusinessName:
		return f.BusinessName != ""
	case fieldBusinessAddress:
		return f.BusinessAddress != ""
	case fieldIssueDate:
		return f.HasIssueDate()
	case fieldTotal:
		return f.TotalAmount.Valid
	case fieldSubtotal:
		return f.Subtotal.Valid
	case fieldTaxAmount:
		return f.TaxAmount.Valid
	case fieldTaxRate:
		return f.TaxRatePercent.Valid
	case fieldCounterpartyTaxID:
		return f.CounterpartyTaxID != ""
	case fieldCounterpartyNationalID:
		return f.CounterpartyNationalID != ""
	case fieldCurrency:
		return f.Currency != ""
	}
	return true
}

func apply(f *models.ExtractedInvoiceFields, u fieldUpdate) {
	switch u.field {
	case fieldDocumentType:
		f.DocumentType = u.docType
	case fieldIssuerTaxID:
		f.IssuerTaxID = u.text
	case fieldSeriesNumber:
		f.DocumentSeriesNumber = u.text
	case fieldBusinessName:
		f.BusinessName = u.text
	case fieldBusinessAddress:
		f.BusinessAddress = u.text
	case fieldIssueDate:
		f.IssueDate = u.date
	case fieldTotal:
		f.TotalAmount = models.Amount(u.amount)
	case fieldSubtotal:
		f.Subtotal = models.Amount(u.amount)
	case fieldTaxAmount:
		f.TaxAmount = models.Amount(u.amount)
	case fieldTaxRate:
		f.TaxRatePercent = models.Amount(u.amount)
	case fieldCounterpartyTaxID:
		f.CounterpartyTaxID = u.text
	case fieldCounterpartyNationalID:
		f.CounterpartyNationalID = u.text
	case fieldCurrency:
		f.Currency = u.text
	}
}

// ScanLines runs every detector over every line and returns the first value
// found for each field. It never fails; missing fields stay unset.
func ScanLines(lines []string) models.ExtractedInvoiceFields {
	d := &scanDoc{lines: lines, norm: normalizeLines(lines)}
	var fields models.ExtractedInvoiceFields
	for i := range lines {
		for _, detect := range detectors {
			for _, u := range detect(d, i) {
				if !isSet(&fields, u.field) {
					apply(&fields, u)
				}
			}
		}
	}
	fields.DocumentSeriesNumber = fixSeriesPrefix(fields.DocumentSeriesNumber, fields.DocumentType)
	if fields.Currency == "" {
		fields.Currency = models.CurrencyPEN
	}
	return fields
}
