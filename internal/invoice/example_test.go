package invoice_test

import (
	"fmt"

	"comprobantes/internal/invoice"
)

// Example shows extraction from text lines as produced by the OCR line segmenter.
func Example() {
	extractor := invoice.NewExtractor(invoice.ExtractorConfig{})

	fields := extractor.ExtractLines([]string{
		"FACTURA ELECTRONICA",
		"RUC: 20123456789",
		"F001-00012345",
		"Fecha: 15/03/2025",
		"OP GRAVADA 100.00",
		"I.G.V (18%) 18.00",
		"TOTAL A PAGAR 118.00",
	})

	fmt.Println("RUC:", fields.IssuerTaxID)
	fmt.Println("Document:", fields.DocumentType.Code(), fields.DocumentSeriesNumber)
	fmt.Println("Issued:", fields.IssueDate.Format("2006-01-02"))
	fmt.Printf("Amounts: %s + %s (%s%%) = %s %s\n",
		fields.Subtotal.Decimal.StringFixed(2),
		fields.TaxAmount.Decimal.StringFixed(2),
		fields.TaxRatePercent.Decimal.String(),
		fields.TotalAmount.Decimal.StringFixed(2),
		fields.Currency)
	fmt.Println("Missing:", invoice.MissingFields(fields))
	// Output:
	// RUC: 20123456789
	// Document: 01 F001-00012345
	// Issued: 2025-03-15
	// Amounts: 100.00 + 18.00 (18%) = 118.00 PEN
	// Missing: []
}

// ExampleParseAmount shows the accepted amount notations.
func ExampleParseAmount() {
	for _, s := range []string{"S/ 1,180.00", "1.180,00", "118,5"} {
		amount, err := invoice.ParseAmount(s)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(amount.StringFixed(2))
	}
	// Output:
	// 1180.00
	// 1180.00
	// 118.50
}
