// Package invoice extracts structured fields from the OCR text of Peruvian
// electronic payment documents (facturas, boletas, notas de crédito y débito).
//
// Extraction works on text lines. OCR word boxes are grouped into lines by their
// vertical position, then an ordered chain of detectors scans each line:
//
//	document type → issuer RUC → series-number → business name → address →
//	issue date → total → subtotal → IGV → buyer id → currency
//
// The first value found for a field wins. A coherence pass then reconciles the
// amounts against explicit labels such as "TOTAL A PAGAR" and "IGV (18%)",
// derives a single missing amount, and flags subtotal/tax as advisory when they
// do not add up to the total.
//
// Configuration:
//   - LINE_THRESHOLD_PX: vertical gap separating two lines (default 5)
//   - AMOUNT_TOLERANCE: accepted gap between subtotal+tax and total (default 1.00)
//   - VALID_TAX_RATES: rates a derived IGV rate may take (default 10,18)
//   - DISCREPANCY_POLICY: keep or clear subtotal/tax on a discrepancy (default keep)
//   - OPENAI_API_KEY, OPENAI_MODEL: optional LLM completion of missing fields
package invoice
