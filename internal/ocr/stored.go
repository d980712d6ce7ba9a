package ocr

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"comprobantes/pkg/models"
)

// SourceImport marks results that were read back instead of recognised.
const SourceImport = "import"

// ReadStored loads a previously saved OCR result. JSON input must be a
// models.OCRResult; anything else is taken as plain text, one line per row.
func ReadStored(data []byte) (*models.OCRResult, error) {
	const op = "ReadStored"

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "no input data")
	}

	if trimmed[0] == '{' {
		var result models.OCRResult
		if err := json.Unmarshal(trimmed, &result); err != nil {
			return nil, WrapOCRError(op, ErrUnsupportedFormat, "invalid OCR JSON: "+err.Error())
		}
		if len(result.Words) == 0 && strings.TrimSpace(result.Text) == "" {
			return nil, WrapOCRError(op, ErrEmptyDocument, "OCR JSON has neither words nor text")
		}
		if result.Source == "" {
			result.Source = SourceImport
		}
		return &result, nil
	}

	if !utf8.Valid(trimmed) {
		return nil, WrapOCRError(op, ErrUnsupportedFormat, "stored OCR text is not UTF-8")
	}
	return &models.OCRResult{Text: string(trimmed), Source: SourceImport}, nil
}
