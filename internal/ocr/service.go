// Package ocr turns scanned comprobantes (PDF, TIFF or photos) into positioned
// words using Google Cloud Vision or a Google Document AI OCR processor.
//
// Both engines return models.OCRResult with Words in reading order: words are
// grouped into rows by the top edge of their bounding boxes, rows are ordered top
// to bottom and words inside a row left to right. Every word of a row carries the
// row's top, so the line segmenter in internal/invoice reproduces the rows.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_PROCESSOR_ID: only for the Document AI engine
//
// Synchronous processing limits: 20MB per document, 5 pages per PDF.
package ocr

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"sort"
	"strings"

	"google.golang.org/api/option"

	"comprobantes/pkg/models"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5

	// DefaultRowThreshold is the vertical distance, in pixels, within which words share a row.
	DefaultRowThreshold = 5.0
)

// Engine names, also stored in models.OCRResult.Source.
const (
	EngineVision     = "vision"
	EngineDocumentAI = "documentai"
)

// OCRService defines the interface for OCR engines.
type OCRService interface {
	// ProcessDocument recognises the words of a PDF, TIFF or image.
	// An empty mimeType is sniffed from the content.
	ProcessDocument(ctx context.Context, data []byte, mimeType string) (*models.OCRResult, error)

	Close() error
}

// DetectMimeType sniffs PDFs, TIFFs and the common image formats.
func DetectMimeType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return "image/tiff"
	}
	return http.DetectContentType(data)
}

// isFileInput reports whether the engine must treat the input as a multi-page file.
func isFileInput(mimeType string) bool {
	return mimeType == "application/pdf" || mimeType == "image/tiff"
}

// checkInput validates size and format and resolves the MIME type.
func checkInput(op string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", WrapOCRError(op, ErrEmptyDocument, "no input data")
	}
	if len(data) > MaxFileSizeBytes {
		return "", WrapOCRError(op, ErrDocumentTooLarge, "")
	}
	if mimeType == "" {
		mimeType = DetectMimeType(data)
	}
	if !isFileInput(mimeType) && !strings.HasPrefix(mimeType, "image/") {
		return "", WrapOCRError(op, ErrUnsupportedFormat, mimeType)
	}
	return mimeType, nil
}

// clientOptions resolves Google credentials from the environment.
// Returns nil options when application default credentials should be used.
func clientOptions() []option.ClientOption {
	if credJSON := getEnvVar("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := getEnvVar("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

func getEnvVar(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

// placedWord is a recognised word before reading-order normalisation.
type placedWord struct {
	text string
	page int
	top  float64
	left float64
}

// orderWords groups words into rows and returns them in reading order.
// A row starts at its topmost word and takes every word whose top lies within threshold of it.
func orderWords(words []placedWord, threshold float64) []models.OCRWord {
	if len(words) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultRowThreshold
	}

	sorted := make([]placedWord, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].page != sorted[j].page {
			return sorted[i].page < sorted[j].page
		}
		return sorted[i].top < sorted[j].top
	})

	out := make([]models.OCRWord, 0, len(sorted))
	for start := 0; start < len(sorted); {
		rowTop := sorted[start].top
		end := start + 1
		for end < len(sorted) && sorted[end].page == sorted[start].page && sorted[end].top-rowTop <= threshold {
			end++
		}
		row := sorted[start:end]
		sort.SliceStable(row, func(i, j int) bool { return row[i].left < row[j].left })
		for _, w := range row {
			out = append(out, models.OCRWord{Text: w.text, Top: rowTop, Page: w.page})
		}
		start = end
	}
	return out
}

// joinRows renders ordered words as text, one row per line.
func joinRows(words []models.OCRWord) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			if w.Page != words[i-1].Page || w.Top != words[i-1].Top {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
