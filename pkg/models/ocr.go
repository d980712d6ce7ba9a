package models

import "time"

// OCRWord is a single recognised word with the top edge of its bounding box.
type OCRWord struct {
	Text string  `json:"text"`
	Top  float64 `json:"top"`  // pixels from the top of the page
	Page int     `json:"page"` // 1-based
}

// OCRResult is the output of an OCR engine for one document.
type OCRResult struct {
	// Text is the engine's own full-text rendering, used when Words is empty.
	Text  string    `json:"text,omitempty"`
	Words []OCRWord `json:"words,omitempty"`

	PageCount          int           `json:"page_count,omitempty"`
	Confidence         float32       `json:"confidence,omitempty"`
	Source             string        `json:"source,omitempty"` // "vision", "documentai", "import"
	ProcessedAt        time.Time     `json:"processed_at,omitempty"`
	ProcessingDuration time.Duration `json:"processing_duration,omitempty"`
}
