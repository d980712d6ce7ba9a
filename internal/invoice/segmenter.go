package invoice

import (
	"math"
	"strings"

	"comprobantes/pkg/models"
)

// DefaultLineThreshold is the vertical distance, in pixels, beyond which a word starts a new line.
const DefaultLineThreshold = 5.0

// SegmentLines groups OCR words into text lines. Words are expected in reading order;
// a word opens a new line when it sits on another page or when its top edge differs
// from the previous word's by more than threshold pixels. Words on a line are joined
// by a single space.
func SegmentLines(words []models.OCRWord, threshold float64) []string {
	if len(words) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultLineThreshold
	}

	var lines []string
	var current []string
	prev := words[0]
	for i, word := range words {
		text := strings.TrimSpace(word.Text)
		if i > 0 && (word.Page != prev.Page || math.Abs(word.Top-prev.Top) > threshold) {
			if len(current) > 0 {
				lines = append(lines, strings.Join(current, " "))
			}
			current = current[:0]
		}
		if text != "" {
			current = append(current, text)
		}
		prev = word
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

// SplitText turns an engine's full-text rendering into lines, dropping blank ones.
func SplitText(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
