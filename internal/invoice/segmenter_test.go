package invoice

import (
	"reflect"
	"testing"

	"comprobantes/pkg/models"
)

func TestSegmentLines(t *testing.T) {
	tests := []struct {
		name      string
		words     []models.OCRWord
		threshold float64
		want      []string
	}{
		{
			name: "same top joins",
			words: []models.OCRWord{
				{Text: "TOTAL", Top: 100, Page: 1},
				{Text: "A", Top: 101, Page: 1},
				{Text: "PAGAR", Top: 99, Page: 1},
				{Text: "118.00", Top: 102, Page: 1},
			},
			threshold: 5,
			want:      []string{"TOTAL A PAGAR 118.00"},
		},
		{
			name: "gap beyond threshold splits",
			words: []models.OCRWord{
				{Text: "RUC:", Top: 40, Page: 1},
				{Text: "20123456789", Top: 41, Page: 1},
				{Text: "F001-00012345", Top: 60, Page: 1},
			},
			threshold: 5,
			want:      []string{"RUC: 20123456789", "F001-00012345"},
		},
		{
			name: "exactly threshold stays on line",
			words: []models.OCRWord{
				{Text: "OP", Top: 10, Page: 1},
				{Text: "GRAVADA", Top: 15, Page: 1},
			},
			threshold: 5,
			want:      []string{"OP GRAVADA"},
		},
		{
			name: "page change splits",
			words: []models.OCRWord{
				{Text: "end", Top: 700, Page: 1},
				{Text: "start", Top: 700, Page: 2},
			},
			threshold: 5,
			want:      []string{"end", "start"},
		},
		{
			name: "zero threshold falls back to default",
			words: []models.OCRWord{
				{Text: "a", Top: 10, Page: 1},
				{Text: "b", Top: 14, Page: 1},
			},
			threshold: 0,
			want:      []string{"a b"},
		},
		{
			name:  "no words",
			words: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentLines(tt.words, tt.threshold)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SegmentLines() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitText(t *testing.T) {
	got := SplitText("FACTURA\r\n\n  RUC 20123456789  \nTOTAL\n")
	want := []string{"FACTURA", "RUC 20123456789", "TOTAL"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitText() = %q, want %q", got, want)
	}
}
