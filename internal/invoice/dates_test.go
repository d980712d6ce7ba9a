package invoice

import (
	"testing"
	"time"

	"comprobantes/pkg/models"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		line string
		want time.Time
		ok   bool
	}{
		{line: "Fecha: 15/03/2025", want: models.Date(2025, 3, 15), ok: true},
		{line: "Fecha 1-3-2025", want: models.Date(2025, 3, 1), ok: true},
		{line: "15.03.2025", want: models.Date(2025, 3, 15), ok: true},
		{line: "EMISION 15/03/25", want: models.Date(2025, 3, 15), ok: true},
		{line: "EMISION 15/03/99", want: models.Date(1999, 3, 15), ok: true},
		{line: "2025-03-15", want: models.Date(2025, 3, 15), ok: true},
		{line: "Lima, 5 de setiembre del 2024", want: models.Date(2024, 9, 5), ok: true},
		{line: "07 de Diciembre de 2023", want: models.Date(2023, 12, 7), ok: true},
		{line: "31/02/2025", ok: false},
		{line: "15/13/2025", ok: false},
		{line: "sin fecha", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseDate(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.line, got, tt.want)
			}
		})
	}
}
