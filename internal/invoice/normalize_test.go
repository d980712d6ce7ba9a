package invoice

import "testing"

func TestLabelOffset(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		labels []string
		want   int
	}{
		{"single label", "TOTAL 118.00", []string{"TOTAL"}, 5},
		{"case-insensitive", "Op. Gravada 100.00", []string{"GRAVADA"}, 11},
		{"no label", "118.00", []string{"TOTAL"}, 0},
		{"earliest label wins", "GRAVADA 100.00 SUBTOTAL 90.00", []string{"SUBTOTAL", "GRAVADA"}, 7},
		{"overlapping labels end at the earliest one", "IMPORTE TOTAL A PAGAR 118.00", []string{"IMPORTE TOTAL", "TOTAL A PAGAR"}, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := labelOffset(tt.line, tt.labels...); got != tt.want {
				t.Errorf("labelOffset(%q) = %d, want %d", tt.line, got, tt.want)
			}
		})
	}
}
