package verify

import (
	"strings"
	"testing"

	"comprobantes/pkg/models"
)

func TestInterpretOutcome(t *testing.T) {
	tests := []struct {
		name      string
		outcome   models.ValidationOutcome
		wantValid bool
		contains  []string
	}{
		{
			name:      "valid",
			outcome:   models.ValidationOutcome{Status: models.StatusValid, CounterpartyRegistryStatus: "ACTIVO", DomicileCondition: "HABIDO"},
			wantValid: true,
			contains:  []string{"válido"},
		},
		{
			name:      "valid with warnings",
			outcome:   models.ValidationOutcome{Status: models.StatusValid, CounterpartyRegistryStatus: "BAJA DE OFICIO", DomicileCondition: "NO HABIDO", Notes: []string{"- El comprobante fue informado."}},
			wantValid: true,
			contains:  []string{"BAJA DE OFICIO", "NO HABIDO", "Observaciones: El comprobante fue informado."},
		},
		{name: "not found", outcome: models.ValidationOutcome{Status: models.StatusNotFound}, contains: []string{"no encontrado"}},
		{name: "annulled", outcome: models.ValidationOutcome{Status: models.StatusAnnulled}, contains: []string{"anulado"}},
		{name: "rejected", outcome: models.ValidationOutcome{Status: models.StatusRejected}, contains: []string{"rechazado"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InterpretOutcome(tt.outcome)
			if got.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", got.IsValid, tt.wantValid)
			}
			for _, s := range tt.contains {
				if !strings.Contains(got.DisplayMessage, s) {
					t.Errorf("DisplayMessage %q does not contain %q", got.DisplayMessage, s)
				}
			}
		})
	}
}
