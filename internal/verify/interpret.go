package verify

import (
	"strings"

	"comprobantes/pkg/models"
)

// Interpretation is the display form of a validation outcome.
type Interpretation struct {
	IsValid        bool   `json:"is_valid"`
	DisplayMessage string `json:"display_message"`
}

// InterpretOutcome maps an outcome to a user-facing message. It performs no I/O.
func InterpretOutcome(outcome models.ValidationOutcome) Interpretation {
	var msg strings.Builder
	switch outcome.Status {
	case models.StatusValid:
		msg.WriteString("Comprobante válido: informado a SUNAT.")
	case models.StatusAnnulled:
		msg.WriteString("Comprobante anulado: el emisor comunicó su baja.")
	case models.StatusRejected:
		msg.WriteString("Comprobante rechazado por SUNAT.")
	default:
		msg.WriteString("Comprobante no encontrado en SUNAT.")
	}

	if outcome.CounterpartyRegistryStatus != "" && outcome.CounterpartyRegistryStatus != "ACTIVO" {
		msg.WriteString(" Estado del contribuyente: " + outcome.CounterpartyRegistryStatus + ".")
	}
	if outcome.DomicileCondition != "" && outcome.DomicileCondition != "HABIDO" {
		msg.WriteString(" Condición de domicilio: " + outcome.DomicileCondition + ".")
	}

	var notes []string
	for _, n := range outcome.Notes {
		n = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n), "-"))
		if n = strings.TrimRight(n, ". "); n != "" {
			notes = append(notes, n)
		}
	}
	if len(notes) > 0 {
		msg.WriteString(" Observaciones: " + strings.Join(notes, "; ") + ".")
	}

	return Interpretation{
		IsValid:        outcome.Status == models.StatusValid,
		DisplayMessage: msg.String(),
	}
}
