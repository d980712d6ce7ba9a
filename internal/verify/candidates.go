package verify

import (
	"time"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

// Candidate is one query the controller may send, with the perturbation that produced it.
type Candidate struct {
	Query        models.ValidationQuery
	Perturbation string // empty for the exact values
}

// AllCandidates is a budget large enough to try every candidate Candidates can produce.
const AllCandidates = 8

var amountSteps = []struct {
	delta decimal.Decimal
	label string
}{
	{decimal.RequireFromString("0.01"), "amount +0.01"},
	{decimal.RequireFromString("-0.01"), "amount -0.01"},
	{decimal.RequireFromString("0.02"), "amount +0.02"},
	{decimal.RequireFromString("-0.02"), "amount -0.02"},
}

// Candidates returns the perturbations of q in the order they are tried: exact
// values, amount rounding, date off by one day, then day/month transposition.
// Candidates with a negative amount or an impossible transposition are left out.
func Candidates(q models.ValidationQuery) []Candidate {
	candidates := make([]Candidate, 0, AllCandidates)
	candidates = append(candidates, Candidate{Query: q})

	for _, step := range amountSteps {
		amount := q.Amount.Add(step.delta)
		if amount.IsNegative() {
			continue
		}
		candidates = append(candidates, Candidate{Query: q.WithAmount(amount), Perturbation: step.label})
	}

	candidates = append(candidates,
		Candidate{Query: q.WithDate(q.IssueDate.AddDate(0, 0, 1)), Perturbation: "date +1 day"},
		Candidate{Query: q.WithDate(q.IssueDate.AddDate(0, 0, -1)), Perturbation: "date -1 day"},
	)

	if swapped, ok := swapDayMonth(q); ok {
		candidates = append(candidates, Candidate{Query: swapped, Perturbation: "day/month swap"})
	}
	return candidates
}

func swapDayMonth(q models.ValidationQuery) (models.ValidationQuery, bool) {
	day, month := q.IssueDate.Day(), int(q.IssueDate.Month())
	if day > 12 || day == month {
		return q, false
	}
	return q.WithDate(models.Date(q.IssueDate.Year(), time.Month(day), month)), true
}
