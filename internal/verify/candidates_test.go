package verify

import (
	"testing"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

func TestCandidatesOrder(t *testing.T) {
	q := models.ValidationQuery{IssueDate: models.Date(2025, 3, 11), Amount: decimal.RequireFromString("10.50")}
	got := Candidates(q)

	want := []struct {
		perturbation string
		date         string
		amount       string
	}{
		{"", "11/03/2025", "10.50"},
		{"amount +0.01", "11/03/2025", "10.51"},
		{"amount -0.01", "11/03/2025", "10.49"},
		{"amount +0.02", "11/03/2025", "10.52"},
		{"amount -0.02", "11/03/2025", "10.48"},
		{"date +1 day", "12/03/2025", "10.50"},
		{"date -1 day", "10/03/2025", "10.50"},
		{"day/month swap", "03/11/2025", "10.50"},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Perturbation != w.perturbation || got[i].Query.DateString() != w.date || got[i].Query.AmountString() != w.amount {
			t.Errorf("candidate %d = %q %s %s, want %q %s %s", i,
				got[i].Perturbation, got[i].Query.DateString(), got[i].Query.AmountString(),
				w.perturbation, w.date, w.amount)
		}
	}
}

func TestCandidatesSkipImpossible(t *testing.T) {
	// Day 25 cannot be a month; 0.01 - 0.02 would be negative.
	q := models.ValidationQuery{IssueDate: models.Date(2025, 3, 25), Amount: decimal.RequireFromString("0.01")}
	for _, c := range Candidates(q) {
		if c.Perturbation == "day/month swap" {
			t.Error("swap offered for day 25")
		}
		if c.Query.Amount.IsNegative() {
			t.Errorf("negative amount candidate %q", c.Perturbation)
		}
	}

	same := models.ValidationQuery{IssueDate: models.Date(2025, 5, 5), Amount: decimal.NewFromInt(1)}
	for _, c := range Candidates(same) {
		if c.Perturbation == "day/month swap" {
			t.Error("swap offered when day equals month")
		}
	}
}

func TestDateShiftCrossesMonth(t *testing.T) {
	q := models.ValidationQuery{IssueDate: models.Date(2025, 2, 28), Amount: decimal.NewFromInt(1)}
	for _, c := range Candidates(q) {
		if c.Perturbation == "date +1 day" && c.Query.DateString() != "01/03/2025" {
			t.Errorf("date +1 day = %s", c.Query.DateString())
		}
	}
}
