package google

import (
	"reflect"
	"testing"
	"time"

	"flatmates/internal/core"
)

func sampleExpenses() []core.Expense {
	return []core.Expense{
		{
			ID: "e2", Description: "Cook salary", Amount: 4000, PaidBy: core.PartyThejas,
			Date: core.NewDate(2025, 7, 5), SplitType: core.Split40_60,
			SharathPercent: 60, ThejasPercent: 40, Category: core.CategoryCook,
			Timestamp: time.Date(2025, 7, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "e1", Description: "Rent July", Amount: 12000.5, PaidBy: core.PartySharath,
			Date: core.NewDate(2025, 7, 1), SplitType: core.SplitEqual,
			SharathPercent: 50, ThejasPercent: 50, Category: core.CategoryRent,
			Timestamp: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestRowsRoundTrip(t *testing.T) {
	want := sampleExpenses()
	values := toValues(want)

	if len(values) != len(want)+1 {
		t.Fatalf("expected header plus %d rows, got %d", len(want), len(values))
	}
	if values[0][0] != "id" {
		t.Fatalf("first row should be the header, got %v", values[0])
	}

	got, skipped := parseRows(values)
	if skipped != 0 {
		t.Fatalf("skipped %d rows", skipped)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestParseRowsTolerance(t *testing.T) {
	values := [][]interface{}{
		{"id", "date", "description", "amount", "paidBy", "splitType", "sharathPercent", "thejasPercent", "category", "timestamp"},
		{},
		{"", "", ""},
		// Category omitted: derived from the description.
		{"a", "2025-07-02", "Water can", "60", "thejas", "equal", "50", "50", "", "2025-07-02T08:00:00Z"},
		// Percentages do not add up.
		{"b", "2025-07-02", "Snacks", "10", "Sharath", "custom", "70", "20", "other", "2025-07-02T08:00:00Z"},
		// Truncated row.
		{"c", "2025-07-02"},
		// Amount with decimal comma, as typed in a localised sheet.
		{"d", "2025-07-03", "Auto fare", "12,5", "Sharath", "equal", "50", "50", "transport", "2025-07-03T08:00:00Z"},
	}

	got, skipped := parseRows(values)
	if skipped != 2 {
		t.Fatalf("skipped = %d, want 2", skipped)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d rows, want 2", len(got))
	}
	if got[0].Category != core.CategoryWater || got[0].PaidBy != core.PartyThejas {
		t.Errorf("unexpected first row %+v", got[0])
	}
	if got[1].Amount != 12.5 {
		t.Errorf("amount = %v, want 12.5", got[1].Amount)
	}
}

func TestToStringsPads(t *testing.T) {
	got := toStrings([]interface{}{" a ", 3.5}, 4)
	want := []string{"a", "3.5", "", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("toStrings = %q, want %q", got, want)
	}
}
