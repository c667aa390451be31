// Package export converts ledger snapshots to and from the portable export
// bundle (JSON) and the CSV row format shared with spreadsheet backends.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"flatmates/internal/balance"
	"flatmates/internal/core"
)

// Bundle is a full snapshot of the ledger with its derived balances.
type Bundle struct {
	Expenses   []core.Expense  `json:"expenses"`
	ExportDate time.Time       `json:"exportDate"`
	Balances   balance.Summary `json:"balances"`
}

// New builds a bundle for expenses stamped at now.
func New(expenses []core.Expense, now time.Time) Bundle {
	if expenses == nil {
		expenses = []core.Expense{}
	}
	return Bundle{
		Expenses:   expenses,
		ExportDate: now.UTC(),
		Balances:   balance.Compute(expenses),
	}
}

// Encode writes b as indented JSON.
func Encode(w io.Writer, b Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// Decode reads a bundle and validates every record. Balances are recomputed
// from the records rather than trusted from the payload.
func Decode(r io.Reader) (Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Bundle{}, core.NewValidationError("bundle", fmt.Sprintf("malformed json: %v", err))
	}
	if err := ValidateAll(b.Expenses); err != nil {
		return Bundle{}, err
	}
	if b.Expenses == nil {
		b.Expenses = []core.Expense{}
	}
	b.Balances = balance.Compute(b.Expenses)
	return b, nil
}

// ValidateAll checks every record and rejects duplicate ids.
func ValidateAll(expenses []core.Expense) error {
	seen := make(map[string]struct{}, len(expenses))
	for i, e := range expenses {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return core.NewValidationError("id", fmt.Sprintf("duplicate id %q", e.ID))
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
