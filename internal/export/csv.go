package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"flatmates/internal/core"
)

// Columns is the row layout shared by CSV exports and spreadsheet backends.
var Columns = []string{
	"id", "date", "description", "amount", "paidBy", "splitType",
	"sharathPercent", "thejasPercent", "category", "timestamp",
}

// Row renders e in Columns order.
func Row(e core.Expense) []string {
	return []string{
		e.ID,
		e.Date.String(),
		e.Description,
		strconv.FormatFloat(e.Amount, 'f', -1, 64),
		e.PaidBy.String(),
		string(e.SplitType),
		strconv.Itoa(e.SharathPercent),
		strconv.Itoa(e.ThejasPercent),
		string(e.Category),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// ParseRow is the inverse of Row. The category is re-derived when the
// column is blank.
func ParseRow(cols []string) (core.Expense, error) {
	if len(cols) < len(Columns) {
		return core.Expense{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(cols))
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	date, err := core.ParseDate(cols[1])
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(cols[3], ",", "."), 64)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", cols[3], err)
	}
	payer, err := core.ParseParty(cols[4])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse paidBy %q: %w", cols[4], err)
	}
	pctA, err := strconv.Atoi(cols[6])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse sharathPercent %q: %w", cols[6], err)
	}
	pctB, err := strconv.Atoi(cols[7])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse thejasPercent %q: %w", cols[7], err)
	}
	ts, err := time.Parse(time.RFC3339Nano, cols[9])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse timestamp %q: %w", cols[9], err)
	}
	category := core.Category(cols[8])
	if category == "" {
		category = core.Categorize(cols[2])
	}
	e := core.Expense{
		ID:             cols[0],
		Date:           date,
		Description:    cols[2],
		Amount:         amount,
		PaidBy:         payer,
		SplitType:      core.SplitType(cols[5]),
		SharathPercent: pctA,
		ThejasPercent:  pctB,
		Category:       category,
		Timestamp:      ts.UTC(),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// WriteCSV writes a header row followed by one row per expense.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write(Row(e)); err != nil {
			return fmt.Errorf("write row %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses rows written by WriteCSV. The header row is optional.
func ReadCSV(r io.Reader) ([]core.Expense, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var out []core.Expense
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), Columns[0]) {
			continue
		}
		e, err := ParseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := ValidateAll(out); err != nil {
		return nil, err
	}
	return out, nil
}
