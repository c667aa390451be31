package google

import (
	"fmt"
	"strings"

	"flatmates/internal/core"
	"flatmates/internal/export"
)

// parseRows converts a values matrix into expenses. A header row is skipped,
// blank rows are ignored and malformed rows are counted but not fatal.
func parseRows(values [][]interface{}) ([]core.Expense, int) {
	out := make([]core.Expense, 0, len(values))
	skipped := 0
	for i, row := range values {
		cols := toStrings(row, len(export.Columns))
		if isBlank(cols) {
			continue
		}
		if i == 0 && strings.EqualFold(cols[0], export.Columns[0]) {
			continue
		}
		e, err := export.ParseRow(cols)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped
}

// toValues renders a header row followed by one row per expense.
func toValues(expenses []core.Expense) [][]interface{} {
	values := make([][]interface{}, 0, len(expenses)+1)
	values = append(values, toInterfaces(export.Columns))
	for _, e := range expenses {
		values = append(values, toInterfaces(export.Row(e)))
	}
	return values
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// toStrings stringifies a row and pads it to width. Sheets omits trailing
// empty cells.
func toStrings(in []interface{}, width int) []string {
	n := max(len(in), width)
	out := make([]string, n)
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}
