package balance

import "flatmates/internal/core"

type (
	// CategoryAmount represents an amount aggregated by category.
	CategoryAmount struct {
		Category core.Category `json:"category"`
		Amount   float64       `json:"amount"`
	}

	// MonthStats is a compact summary for the month containing a reference date.
	MonthStats struct {
		Year         int              `json:"year"`
		Month        int              `json:"month"`
		Day          int              `json:"day"`
		Total        float64          `json:"total"`
		DailyAverage float64          `json:"dailyAverage"`
		Count        int              `json:"count"`
		ByCategory   []CategoryAmount `json:"byCategory"`
	}
)

// MonthTotal sums the amounts dated in the same calendar month and year as ref.
func MonthTotal(expenses []core.Expense, ref core.Date) float64 {
	var total float64
	for _, e := range expenses {
		if e.Date.SameMonth(ref) {
			total += e.Amount
		}
	}
	return total
}

// DailyAverage is the month total divided by the day of month of ref, i.e.
// spend per elapsed day rather than a full-month projection.
func DailyAverage(expenses []core.Expense, ref core.Date) float64 {
	day := ref.Day()
	if day <= 0 {
		return 0
	}
	return MonthTotal(expenses, ref) / float64(day)
}

// Stats aggregates the month of ref, grouping spend by category in first-seen
// order.
func Stats(expenses []core.Expense, ref core.Date) MonthStats {
	ms := MonthStats{
		Year:       ref.Year(),
		Month:      int(ref.Month()),
		Day:        ref.Day(),
		ByCategory: []CategoryAmount{},
	}
	index := map[core.Category]int{}
	for _, e := range expenses {
		if !e.Date.SameMonth(ref) {
			continue
		}
		ms.Total += e.Amount
		ms.Count++
		i, ok := index[e.Category]
		if !ok {
			i = len(ms.ByCategory)
			index[e.Category] = i
			ms.ByCategory = append(ms.ByCategory, CategoryAmount{Category: e.Category})
		}
		ms.ByCategory[i].Amount += e.Amount
	}
	if ms.Day > 0 {
		ms.DailyAverage = ms.Total / float64(ms.Day)
	}
	return ms
}
