package core

import "strings"

const (
	CategoryRent        Category = "rent"
	CategoryElectricity Category = "electricity"
	CategoryWifi        Category = "wifi"
	CategoryWater       Category = "water"
	CategoryCook        Category = "cook"
	CategoryGroceries   Category = "groceries"
	CategoryTransport   Category = "transport"
	CategoryMedical     Category = "medical"
	CategoryOther       Category = "other"
)

// Category is a tag inferred from an expense description.
type Category string

type categoryRule struct {
	category Category
	keywords []string
}

// Rules are checked in order; the first keyword hit wins.
var categoryRules = []categoryRule{
	{CategoryRent, []string{"rent"}},
	{CategoryElectricity, []string{"electric", "power"}},
	{CategoryWifi, []string{"wifi", "internet"}},
	{CategoryWater, []string{"water"}},
	{CategoryCook, []string{"cook", "maid"}},
	{CategoryGroceries, []string{"grocer", "food", "meal"}},
	{CategoryTransport, []string{"transport", "uber", "auto"}},
	{CategoryMedical, []string{"medical", "doctor", "medicine"}},
}

// Categorize infers the category of an expense from its description.
func Categorize(description string) Category {
	d := strings.ToLower(description)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(d, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
