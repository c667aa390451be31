package core

import "fmt"

const (
	SplitEqual  SplitType = "equal"
	Split60_40  SplitType = "60-40"
	Split40_60  SplitType = "40-60"
	Split70_30  SplitType = "70-30"
	Split30_70  SplitType = "30-70"
	SplitCustom SplitType = "custom"
)

// SplitType selects how the cost of an expense is divided.
type SplitType string

// splitKey indexes the preset table by split and payer.
type splitKey struct {
	split SplitType
	payer Party
}

// presetSplits maps (preset, payer) to (sharath%, thejas%). Presets are
// payer-relative: "60-40" means the payer carries 60 and the other party 40.
var presetSplits = map[splitKey][2]int{
	{SplitEqual, PartySharath}: {50, 50},
	{SplitEqual, PartyThejas}:  {50, 50},
	{Split60_40, PartySharath}: {60, 40},
	{Split60_40, PartyThejas}:  {40, 60},
	{Split40_60, PartySharath}: {40, 60},
	{Split40_60, PartyThejas}:  {60, 40},
	{Split70_30, PartySharath}: {70, 30},
	{Split70_30, PartyThejas}:  {30, 70},
	{Split30_70, PartySharath}: {30, 70},
	{Split30_70, PartyThejas}:  {70, 30},
}

// SplitTypes lists every accepted split type, presets first.
func SplitTypes() []SplitType {
	return []SplitType{SplitEqual, Split60_40, Split40_60, Split70_30, Split30_70, SplitCustom}
}

// ParseSplitType returns the split type named by s; empty means equal.
func ParseSplitType(s string) (SplitType, error) {
	if s == "" {
		return SplitEqual, nil
	}
	st := SplitType(s)
	if !st.Valid() {
		return "", NewValidationError("splitType", fmt.Sprintf("unknown split type %q", s))
	}
	return st, nil
}

func (s SplitType) Valid() bool {
	for _, st := range SplitTypes() {
		if s == st {
			return true
		}
	}
	return false
}

// ResolveSplit returns the stored (sharath%, thejas%) pair for a preset paid
// by payer. Custom splits carry caller-supplied percentages and cannot be
// resolved from the table.
func ResolveSplit(split SplitType, payer Party) (int, int, error) {
	if !payer.Valid() {
		return 0, 0, NewValidationError("paidBy", fmt.Sprintf("unknown party %q", payer))
	}
	if split == SplitCustom {
		return 0, 0, NewValidationError("splitType", "custom split requires explicit percentages")
	}
	pair, ok := presetSplits[splitKey{split, payer}]
	if !ok {
		return 0, 0, NewValidationError("splitType", fmt.Sprintf("unknown split type %q", split))
	}
	return pair[0], pair[1], nil
}
