package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	PartySharath Party = "Sharath"
	PartyThejas  Party = "Thejas"
)

const dateLayout = "2006-01-02"

type (
	// Party is one of the two fixed participants of the ledger.
	Party string

	Date struct {
		time.Time
	}

	Expense struct {
		ID             string    `json:"id"`
		Description    string    `json:"description"`
		Amount         float64   `json:"amount"`
		PaidBy         Party     `json:"paidBy"`
		Date           Date      `json:"date"`
		SplitType      SplitType `json:"splitType"`
		SharathPercent int       `json:"sharathPercent"`
		ThejasPercent  int       `json:"thejasPercent"`
		Category       Category  `json:"category"`
		Timestamp      time.Time `json:"timestamp"`
	}
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrUnknownParty     = errors.New("unknown party")
	ErrMissingDate      = errors.New("missing date")
	ErrPercentSum       = errors.New("percentages must sum to 100")
)

// Parties returns both participants, party A first.
func Parties() []Party {
	return []Party{PartySharath, PartyThejas}
}

// ParseParty resolves a party name case-insensitively. The abstract
// identifiers "a" and "b" are accepted too.
func ParseParty(s string) (Party, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sharath", "a":
		return PartySharath, nil
	case "thejas", "b":
		return PartyThejas, nil
	}
	return "", ErrUnknownParty
}

func (p Party) Valid() bool {
	return p == PartySharath || p == PartyThejas
}

// Other returns the counterpart of p.
func (p Party) Other() Party {
	if p == PartySharath {
		return PartyThejas
	}
	return PartySharath
}

func (p Party) String() string {
	return string(p)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// SameMonth reports whether d and ref fall in the same calendar month and year.
func (d Date) SameMonth(ref Date) bool {
	return d.Year() == ref.Year() && d.Month() == ref.Month()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ValidateAmount checks that amount is a finite positive number.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Percent returns the share percentage recorded for p.
func (e Expense) Percent(p Party) int {
	if p == PartySharath {
		return e.SharathPercent
	}
	return e.ThejasPercent
}

// Validate checks every per-record invariant of a stored expense.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return NewValidationError("id", "must not be empty")
	}
	if strings.TrimSpace(e.Description) == "" {
		return NewValidationError("description", ErrEmptyDescription.Error())
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return NewValidationError("amount", "must be a finite number greater than zero")
	}
	if !e.PaidBy.Valid() {
		return NewValidationError("paidBy", fmt.Sprintf("unknown party %q", e.PaidBy))
	}
	if err := e.Date.Validate(); err != nil {
		return NewValidationError("date", err.Error())
	}
	if !e.SplitType.Valid() {
		return NewValidationError("splitType", fmt.Sprintf("unknown split type %q", e.SplitType))
	}
	if err := ValidatePercents(e.SharathPercent, e.ThejasPercent); err != nil {
		return err
	}
	return nil
}

// ValidatePercents enforces the [0,100] range and the sum-to-100 rule.
func ValidatePercents(a, b int) error {
	if a < 0 || a > 100 {
		return NewValidationError("sharathPercent", "must be between 0 and 100")
	}
	if b < 0 || b > 100 {
		return NewValidationError("thejasPercent", "must be between 0 and 100")
	}
	if a+b != 100 {
		return NewValidationError("percent", fmt.Sprintf("%d + %d: %s", a, b, ErrPercentSum))
	}
	return nil
}
