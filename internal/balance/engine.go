// Package balance derives totals, net balances, settlement and filtered or
// aggregated views from a ledger snapshot. Every function is a pure
// projection: the snapshot is never modified.
package balance

import (
	"math"
	"strings"

	"flatmates/internal/core"
)

// SettleTolerance is the absolute net balance below which the parties are
// considered settled.
const SettleTolerance = 0.01

const (
	StatusSettled SettlementStatus = "settled"
	StatusOwes    SettlementStatus = "owes"
)

type (
	SettlementStatus string

	Settlement struct {
		Status   SettlementStatus `json:"status"`
		Debtor   core.Party       `json:"debtor,omitempty"`
		Creditor core.Party       `json:"creditor,omitempty"`
		Amount   float64          `json:"amount"`
		Message  string           `json:"message"`
	}

	// Summary holds per-party totals over the whole ledger history. Net values
	// are paid minus fair share: positive means the party is owed money.
	Summary struct {
		PaidA         float64    `json:"paidSharath"`
		PaidB         float64    `json:"paidThejas"`
		ShareA        float64    `json:"shareSharath"`
		ShareB        float64    `json:"shareThejas"`
		NetA          float64    `json:"netSharath"`
		NetB          float64    `json:"netThejas"`
		TotalExpenses float64    `json:"totalExpenses"`
		Count         int        `json:"count"`
		Settlement    Settlement `json:"settlement"`
	}
)

// Shares splits the amount of e by its stored percentages.
func Shares(e core.Expense) (shareA, shareB float64) {
	shareA = e.Amount * float64(e.SharathPercent) / 100
	shareB = e.Amount * float64(e.ThejasPercent) / 100
	return shareA, shareB
}

// Compute derives the balance summary of a ledger snapshot. An empty ledger
// yields a zero summary that is settled.
func Compute(expenses []core.Expense) Summary {
	var s Summary
	for _, e := range expenses {
		shareA, shareB := Shares(e)
		s.ShareA += shareA
		s.ShareB += shareB
		if e.PaidBy == core.PartySharath {
			s.PaidA += e.Amount
		} else {
			s.PaidB += e.Amount
		}
		s.TotalExpenses += e.Amount
		s.Count++
	}
	s.NetA = s.PaidA - s.ShareA
	s.NetB = s.PaidB - s.ShareB
	s.Settlement = Settle(s.NetA)
	return s
}

// Settle turns party A's net balance into a settlement statement.
func Settle(netA float64) Settlement {
	if math.Abs(netA) < SettleTolerance {
		return Settlement{Status: StatusSettled, Message: "All settled up"}
	}
	st := Settlement{Status: StatusOwes, Amount: math.Abs(netA)}
	if netA > 0 {
		st.Debtor, st.Creditor = core.PartyThejas, core.PartySharath
	} else {
		st.Debtor, st.Creditor = core.PartySharath, core.PartyThejas
	}
	st.Message = st.Debtor.String() + " owes " + st.Creditor.String() + " " + core.FormatAmount(st.Amount)
	return st
}

// Filter returns the expenses whose description, payer or category contains
// term, ignoring case. A blank term returns the input unchanged.
func Filter(expenses []core.Expense, term string) []core.Expense {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return expenses
	}
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if strings.Contains(strings.ToLower(e.Description), term) ||
			strings.Contains(strings.ToLower(string(e.PaidBy)), term) ||
			strings.Contains(strings.ToLower(string(e.Category)), term) {
			out = append(out, e)
		}
	}
	return out
}
