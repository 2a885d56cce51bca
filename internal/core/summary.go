package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChangeAdded   ChangeKind = "added"
	ChangePaid    ChangeKind = "paid"
	ChangeRemoved ChangeKind = "removed"
)

type (
	// Period is a calendar month. Month is zero-based (0 = January).
	Period struct {
		Month int `json:"month"`
		Year  int `json:"year"`
	}

	// PeriodSummary is everything derived from one ledger snapshot for one
	// selected period.
	PeriodSummary struct {
		Period          Period          `json:"period"`
		GlobalBalance   decimal.Decimal `json:"globalBalance"`
		StartingBalance decimal.Decimal `json:"startingBalance"`
		EndingBalance   decimal.Decimal `json:"endingBalance"`
		PeriodIncome    decimal.Decimal `json:"periodIncome"`
		PeriodExpense   decimal.Decimal `json:"periodExpense"`
		PeriodFlow      decimal.Decimal `json:"periodFlow"`
		// ToCollect and ToPay total the outstanding pending income and
		// expense across the whole ledger.
		ToCollect   decimal.Decimal     `json:"toCollect"`
		ToPay       decimal.Decimal     `json:"toPay"`
		PeriodTx    []TransactionRecord `json:"periodTx"`
		RecurringTx []TransactionRecord `json:"recurringTx"`
		PendingTx   []TransactionRecord `json:"pendingTx"`
	}

	ChangeKind string

	// LedgerChange describes one committed mutation of a holder's ledger.
	LedgerChange struct {
		HolderID string     `json:"holderId"`
		RecordID string     `json:"recordId"`
		Kind     ChangeKind `json:"kind"`
		At       time.Time  `json:"at"`
	}

	AnalysisTotals struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}

	Outstanding struct {
		ToCollect decimal.Decimal `json:"toCollect"`
		ToPay     decimal.Decimal `json:"toPay"`
	}

	// AnalysisRequest is the input handed to the analysis collaborator.
	AnalysisRequest struct {
		Period      Period              `json:"period"`
		PeriodTx    []TransactionRecord `json:"periodTx"`
		Totals      AnalysisTotals      `json:"totals"`
		Outstanding Outstanding         `json:"outstanding"`
	}
)

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()) - 1, Year: t.Year()}
}

// Valid reports whether Month is within 0-11.
func (p Period) Valid() bool {
	return p.Month >= 0 && p.Month <= 11
}

// Start returns the first calendar day of the period at midnight UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month+1), 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether date falls in the period by calendar month and
// year equality. Unparseable dates belong to no period.
func (p Period) Contains(date string) bool {
	t, ok := ParseDate(date)
	if !ok {
		return false
	}
	return t.Year() == p.Year && int(t.Month())-1 == p.Month
}

// Request builds the analysis input from a computed summary.
func (s PeriodSummary) Request() AnalysisRequest {
	return AnalysisRequest{
		Period:   s.Period,
		PeriodTx: s.PeriodTx,
		Totals: AnalysisTotals{
			Income:  s.PeriodIncome,
			Expense: s.PeriodExpense,
			Balance: s.EndingBalance,
		},
		Outstanding: Outstanding{
			ToCollect: s.ToCollect,
			ToPay:     s.ToPay,
		},
	}
}
