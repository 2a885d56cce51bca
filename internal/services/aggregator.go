// Package services provides business logic and orchestration services.
//
// This file holds the period aggregator: a pure derivation of balances and
// views from a ledger snapshot and a selected month. It performs no I/O and
// keeps no state, so it is safe to call concurrently.
package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Aggregate derives the period summary for month (0-11) of year.
//
// Paid and pending flows are kept apart: only paid records (including any
// record without an explicit pending status) move the global, starting and
// period figures. Pending records only show up in PendingTx and in the
// outstanding ToCollect/ToPay totals.
//
// Period membership uses calendar month/year equality, while the starting
// balance uses a strict "before the 1st of the month" comparison. The two
// checks are intentionally distinct.
func Aggregate(records []core.TransactionRecord, month, year int) core.PeriodSummary {
	period := core.Period{Month: month, Year: year}
	startOfPeriod := period.Start()

	summary := core.PeriodSummary{
		Period:          period,
		GlobalBalance:   decimal.Zero,
		StartingBalance: decimal.Zero,
		EndingBalance:   decimal.Zero,
		PeriodIncome:    decimal.Zero,
		PeriodExpense:   decimal.Zero,
		PeriodFlow:      decimal.Zero,
		ToCollect:       decimal.Zero,
		ToPay:           decimal.Zero,
		PeriodTx:        []core.TransactionRecord{},
		RecurringTx:     []core.TransactionRecord{},
		PendingTx:       []core.TransactionRecord{},
	}

	for _, r := range records {
		if period.Contains(r.Date) {
			summary.PeriodTx = append(summary.PeriodTx, r)
		}
		if r.IsRecurring {
			summary.RecurringTx = append(summary.RecurringTx, r)
		}

		if r.IsPending() {
			summary.PendingTx = append(summary.PendingTx, r)
			if r.Type == core.Income {
				summary.ToCollect = summary.ToCollect.Add(r.Amount)
			} else {
				summary.ToPay = summary.ToPay.Add(r.Amount)
			}
			continue
		}

		// Paid from here on
		summary.GlobalBalance = summary.GlobalBalance.Add(r.SignedAmount())
		if d, ok := core.ParseDate(r.Date); ok && d.Before(startOfPeriod) {
			summary.StartingBalance = summary.StartingBalance.Add(r.SignedAmount())
		}
	}

	for _, r := range summary.PeriodTx {
		if r.IsPending() {
			continue
		}
		switch r.Type {
		case core.Income:
			summary.PeriodIncome = summary.PeriodIncome.Add(r.Amount)
		case core.Expense:
			summary.PeriodExpense = summary.PeriodExpense.Add(r.Amount)
		}
	}

	summary.PeriodFlow = summary.PeriodIncome.Sub(summary.PeriodExpense)
	summary.EndingBalance = summary.StartingBalance.Add(summary.PeriodFlow)

	sortByUrgency(summary.PendingTx)
	return summary
}

// sortByUrgency orders records by ascending date, oldest first. Ties keep
// their encounter order; unparseable dates go last.
func sortByUrgency(records []core.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		di, okI := core.ParseDate(records[i].Date)
		dj, okJ := core.ParseDate(records[j].Date)
		switch {
		case okI && okJ:
			return di.Before(dj)
		case okI:
			return true
		default:
			return false
		}
	})
}
