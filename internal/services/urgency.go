package services

import (
	"time"

	"ledger/internal/core"
)

const (
	Overdue  UrgencyKind = "overdue"
	DueToday UrgencyKind = "due_today"
	Upcoming UrgencyKind = "upcoming"
)

// UrgencyKind classifies a pending record relative to today.
type UrgencyKind string

// Urgency is the classification of one pending record. Days is the number
// of days overdue or until due; it is 0 when due today.
type Urgency struct {
	Kind UrgencyKind `json:"kind"`
	Days int         `json:"days"`
}

// RankedPending pairs a pending record with its urgency.
type RankedPending struct {
	Record  core.TransactionRecord `json:"record"`
	Urgency Urgency                `json:"urgency"`
}

// DaysLeft returns the whole days from today to date, both truncated to
// midnight in today's location. Unparseable dates count as today.
func DaysLeft(date string, today time.Time) int {
	d, ok := core.ParseDate(date)
	if !ok {
		return 0
	}
	y, m, day := today.Date()
	// Compare calendar days in UTC so DST shifts cannot produce fractions.
	// Unix seconds avoid Duration saturating past ~292 years.
	todayUTC := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return int((d.Unix() - todayUTC.Unix()) / 86400)
}

// ClassifyUrgency classifies a pending record's date against today.
func ClassifyUrgency(date string, today time.Time) Urgency {
	days := DaysLeft(date, today)
	switch {
	case days < 0:
		return Urgency{Kind: Overdue, Days: -days}
	case days == 0:
		return Urgency{Kind: DueToday}
	default:
		return Urgency{Kind: Upcoming, Days: days}
	}
}

// RankPending classifies every record, keeping the input order. Feed it
// PeriodSummary.PendingTx to get the most urgent items first.
func RankPending(pending []core.TransactionRecord, today time.Time) []RankedPending {
	out := make([]RankedPending, 0, len(pending))
	for _, r := range pending {
		out = append(out, RankedPending{Record: r, Urgency: ClassifyUrgency(r.Date, today)})
	}
	return out
}
