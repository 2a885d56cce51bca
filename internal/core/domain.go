package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for every record date.
const DateLayout = "2006-01-02"

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
)

type (
	TransactionType string

	Status string

	// RawRecord is a document of unverified shape, as yielded by a store or
	// a form. It only becomes usable after Normalize.
	RawRecord map[string]any

	// TransactionRecord is the canonical ledger entry. Amount is always a
	// non-negative magnitude; direction comes from Type.
	TransactionRecord struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Type        TransactionType `json:"type"`
		Date        string          `json:"date"`
		IsRecurring bool            `json:"isRecurring"`
		Status      Status          `json:"status"`
		CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	}

	// NewTransactionInput is what a user submits through the add form.
	NewTransactionInput struct {
		Description string
		Amount      string
		Date        string
		Type        string
		Status      string
		IsRecurring bool
	}
)

// IsPending reports whether the record is scheduled rather than realized.
// Anything that is not explicitly pending counts as paid.
func (r TransactionRecord) IsPending() bool {
	return r.Status == StatusPending
}

// SignedAmount returns the amount with the sign implied by the record type.
func (r TransactionRecord) SignedAmount() decimal.Decimal {
	if r.Type == Income {
		return r.Amount
	}
	return r.Amount.Neg()
}

// Raw converts the record back to its document shape. Amount is kept as a
// string so the decimal value survives a JSON round trip unchanged.
func (r TransactionRecord) Raw() RawRecord {
	raw := RawRecord{
		"id":          r.ID,
		"amount":      r.Amount.String(),
		"description": r.Description,
		"type":        string(r.Type),
		"date":        r.Date,
		"isRecurring": r.IsRecurring,
		"status":      string(r.Status),
	}
	if r.CreatedAt != nil {
		raw["createdAt"] = r.CreatedAt.Format(time.RFC3339Nano)
	}
	return raw
}

// Validate checks the fields the add operation requires before any write.
func (in NewTransactionInput) Validate(holderID string) error {
	if strings.TrimSpace(holderID) == "" {
		return &ValidationError{Field: "holder", Reason: "missing account holder"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return &ValidationError{Field: "description", Reason: "cannot be empty"}
	}
	if len(in.Description) > 200 {
		return &ValidationError{Field: "description", Reason: "too long (max 200 characters)"}
	}
	if strings.TrimSpace(in.Amount) == "" {
		return &ValidationError{Field: "amount", Reason: "cannot be empty"}
	}
	return nil
}

// Raw turns the form input into a document ready for normalization.
func (in NewTransactionInput) Raw(createdAt time.Time) RawRecord {
	raw := RawRecord{
		"amount":      strings.TrimSpace(in.Amount),
		"description": strings.TrimSpace(in.Description),
		"type":        strings.TrimSpace(in.Type),
		"status":      strings.TrimSpace(in.Status),
		"isRecurring": in.IsRecurring,
		"createdAt":   createdAt,
	}
	if d := strings.TrimSpace(in.Date); d != "" {
		raw["date"] = d
	}
	return raw
}

// ParseDate parses a record date. Datetime strings are accepted and reduced
// to their calendar date. The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && (s[len(DateLayout)] == 'T' || s[len(DateLayout)] == ' ') {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t as a calendar date in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
