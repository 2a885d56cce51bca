package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Normalize coerces raw into a canonical record using the current time for
// defaults. It never fails.
func Normalize(raw RawRecord) TransactionRecord {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt is Normalize with an explicit clock. A missing date becomes
// now's calendar date and a missing id is synthesized.
func NormalizeAt(raw RawRecord, now time.Time) TransactionRecord {
	rec := TransactionRecord{
		ID:          stringField(raw["id"]),
		Amount:      CoerceAmount(raw["amount"]),
		Description: stringField(raw["description"]),
		Type:        Expense,
		Date:        stringField(raw["date"]),
		IsRecurring: truthy(raw["isRecurring"]),
		Status:      StatusPaid,
		CreatedAt:   timeField(raw["createdAt"]),
	}

	if t, ok := raw["type"].(string); ok && t == string(Income) {
		rec.Type = Income
	}
	if s, ok := raw["status"].(string); ok && s == string(StatusPending) {
		rec.Status = StatusPending
	}
	if t, ok := raw["date"].(time.Time); ok && !t.IsZero() {
		rec.Date = FormatDate(t)
	}
	if rec.Date == "" {
		rec.Date = FormatDate(now)
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}
	return rec
}

// NewID returns a process-unique, time-ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int, int64, int32, uint, uint64, bool:
		return fmt.Sprint(s)
	case time.Time:
		return ""
	default:
		return ""
	}
}

// truthy follows the usual truthiness rules, except that the strings
// "false" and "0" are false so form and CSV values behave as expected.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		s := strings.TrimSpace(strings.ToLower(b))
		return s != "" && s != "false" && s != "0"
	case float64:
		return b != 0 && !math.IsNaN(b)
	case int:
		return b != 0
	case int64:
		return b != 0
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}

func timeField(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return nil
		}
		t = *x
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	if t.IsZero() {
		return nil
	}
	return &t
}
