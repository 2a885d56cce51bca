// Package core provides the ledger's record model and money handling.
//
// This file contains the numeric coercion applied to amounts of unverified
// type and the display formatter used by the presentation layer.
package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaskedAmount replaces every figure when privacy mode is on.
const MaskedAmount = "••••"

// CoerceAmount converts v into a finite, non-negative decimal.
//
// Numbers, numeric strings (dot or comma decimal separator), json.Number and
// booleans are accepted. Anything unparseable or non-finite becomes zero.
// The sign of the input is discarded: direction comes from the record type.
//
// Examples:
//
//	CoerceAmount("12.50")  -> 12.5
//	CoerceAmount("12,50")  -> 12.5
//	CoerceAmount(-40)      -> 40
//	CoerceAmount("abc")    -> 0
//	CoerceAmount(math.NaN()) -> 0
func CoerceAmount(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return n.Abs()
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)).Abs()
	case int32:
		return decimal.NewFromInt32(n).Abs()
	case int64:
		return decimal.NewFromInt(n).Abs()
	case uint:
		return decimal.NewFromUint64(uint64(n))
	case uint64:
		return decimal.NewFromUint64(n)
	case json.Number:
		return fromString(n.String())
	case string:
		return fromString(n)
	case bool:
		if n {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Abs(f))
}

func fromString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	// Accept a decimal comma when it is the only separator
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Abs()
}

// FormatAmount renders d with two decimals and thousands separators
// (e.g. "-1,234.50"). When masked is true the figure is hidden.
func FormatAmount(d decimal.Decimal, masked bool) string {
	if masked {
		return MaskedAmount
	}
	rounded := d.Round(2)
	intPart, frac, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
