package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCoerceAmount(t *testing.T) {
	cases := []struct {
		in  any
		out string
	}{
		{"1", "1"},
		{"12.50", "12.5"},
		{"12,50", "12.5"},
		{" 2.50 ", "2.5"},
		{-40, "40"},
		{"-40.5", "40.5"},
		{int64(7), "7"},
		{3.25, "3.25"},
		{json.Number("99.99"), "99.99"},
		{true, "1"},
		{false, "0"},
		{"abc", "0"},
		{"1.2.3", "0"},
		{"", "0"},
		{nil, "0"},
		{math.NaN(), "0"},
		{math.Inf(1), "0"},
		{[]string{"1"}, "0"},
	}
	for _, tc := range cases {
		got := CoerceAmount(tc.in)
		if !got.Equal(decimal.RequireFromString(tc.out)) {
			t.Fatalf("%v expected %s, got %s", tc.in, tc.out, got)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in     string
		masked bool
		out    string
	}{
		{"0", false, "0.00"},
		{"12.5", false, "12.50"},
		{"1234.567", false, "1,234.57"},
		{"-1234567", false, "-1,234,567.00"},
		{"-0.001", false, "0.00"},
		{"560", true, MaskedAmount},
	}
	for _, tc := range cases {
		got := FormatAmount(decimal.RequireFromString(tc.in), tc.masked)
		if got != tc.out {
			t.Fatalf("%s expected %q, got %q", tc.in, tc.out, got)
		}
	}
}
