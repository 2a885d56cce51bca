package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
)

var parserNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    core.Period
		wantErr string
	}{
		{name: "defaults to now", query: url.Values{}, want: core.Period{Month: 2, Year: 2024}},
		{name: "explicit", query: url.Values{"month": {"0"}, "year": {"2023"}}, want: core.Period{Month: 0, Year: 2023}},
		{name: "december", query: url.Values{"month": {"11"}}, want: core.Period{Month: 11, Year: 2024}},
		{name: "month too large", query: url.Values{"month": {"12"}}, wantErr: "month"},
		{name: "negative month", query: url.Values{"month": {"-1"}}, wantErr: "month"},
		{name: "non numeric month", query: url.Values{"month": {"march"}}, wantErr: "month"},
		{name: "bad year", query: url.Values{"year": {"abc"}}, wantErr: "year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.query, parserNow)
			if tt.wantErr != "" {
				var vErr *core.ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if vErr.Field != tt.wantErr {
					t.Errorf("Field = %q, want %q", vErr.Field, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePeriod() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseToday(t *testing.T) {
	got, err := ParseToday(url.Values{}, parserNow)
	if err != nil || !got.Equal(parserNow) {
		t.Errorf("default = %v, %v", got, err)
	}

	got, err = ParseToday(url.Values{"today": {"2024-06-01"}}, parserNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if core.FormatDate(got) != "2024-06-01" {
		t.Errorf("today = %s", core.FormatDate(got))
	}

	if _, err := ParseToday(url.Values{"today": {"01/06/2024"}}, parserNow); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestParseFlag(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		if !ParseFlag(url.Values{"privacy": {v}}, "privacy") {
			t.Errorf("ParseFlag(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "maybe"} {
		if ParseFlag(url.Values{"privacy": {v}}, "privacy") {
			t.Errorf("ParseFlag(%q) = true", v)
		}
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"description":"  Rent ","amount":950.5,"date":"2024-03-01","type":"expense","status":"pending","isRecurring":true}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !p.IsJSON() {
		t.Error("IsJSON() = false")
	}

	in := p.TransactionInput()
	want := core.NewTransactionInput{
		Description: "Rent",
		Amount:      "950.5",
		Date:        "2024-03-01",
		Type:        "expense",
		Status:      "pending",
		IsRecurring: true,
	}
	if in != want {
		t.Errorf("TransactionInput() = %+v, want %+v", in, want)
	}
}

func TestRequestBodyParser_Form(t *testing.T) {
	body := "description=Salary&amount=2500%2C50&type=income&isRecurring=on"
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.IsJSON() {
		t.Error("IsJSON() = true for form body")
	}

	in := p.TransactionInput()
	if in.Description != "Salary" || in.Amount != "2500,50" || in.Type != "income" || !in.IsRecurring {
		t.Errorf("TransactionInput() = %+v", in)
	}
	if in.Status != "" {
		t.Errorf("Status = %q, want empty", in.Status)
	}
}

func TestRequestBodyParser_Malformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"description":`))
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	// Parse is memoized
	if err := p.Parse(); err == nil {
		t.Fatal("expected memoized error")
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := p.Get("description"); got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\tc\n "); got != "ab\tc" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}
