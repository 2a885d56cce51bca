// Package http exposes the ledger as a JSON API with a Server-Sent Events
// stream of period summaries.
//
// This file holds the request parsing helpers: period and date query
// parameters and the add-record body, accepted as JSON or form data.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// ParsePeriod reads month (0-11) and year from query, defaulting to the
// period containing now. Out-of-range or non-numeric values are validation
// errors.
func ParsePeriod(query url.Values, now time.Time) (core.Period, error) {
	period := core.PeriodOf(now)

	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 0 || m > 11 {
			return core.Period{}, &core.ValidationError{Field: "month", Reason: "must be an integer between 0 and 11"}
		}
		period.Month = m
	}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return core.Period{}, &core.ValidationError{Field: "year", Reason: "must be a four digit year"}
		}
		period.Year = y
	}
	return period, nil
}

// ParseToday reads the reference date for urgency from the today query
// parameter, defaulting to now.
func ParseToday(query url.Values, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(query.Get("today"))
	if v == "" {
		return now, nil
	}
	t, ok := core.ParseDate(v)
	if !ok {
		return time.Time{}, &core.ValidationError{Field: "today", Reason: "must be a YYYY-MM-DD date"}
	}
	return t, nil
}

// ParseFlag reports whether the named query parameter is set to a true
// value (1, true, yes, on).
func ParseFlag(query url.Values, name string) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get(name))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// RequestBodyParser reads a request body once and exposes its fields,
// whether it was sent as JSON or as form data.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of r's body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body as JSON when it looks like an object, and as form
// data otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns the sanitized string value of key.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Bool returns key as a boolean. Form checkboxes send "on".
func (p *RequestBodyParser) Bool(key string) bool {
	if p.jsonData != nil {
		if b, ok := p.jsonData[key].(bool); ok {
			return b
		}
	}
	switch strings.ToLower(p.Get(key)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// TransactionInput maps the parsed body onto the add-record input.
func (p *RequestBodyParser) TransactionInput() core.NewTransactionInput {
	return core.NewTransactionInput{
		Description: p.Get("description"),
		Amount:      p.Get("amount"),
		Date:        p.Get("date"),
		Type:        p.Get("type"),
		Status:      p.Get("status"),
		IsRecurring: p.Bool("isRecurring"),
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
