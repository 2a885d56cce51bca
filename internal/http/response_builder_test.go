package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ledger/internal/core"
)

func TestJSONResponse_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse(map[string]string{"hello": "world"}).
		Status(http.StatusCreated).
		Header("Location", "/x").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/x" {
		t.Errorf("Location = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestJSONResponse_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse(nil).Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{
			name:       "validation",
			err:        &core.ValidationError{Field: "amount", Reason: "cannot be empty"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation",
			wantField:  "amount",
		},
		{
			name:       "not found",
			err:        &core.NotFoundError{HolderID: "u1", RecordID: "r1"},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "transient",
			err:        core.Transient("list", errors.New("disk on fire")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "unavailable",
		},
		{
			name:       "analysis",
			err:        &core.AnalysisError{Err: errors.New("quota")},
			wantStatus: http.StatusBadGateway,
			wantCode:   "analysis_failed",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			FromError(tt.err).Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Error.Field, tt.wantField)
			}
		})
	}
}

func TestFromError_TransientHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	FromError(core.Transient("list", errors.New("password=hunter2"))).Write(w)

	if got := w.Header().Get("Retry-After"); got == "" {
		t.Error("Retry-After not set")
	}
	if body := w.Body.String(); strings.Contains(body, "hunter2") {
		t.Errorf("body leaks store error: %s", body)
	}
}
