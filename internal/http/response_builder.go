package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// JSONResponse builds a JSON response with a status and optional headers.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a 200 response carrying body.
func NewJSONResponse(body any) *JSONResponse {
	return &JSONResponse{statusCode: http.StatusOK, headers: make(map[string]string), body: body}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

// Write sends the response.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse builds an error response with the given code.
func ErrorResponse(statusCode int, code, message string) *JSONResponse {
	return NewJSONResponse(ErrorBody{Error: ErrorDetail{Code: code, Message: message}}).Status(statusCode)
}

// FromError maps a ledger error onto its HTTP response: validation 422,
// not found 404, store unavailable 503, analysis 502, anything else 500.
func FromError(err error) *JSONResponse {
	var vErr *core.ValidationError
	switch {
	case errors.As(err, &vErr):
		return NewJSONResponse(ErrorBody{Error: ErrorDetail{Code: "validation", Message: vErr.Error(), Field: vErr.Field}}).
			Status(http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrValidation):
		return ErrorResponse(http.StatusUnprocessableEntity, "validation", err.Error())
	case errors.Is(err, core.ErrNotFound):
		return ErrorResponse(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrTransient):
		return ErrorResponse(http.StatusServiceUnavailable, "unavailable", "ledger store unavailable, retry later").
			Header("Retry-After", "5")
	case errors.Is(err, core.ErrAnalysis):
		return ErrorResponse(http.StatusBadGateway, "analysis_failed", "analysis is currently unavailable")
	default:
		return ErrorResponse(http.StatusInternalServerError, "internal", "internal error")
	}
}

// writeError logs err with the request logger and writes its response.
// Client errors log at warn, server errors at error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := FromError(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithError(err).ToSlice()
	if resp.statusCode >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields...)
	}
	resp.Write(w)
}
