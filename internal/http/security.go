package http

import (
	"fmt"
	"net/http"
)

// SecurityHeaders is the header set applied to every response. The API
// serves JSON and event streams only, so nothing may be framed or
// embedded.
type SecurityHeaders struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CrossOriginResource string
	HSTSMaxAge          int
}

func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CrossOriginResource: "same-origin",
		HSTSMaxAge:          31536000, // 1 year
	}
}

// withSecurityHeaders applies s.headers. Ledger data is per holder, so
// responses are never cached by intermediaries.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	cfg := s.headers
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", cfg.XContentTypeOptions)
		h.Set("X-Frame-Options", cfg.XFrameOptions)
		h.Set("Referrer-Policy", cfg.ReferrerPolicy)
		h.Set("Cross-Origin-Resource-Policy", cfg.CrossOriginResource)
		if cfg.CSP != "" {
			h.Set("Content-Security-Policy", cfg.CSP)
		}
		h.Set("Cache-Control", "no-store")

		// HSTS only over TLS
		if r.TLS != nil && cfg.HSTSMaxAge > 0 {
			h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge))
		}
		next.ServeHTTP(w, r)
	})
}
