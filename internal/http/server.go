package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/live"
	"ledger/internal/log"
	"ledger/internal/services"
)

// Ledger is the subset of services.LedgerService the handlers use.
type Ledger interface {
	Load(ctx context.Context, holderID string) ([]core.TransactionRecord, error)
	Add(ctx context.Context, holderID string, input core.NewTransactionInput) (core.TransactionRecord, error)
	MarkPaid(ctx context.Context, holderID, recordID string) error
	Remove(ctx context.Context, holderID, recordID string, confirmed bool) error
	Summary(ctx context.Context, holderID string, period core.Period) (core.PeriodSummary, error)
}

// Analyzer produces commentary for a period summary.
type Analyzer interface {
	Analyze(ctx context.Context, summary core.PeriodSummary) (string, error)
}

// Subscriber opens a live feed of ledger snapshots.
type Subscriber interface {
	Subscribe(ctx context.Context, holderID string) (<-chan live.Snapshot, func(), error)
}

// Options wires a Server.
type Options struct {
	Addr         string
	Ledger       Ledger
	Analysis     Analyzer
	Live         Subscriber
	Ready        func(ctx context.Context) error
	Logger       *log.Logger
	RateLimitRPM int
	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
	Now       func() time.Time
	// Headers overrides DefaultSecurityHeaders when set.
	Headers *SecurityHeaders
}

// Server is the ledger JSON API.
type Server struct {
	http.Server

	ledger      Ledger
	analysis    Analyzer
	live        Subscriber
	ready       func(ctx context.Context) error
	logger      *log.Logger
	rateLimiter *rateLimiter
	heartbeat   time.Duration
	now         func() time.Time
	headers     SecurityHeaders

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	s := &Server{
		ledger:      opts.Ledger,
		analysis:    opts.Analysis,
		live:        opts.Live,
		ready:       opts.Ready,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(opts.RateLimitRPM),
		heartbeat:   heartbeat,
		now:         now,
		headers:     DefaultSecurityHeaders(),
	}
	if opts.Headers != nil {
		s.headers = *opts.Headers
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/holders/{holder}/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/v1/holders/{holder}/transactions", s.handleAddTransaction)
	mux.HandleFunc("POST /api/v1/holders/{holder}/transactions/{id}/paid", s.handleMarkPaid)
	mux.HandleFunc("DELETE /api/v1/holders/{holder}/transactions/{id}", s.handleRemoveTransaction)
	mux.HandleFunc("GET /api/v1/holders/{holder}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/v1/holders/{holder}/pending", s.handlePending)
	mux.HandleFunc("POST /api/v1/holders/{holder}/analysis", s.handleAnalysis)
	mux.HandleFunc("GET /api/v1/holders/{holder}/stream", s.handleStream)

	var handler http.Handler = mux
	handler = s.withRateLimit(handler)
	handler = s.withSecurityHeaders(handler)
	handler = s.withAccessLog(handler)
	handler = s.withRecovery(handler)
	handler = s.withRequestID(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// StartBackground starts the rate limiter cleanup loop.
func (s *Server) StartBackground() {
	go s.rateLimiter.startCleanup(5 * time.Minute)
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context(), s.logger).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "backend unavailable").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// ensure the concrete services satisfy the handler interfaces
var (
	_ Ledger     = (*services.LedgerService)(nil)
	_ Analyzer   = (*services.AnalysisService)(nil)
	_ Subscriber = (*live.Hub)(nil)
)
