package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/ports"
)

// ErrEmptyAnalysis is wrapped in an AnalysisError when the analyst
// returns only whitespace.
var ErrEmptyAnalysis = errors.New("analyst returned no text")

// AnalysisService calls the analysis collaborator with a deadline. Ledger
// state is never read or written here; the caller passes a summary in.
type AnalysisService struct {
	analyst ports.Analyst
	timeout time.Duration
	logger  *log.Logger
}

func NewAnalysisService(analyst ports.Analyst, timeout time.Duration, logger *log.Logger) *AnalysisService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &AnalysisService{
		analyst: analyst,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentAnalysis),
	}
}

// Analyze returns the analyst's commentary on summary. Every failure,
// including timeouts and panics in the analyst, comes back as
// *core.AnalysisError.
func (s *AnalysisService) Analyze(ctx context.Context, summary core.PeriodSummary) (text string, err error) {
	if s.analyst == nil {
		return "", &core.AnalysisError{Err: errors.New("no analyst configured")}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Analyst panicked", "panic", r)
			text, err = "", &core.AnalysisError{Err: errors.New("analyst crashed")}
		}
	}()

	start := time.Now()
	text, err = s.analyst.Analyze(ctx, summary.Request())
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyAnalysis
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Analysis failed",
			log.NewFields().WithPeriod(summary.Period.Month, summary.Period.Year).
				WithOperation(log.OpAnalyze).WithError(err).ToSlice()...)
		return "", &core.AnalysisError{Err: err}
	}

	s.logger.InfoContext(ctx, "Analysis completed",
		log.FieldMonth, summary.Period.Month,
		log.FieldYear, summary.Period.Year,
		log.FieldDuration, time.Since(start).Milliseconds())
	return strings.TrimSpace(text), nil
}
