package http

import (
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/services"
)

// SummaryDisplay holds the summary figures formatted for display, or masked
// in privacy mode.
type SummaryDisplay struct {
	GlobalBalance   string `json:"globalBalance"`
	StartingBalance string `json:"startingBalance"`
	EndingBalance   string `json:"endingBalance"`
	PeriodIncome    string `json:"periodIncome"`
	PeriodExpense   string `json:"periodExpense"`
	PeriodFlow      string `json:"periodFlow"`
	ToCollect       string `json:"toCollect"`
	ToPay           string `json:"toPay"`
}

// SummaryResponse is the body of the summary endpoint and of every stream
// event. Summary is omitted in privacy mode.
type SummaryResponse struct {
	Period  core.Period         `json:"period"`
	Masked  bool                `json:"masked"`
	Display SummaryDisplay      `json:"display"`
	Counts  SummaryCounts       `json:"counts"`
	Summary *core.PeriodSummary `json:"summary,omitempty"`
}

// SummaryCounts gives the sizes of the derived views.
type SummaryCounts struct {
	Period    int `json:"period"`
	Recurring int `json:"recurring"`
	Pending   int `json:"pending"`
}

// PendingItem is one ranked pending record with its display amount.
type PendingItem struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Type        core.TransactionType `json:"type"`
	Date        string               `json:"date"`
	Amount      string               `json:"amount"`
	IsRecurring bool                 `json:"isRecurring"`
	Urgency     services.Urgency     `json:"urgency"`
}

// AnalysisResponse carries the analyst's commentary.
type AnalysisResponse struct {
	Period core.Period `json:"period"`
	Text   string      `json:"text"`
}

// NewSummaryResponse formats summary for display.
func NewSummaryResponse(summary core.PeriodSummary, masked bool) SummaryResponse {
	resp := SummaryResponse{
		Period:  summary.Period,
		Masked:  masked,
		Display: SummaryDisplay{
			GlobalBalance:   core.FormatAmount(summary.GlobalBalance, masked),
			StartingBalance: core.FormatAmount(summary.StartingBalance, masked),
			EndingBalance:   core.FormatAmount(summary.EndingBalance, masked),
			PeriodIncome:    core.FormatAmount(summary.PeriodIncome, masked),
			PeriodExpense:   core.FormatAmount(summary.PeriodExpense, masked),
			PeriodFlow:      core.FormatAmount(summary.PeriodFlow, masked),
			ToCollect:       core.FormatAmount(summary.ToCollect, masked),
			ToPay:           core.FormatAmount(summary.ToPay, masked),
		},
		Counts: SummaryCounts{
			Period:    len(summary.PeriodTx),
			Recurring: len(summary.RecurringTx),
			Pending:   len(summary.PendingTx),
		},
	}
	if !masked {
		resp.Summary = &summary
	}
	return resp
}

func holderOf(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("holder"))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.Load(r.Context(), holderOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(records).Write(w)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "bad_request", "malformed request body").Write(w)
		return
	}

	rec, err := s.ledger.Add(r.Context(), holderOf(r), parser.TransactionInput())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(rec).
		Status(http.StatusCreated).
		Header("Location", r.URL.Path+"/"+rec.ID).
		Write(w)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.MarkPaid(r.Context(), holderOf(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(nil).Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleRemoveTransaction(w http.ResponseWriter, r *http.Request) {
	confirmed := ParseFlag(r.URL.Query(), "confirm")
	if err := s.ledger.Remove(r.Context(), holderOf(r), r.PathValue("id"), confirmed); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(nil).Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	period, err := ParsePeriod(query, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), holderOf(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(NewSummaryResponse(summary, ParseFlag(query, "privacy"))).Write(w)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	today, err := ParseToday(query, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	// The pending view spans the whole ledger; any period gives the same list
	summary, err := s.ledger.Summary(r.Context(), holderOf(r), core.PeriodOf(today))
	if err != nil {
		writeError(w, r, err)
		return
	}

	masked := ParseFlag(query, "privacy")
	ranked := services.RankPending(summary.PendingTx, today)
	items := make([]PendingItem, 0, len(ranked))
	for _, p := range ranked {
		items = append(items, PendingItem{
			ID:          p.Record.ID,
			Description: p.Record.Description,
			Type:        p.Record.Type,
			Date:        p.Record.Date,
			Amount:      core.FormatAmount(p.Record.Amount, masked),
			IsRecurring: p.Record.IsRecurring,
			Urgency:     p.Urgency,
		})
	}
	NewJSONResponse(items).Write(w)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.analysis == nil {
		ErrorResponse(http.StatusServiceUnavailable, "analysis_disabled", "analysis is not configured").Write(w)
		return
	}
	period, err := ParsePeriod(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), holderOf(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	text, err := s.analysis.Analyze(r.Context(), summary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse(AnalysisResponse{Period: period, Text: text}).Write(w)
}
