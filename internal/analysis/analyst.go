// Package analysis asks a Gemini model for commentary on a period summary.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"ledger/internal/core"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("analysis is not configured")

// generateFunc is the slice of the genai client the analyst needs.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content) (string, error)

// GenAIAnalyst implements ports.Analyst on the Gemini API.
type GenAIAnalyst struct {
	model    string
	generate generateFunc
}

// NewGenAIAnalyst creates a Gemini API client authenticated with apiKey.
func NewGenAIAnalyst(ctx context.Context, apiKey, model string) (*GenAIAnalyst, error) {
	if apiKey == "" {
		return nil, errors.New("missing API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GenAIAnalyst{
		model: model,
		generate: func(ctx context.Context, model string, contents []*genai.Content) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
	}, nil
}

// Analyze sends the period figures to the model and returns its answer.
func (a *GenAIAnalyst) Analyze(ctx context.Context, req core.AnalysisRequest) (string, error) {
	text, err := a.generate(ctx, a.model, genai.Text(BuildPrompt(req)))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return cleanText(text), nil
}

// Disabled is the analyst used when no API key is configured.
type Disabled struct{}

func (Disabled) Analyze(context.Context, core.AnalysisRequest) (string, error) {
	return "", ErrDisabled
}

// BuildPrompt renders the request as a plain-text prompt. Only paid
// records move the totals; pending ones are listed as outstanding.
func BuildPrompt(req core.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("You are a financial assistant for a freelancer.\n")
	b.WriteString("Review the month below and reply in at most three short paragraphs:\n")
	b.WriteString("- how the month went overall\n")
	b.WriteString("- anything unusual in the transactions\n")
	b.WriteString("- one concrete suggestion about the outstanding items\n")
	b.WriteString("Reply with plain text only, no Markdown.\n\n")

	fmt.Fprintf(&b, "Period: %s\n", req.Period.Start().Format("January 2006"))
	fmt.Fprintf(&b, "Income: %s\n", core.FormatAmount(req.Totals.Income, false))
	fmt.Fprintf(&b, "Expenses: %s\n", core.FormatAmount(req.Totals.Expense, false))
	fmt.Fprintf(&b, "Balance at end of period: %s\n", core.FormatAmount(req.Totals.Balance, false))
	fmt.Fprintf(&b, "Still to collect: %s\n", core.FormatAmount(req.Outstanding.ToCollect, false))
	fmt.Fprintf(&b, "Still to pay: %s\n\n", core.FormatAmount(req.Outstanding.ToPay, false))

	if len(req.PeriodTx) == 0 {
		b.WriteString("No transactions in this period.\n")
		return b.String()
	}
	b.WriteString("Transactions (date | type | status | amount | description):\n")
	for _, r := range req.PeriodTx {
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s\n",
			r.Date, r.Type, r.Status, core.FormatAmount(r.Amount, false), oneLine(r.Description))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText strips Markdown code fences the model sometimes adds anyway.
func cleanText(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
