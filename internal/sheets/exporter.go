// Package sheets mirrors a holder's ledger to a Google Sheets tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Header is the first row written to every exported tab.
var Header = []string{"Date", "Type", "Status", "Amount", "Description", "Recurring", "ID"}

// valuesAPI is the subset of the Sheets API the exporter uses.
type valuesAPI interface {
	SheetTitles(ctx context.Context) ([]string, error)
	AddSheet(ctx context.Context, title string) error
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

// Exporter rewrites one tab per holder with the holder's full ledger. It
// implements ports.LedgerExporter.
type Exporter struct {
	api    valuesAPI
	logger *log.Logger
}

// NewExporter creates a Sheets client authenticated with service account
// credentials.
func NewExporter(ctx context.Context, spreadsheetID string, credentialsJSON []byte, logger *log.Logger) (*Exporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newExporter(&serviceAPI{svc: svc, spreadsheetID: spreadsheetID}, logger), nil
}

func newExporter(api valuesAPI, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Exporter{api: api, logger: logger.WithComponent(log.ComponentSheets)}
}

// LoadCredentials returns inline JSON if set, otherwise the content of file.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)
	switch {
	case inlineJSON != "":
		return []byte(inlineJSON), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Export replaces the holder's tab with records.
func (e *Exporter) Export(ctx context.Context, holderID string, records []core.TransactionRecord) error {
	title := SheetTitle(holderID)
	if err := e.ensureSheet(ctx, title); err != nil {
		return err
	}

	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if err := e.api.Clear(ctx, quoted+"!A:G"); err != nil {
		return fmt.Errorf("clear sheet %s: %w", title, err)
	}
	if err := e.api.Update(ctx, quoted+"!A1", BuildRows(records)); err != nil {
		return fmt.Errorf("write sheet %s: %w", title, err)
	}

	e.logger.InfoContext(ctx, "Ledger exported",
		log.FieldHolderID, holderID,
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(records))
	return nil
}

func (e *Exporter) ensureSheet(ctx context.Context, title string) error {
	titles, err := e.api.SheetTitles(ctx)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}
	for _, t := range titles {
		if t == title {
			return nil
		}
	}
	if err := e.api.AddSheet(ctx, title); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	e.logger.InfoContext(ctx, "Created sheet", "title", title)
	return nil
}

// BuildRows renders the header followed by one row per record.
func BuildRows(records []core.TransactionRecord) [][]interface{} {
	rows := make([][]interface{}, 0, len(records)+1)
	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	rows = append(rows, header)

	for _, r := range records {
		recurring := ""
		if r.IsRecurring {
			recurring = "yes"
		}
		rows = append(rows, []interface{}{
			r.Date,
			string(r.Type),
			string(r.Status),
			r.Amount.StringFixed(2),
			r.Description,
			recurring,
			r.ID,
		})
	}
	return rows
}

// SheetTitle turns a holder id into a valid tab name.
func SheetTitle(holderID string) string {
	title := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(holderID))
	if title == "" {
		title = "ledger"
	}
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	return title
}

type serviceAPI struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceAPI) SheetTitles(ctx context.Context) ([]string, error) {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (s *serviceAPI) AddSheet(ctx context.Context, title string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}

func (s *serviceAPI) Clear(ctx context.Context, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *serviceAPI) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}
