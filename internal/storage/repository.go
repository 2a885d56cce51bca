// Package storage implements the ledger record store on SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ledger/internal/core"

	_ "modernc.org/sqlite"
)

const selectColumns = `id, amount, description, type, date, is_recurring, status, created_at`

// SQLiteRepository stores one row per (holder, record). It implements
// ports.RecordStore.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Transient("ping", err)
	}
	return nil
}

// List returns every record of the holder as raw documents, newest date
// first.
func (r *SQLiteRepository) List(ctx context.Context, holderID string) ([]core.RawRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE holder_id = ? ORDER BY date DESC, created_at DESC`,
		holderID)
	if err != nil {
		return nil, core.Transient("list", err)
	}
	defer rows.Close()

	records := make([]core.RawRecord, 0)
	for rows.Next() {
		var (
			id, amount, description, typ, date string
			recurring                          int64
			status, createdAt                  sql.NullString
		)
		if err := rows.Scan(&id, &amount, &description, &typ, &date, &recurring, &status, &createdAt); err != nil {
			return nil, core.Transient("list", err)
		}

		raw := core.RawRecord{
			"id":          id,
			"amount":      amount,
			"description": description,
			"type":        typ,
			"date":        date,
			"isRecurring": recurring != 0,
		}
		// Legacy rows have no status; leaving the key out lets normalization
		// apply the default.
		if status.Valid {
			raw["status"] = status.String
		}
		if createdAt.Valid {
			raw["createdAt"] = createdAt.String
		}
		records = append(records, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Transient("list", err)
	}
	return records, nil
}

// Insert writes a new record. Status is always stored explicitly.
func (r *SQLiteRepository) Insert(ctx context.Context, holderID string, rec core.TransactionRecord) error {
	var createdAt sql.NullString
	if rec.CreatedAt != nil {
		createdAt = sql.NullString{String: rec.CreatedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (holder_id, id, amount, description, type, date, is_recurring, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		holderID, rec.ID, rec.Amount.String(), rec.Description, string(rec.Type), rec.Date,
		boolToInt(rec.IsRecurring), string(rec.Status), createdAt)
	if err != nil {
		return core.Transient("insert", err)
	}

	slog.DebugContext(ctx, "Record saved to SQLite",
		"holder_id", holderID,
		"record_id", rec.ID,
		"type", rec.Type,
		"status", rec.Status)
	return nil
}

// MarkPaid sets a pending record to paid. Rows already paid, including
// legacy rows with no status, are left untouched and reported unchanged.
func (r *SQLiteRepository) MarkPaid(ctx context.Context, holderID, recordID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET status = ? WHERE holder_id = ? AND id = ? AND status = ?`,
		string(core.StatusPaid), holderID, recordID, string(core.StatusPending))
	if err != nil {
		return false, core.Transient("mark paid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.Transient("mark paid", err)
	}
	if n > 0 {
		return true, nil
	}

	exists, err := r.exists(ctx, holderID, recordID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, &core.NotFoundError{HolderID: holderID, RecordID: recordID}
	}
	return false, nil
}

// Delete removes a record permanently.
func (r *SQLiteRepository) Delete(ctx context.Context, holderID, recordID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE holder_id = ? AND id = ?`, holderID, recordID)
	if err != nil {
		return core.Transient("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Transient("delete", err)
	}
	if n == 0 {
		return &core.NotFoundError{HolderID: holderID, RecordID: recordID}
	}
	return nil
}

// Revision returns the holder's write counter. Triggers bump it in the same
// statement as the write, so commits from other processes show up too.
func (r *SQLiteRepository) Revision(ctx context.Context, holderID string) (string, error) {
	var rev int64
	err := r.db.QueryRowContext(ctx,
		`SELECT revision FROM holder_revisions WHERE holder_id = ?`, holderID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "0", nil
	}
	if err != nil {
		return "", core.Transient("revision", err)
	}
	return strconv.FormatInt(rev, 10), nil
}

// Holders lists every holder that owns at least one record.
func (r *SQLiteRepository) Holders(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT holder_id FROM transactions ORDER BY holder_id`)
	if err != nil {
		return nil, core.Transient("holders", err)
	}
	defer rows.Close()

	var holders []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, core.Transient("holders", err)
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Transient("holders", err)
	}
	return holders, nil
}

func (r *SQLiteRepository) exists(ctx context.Context, holderID, recordID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM transactions WHERE holder_id = ? AND id = ?`, holderID, recordID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, core.Transient("lookup", err)
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
