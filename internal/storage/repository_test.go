package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(id, date string, status core.Status) core.TransactionRecord {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return core.TransactionRecord{
		ID:          id,
		Amount:      decimal.RequireFromString("12.34"),
		Description: "invoice " + id,
		Type:        core.Income,
		Date:        date,
		IsRecurring: true,
		Status:      status,
		CreatedAt:   &created,
	}
}

func TestSQLiteRepository_InsertAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(ctx, "alice", record("r1", "2024-03-05", core.StatusPaid)))
	require.NoError(t, repo.Insert(ctx, "alice", record("r2", "2024-04-01", core.StatusPending)))
	require.NoError(t, repo.Insert(ctx, "bob", record("r3", "2024-01-01", core.StatusPaid)))

	raws, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "r2", raws[0]["id"], "newest date first")

	got := core.Normalize(raws[1])
	want := record("r1", "2024-03-05", core.StatusPaid)
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Amount.Equal(got.Amount))
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, core.Income, got.Type)
	assert.True(t, got.IsRecurring)
	assert.Equal(t, core.StatusPaid, got.Status)
	require.NotNil(t, got.CreatedAt)
	assert.True(t, want.CreatedAt.Equal(*got.CreatedAt))

	empty, err := repo.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	holders, err := repo.Holders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, holders)
}

func TestSQLiteRepository_LegacyRowWithoutStatus(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO transactions (holder_id, id, amount, description, type, date) VALUES (?, ?, ?, ?, ?, ?)`,
		"alice", "old", "50", "legacy", "income", "2023-05-01")
	require.NoError(t, err)

	raws, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, raws, 1)
	_, hasStatus := raws[0]["status"]
	assert.False(t, hasStatus)
	assert.Equal(t, core.StatusPaid, core.Normalize(raws[0]).Status)

	changed, err := repo.MarkPaid(ctx, "alice", "old")
	require.NoError(t, err)
	assert.False(t, changed, "legacy rows already count as paid")
}

func TestSQLiteRepository_MarkPaid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(ctx, "alice", record("p1", "2024-03-05", core.StatusPending)))

	changed, err := repo.MarkPaid(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkPaid(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.False(t, changed, "second call is a no-op")

	raws, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "paid", raws[0]["status"])

	_, err = repo.MarkPaid(ctx, "alice", "missing")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.RecordID)

	// Records are scoped by holder
	_, err = repo.MarkPaid(ctx, "bob", "p1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSQLiteRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(ctx, "alice", record("d1", "2024-03-05", core.StatusPaid)))

	require.NoError(t, repo.Delete(ctx, "alice", "d1"))
	raws, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, raws)

	err = repo.Delete(ctx, "alice", "d1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteRepository_ClosedDatabaseIsTransient(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Close())

	_, err := repo.List(ctx, "alice")
	assert.ErrorIs(t, err, core.ErrTransient)

	err = repo.Insert(ctx, "alice", record("x", "2024-01-01", core.StatusPaid))
	assert.ErrorIs(t, err, core.ErrTransient)

	assert.ErrorIs(t, repo.Ping(ctx), core.ErrTransient)
}

func TestSQLiteRepository_DuplicateIDLeavesExistingRow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(ctx, "alice", record("dup", "2024-03-05", core.StatusPaid)))

	other := record("dup", "2025-01-01", core.StatusPending)
	err := repo.Insert(ctx, "alice", other)
	require.ErrorIs(t, err, core.ErrTransient)

	raws, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "2024-03-05", raws[0]["date"])
}

func TestSQLiteRepository_RevisionAcrossConnections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	server, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	cli, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })

	rev, err := server.Revision(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "0", rev)

	require.NoError(t, cli.Insert(ctx, "alice", record("r1", "2024-03-05", core.StatusPending)))
	afterInsert, err := server.Revision(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, rev, afterInsert, "insert from another connection bumps the revision")

	_, err = cli.MarkPaid(ctx, "alice", "r1")
	require.NoError(t, err)
	afterPaid, err := server.Revision(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, afterInsert, afterPaid)

	// already paid: no row updated, no bump
	_, err = cli.MarkPaid(ctx, "alice", "r1")
	require.NoError(t, err)
	same, err := server.Revision(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, afterPaid, same)

	require.NoError(t, cli.Delete(ctx, "alice", "r1"))
	afterDelete, err := server.Revision(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, afterPaid, afterDelete)

	other, err := server.Revision(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "0", other, "revisions are per holder")
}
