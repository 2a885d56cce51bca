package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/local"
	"ledger/internal/log"
	"ledger/internal/ports"
	"ledger/internal/storage"
)

// Two services over one backing location stand in for the server and
// ledgerctl running side by side.
func TestLedgerService_SummarySeesWritesFromAnotherProcess(t *testing.T) {
	backends := map[string]func(t *testing.T) (ports.RecordStore, ports.RecordStore){
		"sqlite": func(t *testing.T) (ports.RecordStore, ports.RecordStore) {
			path := filepath.Join(t.TempDir(), "ledger.db")
			a, err := storage.NewSQLiteRepository(path)
			require.NoError(t, err)
			t.Cleanup(func() { a.Close() })
			b, err := storage.NewSQLiteRepository(path)
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return a, b
		},
		"local": func(t *testing.T) (ports.RecordStore, ports.RecordStore) {
			dir := t.TempDir()
			a, err := local.New(dir)
			require.NoError(t, err)
			b, err := local.New(dir)
			require.NoError(t, err)
			return a, b
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			serverStore, cliStore := open(t)
			march := core.Period{Month: 2, Year: 2024}

			server := NewLedgerService(serverStore, cache.NewLRUCache[SummaryKey, core.PeriodSummary](16, 10*time.Minute), log.Discard())
			cli := NewLedgerService(cliStore, nil, log.Discard())

			before, err := server.Summary(ctx, "alice", march)
			require.NoError(t, err)
			assert.True(t, before.GlobalBalance.IsZero())

			rec, err := cli.Add(ctx, "alice", core.NewTransactionInput{Description: "Invoice", Amount: "100", Type: "income", Date: "2024-03-05"})
			require.NoError(t, err)

			after, err := server.Summary(ctx, "alice", march)
			require.NoError(t, err)
			assert.True(t, after.GlobalBalance.Equal(dec("100")), "global = %s", after.GlobalBalance)
			assert.True(t, after.PeriodIncome.Equal(dec("100")))
			require.Len(t, after.PeriodTx, 1)

			require.NoError(t, cli.Remove(ctx, "alice", rec.ID, true))
			removed, err := server.Summary(ctx, "alice", march)
			require.NoError(t, err)
			assert.Empty(t, removed.PeriodTx)
			assert.True(t, removed.GlobalBalance.IsZero())
		})
	}
}

type revisionedStore struct {
	*fakeStore
	rev string
	err error
}

func (r *revisionedStore) Revision(context.Context, string) (string, error) { return r.rev, r.err }

func TestLedgerService_SummaryKeyedOnStoreRevision(t *testing.T) {
	ctx := context.Background()
	store := &revisionedStore{fakeStore: newFakeStore(), rev: "1"}
	svc := NewLedgerService(store, cache.NewLRUCache[SummaryKey, core.PeriodSummary](16, time.Minute), log.Discard())
	march := core.Period{Month: 2, Year: 2024}

	_, err := svc.Summary(ctx, "alice", march)
	require.NoError(t, err)
	_, err = svc.Summary(ctx, "alice", march)
	require.NoError(t, err)
	loads := store.lists.Load()
	assert.Equal(t, int32(1), loads, "unchanged revision is served from cache")

	store.rev = "2"
	_, err = svc.Summary(ctx, "alice", march)
	require.NoError(t, err)
	assert.Equal(t, loads+1, store.lists.Load())

	store.err = core.Transient("revision", errors.New("database is locked"))
	_, err = svc.Summary(ctx, "alice", march)
	assert.ErrorIs(t, err, core.ErrTransient)
}

func TestLedgerService_SetClockWhileWriting(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			svc.SetClock(func() time.Time { return fixedNow.AddDate(0, 0, i) })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := svc.Add(ctx, "alice", core.NewTransactionInput{Description: "Coffee", Amount: "2", Type: "expense"})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	recs, err := store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, recs, 50)
}
