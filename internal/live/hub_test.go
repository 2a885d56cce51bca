package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/log"
)

type fakeLedger struct {
	mu      sync.Mutex
	records map[string][]core.TransactionRecord
	err     error
	loads   int
}

func (f *fakeLedger) load(_ context.Context, holderID string) ([]core.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.TransactionRecord(nil), f.records[holderID]...), nil
}

func (f *fakeLedger) add(holderID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[holderID] = append(f.records[holderID], core.TransactionRecord{ID: id})
}

func newFake() *fakeLedger {
	return &fakeLedger{records: map[string][]core.TransactionRecord{}}
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestHub_InitialSnapshotThenUpdates(t *testing.T) {
	ledger := newFake()
	ledger.add("alice", "r1")
	hub := NewHub(ledger.load, log.Discard())

	ch, cancel, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()

	first := receive(t, ch)
	assert.Equal(t, "alice", first.HolderID)
	assert.Len(t, first.Records, 1)

	ledger.add("alice", "r2")
	require.NoError(t, hub.NotifyChange(context.Background(), core.LedgerChange{HolderID: "alice", Kind: core.ChangeAdded}))

	second := receive(t, ch)
	assert.Len(t, second.Records, 2)
	assert.Greater(t, second.Version, first.Version)
}

func TestHub_LatestWinsForSlowReaders(t *testing.T) {
	ledger := newFake()
	hub := NewHub(ledger.load, log.Discard())

	ch, cancel, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 5; i++ {
		ledger.add("alice", "r")
		require.NoError(t, hub.NotifyChange(context.Background(), core.LedgerChange{HolderID: "alice"}))
	}

	snap := receive(t, ch)
	assert.Len(t, snap.Records, 5)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected queued snapshot %+v", extra)
	default:
	}
}

func TestHub_OtherHoldersAndNoSubscribers(t *testing.T) {
	ledger := newFake()
	hub := NewHub(ledger.load, log.Discard())

	require.NoError(t, hub.NotifyChange(context.Background(), core.LedgerChange{HolderID: "nobody"}))
	assert.Equal(t, 0, ledger.loads, "no reload without observers")

	ch, cancel, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()
	receive(t, ch)

	require.NoError(t, hub.NotifyChange(context.Background(), core.LedgerChange{HolderID: "bob"}))
	select {
	case s := <-ch:
		t.Fatalf("alice should not see bob's change: %+v", s)
	default:
	}
}

func TestHub_CancelAndContextClose(t *testing.T) {
	ledger := newFake()
	hub := NewHub(ledger.load, log.Discard())

	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	receive(t, ch)
	assert.Equal(t, 1, hub.Subscribers("alice"))

	stop()
	require.Eventually(t, func() bool { return hub.Subscribers("alice") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)
	cancel() // idempotent
}

func TestHub_LoadErrors(t *testing.T) {
	ledger := newFake()
	ledger.err = errors.New("offline")
	hub := NewHub(ledger.load, log.Discard())

	_, _, err := hub.Subscribe(context.Background(), "alice")
	require.Error(t, err)

	ledger.err = nil
	ch, cancel, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()
	before := receive(t, ch)

	ledger.err = errors.New("offline")
	err = hub.NotifyChange(context.Background(), core.LedgerChange{HolderID: "alice"})
	require.Error(t, err)
	select {
	case s := <-ch:
		t.Fatalf("failed reload must not deliver, got %+v", s)
	default:
	}
	assert.Equal(t, uint64(1), before.Version)
}
