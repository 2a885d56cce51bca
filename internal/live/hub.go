// Package live implements the per-holder live subscription: every change
// reloads the full ledger and pushes the new snapshot to all observers.
package live

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Loader returns the holder's full normalized record set.
type Loader func(ctx context.Context, holderID string) ([]core.TransactionRecord, error)

// Snapshot is one full delivery of a holder's ledger. Version grows by one
// per delivery for that holder.
type Snapshot struct {
	HolderID string                   `json:"holderId"`
	Records  []core.TransactionRecord `json:"records"`
	Version  uint64                   `json:"version"`
}

type subscriber struct {
	ch chan Snapshot
}

// Hub fans snapshots out to subscribers. It implements ports.ChangeNotifier.
type Hub struct {
	load   Loader
	logger *log.Logger

	// notifyMu serializes reload+deliver so snapshots arrive in version order
	notifyMu sync.Mutex

	mu       sync.Mutex
	subs     map[string]map[uint64]*subscriber
	versions map[string]uint64
	nextID   uint64
}

// NewHub returns a hub reloading through load.
func NewHub(load Loader, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Hub{
		load:     load,
		logger:   logger.WithComponent(log.ComponentLive),
		subs:     make(map[string]map[uint64]*subscriber),
		versions: make(map[string]uint64),
	}
}

// Subscribe registers an observer for holderID and immediately queues the
// current snapshot. The channel is closed when cancel is called or ctx ends.
// Slow readers only ever see the latest snapshot.
func (h *Hub) Subscribe(ctx context.Context, holderID string) (<-chan Snapshot, func(), error) {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	records, err := h.load(ctx, holderID)
	if err != nil {
		return nil, nil, fmt.Errorf("initial snapshot: %w", err)
	}

	sub := &subscriber{ch: make(chan Snapshot, 1)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[holderID] == nil {
		h.subs[holderID] = make(map[uint64]*subscriber)
	}
	h.subs[holderID][id] = sub
	h.versions[holderID]++
	sub.ch <- Snapshot{HolderID: holderID, Records: records, Version: h.versions[holderID]}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[holderID], id)
			if len(h.subs[holderID]) == 0 {
				delete(h.subs, holderID)
			}
			close(sub.ch)
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	h.logger.Debug("Subscriber added", log.FieldHolderID, holderID)
	return sub.ch, func() { stop(); cancel() }, nil
}

// NotifyChange reloads the holder's ledger and delivers it to every
// subscriber. Holders without subscribers are skipped.
func (h *Hub) NotifyChange(ctx context.Context, change core.LedgerChange) error {
	if h.Subscribers(change.HolderID) == 0 {
		return nil
	}

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	records, err := h.load(ctx, change.HolderID)
	if err != nil {
		h.logger.WarnContext(ctx, "Snapshot reload failed",
			log.NewFields().WithHolder(change.HolderID).WithError(err).ToSlice()...)
		return fmt.Errorf("reload snapshot: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.versions[change.HolderID]++
	snap := Snapshot{HolderID: change.HolderID, Records: records, Version: h.versions[change.HolderID]}
	for _, sub := range h.subs[change.HolderID] {
		// Replace any undelivered snapshot
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap
	}
	h.logger.DebugContext(ctx, "Snapshot delivered",
		log.FieldHolderID, change.HolderID,
		log.FieldChange, string(change.Kind),
		log.FieldVersion, snap.Version,
		log.FieldCount, len(h.subs[change.HolderID]))
	return nil
}

// Subscribers returns the number of live observers for holderID.
func (h *Hub) Subscribers(holderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[holderID])
}
