package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/ports"
)

// SummaryKey identifies one memoized aggregation. Version counts changes
// seen by this service; Revision is the store's own change token, so writes
// by other processes also miss the cache.
type SummaryKey struct {
	HolderID string
	Version  uint64
	Revision string
	Month    int
	Year     int
}

// SummaryCache memoizes period summaries.
type SummaryCache = cache.Cache[SummaryKey, core.PeriodSummary]

// LedgerService orchestrates ledger reads and mutations across the record
// store, change notifiers and the summary cache.
type LedgerService struct {
	store     ports.RecordStore
	summaries SummaryCache
	logger    *log.Logger
	now       func() time.Time

	mu        sync.RWMutex
	notifiers []ports.ChangeNotifier
	versions  map[string]uint64

	group singleflight.Group
}

// NewLedgerService wires a service over store. summaries may be nil to
// disable memoization.
func NewLedgerService(store ports.RecordStore, summaries SummaryCache, logger *log.Logger, notifiers ...ports.ChangeNotifier) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		store:     store,
		summaries: summaries,
		logger:    logger.WithComponent(log.ComponentLedger),
		now:       time.Now,
		notifiers: notifiers,
		versions:  make(map[string]uint64),
	}
}

// AddNotifier registers another observer of committed mutations.
func (s *LedgerService) AddNotifier(n ports.ChangeNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// SetClock overrides the time source used for defaults and timestamps.
func (s *LedgerService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *LedgerService) clock() time.Time {
	s.mu.RLock()
	now := s.now
	s.mu.RUnlock()
	return now()
}

// Load returns the holder's full normalized ledger in store order.
func (s *LedgerService) Load(ctx context.Context, holderID string) ([]core.TransactionRecord, error) {
	if err := requireHolder(holderID); err != nil {
		return nil, err
	}
	raws, err := s.store.List(ctx, holderID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load ledger",
			log.NewFields().WithHolder(holderID).WithOperation(log.OpLoad).WithError(err).ToSlice()...)
		return nil, core.Transient("list", err)
	}

	now := s.clock()
	records := make([]core.TransactionRecord, 0, len(raws))
	for _, raw := range raws {
		records = append(records, core.NormalizeAt(raw, now))
	}
	return records, nil
}

// Add validates input, persists the normalized record and returns it.
// Nothing is written when validation fails.
func (s *LedgerService) Add(ctx context.Context, holderID string, input core.NewTransactionInput) (core.TransactionRecord, error) {
	if err := input.Validate(holderID); err != nil {
		return core.TransactionRecord{}, err
	}

	now := s.clock()
	rec := core.NormalizeAt(input.Raw(now), now)
	if err := s.store.Insert(ctx, holderID, rec); err != nil {
		s.logger.ErrorContext(ctx, "Failed to add record",
			log.NewFields().WithRecord(holderID, rec.ID).WithOperation(log.OpAdd).WithError(err).ToSlice()...)
		return core.TransactionRecord{}, core.Transient("insert", err)
	}

	s.logger.InfoContext(ctx, "Record added",
		log.FieldHolderID, holderID,
		log.FieldRecordID, rec.ID,
		log.FieldType, string(rec.Type),
		log.FieldStatus, string(rec.Status),
		log.FieldAmount, rec.Amount.String())
	s.committed(ctx, holderID, rec.ID, core.ChangeAdded)
	return rec, nil
}

// MarkPaid settles a pending record. Calling it on a paid record is a
// no-op and notifies nobody.
func (s *LedgerService) MarkPaid(ctx context.Context, holderID, recordID string) error {
	if err := requireHolder(holderID); err != nil {
		return err
	}
	changed, err := s.store.MarkPaid(ctx, holderID, recordID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark record paid",
			log.NewFields().WithRecord(holderID, recordID).WithOperation(log.OpMarkPaid).WithError(err).ToSlice()...)
		return core.Transient("mark paid", err)
	}
	if !changed {
		s.logger.DebugContext(ctx, "Record already paid", log.FieldHolderID, holderID, log.FieldRecordID, recordID)
		return nil
	}

	s.logger.InfoContext(ctx, "Record marked paid", log.FieldHolderID, holderID, log.FieldRecordID, recordID)
	s.committed(ctx, holderID, recordID, core.ChangePaid)
	return nil
}

// Remove deletes a record permanently. confirmed must be true; callers are
// expected to have asked the user first.
func (s *LedgerService) Remove(ctx context.Context, holderID, recordID string, confirmed bool) error {
	if err := requireHolder(holderID); err != nil {
		return err
	}
	if !confirmed {
		return &core.ValidationError{Field: "confirm", Reason: "removal is irreversible and must be confirmed"}
	}
	if err := s.store.Delete(ctx, holderID, recordID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to remove record",
			log.NewFields().WithRecord(holderID, recordID).WithOperation(log.OpRemove).WithError(err).ToSlice()...)
		return core.Transient("delete", err)
	}

	s.logger.InfoContext(ctx, "Record removed", log.FieldHolderID, holderID, log.FieldRecordID, recordID)
	s.committed(ctx, holderID, recordID, core.ChangeRemoved)
	return nil
}

// Summary aggregates the holder's ledger for the given period. Results are
// memoized per ledger version; concurrent misses share one computation.
func (s *LedgerService) Summary(ctx context.Context, holderID string, period core.Period) (core.PeriodSummary, error) {
	if err := requireHolder(holderID); err != nil {
		return core.PeriodSummary{}, err
	}
	if !period.Valid() {
		return core.PeriodSummary{}, &core.ValidationError{Field: "month", Reason: "must be between 0 and 11"}
	}

	key := SummaryKey{HolderID: holderID, Version: s.Version(holderID), Month: period.Month, Year: period.Year}
	if src, ok := s.store.(ports.RevisionSource); ok && s.summaries != nil {
		rev, err := src.Revision(ctx, holderID)
		if err != nil {
			return core.PeriodSummary{}, err
		}
		key.Revision = rev
	}
	if s.summaries != nil {
		if cached, ok := s.summaries.Get(key); ok {
			return cached, nil
		}
	}

	flightKey := fmt.Sprintf("%s|%d|%s|%d|%d", key.HolderID, key.Version, key.Revision, key.Month, key.Year)
	v, err, _ := s.group.Do(flightKey, func() (any, error) {
		records, err := s.Load(ctx, holderID)
		if err != nil {
			return nil, err
		}
		summary := Aggregate(records, period.Month, period.Year)
		if s.summaries != nil {
			s.summaries.Set(key, summary)
		}
		s.logger.DebugContext(ctx, "Summary computed",
			log.FieldHolderID, holderID,
			log.FieldMonth, period.Month,
			log.FieldYear, period.Year,
			log.FieldVersion, key.Version,
			log.FieldCount, len(records))
		return summary, nil
	})
	if err != nil {
		return core.PeriodSummary{}, err
	}
	return v.(core.PeriodSummary), nil
}

// Invalidate forgets every memoized summary of holderID. Call it when the
// ledger changed outside this service.
func (s *LedgerService) Invalidate(holderID string) {
	s.mu.Lock()
	s.versions[holderID]++
	s.mu.Unlock()

	if s.summaries != nil {
		s.summaries.DeleteFunc(func(k SummaryKey) bool { return k.HolderID == holderID })
	}
}

// Version returns the holder's current ledger version as seen by this
// service.
func (s *LedgerService) Version(holderID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[holderID]
}

// committed invalidates memoized summaries and tells every notifier.
// Notification failures are logged; the mutation itself already succeeded.
func (s *LedgerService) committed(ctx context.Context, holderID, recordID string, kind core.ChangeKind) {
	s.Invalidate(holderID)

	change := core.LedgerChange{HolderID: holderID, RecordID: recordID, Kind: kind, At: s.clock().UTC()}

	s.mu.RLock()
	notifiers := append([]ports.ChangeNotifier(nil), s.notifiers...)
	s.mu.RUnlock()

	for _, n := range notifiers {
		if err := n.NotifyChange(ctx, change); err != nil {
			s.logger.WarnContext(ctx, "Change notification failed",
				log.NewFields().WithRecord(holderID, recordID).WithOperation(log.OpNotify).WithError(err).ToSlice()...)
		}
	}
}

func requireHolder(holderID string) error {
	if strings.TrimSpace(holderID) == "" {
		return &core.ValidationError{Field: "holder", Reason: "missing account holder"}
	}
	return nil
}
