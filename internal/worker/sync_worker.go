// Package worker exports ledgers to external sinks in response to change
// events.
package worker

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/ports"
)

// LedgerLoader returns a holder's normalized ledger.
type LedgerLoader interface {
	Load(ctx context.Context, holderID string) ([]core.TransactionRecord, error)
}

// HolderLister enumerates known holders for a full resync.
type HolderLister interface {
	Holders(ctx context.Context) ([]string, error)
}

// SyncWorker reloads the whole ledger of a changed holder and hands it to
// the exporter. There is no delta path.
type SyncWorker struct {
	ledger   LedgerLoader
	exporter ports.LedgerExporter
	logger   *log.Logger
}

func NewSyncWorker(ledger LedgerLoader, exporter ports.LedgerExporter, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		ledger:   ledger,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange processes one change message from AMQP.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger change",
		log.FieldHolderID, msg.HolderID,
		log.FieldRecordID, msg.RecordID,
		log.FieldChange, string(msg.Kind))
	return w.Export(ctx, msg.HolderID)
}

// Export mirrors holderID's current ledger.
func (w *SyncWorker) Export(ctx context.Context, holderID string) error {
	records, err := w.ledger.Load(ctx, holderID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if err := w.exporter.Export(ctx, holderID, records); err != nil {
		return fmt.Errorf("export ledger: %w", err)
	}
	return nil
}

// ExportAll re-exports every holder. It is the backup path for messages
// lost while the worker was down. Failures are collected, not fatal.
func (w *SyncWorker) ExportAll(ctx context.Context, holders HolderLister) error {
	ids, err := holders.Holders(ctx)
	if err != nil {
		return fmt.Errorf("list holders: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Export(ctx, id); err != nil {
			w.logger.ErrorContext(ctx, "Full export failed for holder",
				log.NewFields().WithHolder(id).WithOperation(log.OpExport).WithError(err).ToSlice()...)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	w.logger.InfoContext(ctx, "Full export finished", log.FieldCount, len(ids), "failed", len(errs))
	return errors.Join(errs...)
}
