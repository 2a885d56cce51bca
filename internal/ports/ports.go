// Package ports declares the interfaces between the ledger services and
// their outbound adapters.
package ports

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordStore persists one document per (holderID, recordID). List
	// returns raw documents ordered by date descending; callers normalize.
	RecordStore interface {
		List(ctx context.Context, holderID string) ([]core.RawRecord, error)
		Insert(ctx context.Context, holderID string, rec core.TransactionRecord) error
		// MarkPaid flips a pending record to paid. changed is false when
		// the record was already paid.
		MarkPaid(ctx context.Context, holderID, recordID string) (changed bool, err error)
		Delete(ctx context.Context, holderID, recordID string) error
	}

	// RevisionSource is implemented by stores that can report a token
	// which changes whenever a holder's stored records change, including
	// writes committed by other processes.
	RevisionSource interface {
		Revision(ctx context.Context, holderID string) (string, error)
	}

	// ChangeNotifier is told about every committed ledger mutation.
	ChangeNotifier interface {
		NotifyChange(ctx context.Context, change core.LedgerChange) error
	}

	// Analyst turns a period's figures into free-text commentary.
	Analyst interface {
		Analyze(ctx context.Context, req core.AnalysisRequest) (string, error)
	}

	// LedgerExporter mirrors a holder's full ledger to an external sink.
	LedgerExporter interface {
		Export(ctx context.Context, holderID string, records []core.TransactionRecord) error
	}
)
