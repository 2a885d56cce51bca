package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/sheets"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err == nil {
		err = cfg.ValidateWorker()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if err := run(cfg, logger); err != nil {
		logger.Error("Export worker failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	logger.Info("Starting ledger export worker",
		log.FieldOperation, log.OpStartup,
		"backend", cfg.DataBackend,
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"export_interval", cfg.ExportInterval.String())

	backend, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err.Error())
		}
	}()

	// The worker reads after other processes write, so nothing is memoized
	ledger := services.NewLedgerService(backend.Store, nil, logger)

	creds, err := sheets.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return err
	}
	exporter, err := sheets.NewExporter(context.Background(), cfg.GoogleSpreadsheetID, creds, logger)
	if err != nil {
		return fmt.Errorf("sheets exporter: %w", err)
	}
	syncWorker := worker.NewSyncWorker(ledger, exporter, logger)

	bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "worker-"+core.NewID(), logger)
	if err != nil {
		return fmt.Errorf("amqp: %w", err)
	}
	defer bus.Close()

	g, gctx := errgroup.WithContext(context.Background())
	ctx, done := cli.GracefulShutdown(gctx, logger, cfg.ShutdownGrace, nil)

	g.Go(func() error {
		err := bus.Run(ctx, func(c context.Context) error {
			return bus.ConsumeLedgerChanges(c, syncWorker.HandleChange)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if holders, ok := backend.Holders(); ok {
		g.Go(func() error {
			resync(ctx, logger, syncWorker, holders, cfg.ExportInterval)
			return nil
		})
	} else {
		logger.Warn("Backend cannot enumerate holders, periodic resync disabled", "backend", cfg.DataBackend)
	}

	err = g.Wait()
	<-done
	return err
}

// resync exports every holder at startup and on each tick, catching up on
// messages lost while the worker was down.
func resync(ctx context.Context, logger *log.Logger, w *worker.SyncWorker, holders worker.HolderLister, interval time.Duration) {
	exportAll := func() {
		if err := w.ExportAll(ctx, holders); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Full resync failed", log.FieldOperation, log.OpExport, log.FieldError, err.Error())
		}
	}

	exportAll()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exportAll()
		}
	}
}
