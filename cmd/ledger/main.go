package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/analysis"
	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
	apphttp "ledger/internal/http"
	"ledger/internal/live"
	"ledger/internal/log"
	"ledger/internal/ports"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ledger server failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	logger.Info("Starting ledger server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", cfg.AMQPURL != "",
		"analysis", cfg.AnalysisEnabled())

	backend, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err.Error())
		}
	}()

	summaries := cli.NewSummaryCache(cfg)
	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(summaries)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	ledger := services.NewLedgerService(backend.Store, summaries, logger)
	hub := live.NewHub(ledger.Load, logger)
	ledger.AddNotifier(hub)

	var bus *amqp.Client
	if cfg.AMQPURL != "" {
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "ledger-"+core.NewID(), logger)
		if err != nil {
			// Local changes still reach local subscribers without the broker
			logger.Warn("AMQP unavailable, cross-process updates disabled", log.FieldError, err.Error())
			bus = nil
		} else {
			defer bus.Close()
			ledger.AddNotifier(bus)
		}
	}

	analyst, err := newAnalyst(cfg)
	if err != nil {
		logger.Warn("Analysis disabled", log.FieldError, err.Error())
		analyst = analysis.Disabled{}
	}
	analysisSvc := services.NewAnalysisService(analyst, cfg.AnalysisTimeout, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		Ledger:       ledger,
		Analysis:     analysisSvc,
		Live:         hub,
		Ready:        backend.Ping,
		Logger:       logger,
		RateLimitRPM: cfg.RateLimitRPM,
	})
	srv.StartBackground()

	g, gctx := errgroup.WithContext(context.Background())
	ctx, done := cli.GracefulShutdown(gctx, logger, cfg.ShutdownGrace, func(sctx context.Context) {
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			err := bus.Run(ctx, func(c context.Context) error {
				return bus.SubscribeEphemeral(c, remoteChanges(ledger, hub, bus.Origin()))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	<-done
	return err
}

func newAnalyst(cfg *config.Config) (ports.Analyst, error) {
	if !cfg.AnalysisEnabled() {
		return analysis.Disabled{}, nil
	}
	return analysis.NewGenAIAnalyst(context.Background(), cfg.GenAIAPIKey, cfg.GenAIModel)
}

// remoteChanges applies changes committed by other processes: memoized
// summaries are dropped and local subscribers get a fresh snapshot. This
// process's own messages were already applied when committed.
func remoteChanges(ledger *services.LedgerService, notifier ports.ChangeNotifier, origin string) amqp.Handler {
	return func(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
		if msg.Origin == origin {
			return nil
		}
		ledger.Invalidate(msg.HolderID)
		return notifier.NotifyChange(ctx, msg.Change())
	}
}
