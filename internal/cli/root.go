package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Session is a ledger opened for one command invocation.
type Session struct {
	Ledger *services.LedgerService
	Close  func() error
}

// Opener opens the ledger a command operates on.
type Opener func(ctx context.Context) (*Session, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Holder string
	Format string

	open Opener
	now  func() time.Time
}

// NewRootCommand creates the ledgerctl root command. open is called once
// per subcommand run.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open, now: time.Now}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and edit a personal ledger",
		Long: `ledgerctl records income and expenses for an account holder and
reports period summaries and pending items from the configured backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Holder, "holder", os.Getenv("LEDGER_HOLDER"), "account holder id (env LEDGER_HOLDER)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewPayCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))

	return cmd
}

// ConfigOpener opens the backend described by the environment. Logs go to
// stderr so they never mix with command output.
func ConfigOpener() Opener {
	return func(ctx context.Context) (*Session, error) {
		LoadEnvFile()
		cfg, err := LoadAndValidateConfig()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load configuration", err)
		}
		logger := log.New(log.Config{
			Level:     log.ParseLevel(cfg.LogLevel),
			Format:    cfg.LogFormat,
			Component: log.ComponentCLI,
			Output:    os.Stderr,
		})
		if cfg.DataBackend == config.BackendMemory {
			logger.Warn("Memory backend selected; changes are lost when ledgerctl exits")
		}
		result, err := OpenBackend(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		svc := services.NewLedgerService(result.Store, NewSummaryCache(cfg), logger)
		session := &Session{Ledger: svc, Close: result.Close}
		if cfg.AMQPURL == "" {
			return session, nil
		}

		// Announce writes so the server and the export worker pick them up
		bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "ledgerctl-"+core.NewID(), logger)
		if err != nil {
			logger.Warn("AMQP unavailable, other processes will not be notified", log.FieldError, err.Error())
			return session, nil
		}
		svc.AddNotifier(bus)
		session.Close = func() error {
			return errors.Join(bus.Close(), result.Close())
		}
		return session, nil
	}
}

// withSession opens the ledger, requires a holder and runs fn.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error) (err error) {
	if o.Holder == "" {
		return WrapExitError(ExitCommandError, "missing account holder: pass --holder or set LEDGER_HOLDER", nil)
	}
	if o.open == nil {
		return errors.New("no ledger configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	session, err := o.open(ctx)
	if err != nil {
		return err
	}
	if session.Close != nil {
		defer func() {
			if cerr := session.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}
	out := &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
	return fn(ctx, session.Ledger, out)
}
