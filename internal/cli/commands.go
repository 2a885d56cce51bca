package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/core"
	"ledger/internal/services"
)

// NewListCommand prints the holder's whole ledger, newest first.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var masked bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every record of the holder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error {
				records, err := svc.Load(ctx, opts.Holder)
				if err != nil {
					return err
				}
				return out.Success(records, func(w io.Writer) {
					writeRecords(w, records, masked)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&masked, "masked", false, "hide amounts in text output")
	return cmd
}

// NewAddCommand records a new income or expense.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	var in core.NewTransactionInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an income or expense",
		Example: `  ledgerctl add -d "Rent" -a 950 --date 2024-03-01
  ledgerctl add -d "Salary" -a 2500 --type income --recurring
  ledgerctl add -d "Insurance" -a "320,50" --status pending --date 2024-04-10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error {
				rec, err := svc.Add(ctx, opts.Holder, in)
				if err != nil {
					return err
				}
				return out.Success(rec, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s\t%s\t%s\t%s\n", rec.ID, rec.Date, signed(rec, false), rec.Description)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "what the money was for")
	cmd.Flags().StringVarP(&in.Amount, "amount", "a", "", "amount; a comma decimal separator is accepted")
	cmd.Flags().StringVar(&in.Date, "date", "", "calendar date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&in.Type, "type", string(core.Expense), "income or expense")
	cmd.Flags().StringVar(&in.Status, "status", string(core.StatusPaid), "paid or pending")
	cmd.Flags().BoolVar(&in.IsRecurring, "recurring", false, "mark the record as recurring")
	return cmd
}

// NewPayCommand settles a pending record.
func NewPayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <record-id>",
		Short: "Mark a pending record as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error {
				if err := svc.MarkPaid(ctx, opts.Holder, args[0]); err != nil {
					return err
				}
				return out.Success(map[string]string{"id": args[0], "status": string(core.StatusPaid)}, func(w io.Writer) {
					fmt.Fprintf(w, "Marked %s as paid\n", args[0])
				})
			})
		},
	}
}

// NewRemoveCommand deletes a record. Without --yes nothing is removed.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <record-id>",
		Aliases: []string{"remove"},
		Short:   "Permanently remove a record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error {
				if err := svc.Remove(ctx, opts.Holder, args[0], yes); err != nil {
					return err
				}
				return out.Success(map[string]string{"id": args[0], "removed": "true"}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %s\n", args[0])
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the irreversible removal")
	return cmd
}

// NewSummaryCommand prints the period summary.
func NewSummaryCommand(opts *RootOptions) *cobra.Command {
	var (
		month, year int
		masked      bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show balances and flows for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := periodFromFlags(month, year, opts.now())
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error {
				summary, err := svc.Summary(ctx, opts.Holder, period)
				if err != nil {
					return err
				}
				return out.Success(summary, func(w io.Writer) {
					writeSummary(w, summary, masked)
				})
			})
		},
	}
	cmd.Flags().IntVar(&month, "month", 0, "calendar month 1-12 (default current)")
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().BoolVar(&masked, "masked", false, "hide amounts in text output")
	return cmd
}

// NewPendingCommand lists pending records ranked by urgency.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending records, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := opts.now()
			if today != "" {
				t, ok := core.ParseDate(today)
				if !ok {
					return &core.ValidationError{Field: "today", Reason: "must be a YYYY-MM-DD date"}
				}
				now = t
			}
			return opts.withSession(cmd, func(ctx context.Context, svc *services.LedgerService, out *OutputFormatter) error {
				summary, err := svc.Summary(ctx, opts.Holder, core.PeriodOf(now))
				if err != nil {
					return err
				}
				ranked := services.RankPending(summary.PendingTx, now)
				return out.Success(ranked, func(w io.Writer) {
					if len(ranked) == 0 {
						fmt.Fprintln(w, "Nothing pending")
						return
					}
					for _, p := range ranked {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
							urgencyLabel(p.Urgency), p.Record.Date, signed(p.Record, false), p.Record.Description, p.Record.ID)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "reference date YYYY-MM-DD (default today)")
	return cmd
}

func periodFromFlags(month, year int, now time.Time) (core.Period, error) {
	period := core.PeriodOf(now)
	if month != 0 {
		if month < 1 || month > 12 {
			return core.Period{}, &core.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
		}
		period.Month = month - 1
	}
	if year != 0 {
		period.Year = year
	}
	return period, nil
}

func writeRecords(w io.Writer, records []core.TransactionRecord, masked bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records")
		return
	}
	fmt.Fprintln(w, "DATE\tAMOUNT\tSTATUS\tRECURRING\tDESCRIPTION\tID")
	for _, r := range records {
		recurring := ""
		if r.IsRecurring {
			recurring = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Date, signed(r, masked), r.Status, recurring, r.Description, r.ID)
	}
}

func writeSummary(w io.Writer, s core.PeriodSummary, masked bool) {
	start := s.Period.Start()
	fmt.Fprintf(w, "Period\t%s %d\n", start.Month(), start.Year())
	fmt.Fprintf(w, "Starting balance\t%s\n", core.FormatAmount(s.StartingBalance, masked))
	fmt.Fprintf(w, "Income\t%s\n", core.FormatAmount(s.PeriodIncome, masked))
	fmt.Fprintf(w, "Expense\t%s\n", core.FormatAmount(s.PeriodExpense, masked))
	fmt.Fprintf(w, "Flow\t%s\n", core.FormatAmount(s.PeriodFlow, masked))
	fmt.Fprintf(w, "Ending balance\t%s\n", core.FormatAmount(s.EndingBalance, masked))
	fmt.Fprintf(w, "Global balance\t%s\n", core.FormatAmount(s.GlobalBalance, masked))
	fmt.Fprintf(w, "To collect\t%s\n", core.FormatAmount(s.ToCollect, masked))
	fmt.Fprintf(w, "To pay\t%s\n", core.FormatAmount(s.ToPay, masked))
	fmt.Fprintf(w, "Records\t%d (%d recurring, %d pending overall)\n", len(s.PeriodTx), len(s.RecurringTx), len(s.PendingTx))
}

func signed(r core.TransactionRecord, masked bool) string {
	return core.FormatAmount(r.SignedAmount(), masked)
}

func urgencyLabel(u services.Urgency) string {
	switch u.Kind {
	case services.Overdue:
		return fmt.Sprintf("overdue %dd", u.Days)
	case services.DueToday:
		return "due today"
	default:
		return fmt.Sprintf("in %dd", u.Days)
	}
}
