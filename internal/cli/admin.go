// internal/cli/admin.go
package cli

import (
	"fmt"
	"io"
	"os"

	"libraripro/internal/archive"
	"libraripro/internal/config"

	"github.com/spf13/cobra"
)

func (c *cli) newInitCmd() *cobra.Command {
	var (
		driver string
		dsn    string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default lending policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.flagConfig
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if driver != "" {
				cfg.Store.Driver = driver
			}
			if dsn != "" {
				cfg.Store.DSN = dsn
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			ok(cmd.OutOrStdout(), "Wrote %s (store: %s)", path, cfg.Store.Driver)
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Store driver: sqlite, postgres or memory")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Store data source name")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func (c *cli) newStatsCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show circulation statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dateFlag("as-of", asOf, c.today())
			if err != nil {
				return err
			}
			stats, err := c.session.ledger.Stats(cmd.Context(), day)
			if err != nil {
				return err
			}
			return c.emit(cmd, stats, func(w io.Writer) {
				header(w, "Library as of %s", stats.AsOf)
				printField(w, "books", fmt.Sprintf("%d (%d available, %d issued)", stats.TotalBooks, stats.AvailableBooks, stats.IssuedBooks))
				printField(w, "members", fmt.Sprintf("%d (%d active)", stats.TotalMembers, stats.ActiveMembers))
				printField(w, "open loans", fmt.Sprintf("%d (%d overdue, %d due soon)", stats.OpenTransactions, stats.OverdueTransactions, stats.DueSoonTransactions))
				printField(w, "fines owed", stats.OutstandingFines.StringFixed(2))
				printField(w, "fines accruing", stats.AccruingFines.StringFixed(2))

				if len(stats.Popular) > 0 {
					header(w, "Most borrowed")
					for _, p := range stats.Popular {
						fmt.Fprintf(w, "  %-6s %3d  %s\n", p.BookID, p.Count, p.Title)
					}
				}
				if len(stats.MostOverdue) > 0 {
					header(w, "Most overdue")
					for _, t := range stats.MostOverdue {
						printTransactionLine(w, t, c.session.policy.DisplayStatus(t, stats.AsOf))
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference day, YYYY-MM-DD (default today)")
	return cmd
}

func (c *cli) newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that book statuses agree with the loan ledger",
		Long: `Check the ledger invariants: a book is Issued exactly when one open
transaction references it, due dates do not precede issue dates, and fines
only follow late returns. Exits non-zero when a violation is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			violations, err := c.session.ledger.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.emit(cmd, violations, func(w io.Writer) {
				for _, v := range violations {
					subject := v.BookID
					if v.TransactionID != "" {
						subject += " " + v.TransactionID
					}
					warn(w, "%s [%s] %s", v.Rule, subject, v.Message)
				}
				if len(violations) == 0 {
					ok(w, "Ledger is consistent")
				}
			}); err != nil {
				return err
			}
			if len(violations) > 0 {
				return fmt.Errorf("%d ledger violations found", len(violations))
			}
			return nil
		},
	}
}

func (c *cli) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.json|file.yaml>",
		Short: "Write books, members and transactions to an archive file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.requireLocal(); err != nil {
				return err
			}
			a, err := c.session.archiver.Export(cmd.Context())
			if err != nil {
				return err
			}
			if err := archive.WriteFile(args[0], a); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "Exported %d books, %d members and %d transactions to %s",
				len(a.Books), len(a.Members), len(a.Transactions), args[0])
			return nil
		},
	}
}

func (c *cli) newImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.json|file.yaml>",
		Short: "Replace books, members and transactions with an archive file",
		Long: `Replace the whole library with the contents of an archive file.

The archive is validated first: id formats, duplicate ids and emails, and the
ledger invariants. Nothing is written unless every check passes. The journal
is restarted with one import event per transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.requireLocal(); err != nil {
				return err
			}
			a, err := archive.ReadFile(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				if err := archive.Validate(a); err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "%s is valid: %d books, %d members, %d transactions",
					args[0], len(a.Books), len(a.Members), len(a.Transactions))
				return nil
			}

			summary, err := c.session.archiver.Import(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, summary, func(w io.Writer) {
				ok(w, "Imported %d books, %d members and %d transactions from %s",
					summary.Books, summary.Members, summary.Transactions, args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the archive without writing it")
	return cmd
}

func (c *cli) newEventsCmd() *cobra.Command {
	var (
		from  int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream the ledger journal in position order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.requireLocal(); err != nil {
				return err
			}
			events, err := c.session.local.Events.StreamEvents(cmd.Context(), from, limit)
			if err != nil {
				return err
			}
			return c.emit(cmd, events, func(w io.Writer) {
				for _, e := range events {
					fmt.Fprintf(w, "  %5d  %-6s v%-3d %-20s %s\n",
						e.Position, e.AggregateID, e.Version, e.EventType, e.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				if limit > 0 && len(events) == limit {
					warn(w, "More events follow; continue with --from %d", events[len(events)-1].Position)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "Only events after this position")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	return cmd
}
