// internal/cli/transactions.go
package cli

import (
	"fmt"
	"io"

	"libraripro/internal/calendar"
	"libraripro/internal/circulation"

	"github.com/spf13/cobra"
)

func (c *cli) newTransactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Browse the loan ledger",
	}
	cmd.AddCommand(
		c.newTransactionsListCmd(),
		c.newTransactionsShowCmd(),
		c.newTransactionsHistoryCmd(),
	)
	return cmd
}

func (c *cli) newTransactionsListCmd() *cobra.Command {
	var (
		f        circulation.Filter
		issuedOn string
		asOf     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Long: `List transactions matching every given filter.

--status accepts Issued (open loans), Returned, Overdue and DueSoon. Overdue
and DueSoon are evaluated against --as-of, which defaults to today.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.AsOf, err = dateFlag("as-of", asOf, c.today()); err != nil {
				return err
			}
			if f.IssuedOn, err = dateFlag("issued-on", issuedOn, calendar.Date{}); err != nil {
				return err
			}

			txns, err := c.session.ledger.ListTransactions(cmd.Context(), f)
			if err != nil {
				return err
			}
			return c.emit(cmd, txns, func(w io.Writer) {
				header(w, "Transactions (%d)", len(txns))
				for _, t := range txns {
					printTransactionLine(w, t, c.session.policy.DisplayStatus(t, f.AsOf))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "Match transaction, book or member ids and names")
	cmd.Flags().StringVar(&f.Status, "status", "", "Issued, Returned, Overdue or DueSoon")
	cmd.Flags().StringVar(&f.MemberID, "member", "", "Only loans to this member")
	cmd.Flags().StringVar(&f.BookID, "book", "", "Only loans of this book")
	cmd.Flags().StringVar(&issuedOn, "issued-on", "", "Only loans issued on this day, YYYY-MM-DD")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference day for Overdue and DueSoon (default today)")
	return cmd
}

func (c *cli) newTransactionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.session.ledger.GetTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, t, func(w io.Writer) {
				printTransaction(w, t, c.session.policy.DisplayStatus(*t, c.today()))
			})
		},
	}
}

func (c *cli) newTransactionsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the journal of one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := c.session.ledger.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, events, func(w io.Writer) {
				header(w, "History of %s (%d events)", args[0], len(events))
				for _, e := range events {
					fmt.Fprintf(w, "  v%-3d %s  %-20s %s\n",
						e.Version, e.CreatedAt.Format("2006-01-02 15:04:05"), e.EventType, string(e.EventData))
				}
			})
		},
	}
}
