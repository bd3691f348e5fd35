// internal/cli/loans.go
package cli

import (
	"fmt"
	"io"

	"libraripro/internal/calendar"
	"libraripro/internal/circulation"

	"github.com/spf13/cobra"
)

func (c *cli) today() calendar.Date {
	return calendar.FromTime(c.session.now())
}

func (c *cli) newIssueCmd() *cobra.Command {
	var (
		issueDate string
		dueDate   string
		priority  string
		notes     string
	)

	cmd := &cobra.Command{
		Use:   "issue <book-id> <member-id>",
		Short: "Lend a book to a member",
		Long: `Lend an available book to an active member.

The issue date defaults to today and the due date to the loan period of the
lending policy after the issue date.

Examples:
  libraryctl issue B001 M001
  libraryctl issue B001 M001 --due-date 2024-02-01 --priority High`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			issued, err := dateFlag("issue-date", issueDate, c.today())
			if err != nil {
				return err
			}
			due, err := dateFlag("due-date", dueDate, c.session.policy.DueFor(issued))
			if err != nil {
				return err
			}

			t, err := c.session.ledger.IssueBook(cmd.Context(), circulation.IssueRequest{
				BookID:    args[0],
				MemberID:  args[1],
				IssueDate: issued,
				DueDate:   due,
				Priority:  priority,
				Notes:     notes,
			})
			if err != nil {
				return err
			}
			return c.emit(cmd, t, func(w io.Writer) {
				ok(w, "Issued %s: %q to %s, due %s", t.ID, t.BookTitle, t.MemberName, t.DueDate)
			})
		},
	}

	cmd.Flags().StringVar(&issueDate, "issue-date", "", "Issue date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "Due date, YYYY-MM-DD (default issue date plus the loan period)")
	cmd.Flags().StringVar(&priority, "priority", "", "Loan priority (default Normal)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-text notes")
	return cmd
}

func (c *cli) newReturnCmd() *cobra.Command {
	var (
		returnDate string
		req        circulation.ReturnRequest
	)

	cmd := &cobra.Command{
		Use:   "return <transaction-id>",
		Short: "Take a book back and settle any late fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			returned, err := dateFlag("date", returnDate, c.today())
			if err != nil {
				return err
			}
			req.TransactionID = args[0]
			req.ReturnDate = returned

			t, err := c.session.ledger.ReturnBook(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.emit(cmd, t, func(w io.Writer) { printReturn(w, t) })
		},
	}

	cmd.Flags().StringVar(&returnDate, "date", "", "Return date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&req.Condition, "condition", "", "Condition of the returned book (default Good)")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Return notes, appended to the transaction notes")
	cmd.Flags().BoolVar(&req.FineWaived, "waive-fine", false, "Waive the late fine")
	cmd.Flags().BoolVar(&req.FinePaid, "fine-paid", false, "Record the late fine as paid")
	return cmd
}

func (c *cli) newQuickReturnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quick-return <transaction-id>",
		Short: "Return a book today in Good condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.session.ledger.QuickReturn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, t, func(w io.Writer) { printReturn(w, t) })
		},
	}
}

func printReturn(w io.Writer, t *circulation.Transaction) {
	ok(w, "Returned %s: %q from %s on %s", t.ID, t.BookTitle, t.MemberName, t.ReturnDate)
	if t.Fine != nil {
		printField(w, "fine", fineText(t.Fine))
	}
}

func (c *cli) newRenewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew <transaction-id>",
		Short: "Extend the due date of an open loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.session.ledger.RenewBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, t, func(w io.Writer) {
				ok(w, "Renewed %s, now due %s (renewal %d)", t.ID, t.DueDate, t.Renewals)
			})
		},
	}
}

func (c *cli) newStatusCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "status <transaction-id>",
		Short: "Show whether a loan is Issued, DueSoon, Overdue or Returned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dateFlag("as-of", asOf, c.today())
			if err != nil {
				return err
			}
			status, err := c.session.ledger.DisplayStatus(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			out := struct {
				TransactionID string                    `json:"transactionId"`
				AsOf          calendar.Date             `json:"asOf"`
				Status        circulation.DisplayStatus `json:"status"`
			}{args[0], day, status}
			return c.emit(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s (as of %s)\n", args[0], displayStatus(status), day)
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference day, YYYY-MM-DD (default today)")
	return cmd
}
