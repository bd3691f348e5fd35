// internal/cli/output.go
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/membership"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// initColor disables color for --no-color and for non-terminal output.
func initColor(noColor bool) {
	if noColor || !isTTY() {
		color.NoColor = true
	}
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// ok prints a green success line.
func ok(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintln(w, color.GreenString("✓"), fmt.Sprintf(format, a...))
}

// warn prints a yellow warning line.
func warn(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintln(w, color.YellowString("!"), fmt.Sprintf(format, a...))
}

// header prints a cyan section heading.
func header(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintln(w, color.CyanString(fmt.Sprintf(format, a...)))
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-14s %s\n", color.CyanString(label+":"), value)
}

// emit prints v as JSON under --json, and runs text otherwise.
func (c *cli) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if c.flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func bookStatus(s catalog.Status) string {
	if s == catalog.StatusIssued {
		return color.YellowString("%-9s", s)
	}
	return color.GreenString("%-9s", s)
}

func memberStatus(s membership.MemberStatus) string {
	if s == membership.StatusInactive {
		return color.RedString("%-8s", s)
	}
	return color.GreenString("%-8s", s)
}

func displayStatus(s circulation.DisplayStatus) string {
	switch s {
	case circulation.DisplayOverdue:
		return color.RedString("%-8s", s)
	case circulation.DisplayDueSoon:
		return color.YellowString("%-8s", s)
	case circulation.DisplayReturned:
		return color.HiBlackString("%-8s", s)
	default:
		return color.GreenString("%-8s", s)
	}
}

func printBook(w io.Writer, b *catalog.Book) {
	header(w, "Book: %s", b.ID)
	printField(w, "title", b.Title)
	printField(w, "author", b.Author)
	if b.ISBN != "" {
		printField(w, "isbn", b.ISBN)
	}
	printField(w, "category", b.Category)
	if b.Publisher != "" {
		printField(w, "publisher", b.Publisher)
	}
	if b.Year != 0 {
		printField(w, "year", fmt.Sprintf("%d", b.Year))
	}
	printField(w, "status", bookStatus(b.Status))
	printField(w, "added", b.AddedDate.String())
	if b.Description != "" {
		printField(w, "description", b.Description)
	}
}

func printMember(w io.Writer, m *membership.Member) {
	header(w, "Member: %s", m.ID)
	printField(w, "name", m.Name)
	printField(w, "email", m.Email)
	if m.Phone != "" {
		printField(w, "phone", m.Phone)
	}
	printField(w, "type", string(m.Type))
	printField(w, "status", memberStatus(m.Status))
	if m.Address != "" {
		printField(w, "address", m.Address)
	}
	printField(w, "joined", m.JoinDate.String())
}

func printTransaction(w io.Writer, t *circulation.Transaction, display circulation.DisplayStatus) {
	header(w, "Transaction: %s", t.ID)
	printField(w, "book", fmt.Sprintf("%s  %s", t.BookID, t.BookTitle))
	printField(w, "member", fmt.Sprintf("%s  %s", t.MemberID, t.MemberName))
	printField(w, "issued", t.IssueDate.String())
	printField(w, "due", t.DueDate.String())
	if t.ReturnDate != nil {
		printField(w, "returned", t.ReturnDate.String())
	}
	printField(w, "status", displayStatus(display))
	if t.Priority != "" {
		printField(w, "priority", t.Priority)
	}
	if t.Condition != "" {
		printField(w, "condition", t.Condition)
	}
	if t.Renewals > 0 {
		printField(w, "renewals", fmt.Sprintf("%d", t.Renewals))
	}
	if t.Fine != nil {
		printField(w, "fine", fineText(t.Fine))
	}
	if t.Notes != "" {
		printField(w, "notes", t.Notes)
	}
}

func printTransactionLine(w io.Writer, t circulation.Transaction, display circulation.DisplayStatus) {
	fmt.Fprintf(w, "  %-6s %s %-6s %-30s %-6s %-20s due %s\n",
		t.ID, displayStatus(display), t.BookID, truncate(t.BookTitle, 30), t.MemberID, truncate(t.MemberName, 20), t.DueDate)
}

func fineText(f *circulation.Fine) string {
	text := fmt.Sprintf("%s for %d overdue days", f.Amount.StringFixed(2), f.OverdueDays)
	switch {
	case f.Waived:
		text += " (waived)"
	case f.Paid:
		text += " (paid)"
	default:
		text += " " + color.RedString("(outstanding)")
	}
	return text
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// dateFlag parses an optional YYYY-MM-DD flag value, falling back to def.
func dateFlag(name, value string, def calendar.Date) (calendar.Date, error) {
	if value == "" {
		return def, nil
	}
	d, err := calendar.Parse(value)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}
