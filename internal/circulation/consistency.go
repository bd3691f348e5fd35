// internal/circulation/consistency.go
package circulation

import (
	"fmt"
	"sort"

	"libraripro/internal/catalog"
)

// Violation describes one record that breaks a ledger invariant.
type Violation struct {
	Rule          string `json:"rule"`
	BookID        string `json:"bookId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message"`
}

const (
	RuleBookStatus  = "book-status"
	RuleSingleOpen  = "single-open-loan"
	RuleDueDate     = "due-before-issue"
	RuleFine        = "fine-without-late-return"
	RuleMissingBook = "open-loan-missing-book"
)

// CheckConsistency audits books against transactions: a book is Issued exactly
// when one open transaction references it, due dates never precede issue
// dates, and fines only follow late returns.
func CheckConsistency(books []catalog.Book, transactions []Transaction) []Violation {
	var out []Violation

	open := make(map[string][]string)
	for _, t := range transactions {
		if t.IsOpen() {
			open[t.BookID] = append(open[t.BookID], t.ID)
		}
		if t.DueDate.Before(t.IssueDate) {
			out = append(out, Violation{
				Rule:          RuleDueDate,
				TransactionID: t.ID,
				Message:       fmt.Sprintf("due date %s is before issue date %s", t.DueDate, t.IssueDate),
			})
		}
		if t.Fine != nil && t.Fine.OverdueDays > 0 {
			if t.ReturnDate == nil || !t.ReturnDate.After(t.DueDate) {
				out = append(out, Violation{
					Rule:          RuleFine,
					TransactionID: t.ID,
					Message:       fmt.Sprintf("fine for %d overdue days without a late return", t.Fine.OverdueDays),
				})
			}
		}
	}

	known := make(map[string]bool, len(books))
	for _, b := range books {
		known[b.ID] = true
		loans := open[b.ID]
		switch {
		case len(loans) > 1:
			out = append(out, Violation{
				Rule:    RuleSingleOpen,
				BookID:  b.ID,
				Message: fmt.Sprintf("%d open transactions: %v", len(loans), loans),
			})
		case len(loans) == 1 && b.Status != catalog.StatusIssued:
			out = append(out, Violation{
				Rule:          RuleBookStatus,
				BookID:        b.ID,
				TransactionID: loans[0],
				Message:       fmt.Sprintf("book is %s but has an open transaction", b.Status),
			})
		case len(loans) == 0 && b.Status == catalog.StatusIssued:
			out = append(out, Violation{
				Rule:    RuleBookStatus,
				BookID:  b.ID,
				Message: "book is Issued without an open transaction",
			})
		}
	}

	missing := make([]string, 0)
	for bookID := range open {
		if !known[bookID] {
			missing = append(missing, bookID)
		}
	}
	sort.Strings(missing)
	for _, bookID := range missing {
		for _, id := range open[bookID] {
			out = append(out, Violation{
				Rule:          RuleMissingBook,
				BookID:        bookID,
				TransactionID: id,
				Message:       "open transaction references a book that is not in the catalog",
			})
		}
	}
	return out
}
