// internal/circulation/ledger.go
package circulation

import (
	"fmt"
	"strings"
	"time"

	"libraripro/internal/apperr"
	"libraripro/internal/catalog"
	"libraripro/internal/ids"
	"libraripro/internal/membership"
	"libraripro/internal/store"
	"libraripro/internal/validator"
)

// Ledger is the library_transactions namespace loaded into a store
// transaction. Its Issue, Return and Renew methods check every precondition
// before touching any record, so a failed call leaves books and transactions
// as they were.
type Ledger struct {
	tx           store.Tx
	transactions []Transaction
	dirty        bool
}

func OpenLedger(tx store.Tx) (*Ledger, error) {
	l := &Ledger{tx: tx}
	if err := tx.Load(store.Transactions, &l.transactions); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Transaction(id string) (Transaction, bool) {
	for _, t := range l.transactions {
		if t.ID == id {
			return t, true
		}
	}
	return Transaction{}, false
}

// OpenFor returns the open transaction on a book.
func (l *Ledger) OpenFor(bookID string) (Transaction, bool) {
	for _, t := range l.transactions {
		if t.BookID == bookID && t.IsOpen() {
			return t, true
		}
	}
	return Transaction{}, false
}

func (l *Ledger) All() []Transaction {
	return append([]Transaction(nil), l.transactions...)
}

func (l *Ledger) IDs() []string {
	out := make([]string, 0, len(l.transactions))
	for _, t := range l.transactions {
		out = append(out, t.ID)
	}
	return out
}

func (l *Ledger) Replace(transactions []Transaction) {
	l.transactions = append([]Transaction(nil), transactions...)
	l.dirty = true
}

func (l *Ledger) put(t Transaction) {
	for i := range l.transactions {
		if l.transactions[i].ID == t.ID {
			l.transactions[i] = t
			l.dirty = true
			return
		}
	}
	l.transactions = append(l.transactions, t)
	l.dirty = true
}

func (l *Ledger) Flush() error {
	if !l.dirty {
		return nil
	}
	if l.transactions == nil {
		l.transactions = []Transaction{}
	}
	if err := l.tx.Save(store.Transactions, l.transactions); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// Issue lends a book to a member and marks the book Issued.
func (l *Ledger) Issue(books BookLookup, members MemberLookup, req IssueRequest, now time.Time) (Transaction, error) {
	req.BookID = strings.TrimSpace(req.BookID)
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.Priority = strings.TrimSpace(req.Priority)
	req.Notes = strings.TrimSpace(req.Notes)

	v := validator.New()
	v.Check(req.BookID != "", "bookId", "must be provided")
	v.Check(req.MemberID != "", "memberId", "must be provided")
	v.Check(!req.IssueDate.IsZero(), "issueDate", "must be provided")
	v.Check(!req.DueDate.IsZero(), "dueDate", "must be provided")
	if !req.IssueDate.IsZero() && !req.DueDate.IsZero() {
		v.Check(!req.DueDate.Before(req.IssueDate), "dueDate", "must not be before the issue date")
	}
	if err := v.Err(); err != nil {
		return Transaction{}, err
	}

	book, ok := books.Book(req.BookID)
	if !ok {
		return Transaction{}, apperr.NotFound("book", req.BookID)
	}
	member, ok := members.Member(req.MemberID)
	if !ok {
		return Transaction{}, apperr.NotFound("member", req.MemberID)
	}
	if book.Status != catalog.StatusAvailable {
		return Transaction{}, apperr.Conflict("book %s is %s, not available for issue", book.ID, book.Status)
	}
	if open, ok := l.OpenFor(book.ID); ok {
		return Transaction{}, apperr.Conflict("book %s is already on loan under %s", book.ID, open.ID)
	}
	if member.Status != membership.StatusActive {
		return Transaction{}, apperr.Conflict("member %s is %s and cannot borrow", member.ID, member.Status)
	}

	id, err := ids.Allocate(l.tx, ids.TransactionPrefix, l.IDs())
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	if req.Priority == "" {
		req.Priority = DefaultPriority
	}

	t := Transaction{
		ID:         id,
		BookID:     book.ID,
		BookTitle:  book.Title,
		MemberID:   member.ID,
		MemberName: member.Name,
		IssueDate:  req.IssueDate,
		DueDate:    req.DueDate,
		Status:     StatusIssued,
		Priority:   req.Priority,
		Notes:      req.Notes,
		CreatedAt:  now.UTC(),
	}

	book.Status = catalog.StatusIssued
	if err := books.PutBook(book); err != nil {
		return Transaction{}, err
	}
	l.put(t)
	return t, nil
}

// Return closes an open transaction, attaches any fine and makes the book Available.
func (l *Ledger) Return(books BookLookup, req ReturnRequest, policy Policy) (Transaction, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.Condition = strings.TrimSpace(req.Condition)
	req.Notes = strings.TrimSpace(req.Notes)

	v := validator.New()
	v.Check(req.TransactionID != "", "transactionId", "must be provided")
	v.Check(!req.ReturnDate.IsZero(), "returnDate", "must be provided")
	if err := v.Err(); err != nil {
		return Transaction{}, err
	}

	t, ok := l.Transaction(req.TransactionID)
	if !ok {
		return Transaction{}, apperr.NotFound("transaction", req.TransactionID)
	}
	if !t.IsOpen() {
		return Transaction{}, apperr.Conflict("transaction %s is already returned", t.ID)
	}

	book, bookKnown := books.Book(t.BookID)

	returned := req.ReturnDate
	t.ReturnDate = &returned
	t.Status = StatusReturned
	t.Condition = req.Condition
	if t.Condition == "" {
		t.Condition = DefaultCondition
	}
	t.Notes = appendNote(t.Notes, req.Notes)
	t.Fine = policy.FineFor(t.DueDate, req.ReturnDate, req.FineWaived, req.FinePaid)

	// A book removed from the catalog while on loan leaves nothing to release.
	if bookKnown {
		book.Status = catalog.StatusAvailable
		if err := books.PutBook(book); err != nil {
			return Transaction{}, err
		}
	}
	l.put(t)
	return t, nil
}

// Renew extends the due date of an open transaction by the renewal period.
func (l *Ledger) Renew(id string, policy Policy) (Transaction, error) {
	id = strings.TrimSpace(id)
	t, ok := l.Transaction(id)
	if !ok {
		return Transaction{}, apperr.NotFound("transaction", id)
	}
	if !t.IsOpen() {
		return Transaction{}, apperr.Conflict("transaction %s is returned and cannot be renewed", t.ID)
	}
	if policy.MaxRenewals > 0 && t.Renewals >= policy.MaxRenewals {
		return Transaction{}, apperr.Conflict("transaction %s has reached the renewal limit of %d", t.ID, policy.MaxRenewals)
	}

	t.DueDate = t.DueDate.AddDays(policy.RenewalDays)
	t.Renewals++
	l.put(t)
	return t, nil
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return "Return: " + note
	}
	return existing + " | Return: " + note
}
