// internal/circulation/domain.go
package circulation

import (
	"time"

	"libraripro/internal/calendar"

	"github.com/shopspring/decimal"
)

// Status is the persisted state of a transaction. StatusOverdue is accepted
// when reading existing records and is treated as open; the ledger itself only
// writes Issued and Returned.
type Status string

const (
	StatusIssued   Status = "Issued"
	StatusOverdue  Status = "Overdue"
	StatusReturned Status = "Returned"
)

// DisplayStatus is derived from the due date and a reference day. It is never stored.
type DisplayStatus string

const (
	DisplayIssued   DisplayStatus = "Issued"
	DisplayDueSoon  DisplayStatus = "DueSoon"
	DisplayOverdue  DisplayStatus = "Overdue"
	DisplayReturned DisplayStatus = "Returned"
)

const (
	DefaultPriority  = "Normal"
	DefaultCondition = "Good"
)

// Fine is attached to a transaction returned after its due date.
type Fine struct {
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Waived      bool            `json:"waived" yaml:"waived"`
	Paid        bool            `json:"paid" yaml:"paid"`
	OverdueDays int             `json:"overdueDays" yaml:"overdueDays"`
}

// Outstanding reports whether the fine still has to be collected.
func (f *Fine) Outstanding() bool {
	return f != nil && !f.Waived && !f.Paid
}

// Transaction records one loan of a book to a member. BookTitle and MemberName
// are copied at issue time and never refreshed.
type Transaction struct {
	ID         string         `json:"id" yaml:"id"`
	BookID     string         `json:"bookId" yaml:"bookId"`
	BookTitle  string         `json:"bookTitle" yaml:"bookTitle"`
	MemberID   string         `json:"memberId" yaml:"memberId"`
	MemberName string         `json:"memberName" yaml:"memberName"`
	IssueDate  calendar.Date  `json:"issueDate" yaml:"issueDate"`
	DueDate    calendar.Date  `json:"dueDate" yaml:"dueDate"`
	ReturnDate *calendar.Date `json:"returnDate" yaml:"returnDate"`
	Status     Status         `json:"status" yaml:"status"`
	Priority   string         `json:"priority,omitempty" yaml:"priority,omitempty"`
	Condition  string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Renewals   int            `json:"renewals,omitempty" yaml:"renewals,omitempty"`
	Fine       *Fine          `json:"fine,omitempty" yaml:"fine,omitempty"`
	Notes      string         `json:"notes" yaml:"notes"`
	CreatedAt  time.Time      `json:"createdAt" yaml:"createdAt"`
}

// IsOpen reports whether the book is still out on this transaction.
func (t Transaction) IsOpen() bool {
	return t.Status == StatusIssued || t.Status == StatusOverdue
}

// IssueRequest is the input of IssueBook.
type IssueRequest struct {
	BookID    string        `json:"bookId"`
	MemberID  string        `json:"memberId"`
	IssueDate calendar.Date `json:"issueDate"`
	DueDate   calendar.Date `json:"dueDate"`
	Priority  string        `json:"priority"`
	Notes     string        `json:"notes"`
}

// ReturnRequest is the input of ReturnBook.
type ReturnRequest struct {
	TransactionID string        `json:"transactionId"`
	ReturnDate    calendar.Date `json:"returnDate"`
	Condition     string        `json:"condition"`
	Notes         string        `json:"notes"`
	FineWaived    bool          `json:"fineWaived"`
	FinePaid      bool          `json:"finePaid"`
}

// Filter narrows ListTransactions. Status may be a persisted status or one of
// the display statuses Overdue and DueSoon, which are evaluated against AsOf.
type Filter struct {
	Query    string
	Status   string
	MemberID string
	BookID   string
	IssuedOn calendar.Date
	AsOf     calendar.Date
}

// Holding pairs a book found by code with its open transaction, if any.
type Holding struct {
	BookID      string       `json:"bookId"`
	Title       string       `json:"title"`
	ISBN        string       `json:"isbn,omitempty"`
	Status      string       `json:"status"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// Event types written to the ledger journal.
const (
	AggregateType = "transaction"
	EventIssued   = "TransactionIssued"
	EventReturned = "TransactionReturned"
	EventRenewed  = "TransactionRenewed"
	EventImported = "TransactionImported"
)

// IssuedEvent is journaled when a book is issued.
type IssuedEvent struct {
	TransactionID string        `json:"transactionId"`
	BookID        string        `json:"bookId"`
	MemberID      string        `json:"memberId"`
	IssueDate     calendar.Date `json:"issueDate"`
	DueDate       calendar.Date `json:"dueDate"`
}

// ReturnedEvent is journaled when a book comes back.
type ReturnedEvent struct {
	TransactionID string        `json:"transactionId"`
	BookID        string        `json:"bookId"`
	ReturnDate    calendar.Date `json:"returnDate"`
	Condition     string        `json:"condition"`
	Fine          *Fine         `json:"fine,omitempty"`
}

// RenewedEvent is journaled on each renewal.
type RenewedEvent struct {
	TransactionID string        `json:"transactionId"`
	PreviousDue   calendar.Date `json:"previousDue"`
	DueDate       calendar.Date `json:"dueDate"`
	Renewals      int           `json:"renewals"`
}

// ImportedEvent starts the journal of a transaction loaded from an archive.
type ImportedEvent struct {
	TransactionID string `json:"transactionId"`
	Status        Status `json:"status"`
	Source        string `json:"source,omitempty"`
}
