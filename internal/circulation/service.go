// internal/circulation/service.go
package circulation

import (
	"context"

	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/eventstore"
	"libraripro/internal/membership"
)

// Service defines the interface for the circulation service.
type Service interface {
	IssueBook(ctx context.Context, req IssueRequest) (*Transaction, error)
	ReturnBook(ctx context.Context, req ReturnRequest) (*Transaction, error)
	RenewBook(ctx context.Context, transactionID string) (*Transaction, error)
	// QuickReturn returns the book today in Good condition with the fine neither waived nor paid.
	QuickReturn(ctx context.Context, transactionID string) (*Transaction, error)

	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, f Filter) ([]Transaction, error)
	History(ctx context.Context, transactionID string) ([]eventstore.Event, error)
	DisplayStatus(ctx context.Context, transactionID string, asOf calendar.Date) (DisplayStatus, error)
	LookupByCode(ctx context.Context, code string) ([]Holding, error)
	Stats(ctx context.Context, asOf calendar.Date) (*Stats, error)
	Verify(ctx context.Context) ([]Violation, error)
}

// BookLookup reads and writes books inside the ledger's store transaction.
// catalog.Collection satisfies it.
type BookLookup interface {
	Book(id string) (catalog.Book, bool)
	PutBook(book catalog.Book) error
}

// MemberLookup reads members inside the ledger's store transaction.
// membership.Collection satisfies it.
type MemberLookup interface {
	Member(id string) (membership.Member, bool)
}

var (
	_ BookLookup   = (*catalog.Collection)(nil)
	_ MemberLookup = (*membership.Collection)(nil)
)
