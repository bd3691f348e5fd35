package circulation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/eventstore"
	"libraripro/internal/membership"
	"libraripro/internal/store"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx     context.Context
	store   store.Store
	catalog catalog.Service
	members membership.Service
	ledger  Service
	now     time.Time
}

func newFixture(t require.TestingT, policy Policy) *fixture {
	f := &fixture{
		ctx:   context.Background(),
		store: store.NewMemoryStore(),
		now:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.catalog = catalog.NewService(f.store, clock, logger)
	f.members = membership.NewService(f.store, clock, logger)
	svc, err := NewService(f.store, eventstore.New(f.store, clock), policy, clock, logger)
	require.NoError(t, err)
	f.ledger = svc
	return f
}

func (f *fixture) book(t require.TestingT, title string) catalog.Book {
	b, err := f.catalog.AddBook(f.ctx, catalog.BookInput{
		Title:    title,
		Author:   "Author of " + title,
		Category: "Fiction",
	})
	require.NoError(t, err)
	return *b
}

func (f *fixture) member(t require.TestingT, name string) membership.Member {
	m, err := f.members.AddMember(f.ctx, membership.MemberInput{
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", strings.ToLower(strings.ReplaceAll(name, " ", "."))),
		Type:  membership.TypeStudent,
	})
	require.NoError(t, err)
	return *m
}

func (f *fixture) issue(t require.TestingT, bookID, memberID, issue, due string) Transaction {
	tx, err := f.ledger.IssueBook(f.ctx, IssueRequest{
		BookID:    bookID,
		MemberID:  memberID,
		IssueDate: calendar.MustParse(issue),
		DueDate:   calendar.MustParse(due),
	})
	require.NoError(t, err)
	return *tx
}

// snapshot reads the raw books and transactions collections.
func (f *fixture) snapshot(t require.TestingT) ([]catalog.Book, []Transaction) {
	var books []catalog.Book
	var transactions []Transaction
	err := f.store.View(f.ctx, func(tx store.Tx) error {
		if err := tx.Load(store.Books, &books); err != nil {
			return err
		}
		return tx.Load(store.Transactions, &transactions)
	})
	require.NoError(t, err)
	return books, transactions
}

func (f *fixture) bookStatus(t require.TestingT, id string) catalog.Status {
	b, err := f.catalog.GetBook(f.ctx, id)
	require.NoError(t, err)
	return b.Status
}
