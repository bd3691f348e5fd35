package circulation

import (
	"errors"
	"fmt"
	"testing"

	"libraripro/internal/apperr"
	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	dune := f.book(t, "Dune")
	emma := f.book(t, "Emma")
	ulysses := f.book(t, "Ulysses")
	ada := f.member(t, "Ada Lovelace")
	alan := f.member(t, "Alan Turing")

	t1 := f.issue(t, dune.ID, ada.ID, "2024-01-01", "2024-01-10")
	t2 := f.issue(t, emma.ID, alan.ID, "2024-01-02", "2024-01-21")
	t3 := f.issue(t, ulysses.ID, ada.ID, "2024-01-03", "2024-02-03")
	_, err := f.ledger.ReturnBook(f.ctx, ReturnRequest{TransactionID: t3.ID, ReturnDate: calendar.MustParse("2024-01-05")})
	require.NoError(t, err)

	asOf := calendar.MustParse("2024-01-19")
	ids := func(filter Filter) []string {
		filter.AsOf = asOf
		list, err := f.ledger.ListTransactions(f.ctx, filter)
		require.NoError(t, err)
		out := []string{}
		for _, tx := range list {
			out = append(out, tx.ID)
		}
		return out
	}

	assert.Equal(t, []string{t1.ID, t2.ID, t3.ID}, ids(Filter{}))
	assert.Equal(t, []string{t1.ID, t2.ID}, ids(Filter{Status: "Issued"}))
	assert.Equal(t, []string{t3.ID}, ids(Filter{Status: "Returned"}))
	assert.Equal(t, []string{t1.ID}, ids(Filter{Status: "Overdue"}))
	assert.Equal(t, []string{t2.ID}, ids(Filter{Status: "DueSoon"}))
	assert.Equal(t, []string{t1.ID, t3.ID}, ids(Filter{Query: "ada"}))
	assert.Equal(t, []string{t2.ID}, ids(Filter{Query: "emm"}))
	assert.Equal(t, []string{t3.ID}, ids(Filter{MemberID: ada.ID, Status: "Returned"}))
	assert.Equal(t, []string{t2.ID}, ids(Filter{IssuedOn: calendar.MustParse("2024-01-02")}))
	assert.Equal(t, []string{}, ids(Filter{Status: "Lost"}))
}

func TestLookupByCode(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	book, err := f.catalog.AddBook(f.ctx, catalog.BookInput{
		Title: "The C Programming Language", Author: "Kernighan", Category: "Computing", ISBN: "978-0-13-110362-7",
	})
	require.NoError(t, err)
	member := f.member(t, "Ada Lovelace")

	holdings, err := f.ledger.LookupByCode(f.ctx, "9780131103627")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Nil(t, holdings[0].Transaction)

	issued := f.issue(t, book.ID, member.ID, "2024-01-01", "2024-01-15")

	holdings, err = f.ledger.LookupByCode(f.ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	require.NotNil(t, holdings[0].Transaction)
	assert.Equal(t, issued.ID, holdings[0].Transaction.ID)
	assert.Equal(t, string(catalog.StatusIssued), holdings[0].Status)

	holdings, err = f.ledger.LookupByCode(f.ctx, "0000")
	require.NoError(t, err)
	assert.Empty(t, holdings)

	_, err = f.ledger.LookupByCode(f.ctx, " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStats(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	dune := f.book(t, "Dune")
	emma := f.book(t, "Emma")
	f.book(t, "Ulysses")
	ada := f.member(t, "Ada Lovelace")
	alan := f.member(t, "Alan Turing")

	first := f.issue(t, dune.ID, ada.ID, "2024-01-01", "2024-01-05")
	_, err := f.ledger.ReturnBook(f.ctx, ReturnRequest{TransactionID: first.ID, ReturnDate: calendar.MustParse("2024-01-08")})
	require.NoError(t, err)
	f.issue(t, dune.ID, alan.ID, "2024-01-09", "2024-01-12")
	f.issue(t, emma.ID, ada.ID, "2024-01-09", "2024-01-30")

	stats, err := f.ledger.Stats(f.ctx, calendar.MustParse("2024-01-14"))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalBooks)
	assert.Equal(t, 2, stats.IssuedBooks)
	assert.Equal(t, 1, stats.AvailableBooks)
	assert.Equal(t, 2, stats.TotalMembers)
	assert.Equal(t, 2, stats.ActiveMembers)
	assert.Equal(t, 2, stats.OpenTransactions)
	assert.Equal(t, 1, stats.OverdueTransactions)
	assert.Equal(t, 0, stats.DueSoonTransactions)
	assert.Equal(t, "3.00", stats.OutstandingFines.StringFixed(2))
	assert.Equal(t, "2.00", stats.AccruingFines.StringFixed(2))
	require.NotEmpty(t, stats.Popular)
	assert.Equal(t, BookCount{BookID: dune.ID, Title: "Dune", Count: 2}, stats.Popular[0])
	require.Len(t, stats.MostOverdue, 1)
	assert.Equal(t, dune.ID, stats.MostOverdue[0].BookID)
	assert.Len(t, stats.Recent, 3)
}

func TestVerifyReportsDrift(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	book := f.book(t, "Dune")
	member := f.member(t, "Ada Lovelace")
	f.issue(t, book.ID, member.ID, "2024-01-01", "2024-01-15")

	violations, err := f.ledger.Verify(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)

	books, _ := f.snapshot(t)
	books[0].Status = catalog.StatusAvailable
	require.NoError(t, f.store.Update(f.ctx, func(tx store.Tx) error {
		return tx.Save(store.Books, books)
	}))

	violations, err = f.ledger.Verify(f.ctx)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleBookStatus, violations[0].Rule)
}

// TestLedgerInvariantsHold drives random issue, return and renew calls and
// checks after each one that book status mirrors the open loans.
func TestLedgerInvariantsHold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := DefaultPolicy()
		policy.MaxRenewals = rapid.IntRange(0, 3).Draw(t, "maxRenewals")
		f := newFixture(t, policy)

		var bookIDs, memberIDs []string
		for i := 0; i < 3; i++ {
			bookIDs = append(bookIDs, f.book(t, fmt.Sprintf("Book %d", i)).ID)
		}
		for i := 0; i < 2; i++ {
			memberIDs = append(memberIDs, f.member(t, fmt.Sprintf("Member %d", i)).ID)
		}

		start := calendar.MustParse("2024-01-01")
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			var err error
			switch rapid.SampledFrom([]string{"issue", "return", "renew"}).Draw(t, "op") {
			case "issue":
				issue := start.AddDays(rapid.IntRange(0, 60).Draw(t, "issueOffset"))
				_, err = f.ledger.IssueBook(f.ctx, IssueRequest{
					BookID:    rapid.SampledFrom(bookIDs).Draw(t, "book"),
					MemberID:  rapid.SampledFrom(memberIDs).Draw(t, "member"),
					IssueDate: issue,
					DueDate:   issue.AddDays(rapid.IntRange(0, 30).Draw(t, "loanDays")),
				})
			case "return":
				_, err = f.ledger.ReturnBook(f.ctx, ReturnRequest{
					TransactionID: fmt.Sprintf("T%03d", rapid.IntRange(1, 10).Draw(t, "txn")),
					ReturnDate:    start.AddDays(rapid.IntRange(60, 120).Draw(t, "returnOffset")),
				})
			case "renew":
				_, err = f.ledger.RenewBook(f.ctx, fmt.Sprintf("T%03d", rapid.IntRange(1, 10).Draw(t, "txn")))
			}
			if err != nil && !errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("unexpected error: %v", err)
			}

			violations, err := f.ledger.Verify(f.ctx)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if len(violations) > 0 {
				t.Fatalf("ledger inconsistent after step %d: %+v", i, violations)
			}
		}
	})
}

func TestRemovedBookAndMemberIDsAreNotReused(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	book := f.book(t, "Dune")
	member := f.member(t, "Ada Lovelace")
	loan := f.issue(t, book.ID, member.ID, "2024-01-01", "2024-01-15")
	_, err := f.ledger.QuickReturn(f.ctx, loan.ID)
	require.NoError(t, err)

	require.NoError(t, f.catalog.RemoveBook(f.ctx, book.ID))
	require.NoError(t, f.members.RemoveMember(f.ctx, member.ID))

	emma := f.book(t, "Emma")
	grace := f.member(t, "Grace Hopper")
	assert.NotEqual(t, book.ID, emma.ID)
	assert.NotEqual(t, member.ID, grace.ID)

	history, err := f.ledger.ListTransactions(f.ctx, Filter{BookID: emma.ID})
	require.NoError(t, err)
	assert.Empty(t, history)
	history, err = f.ledger.ListTransactions(f.ctx, Filter{MemberID: grace.ID})
	require.NoError(t, err)
	assert.Empty(t, history)

	old, err := f.ledger.ListTransactions(f.ctx, Filter{BookID: book.ID})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "Dune", old[0].BookTitle)
}
