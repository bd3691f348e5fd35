// internal/circulation/stats.go
package circulation

import (
	"sort"

	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/membership"

	"github.com/shopspring/decimal"
)

const topN = 5

// Stats is the dashboard summary of the library as of a given day.
type Stats struct {
	AsOf                calendar.Date   `json:"asOf"`
	TotalBooks          int             `json:"totalBooks"`
	AvailableBooks      int             `json:"availableBooks"`
	IssuedBooks         int             `json:"issuedBooks"`
	TotalMembers        int             `json:"totalMembers"`
	ActiveMembers       int             `json:"activeMembers"`
	OpenTransactions    int             `json:"openTransactions"`
	OverdueTransactions int             `json:"overdueTransactions"`
	DueSoonTransactions int             `json:"dueSoonTransactions"`
	OutstandingFines    decimal.Decimal `json:"outstandingFines"`
	AccruingFines       decimal.Decimal `json:"accruingFines"`
	Popular             []BookCount     `json:"popular"`
	MostOverdue         []Transaction   `json:"mostOverdue"`
	Recent              []Transaction   `json:"recent"`
}

// BookCount is how often a book has been issued.
type BookCount struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Count  int    `json:"count"`
}

// ComputeStats summarises the three collections. OutstandingFines totals
// recorded fines neither paid nor waived; AccruingFines previews the fines of
// open overdue loans if they were returned on asOf.
func ComputeStats(books []catalog.Book, members []membership.Member, transactions []Transaction, policy Policy, asOf calendar.Date) *Stats {
	s := &Stats{
		AsOf:             asOf,
		TotalBooks:       len(books),
		TotalMembers:     len(members),
		OutstandingFines: decimal.Zero,
		AccruingFines:    decimal.Zero,
		Popular:          []BookCount{},
		MostOverdue:      []Transaction{},
		Recent:           []Transaction{},
	}

	for _, b := range books {
		if b.Status == catalog.StatusIssued {
			s.IssuedBooks++
		} else {
			s.AvailableBooks++
		}
	}
	for _, m := range members {
		if m.Status == membership.StatusActive {
			s.ActiveMembers++
		}
	}

	counts := make(map[string]*BookCount)
	var overdue []Transaction
	for _, t := range transactions {
		c, ok := counts[t.BookID]
		if !ok {
			c = &BookCount{BookID: t.BookID, Title: t.BookTitle}
			counts[t.BookID] = c
		}
		c.Count++

		if t.Fine.Outstanding() {
			s.OutstandingFines = s.OutstandingFines.Add(t.Fine.Amount)
		}
		if !t.IsOpen() {
			continue
		}
		s.OpenTransactions++
		switch policy.DisplayStatus(t, asOf) {
		case DisplayOverdue:
			s.OverdueTransactions++
			s.AccruingFines = s.AccruingFines.Add(policy.PreviewFine(t, asOf))
			overdue = append(overdue, t)
		case DisplayDueSoon:
			s.DueSoonTransactions++
		}
	}

	for _, c := range counts {
		s.Popular = append(s.Popular, *c)
	}
	sort.Slice(s.Popular, func(i, j int) bool {
		if s.Popular[i].Count != s.Popular[j].Count {
			return s.Popular[i].Count > s.Popular[j].Count
		}
		return s.Popular[i].BookID < s.Popular[j].BookID
	})
	s.Popular = head(s.Popular)

	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate)
	})
	s.MostOverdue = append(s.MostOverdue, head(overdue)...)

	recent := append([]Transaction(nil), transactions...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	s.Recent = append(s.Recent, head(recent)...)
	return s
}

func head[T any](xs []T) []T {
	if len(xs) > topN {
		return xs[:topN]
	}
	return xs
}
