// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"libraripro/internal/app"
	"libraripro/internal/apperr"
	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/membership"
	"libraripro/internal/store"
)

// Target is the ledger under test: the services built on a FaultyStore.
type Target struct {
	Store *FaultyStore
	App   *app.App

	// Duration is how long each experiment observes the ledger.
	Duration time.Duration

	logger *slog.Logger
	seq    atomic.Int64
}

func NewTarget(inner store.Store, policy circulation.Policy, logger *slog.Logger) (*Target, error) {
	fs := NewFaultyStore(inner)
	a, err := app.New(fs, policy, time.Now, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}
	return &Target{
		Store:    fs,
		App:      a,
		Duration: 5 * time.Second,
		logger:   logger,
	}, nil
}

// Seed adds books and active members for the churn experiments.
func (t *Target) Seed(ctx context.Context, books, members int) error {
	for i := 0; i < books; i++ {
		if _, err := t.addBook(ctx); err != nil {
			return err
		}
	}
	for i := 0; i < members; i++ {
		if _, err := t.addMember(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Target) addBook(ctx context.Context) (*catalog.Book, error) {
	n := t.seq.Add(1)
	book, err := t.App.Catalog.AddBook(ctx, catalog.BookInput{
		Title:    fmt.Sprintf("Chaos Volume %d", n),
		Author:   "Game Day",
		Category: "Testing",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed book: %w", err)
	}
	return book, nil
}

func (t *Target) addMember(ctx context.Context) (*membership.Member, error) {
	n := t.seq.Add(1)
	member, err := t.App.Membership.AddMember(ctx, membership.MemberInput{
		Name:  fmt.Sprintf("Chaos Member %d", n),
		Email: fmt.Sprintf("chaos-%d@example.org", n),
		Type:  membership.TypePublic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed member: %w", err)
	}
	return member, nil
}

// RegisterLedgerExperiments registers the predefined ledger experiments.
func (e *Engine) RegisterLedgerExperiments(t *Target) {
	e.Register(t.ConcurrentIssueRaceExperiment(10))
	e.Register(t.CommitFailureExperiment(3, 30))
	e.Register(t.StoreLatencyExperiment(50*time.Millisecond, 20))
}

// violationsSignal counts consistency violations between books and transactions.
func (t *Target) violationsSignal() Signal {
	return Signal{
		Name: "ledger_violations",
		Measure: func(ctx context.Context) (float64, error) {
			violations, err := t.App.Circulation.Verify(ctx)
			return float64(len(violations)), err
		},
		Want: Threshold{Op: "==", Value: 0},
	}
}

// ConcurrentIssueRaceExperiment has workers members try to borrow the same
// book at once. Exactly one loan may be created.
func (t *Target) ConcurrentIssueRaceExperiment(workers int) Experiment {
	var winners, unexpected atomic.Int64

	return Experiment{
		Name:       "concurrent-issue-race",
		Hypothesis: "Concurrent issues of one book produce exactly one open loan",
		Signals: []Signal{
			t.violationsSignal(),
			{
				Name: "race_winners",
				Measure: func(ctx context.Context) (float64, error) {
					return float64(winners.Load()), nil
				},
				Want: Threshold{Op: "<=", Value: 1},
			},
			{
				Name: "unexpected_errors",
				Measure: func(ctx context.Context) (float64, error) {
					return float64(unexpected.Load()), nil
				},
				Want: Threshold{Op: "==", Value: 0},
			},
		},
		Inject: []Action{
			{
				Target: "circulation",
				Run: func(ctx context.Context) error {
					winners.Store(0)
					unexpected.Store(0)

					book, err := t.addBook(ctx)
					if err != nil {
						return err
					}
					memberIDs := make([]string, workers)
					for i := range memberIDs {
						m, err := t.addMember(ctx)
						if err != nil {
							return err
						}
						memberIDs[i] = m.ID
					}

					today := calendar.FromTime(time.Now())
					start := make(chan struct{})
					var wg sync.WaitGroup
					for _, memberID := range memberIDs {
						wg.Add(1)
						go func(memberID string) {
							defer wg.Done()
							<-start
							_, err := t.App.Circulation.IssueBook(ctx, circulation.IssueRequest{
								BookID:    book.ID,
								MemberID:  memberID,
								IssueDate: today,
								DueDate:   t.App.Policy.DueFor(today),
							})
							switch {
							case err == nil:
								winners.Add(1)
							case errors.Is(err, apperr.ErrConflict):
							default:
								unexpected.Add(1)
								t.logger.Warn("unexpected issue error", "book_id", book.ID, "error", err)
							}
						}(memberID)
					}
					close(start)
					wg.Wait()
					return nil
				},
			},
		},
		Checks: []Check{
			{
				Signal:  "race_winners",
				Holds:   func(v float64) bool { return v == 1 },
				Message: "Exactly one concurrent issue should succeed",
			},
			{
				Signal:  "ledger_violations",
				Holds:   func(v float64) bool { return v == 0 },
				Message: "Books and transactions should stay consistent",
			},
		},
		Duration: t.Duration,
	}
}

// CommitFailureExperiment fails every n-th store commit while the ledger
// churns through ops issues and returns. Failed operations must not leave
// partial writes behind.
func (t *Target) CommitFailureExperiment(failEvery, ops int) Experiment {
	var stats churnStats

	return Experiment{
		Name:       "store-commit-failure",
		Hypothesis: "A failed commit leaves books, transactions and the journal untouched",
		Signals: []Signal{
			t.violationsSignal(),
			{
				Name: "unexpected_errors",
				Measure: func(ctx context.Context) (float64, error) {
					return float64(stats.unexpected()), nil
				},
				Want: Threshold{Op: "==", Value: 0},
			},
		},
		Inject: []Action{
			{
				Target: "store",
				Run: func(ctx context.Context) error {
					t.Store.FailEvery(failEvery)
					stats = t.churn(ctx, ops)
					return nil
				},
			},
		},
		Restore: []Action{
			{
				Target: "store",
				Run: func(ctx context.Context) error {
					t.Store.FailEvery(0)
					return nil
				},
			},
		},
		Checks: []Check{
			{
				Signal:  "ledger_violations",
				Holds:   func(v float64) bool { return v == 0 },
				Message: "Books and transactions should stay consistent under commit failures",
			},
			{
				Signal:  "unexpected_errors",
				Holds:   func(v float64) bool { return v == 0 },
				Message: "Only injected faults should fail operations",
			},
		},
		Duration: t.Duration,
	}
}

// StoreLatencyExperiment delays every store write while the ledger churns.
func (t *Target) StoreLatencyExperiment(latency time.Duration, ops int) Experiment {
	var stats churnStats

	return Experiment{
		Name:       "store-latency-injection",
		Hypothesis: "The ledger keeps serving issues and returns when store writes are slow",
		Signals: []Signal{
			t.violationsSignal(),
			{
				Name: "operation_success_rate",
				Measure: func(ctx context.Context) (float64, error) {
					return stats.successRate(), nil
				},
				Want: Threshold{Op: ">", Value: 99.0},
			},
		},
		Inject: []Action{
			{
				Target: "store",
				Run: func(ctx context.Context) error {
					t.Store.Delay(latency)
					stats = t.churn(ctx, ops)
					return nil
				},
			},
		},
		Restore: []Action{
			{
				Target: "store",
				Run: func(ctx context.Context) error {
					t.Store.Delay(0)
					return nil
				},
			},
		},
		Checks: []Check{
			{
				Signal:  "operation_success_rate",
				Holds:   func(v float64) bool { return v > 95.0 },
				Message: "Operation success rate should remain above 95%",
			},
		},
		Duration: t.Duration,
	}
}

type churnStats struct {
	attempts  int
	succeeded int
	injected  int
	failed    int
}

func (c churnStats) successRate() float64 {
	if c.attempts == 0 {
		return 100
	}
	return float64(c.succeeded) / float64(c.attempts) * 100
}

func (c churnStats) unexpected() int {
	return c.failed - c.injected
}

// churn alternates issuing an available book and returning an open loan.
func (t *Target) churn(ctx context.Context, ops int) churnStats {
	var stats churnStats
	today := calendar.FromTime(time.Now())

	for i := 0; i < ops; i++ {
		var err error
		if i%2 == 0 {
			books, lerr := t.App.Catalog.ListBooks(ctx, catalog.Filter{Status: catalog.StatusAvailable})
			if lerr != nil || len(books) == 0 {
				continue
			}
			members, lerr := t.App.Membership.ListMembers(ctx, membership.Filter{Status: membership.StatusActive})
			if lerr != nil || len(members) == 0 {
				continue
			}
			_, err = t.App.Circulation.IssueBook(ctx, circulation.IssueRequest{
				BookID:    books[i%len(books)].ID,
				MemberID:  members[i%len(members)].ID,
				IssueDate: today,
				DueDate:   t.App.Policy.DueFor(today),
			})
		} else {
			open, lerr := t.App.Circulation.ListTransactions(ctx, circulation.Filter{Status: string(circulation.StatusIssued)})
			if lerr != nil || len(open) == 0 {
				continue
			}
			_, err = t.App.Circulation.QuickReturn(ctx, open[0].ID)
		}

		stats.attempts++
		switch {
		case err == nil:
			stats.succeeded++
		case errors.Is(err, ErrInjectedFault):
			stats.injected++
			stats.failed++
		default:
			stats.failed++
			t.logger.Warn("churn operation failed", "error", err)
		}
	}
	return stats
}
