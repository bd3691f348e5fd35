// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraripro/internal/apperr"
	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/eventstore"
	"libraripro/internal/membership"
	"libraripro/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	store   store.Store
	events  *eventstore.EventStore
	policy  Policy
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics ledgerMetrics
}

type ledgerMetrics struct {
	issues   metric.Int64Counter
	returns  metric.Int64Counter
	renewals metric.Int64Counter
	fines    metric.Float64Counter
}

func newLedgerMetrics(meter metric.Meter) (ledgerMetrics, error) {
	var m ledgerMetrics
	var err error
	if m.issues, err = meter.Int64Counter("ledger.issues", metric.WithDescription("Books issued")); err != nil {
		return m, err
	}
	if m.returns, err = meter.Int64Counter("ledger.returns", metric.WithDescription("Books returned")); err != nil {
		return m, err
	}
	if m.renewals, err = meter.Int64Counter("ledger.renewals", metric.WithDescription("Loans renewed")); err != nil {
		return m, err
	}
	if m.fines, err = meter.Float64Counter("ledger.fines", metric.WithDescription("Fine amount charged on return")); err != nil {
		return m, err
	}
	return m, nil
}

// NewService creates a new circulation service instance. A nil now uses time.Now.
func NewService(st store.Store, events *eventstore.EventStore, policy Policy, now func() time.Time, logger *slog.Logger) (Service, error) {
	if now == nil {
		now = time.Now
	}
	metrics, err := newLedgerMetrics(otel.Meter("libraripro/circulation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger metrics: %w", err)
	}
	return &service{
		store:   st,
		events:  events,
		policy:  policy,
		now:     now,
		logger:  logger,
		tracer:  otel.Tracer("libraripro/circulation"),
		metrics: metrics,
	}, nil
}

func (s *service) today() calendar.Date {
	return calendar.FromTime(s.now())
}

// IssueBook lends a book, marks it Issued and journals the loan in one store transaction.
func (s *service) IssueBook(ctx context.Context, req IssueRequest) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue_book", trace.WithAttributes(
		attribute.String("book.id", req.BookID),
		attribute.String("member.id", req.MemberID),
	))
	defer span.End()

	var t Transaction
	err := s.store.Update(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		members, err := membership.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}

		t, err = ledger.Issue(books, members, req, s.now())
		if err != nil {
			return err
		}
		if err := s.journal(ctx, tx, t.ID, EventIssued, IssuedEvent{
			TransactionID: t.ID,
			BookID:        t.BookID,
			MemberID:      t.MemberID,
			IssueDate:     t.IssueDate,
			DueDate:       t.DueDate,
		}); err != nil {
			return err
		}
		if err := books.Flush(); err != nil {
			return err
		}
		return ledger.Flush()
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("transaction.id", t.ID))
	s.metrics.issues.Add(ctx, 1)
	s.logger.Info("book issued",
		"transaction_id", t.ID, "book_id", t.BookID, "member_id", t.MemberID, "due", t.DueDate)
	return &t, nil
}

// ReturnBook closes a loan, computes its fine and releases the book.
func (s *service) ReturnBook(ctx context.Context, req ReturnRequest) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book", trace.WithAttributes(
		attribute.String("transaction.id", req.TransactionID),
	))
	defer span.End()

	var t Transaction
	err := s.store.Update(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}

		t, err = ledger.Return(books, req, s.policy)
		if err != nil {
			return err
		}
		if err := s.journal(ctx, tx, t.ID, EventReturned, ReturnedEvent{
			TransactionID: t.ID,
			BookID:        t.BookID,
			ReturnDate:    *t.ReturnDate,
			Condition:     t.Condition,
			Fine:          t.Fine,
		}); err != nil {
			return err
		}
		if err := books.Flush(); err != nil {
			return err
		}
		return ledger.Flush()
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.returns.Add(ctx, 1)
	if t.Fine != nil {
		span.SetAttributes(attribute.Int("fine.overdue_days", t.Fine.OverdueDays))
		s.metrics.fines.Add(ctx, t.Fine.Amount.InexactFloat64(), metric.WithAttributes(
			attribute.Bool("waived", t.Fine.Waived),
			attribute.Bool("paid", t.Fine.Paid),
		))
		s.logger.Info("book returned late",
			"transaction_id", t.ID, "book_id", t.BookID,
			"overdue_days", t.Fine.OverdueDays, "fine", t.Fine.Amount.StringFixed(2))
	} else {
		s.logger.Info("book returned", "transaction_id", t.ID, "book_id", t.BookID)
	}
	return &t, nil
}

// RenewBook pushes the due date out by the renewal period.
func (s *service) RenewBook(ctx context.Context, transactionID string) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.renew_book", trace.WithAttributes(
		attribute.String("transaction.id", transactionID),
	))
	defer span.End()

	var t Transaction
	var previous calendar.Date
	err := s.store.Update(ctx, func(tx store.Tx) error {
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}
		if current, ok := ledger.Transaction(strings.TrimSpace(transactionID)); ok {
			previous = current.DueDate
		}

		t, err = ledger.Renew(transactionID, s.policy)
		if err != nil {
			return err
		}
		if err := s.journal(ctx, tx, t.ID, EventRenewed, RenewedEvent{
			TransactionID: t.ID,
			PreviousDue:   previous,
			DueDate:       t.DueDate,
			Renewals:      t.Renewals,
		}); err != nil {
			return err
		}
		return ledger.Flush()
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.renewals.Add(ctx, 1)
	s.logger.Info("loan renewed", "transaction_id", t.ID, "due", t.DueDate, "renewals", t.Renewals)
	return &t, nil
}

func (s *service) QuickReturn(ctx context.Context, transactionID string) (*Transaction, error) {
	return s.ReturnBook(ctx, ReturnRequest{
		TransactionID: transactionID,
		ReturnDate:    s.today(),
		Condition:     DefaultCondition,
	})
}

func (s *service) journal(ctx context.Context, tx store.Tx, transactionID, eventType string, payload any) error {
	version, err := s.events.Version(tx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to read journal version: %w", err)
	}
	event, err := eventstore.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	if err := s.events.Append(ctx, tx, transactionID, AggregateType, version, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *service) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var t Transaction
	err := s.store.View(ctx, func(tx store.Tx) error {
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}
		found, ok := ledger.Transaction(strings.TrimSpace(id))
		if !ok {
			return apperr.NotFound("transaction", id)
		}
		t = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns the transactions matching f in stored order. A zero
// f.AsOf is today.
func (s *service) ListTransactions(ctx context.Context, f Filter) ([]Transaction, error) {
	if f.AsOf.IsZero() {
		f.AsOf = s.today()
	}
	out := []Transaction{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}
		for _, t := range ledger.All() {
			if f.Matches(t, s.policy) {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the journal of a transaction, oldest first.
func (s *service) History(ctx context.Context, transactionID string) ([]eventstore.Event, error) {
	if _, err := s.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.events.LoadEvents(ctx, strings.TrimSpace(transactionID), 0, 0)
}

// DisplayStatus classifies a stored transaction. A zero asOf is today.
func (s *service) DisplayStatus(ctx context.Context, transactionID string, asOf calendar.Date) (DisplayStatus, error) {
	t, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if asOf.IsZero() {
		asOf = s.today()
	}
	return s.policy.DisplayStatus(*t, asOf), nil
}

// LookupByCode resolves a scanned ISBN or book id to the matching books and
// their open loans.
func (s *service) LookupByCode(ctx context.Context, code string) ([]Holding, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.Validation(map[string]string{"code": "must be provided"})
	}

	ctx, span := s.tracer.Start(ctx, "circulation.lookup_by_code")
	defer span.End()

	out := []Holding{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}
		for _, b := range catalog.MatchCode(books.All(), code) {
			h := Holding{BookID: b.ID, Title: b.Title, ISBN: b.ISBN, Status: string(b.Status)}
			if t, ok := ledger.OpenFor(b.ID); ok {
				h.Transaction = &t
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("holdings.found", len(out)))
	return out, nil
}

// Stats summarises the library. A zero asOf is today.
func (s *service) Stats(ctx context.Context, asOf calendar.Date) (*Stats, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	var stats *Stats
	err := s.store.View(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		members, err := membership.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}
		stats = ComputeStats(books.All(), members.All(), ledger.All(), s.policy, asOf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Verify audits the stored books and transactions.
func (s *service) Verify(ctx context.Context) ([]Violation, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.verify")
	defer span.End()

	var violations []Violation
	err := s.store.View(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := OpenLedger(tx)
		if err != nil {
			return err
		}
		violations = CheckConsistency(books.All(), ledger.All())
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("violations", len(violations)))
	if len(violations) > 0 {
		s.logger.Warn("ledger inconsistent", "violations", len(violations))
	}
	return violations, nil
}

// Matches reports whether t satisfies f. Overdue and DueSoon are evaluated
// against f.AsOf with the given policy.
func (f Filter) Matches(t Transaction, policy Policy) bool {
	if f.MemberID != "" && t.MemberID != f.MemberID {
		return false
	}
	if f.BookID != "" && t.BookID != f.BookID {
		return false
	}
	if !f.IssuedOn.IsZero() && !t.IssueDate.Equal(f.IssuedOn) {
		return false
	}
	switch f.Status {
	case "":
	case string(StatusIssued):
		if !t.IsOpen() {
			return false
		}
	case string(StatusReturned):
		if t.IsOpen() {
			return false
		}
	case string(DisplayOverdue), string(DisplayDueSoon):
		if string(policy.DisplayStatus(t, f.AsOf)) != f.Status {
			return false
		}
	default:
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(t.ID), q) ||
			strings.Contains(strings.ToLower(t.BookTitle), q) ||
			strings.Contains(strings.ToLower(t.MemberName), q)
	}
	return true
}
