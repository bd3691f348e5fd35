// internal/archive/archive.go
// Package archive moves the whole library between stores as a single JSON or
// YAML document.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/eventstore"
	"libraripro/internal/ids"
	"libraripro/internal/membership"
	"libraripro/internal/store"
	"libraripro/internal/validator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FormatVersion is written into every archive. Import accepts this version only.
const FormatVersion = 1

// Archive holds the three collections keyed by their store namespaces.
type Archive struct {
	Version      int                       `json:"version" yaml:"version"`
	ExportedAt   time.Time                 `json:"exportedAt" yaml:"exportedAt"`
	Books        []catalog.Book            `json:"library_books" yaml:"library_books"`
	Members      []membership.Member       `json:"library_members" yaml:"library_members"`
	Transactions []circulation.Transaction `json:"library_transactions" yaml:"library_transactions"`
}

// Summary counts the records written by Import.
type Summary struct {
	Books        int `json:"books"`
	Members      int `json:"members"`
	Transactions int `json:"transactions"`
}

type Archiver struct {
	store  store.Store
	events *eventstore.EventStore
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

func NewArchiver(st store.Store, events *eventstore.EventStore, now func() time.Time, logger *slog.Logger) *Archiver {
	if now == nil {
		now = time.Now
	}
	return &Archiver{
		store:  st,
		events: events,
		now:    now,
		logger: logger,
		tracer: otel.Tracer("libraripro/archive"),
	}
}

// Export reads a consistent snapshot of books, members and transactions.
func (a *Archiver) Export(ctx context.Context) (*Archive, error) {
	ctx, span := a.tracer.Start(ctx, "archive.export")
	defer span.End()

	out := &Archive{Version: FormatVersion, ExportedAt: a.now().UTC()}
	err := a.store.View(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		members, err := membership.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := circulation.OpenLedger(tx)
		if err != nil {
			return err
		}
		out.Books = books.All()
		out.Members = members.All()
		out.Transactions = ledger.All()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export library: %w", err)
	}

	span.SetAttributes(
		attribute.Int("archive.books", len(out.Books)),
		attribute.Int("archive.members", len(out.Members)),
		attribute.Int("archive.transactions", len(out.Transactions)),
	)
	return out, nil
}

// Import validates the archive and replaces all three collections with it in
// one store transaction. The journal is restarted with one TransactionImported
// event per transaction. Users are left untouched.
func (a *Archiver) Import(ctx context.Context, in *Archive, source string) (*Summary, error) {
	ctx, span := a.tracer.Start(ctx, "archive.import", trace.WithAttributes(
		attribute.String("archive.source", source),
	))
	defer span.End()

	if err := Validate(in); err != nil {
		return nil, err
	}

	err := a.store.Update(ctx, func(tx store.Tx) error {
		books, err := catalog.OpenCollection(tx)
		if err != nil {
			return err
		}
		members, err := membership.OpenCollection(tx)
		if err != nil {
			return err
		}
		ledger, err := circulation.OpenLedger(tx)
		if err != nil {
			return err
		}

		books.Replace(in.Books)
		members.Replace(in.Members)
		ledger.Replace(in.Transactions)

		if err := tx.Save(store.Events, []eventstore.Event{}); err != nil {
			return fmt.Errorf("failed to reset journal: %w", err)
		}
		for _, t := range in.Transactions {
			event, err := eventstore.NewEvent(circulation.EventImported, circulation.ImportedEvent{
				TransactionID: t.ID,
				Status:        t.Status,
				Source:        source,
			})
			if err != nil {
				return err
			}
			if err := a.events.Append(ctx, tx, t.ID, circulation.AggregateType, 0, []eventstore.Event{event}); err != nil {
				return fmt.Errorf("failed to journal import of %s: %w", t.ID, err)
			}
		}

		if err := books.Flush(); err != nil {
			return err
		}
		if err := members.Flush(); err != nil {
			return err
		}
		return ledger.Flush()
	})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Books:        len(in.Books),
		Members:      len(in.Members),
		Transactions: len(in.Transactions),
	}
	a.logger.Info("library imported", "source", source,
		"books", summary.Books, "members", summary.Members, "transactions", summary.Transactions)
	return summary, nil
}

// Validate checks id formats, duplicate ids and emails, record fields and
// the ledger consistency rules. Field keys name the offending record, for
// example "library_books[2].id".
func Validate(in *Archive) error {
	v := validator.New()
	v.Check(in.Version == FormatVersion, "version", fmt.Sprintf("must be %d", FormatVersion))

	bookIDs := make(map[string]struct{}, len(in.Books))
	for i, b := range in.Books {
		key := fmt.Sprintf("%s[%d]", store.Books, i)
		v.Check(ids.Valid(ids.BookPrefix, b.ID), key+".id", "must look like B001")
		_, dup := bookIDs[b.ID]
		v.Check(!dup, key+".id", "must be unique")
		bookIDs[b.ID] = struct{}{}
		v.Check(strings.TrimSpace(b.Title) != "", key+".title", "must be provided")
		v.Check(validator.In(string(b.Status), string(catalog.StatusAvailable), string(catalog.StatusIssued)),
			key+".status", "must be Available or Issued")
	}

	memberIDs := make(map[string]struct{}, len(in.Members))
	emails := make(map[string]struct{}, len(in.Members))
	for i, m := range in.Members {
		key := fmt.Sprintf("%s[%d]", store.Members, i)
		v.Check(ids.Valid(ids.MemberPrefix, m.ID), key+".id", "must look like M001")
		_, dup := memberIDs[m.ID]
		v.Check(!dup, key+".id", "must be unique")
		memberIDs[m.ID] = struct{}{}

		email := strings.ToLower(strings.TrimSpace(m.Email))
		_, taken := emails[email]
		v.Check(!taken, key+".email", "must be unique")
		emails[email] = struct{}{}
		v.Check(validator.Matches(m.Email, validator.EmailRX), key+".email", "must be a valid email address")
		v.Check(validator.In(string(m.Status), string(membership.StatusActive), string(membership.StatusInactive)),
			key+".status", "must be Active or Inactive")
	}

	txIDs := make(map[string]struct{}, len(in.Transactions))
	for i, t := range in.Transactions {
		key := fmt.Sprintf("%s[%d]", store.Transactions, i)
		v.Check(ids.Valid(ids.TransactionPrefix, t.ID), key+".id", "must look like T001")
		_, dup := txIDs[t.ID]
		v.Check(!dup, key+".id", "must be unique")
		txIDs[t.ID] = struct{}{}

		v.Check(t.BookID != "", key+".bookId", "must be provided")
		v.Check(t.MemberID != "", key+".memberId", "must be provided")
		v.Check(!t.IssueDate.IsZero(), key+".issueDate", "must be provided")
		v.Check(validator.In(string(t.Status),
			string(circulation.StatusIssued), string(circulation.StatusOverdue), string(circulation.StatusReturned)),
			key+".status", "must be Issued, Overdue or Returned")

		if t.Status == circulation.StatusReturned {
			v.Check(t.ReturnDate != nil, key+".returnDate", "must be provided for a returned transaction")
		}
		if t.IsOpen() {
			_, ok := memberIDs[t.MemberID]
			v.Check(ok, key+".memberId", "must reference a member in the archive")
		}
	}

	for _, violation := range circulation.CheckConsistency(in.Books, in.Transactions) {
		subject := violation.BookID
		if subject == "" {
			subject = violation.TransactionID
		}
		v.AddError(fmt.Sprintf("consistency.%s.%s", violation.Rule, subject), violation.Message)
	}

	return v.Err()
}
