// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraripro/internal/apperr"
	"libraripro/internal/calendar"
	"libraripro/internal/ids"
	"libraripro/internal/store"
	"libraripro/internal/validator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService creates a new catalog service instance. A nil now uses time.Now.
func NewService(st store.Store, now func() time.Time, logger *slog.Logger) Service {
	if now == nil {
		now = time.Now
	}
	return &service{
		store:  st,
		now:    now,
		logger: logger,
		tracer: otel.Tracer("libraripro/catalog"),
	}
}

// AddBook creates a new book in the catalog with status Available.
func (s *service) AddBook(ctx context.Context, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_book")
	defer span.End()

	in = in.normalized()
	if err := s.validate(in); err != nil {
		return nil, err
	}

	var book Book
	err := s.store.Update(ctx, func(tx store.Tx) error {
		books, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		id, err := ids.Allocate(tx, ids.BookPrefix, books.IDs())
		if err != nil {
			return fmt.Errorf("failed to generate book id: %w", err)
		}

		book = Book{
			ID:          id,
			Title:       in.Title,
			Author:      in.Author,
			ISBN:        in.ISBN,
			Category:    in.Category,
			Publisher:   in.Publisher,
			Year:        in.Year,
			Status:      StatusAvailable,
			Description: in.Description,
			AddedDate:   calendar.FromTime(s.now()),
		}
		books.Insert(book)
		return books.Flush()
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("book.id", book.ID))
	s.logger.Info("book added", "book_id", book.ID, "title", book.Title)
	return &book, nil
}

// GetBook retrieves a book by its id.
func (s *service) GetBook(ctx context.Context, id string) (*Book, error) {
	var book Book
	err := s.store.View(ctx, func(tx store.Tx) error {
		books, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		b, ok := books.Book(id)
		if !ok {
			return apperr.NotFound("book", id)
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// UpdateBook edits the catalog-owned fields. Status is left alone: it belongs
// to the circulation ledger. Transactions keep the title they were issued with.
func (s *service) UpdateBook(ctx context.Context, id string, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book", trace.WithAttributes(
		attribute.String("book.id", id),
	))
	defer span.End()

	in = in.normalized()
	if err := s.validate(in); err != nil {
		return nil, err
	}

	var book Book
	err := s.store.Update(ctx, func(tx store.Tx) error {
		books, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		b, ok := books.Book(id)
		if !ok {
			return apperr.NotFound("book", id)
		}

		b.Title = in.Title
		b.Author = in.Author
		b.ISBN = in.ISBN
		b.Category = in.Category
		b.Publisher = in.Publisher
		b.Year = in.Year
		b.Description = in.Description
		if err := books.PutBook(b); err != nil {
			return err
		}
		book = b
		return books.Flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book updated", "book_id", id)
	return &book, nil
}

// RemoveBook deletes a book that is not currently issued.
func (s *service) RemoveBook(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "catalog.remove_book", trace.WithAttributes(
		attribute.String("book.id", id),
	))
	defer span.End()

	err := s.store.Update(ctx, func(tx store.Tx) error {
		books, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		b, ok := books.Book(id)
		if !ok {
			return apperr.NotFound("book", id)
		}
		if b.Status == StatusIssued {
			return apperr.Conflict("book %s is issued and cannot be removed", id)
		}
		books.Delete(id)
		return books.Flush()
	})
	if err != nil {
		return err
	}

	s.logger.Info("book removed", "book_id", id)
	return nil
}

// ListBooks returns the books matching f in stored order.
func (s *service) ListBooks(ctx context.Context, f Filter) ([]Book, error) {
	out := []Book{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		books, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		for _, b := range books.All() {
			if f.Matches(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) FindByCode(ctx context.Context, code string) ([]Book, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation(map[string]string{"code": "must be provided"})
	}

	out := []Book{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		books, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		out = MatchCode(books.All(), code)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MatchCode returns books whose ISBN or id equals code, ignoring case and hyphens.
func MatchCode(books []Book, code string) []Book {
	want := canonicalCode(code)
	out := []Book{}
	for _, b := range books {
		if canonicalCode(b.ID) == want || (b.ISBN != "" && canonicalCode(b.ISBN) == want) {
			out = append(out, b)
		}
	}
	return out
}

func canonicalCode(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
}

func (in BookInput) normalized() BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Category = strings.TrimSpace(in.Category)
	in.Publisher = strings.TrimSpace(in.Publisher)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func (s *service) validate(in BookInput) error {
	v := validator.New()
	v.Check(in.Title != "", "title", "must be provided")
	v.Check(len(in.Title) <= 500, "title", "must not be more than 500 bytes long")
	v.Check(in.Author != "", "author", "must be provided")
	v.Check(in.Category != "", "category", "must be provided")
	if in.Year != 0 {
		v.Check(in.Year >= 1000, "year", "must be greater than or equal to 1000")
		v.Check(in.Year <= s.now().Year()+1, "year", "must not be in the future")
	}
	return v.Err()
}
