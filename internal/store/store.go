// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: collection version mismatch")
	ErrReadOnly            = errors.New("write attempted in a read-only view")
	ErrUnknownDriver       = errors.New("unknown store driver")
)

// Collection namespaces. Each holds one JSON array of records, except
// Sequences, which maps an id prefix to the highest number handed out.
const (
	Books        = "library_books"
	Members      = "library_members"
	Transactions = "library_transactions"
	Users        = "library_users"
	Events       = "library_events"
	Sequences    = "library_sequences"
)

// Tx is a working copy of the collections for the duration of one Update or View.
type Tx interface {
	// Load decodes namespace into dst. A namespace that was never written leaves dst untouched.
	Load(namespace string, dst any) error
	// Save replaces the whole namespace with v.
	Save(namespace string, v any) error
}

// Store applies whole-collection read-modify-write cycles atomically: every Save
// made by fn is committed together, or none is when fn returns an error.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Open returns the backend named by driver: memory, sqlite (or sqlite3) or postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		return OpenSQL(ctx, "sqlite3", dsn)
	case "postgres":
		return OpenSQL(ctx, "postgres", dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
