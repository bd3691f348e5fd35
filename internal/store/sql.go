// internal/store/sql.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	schemaVersion     = 1
	maxCommitAttempts = 5
)

// SQLStore persists each namespace as one row of the collections table and
// guards every write with a version compare-and-swap.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	tracer trace.Tracer
}

type collectionRow struct {
	Version int64  `db:"version"`
	Data    []byte `db:"data"`
}

// OpenSQL connects to a sqlite3 or postgres database and applies migrations.
// For sqlite3, dsn may be a plain file path.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver == "sqlite3" {
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One writer at a time; BEGIN IMMEDIATE already serialises, this avoids busy loops.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	s := &SQLStore{
		db:     db,
		driver: driver,
		tracer: otel.Tracer("libraripro/store"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(dsn string) (string, error) {
	if dsn == "" {
		dsn = "libraripro.db"
	}
	if strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		return dsn, nil
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", dsn), nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if s.driver == "sqlite3" {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	var current int
	err := s.db.GetContext(ctx, &current, s.db.Rebind(`SELECT value FROM meta WHERE key = ?`), "schema_version")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	dataType, timeType := "TEXT", "TIMESTAMP"
	if s.driver == "postgres" {
		dataType, timeType = "JSONB", "TIMESTAMPTZ"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS collections (
		namespace TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		data %s NOT NULL,
		updated_at %s NOT NULL
	)`, dataType, timeType)); err != nil {
		return fmt.Errorf("failed to create collections table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`), fmt.Sprint(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// Update retries fn from scratch when the commit loses a race, so fn must not
// have side effects outside the Tx.
func (s *SQLStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.update(ctx, fn)
		if err != nil && !errors.Is(err, ErrConcurrencyConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxCommitAttempts))
	return err
}

func (s *SQLStore) update(ctx context.Context, fn func(tx Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.update", trace.WithAttributes(
		attribute.String("store.driver", s.driver),
	))
	defer span.End()

	var opts *sql.TxOptions
	if s.driver == "postgres" {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	versions := make(map[string]int64)
	ws := newWorkingSet(func(ns string) ([]byte, bool, error) {
		row, ok, err := s.fetch(ctx, tx, ns)
		if err != nil || !ok {
			return nil, ok, err
		}
		versions[ns] = row.Version
		return row.Data, true, nil
	}, false)

	if err := fn(ws); err != nil {
		span.RecordError(err)
		return err
	}

	now := time.Now().UTC()
	for _, ns := range ws.changed() {
		version, known := versions[ns]
		if !known {
			row, ok, err := s.fetch(ctx, tx, ns)
			if err != nil {
				return err
			}
			if ok {
				version, known = row.Version, true
			}
		}
		if err := s.write(ctx, tx, ns, version, known, ws.dirty[ns], now); err != nil {
			span.RecordError(err)
			return err
		}
		span.AddEvent("collection.written", trace.WithAttributes(
			attribute.String("namespace", ns),
			attribute.Int64("version", version+1),
		))
	}

	if err := tx.Commit(); err != nil {
		if isConflict(err) {
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) View(ctx context.Context, fn func(tx Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.view", trace.WithAttributes(
		attribute.String("store.driver", s.driver),
	))
	defer span.End()

	var opts *sql.TxOptions
	if s.driver == "postgres" {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ws := newWorkingSet(func(ns string) ([]byte, bool, error) {
		row, ok, err := s.fetch(ctx, tx, ns)
		return row.Data, ok, err
	}, true)
	return fn(ws)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) fetch(ctx context.Context, tx *sqlx.Tx, ns string) (collectionRow, bool, error) {
	var row collectionRow
	err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT version, data FROM collections WHERE namespace = ?`), ns)
	if errors.Is(err, sql.ErrNoRows) {
		return collectionRow{}, false, nil
	}
	if err != nil {
		return collectionRow{}, false, fmt.Errorf("query collection %s: %w", ns, err)
	}
	return row, true, nil
}

func (s *SQLStore) write(ctx context.Context, tx *sqlx.Tx, ns string, version int64, exists bool, data []byte, now time.Time) error {
	if !exists {
		_, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO collections (namespace, version, data, updated_at) VALUES (?, ?, ?, ?)`),
			ns, 1, string(data), now)
		if err != nil {
			if isConflict(err) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert collection %s: %w", ns, err)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE collections SET data = ?, version = version + 1, updated_at = ? WHERE namespace = ? AND version = ?`),
		string(data), now, ns, version)
	if err != nil {
		if isConflict(err) {
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("update collection %s: %w", ns, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update collection %s: %w", ns, err)
	}
	if n == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

// isConflict recognises unique violations and serialization failures from
// either driver.
func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" || pqErr.Code == "40001"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.Code == sqlite3.ErrBusy
	}
	return false
}
