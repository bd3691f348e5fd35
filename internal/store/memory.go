// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MemoryStore keeps every namespace as encoded JSON in process memory.
// Update runs against a private working set and swaps the result in only when
// the callback succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	tracer trace.Tracer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string][]byte),
		tracer: otel.Tracer("libraripro/store"),
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.update", trace.WithAttributes(
		attribute.String("store.driver", "memory"),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	ws := newWorkingSet(s.lookup, false)
	if err := fn(ws); err != nil {
		span.RecordError(err)
		return err
	}

	next := make(map[string][]byte, len(s.data)+len(ws.dirty))
	for ns, b := range s.data {
		next[ns] = b
	}
	for ns, b := range ws.dirty {
		next[ns] = b
	}
	s.data = next

	span.SetAttributes(attribute.Int("store.namespaces_written", len(ws.dirty)))
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	_, span := s.tracer.Start(ctx, "store.view", trace.WithAttributes(
		attribute.String("store.driver", "memory"),
	))
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(newWorkingSet(s.lookup, true))
}

func (s *MemoryStore) Close() error { return nil }

// lookup must be called with s.mu held. Stored slices are never mutated in
// place, so handing them out without copying is safe.
func (s *MemoryStore) lookup(namespace string) ([]byte, bool, error) {
	b, ok := s.data[namespace]
	return b, ok, nil
}
