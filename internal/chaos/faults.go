// internal/chaos/faults.go
package chaos

import (
	"context"
	"errors"
	"sync"
	"time"

	"libraripro/internal/store"
)

var ErrInjectedFault = errors.New("chaos: injected commit failure")

// FaultyStore wraps a store and, while faults are enabled, delays every
// Update and fails every n-th commit after its callback has run. A failed
// commit must leave no trace in the wrapped store.
type FaultyStore struct {
	inner store.Store

	mu        sync.Mutex
	failEvery int
	latency   time.Duration
	commits   int
	injected  int
}

func NewFaultyStore(inner store.Store) *FaultyStore {
	return &FaultyStore{inner: inner}
}

// FailEvery makes every n-th Update fail. Zero disables commit faults.
func (s *FaultyStore) FailEvery(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEvery = n
	s.commits = 0
}

// Delay adds latency before every Update. Zero disables it.
func (s *FaultyStore) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Injected reports how many commits have been failed on purpose.
func (s *FaultyStore) Injected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

func (s *FaultyStore) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(latency):
		}
	}

	return s.inner.Update(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if s.shouldFail() {
			return ErrInjectedFault
		}
		return nil
	})
}

func (s *FaultyStore) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.inner.View(ctx, fn)
}

func (s *FaultyStore) Close() error {
	return s.inner.Close()
}

func (s *FaultyStore) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEvery <= 0 {
		return false
	}
	s.commits++
	if s.commits%s.failEvery != 0 {
		return false
	}
	s.injected++
	return true
}
