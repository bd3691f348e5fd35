package eventstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"libraripro/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestEvent struct {
	Message string `json:"message"`
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func newTestEvents(t testing.TB, n int) []Event {
	t.Helper()
	events := make([]Event, n)
	for i := range events {
		e, err := NewEvent("TestEvent", TestEvent{Message: fmt.Sprintf("event %d", i)})
		require.NoError(t, err)
		events[i] = e
	}
	return events
}

func TestAppendAssignsVersionsAndPositions(t *testing.T) {
	ctx := context.Background()
	es := New(store.NewMemoryStore(), fixedClock)

	require.NoError(t, es.AppendEvents(ctx, "T001", "transaction", 0, newTestEvents(t, 2)))
	require.NoError(t, es.AppendEvents(ctx, "T002", "transaction", 0, newTestEvents(t, 1)))
	require.NoError(t, es.AppendEvents(ctx, "T001", "transaction", 2, newTestEvents(t, 1)))

	events, err := es.LoadEvents(ctx, "T001", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
		assert.Equal(t, "transaction", e.AggregateType)
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.Equal(t, fixedClock(), e.CreatedAt)
	}
	assert.Equal(t, []int64{1, 2, 4}, []int64{events[0].Position, events[1].Position, events[2].Position})

	var payload TestEvent
	require.NoError(t, events[2].Decode(&payload))
	assert.Equal(t, "event 0", payload.Message)

	version, err := es.GetCurrentVersion(ctx, "T001")
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	version, err = es.GetCurrentVersion(ctx, "T999")
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestAppendRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	es := New(store.NewMemoryStore(), fixedClock)

	require.NoError(t, es.AppendEvents(ctx, "T001", "transaction", 0, newTestEvents(t, 1)))

	err := es.AppendEvents(ctx, "T001", "transaction", 0, newTestEvents(t, 1))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	err = es.AppendEvents(ctx, "T001", "transaction", -1, newTestEvents(t, 1))
	assert.ErrorIs(t, err, ErrInvalidVersion)

	events, err := es.LoadEvents(ctx, "T001", 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppendRollsBackWithStoreTransaction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	es := New(st, fixedClock)

	boom := fmt.Errorf("boom")
	err := st.Update(ctx, func(tx store.Tx) error {
		if err := es.Append(ctx, tx, "T001", "transaction", 0, newTestEvents(t, 1)); err != nil {
			return err
		}
		v, err := es.Version(tx, "T001")
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		return boom
	})
	require.ErrorIs(t, err, boom)

	version, err := es.GetCurrentVersion(ctx, "T001")
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestLoadEventsVersionRange(t *testing.T) {
	ctx := context.Background()
	es := New(store.NewMemoryStore(), fixedClock)
	require.NoError(t, es.AppendEvents(ctx, "T001", "transaction", 0, newTestEvents(t, 5)))

	events, err := es.LoadEvents(ctx, "T001", 2, 4)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Version)
	assert.Equal(t, 4, events[2].Version)
}

func TestStreamEventsPaginates(t *testing.T) {
	ctx := context.Background()
	es := New(store.NewMemoryStore(), fixedClock)
	require.NoError(t, es.AppendEvents(ctx, "T001", "transaction", 0, newTestEvents(t, 3)))
	require.NoError(t, es.AppendEvents(ctx, "T002", "transaction", 0, newTestEvents(t, 2)))

	var seen []int64
	var cursor int64
	for {
		batch, err := es.StreamEvents(ctx, cursor, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, e := range batch {
			seen = append(seen, e.Position)
		}
		cursor = batch[len(batch)-1].Position
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
}

func BenchmarkAppendEvents(b *testing.B) {
	ctx := context.Background()
	es := New(store.NewMemoryStore(), nil)
	events := newTestEvents(b, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := es.AppendEvents(ctx, fmt.Sprintf("T%03d", i), "transaction", 0, events); err != nil {
			b.Fatalf("failed to append events: %v", err)
		}
	}
}

func BenchmarkLoadEvents(b *testing.B) {
	ctx := context.Background()
	es := New(store.NewMemoryStore(), nil)
	for i := 0; i < 100; i++ {
		if err := es.AppendEvents(ctx, "T001", "transaction", i, newTestEvents(b, 1)); err != nil {
			b.Fatalf("failed to append events: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := es.LoadEvents(ctx, "T001", 0, 0); err != nil {
			b.Fatalf("failed to load events: %v", err)
		}
	}
}
