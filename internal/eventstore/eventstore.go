package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"libraripro/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event represents a domain event with full metadata
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Position      int64             `json:"position"`
	AggregateID   string            `json:"aggregateId"`
	AggregateType string            `json:"aggregateType"`
	EventType     string            `json:"eventType"`
	EventData     json.RawMessage   `json:"eventData"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// NewEvent encodes payload as the data of an event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return Event{EventType: eventType, EventData: data}, nil
}

// Decode unmarshals the event data into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.EventData, dst)
}

// EventStore is an append-only journal kept in the library_events namespace of
// a store, so events commit atomically with the records they describe.
type EventStore struct {
	store  store.Store
	now    func() time.Time
	tracer trace.Tracer
}

// New creates an event store on st. A nil now uses time.Now.
func New(st store.Store, now func() time.Time) *EventStore {
	if now == nil {
		now = time.Now
	}
	return &EventStore{
		store:  st,
		now:    now,
		tracer: otel.Tracer("libraripro/eventstore"),
	}
}

// Append adds events to the aggregate's stream inside tx with optimistic
// concurrency control. expectedVersion must equal the stream's current version.
func (es *EventStore) Append(ctx context.Context, tx store.Tx, aggregateID, aggregateType string, expectedVersion int, events []Event) error {
	_, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	journal, err := load(tx)
	if err != nil {
		return err
	}

	currentVersion := versionOf(journal, aggregateID)
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	var position int64
	if n := len(journal); n > 0 {
		position = journal[n-1].Position
	}

	now := es.now().UTC()
	for i, event := range events {
		event.ID = uuid.New()
		event.Position = position + int64(i) + 1
		event.AggregateID = aggregateID
		event.AggregateType = aggregateType
		event.Version = expectedVersion + i + 1
		event.CreatedAt = now
		journal = append(journal, event)

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.position", event.Position),
			attribute.Int("event.version", event.Version),
			attribute.String("event.type", event.EventType),
		))
	}

	if err := tx.Save(store.Events, journal); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// AppendEvents runs Append in its own store transaction.
func (es *EventStore) AppendEvents(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []Event) error {
	return es.store.Update(ctx, func(tx store.Tx) error {
		return es.Append(ctx, tx, aggregateID, aggregateType, expectedVersion, events)
	})
}

// Version returns the aggregate's current version as seen by tx.
func (es *EventStore) Version(tx store.Tx, aggregateID string) (int, error) {
	journal, err := load(tx)
	if err != nil {
		return 0, err
	}
	return versionOf(journal, aggregateID), nil
}

// LoadEvents retrieves all events for an aggregate with optional version range.
// toVersion <= 0 means no upper bound.
func (es *EventStore) LoadEvents(ctx context.Context, aggregateID string, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	events := []Event{}
	err := es.store.View(ctx, func(tx store.Tx) error {
		journal, err := load(tx)
		if err != nil {
			return err
		}
		for _, e := range journal {
			if e.AggregateID != aggregateID || e.Version < fromVersion {
				continue
			}
			if toVersion > 0 && e.Version > toVersion {
				continue
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// GetCurrentVersion returns the latest version for an aggregate, 0 if it has no events.
func (es *EventStore) GetCurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.get_version",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
		),
	)
	defer span.End()

	var version int
	err := es.store.View(ctx, func(tx store.Tx) error {
		v, err := es.Version(tx, aggregateID)
		version = v
		return err
	})
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}

// StreamEvents provides a cursor over the whole journal: events after
// fromPosition, at most batchSize of them.
func (es *EventStore) StreamEvents(ctx context.Context, fromPosition int64, batchSize int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.stream",
		trace.WithAttributes(
			attribute.Int64("from.position", fromPosition),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	events := []Event{}
	err := es.store.View(ctx, func(tx store.Tx) error {
		journal, err := load(tx)
		if err != nil {
			return err
		}
		for _, e := range journal {
			if e.Position <= fromPosition {
				continue
			}
			if batchSize > 0 && len(events) == batchSize {
				break
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}

func load(tx store.Tx) ([]Event, error) {
	var journal []Event
	if err := tx.Load(store.Events, &journal); err != nil {
		return nil, err
	}
	return journal, nil
}

func versionOf(journal []Event, aggregateID string) int {
	version := 0
	for _, e := range journal {
		if e.AggregateID == aggregateID && e.Version > version {
			version = e.Version
		}
	}
	return version
}
