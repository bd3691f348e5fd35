// internal/app/app.go
// Package app wires the store, journal and domain services together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/config"
	"libraripro/internal/eventstore"
	"libraripro/internal/membership"
	"libraripro/internal/store"
)

type App struct {
	Store       store.Store
	Events      *eventstore.EventStore
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	Policy      circulation.Policy
}

// Open connects to the configured store and builds the services on it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	policy, err := cfg.LendingPolicy()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a, err := New(st, policy, time.Now, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// New builds the services on an open store with the given clock.
func New(st store.Store, policy circulation.Policy, now func() time.Time, logger *slog.Logger) (*App, error) {
	events := eventstore.New(st, now)
	ledger, err := circulation.NewService(st, events, policy, now, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		Store:       st,
		Events:      events,
		Catalog:     catalog.NewService(st, now, logger),
		Membership:  membership.NewService(st, now, logger),
		Circulation: ledger,
		Policy:      policy,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
