// cmd/chaos/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"libraripro/internal/chaos"
	"libraripro/internal/config"
	"libraripro/internal/store"

	"github.com/spf13/cobra"
)

var errGameDayFailed = errors.New("chaos game day failed: at least one hypothesis was violated")

func main() {
	var (
		configPath string
		duration   time.Duration
		pause      time.Duration
		books      int
		members    int
	)

	cmd := &cobra.Command{
		Use:           "chaos",
		Short:         "Run the ledger chaos game day against the configured store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))

			policy, err := cfg.LendingPolicy()
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			target, err := chaos.NewTarget(st, policy, logger)
			if err != nil {
				return err
			}
			target.Duration = duration
			if err := target.Seed(cmd.Context(), books, members); err != nil {
				return err
			}

			engine := chaos.NewEngine(logger, chaos.WithPause(pause))
			engine.RegisterLedgerExperiments(target)

			passed, err := engine.RunGameDay(cmd.Context(), chaos.GameDay{
				Name:      "Ledger Chaos Game Day",
				Date:      time.Now(),
				Scenarios: engine.Experiments(),
			})
			if err != nil {
				return err
			}
			if !passed {
				return errGameDayFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the config file")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "observation window per experiment")
	cmd.Flags().DurationVar(&pause, "pause", 30*time.Second, "pause between experiments")
	cmd.Flags().IntVar(&books, "books", 10, "books to seed before the first experiment")
	cmd.Flags().IntVar(&members, "members", 5, "members to seed before the first experiment")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("chaos", "error", err)
		os.Exit(1)
	}
}
