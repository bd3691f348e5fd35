// Package cli implements libraryctl, the command-line front end of the
// library. Commands run against the configured store, or against a running
// API when --remote (or client.base_url) is set.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"libraripro/internal/app"
	"libraripro/internal/archive"
	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/clients"
	"libraripro/internal/config"
	"libraripro/internal/membership"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errLocalOnly = errors.New("this command needs direct store access and cannot run with --remote")

// session is what a command runs against. local and archiver are nil in
// remote mode.
type session struct {
	cfg      *config.Config
	policy   circulation.Policy
	now      func() time.Time
	catalog  catalog.Service
	members  membership.Service
	ledger   circulation.Service
	local    *app.App
	archiver *archive.Archiver
	close    func() error
}

type opener func(ctx context.Context, cfg *config.Config, remote string, verbose bool) (*session, error)

type cli struct {
	open    opener
	session *session

	flagConfig  string
	flagRemote  string
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{open: openSession}
	err := c.execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func (c *cli) execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	defer c.closeSession()
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "libraryctl",
		Short: "Run the library circulation desk from the command line",
		Long: `libraryctl manages the catalog, the members and the loan ledger.

It works directly on the configured store (sqlite, postgres or memory), or
talks to a running libraripro API with --remote http://host:8080 (the
/api/v1 prefix is added when missing).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.flagConfig, "config", "", "Config file path (default: ~/.config/libraripro/config.yml)")
	root.PersistentFlags().StringVar(&c.flagRemote, "remote", "", "URL of a running libraripro API, e.g. http://host:8080")
	root.PersistentFlags().BoolVar(&c.flagNoColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&c.flagJSON, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&c.flagVerbose, "verbose", "v", false, "Log service activity to stderr")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initColor(c.flagNoColor)

		// init writes the config and must work without one.
		if cmd.Name() == "init" {
			return nil
		}

		cfg, err := config.Load(c.flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		s, err := c.open(cmd.Context(), cfg, c.flagRemote, c.flagVerbose)
		if err != nil {
			return err
		}
		c.session = s
		return nil
	}

	root.AddCommand(
		c.newInitCmd(),
		c.newBooksCmd(),
		c.newMembersCmd(),
		c.newIssueCmd(),
		c.newReturnCmd(),
		c.newQuickReturnCmd(),
		c.newRenewCmd(),
		c.newStatusCmd(),
		c.newTransactionsCmd(),
		c.newStatsCmd(),
		c.newVerifyCmd(),
		c.newExportCmd(),
		c.newImportCmd(),
		c.newEventsCmd(),
	)
	return root
}

func (c *cli) closeSession() {
	if c.session == nil || c.session.close == nil {
		return
	}
	if err := c.session.close(); err != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("!"), "closing store:", err)
	}
	c.session = nil
}

// openSession connects to the remote API when one is configured and to the
// local store otherwise.
func openSession(ctx context.Context, cfg *config.Config, remote string, verbose bool) (*session, error) {
	policy, err := cfg.LendingPolicy()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel()
	if !verbose && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if remote == "" {
		remote = cfg.Client.BaseURL
	}
	if remote != "" {
		return &session{
			cfg:     cfg,
			policy:  policy,
			now:     time.Now,
			catalog: clients.NewCatalogClient(remote),
			members: clients.NewMembershipClient(remote),
			ledger:  clients.NewCirculationClient(remote),
		}, nil
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newLocalSession(cfg, a, time.Now, logger), nil
}

func newLocalSession(cfg *config.Config, a *app.App, now func() time.Time, logger *slog.Logger) *session {
	return &session{
		cfg:      cfg,
		policy:   a.Policy,
		now:      now,
		catalog:  a.Catalog,
		members:  a.Membership,
		ledger:   a.Circulation,
		local:    a,
		archiver: archive.NewArchiver(a.Store, a.Events, now, logger),
		close:    a.Close,
	}
}

func (s *session) requireLocal() error {
	if s.local == nil {
		return errLocalOnly
	}
	return nil
}
