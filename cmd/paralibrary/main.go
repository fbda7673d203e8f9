package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/paralibrary/internal/api"
	"github.com/erazemk/paralibrary/internal/auth"
	"github.com/erazemk/paralibrary/internal/catalog"
	"github.com/erazemk/paralibrary/internal/config"
	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/gateway"
	"github.com/erazemk/paralibrary/internal/loan"
	"github.com/erazemk/paralibrary/internal/store"
	"github.com/erazemk/paralibrary/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds flag values; set flags override the environment.
type options struct {
	cfg        config.Config
	visibility string
	adminUser  string
	closeLog   func()
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:          "paralibrary",
		Short:        "Peer-to-peer book lending server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if o.closeLog != nil {
				o.closeLog()
			}
		},
	}

	defaults := config.Default()
	pf := root.PersistentFlags()
	pf.StringVarP(&o.cfg.DBPath, "db", "d", defaults.DBPath, "SQLite database path")
	pf.StringVarP(&o.cfg.LogPath, "log", "l", "", "log file path (default: stdout/stderr only)")
	pf.StringVar(&o.visibility, "visibility", string(defaults.Visibility), "who may see private books: friends or owner")
	pf.DurationVar(&o.cfg.LendingPeriod, "lending-period", defaults.LendingPeriod, "how long a book stays out")

	root.AddCommand(newServeCmd(o), newInitCmd(o), newSweepCmd(o))
	return root
}

// load merges the environment with any flags set on the command line, then
// sets up logging.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = o.cfg.DBPath
	}
	if flags.Changed("log") {
		cfg.LogPath = o.cfg.LogPath
	}
	if flags.Changed("addr") {
		cfg.Addr = o.cfg.Addr
	}
	if flags.Changed("lending-period") {
		cfg.LendingPeriod = o.cfg.LendingPeriod
	}
	if flags.Changed("sweep-interval") {
		cfg.SweepInterval = o.cfg.SweepInterval
	}
	if flags.Changed("otlp-endpoint") {
		cfg.OTLPEndpoint = o.cfg.OTLPEndpoint
	}
	if flags.Changed("visibility") {
		p, err := catalog.ParsePolicy(o.visibility)
		if err != nil {
			return err
		}
		cfg.Visibility = p
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	o.closeLog, err = setupLogger(cfg.LogPath)
	return err
}

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (initializes the database on first run)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), o)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVarP(&o.cfg.Addr, "addr", "a", defaults.Addr, "listen address")
	cmd.Flags().StringVarP(&o.adminUser, "user", "u", "Admin", "admin username on first run")
	cmd.Flags().DurationVar(&o.cfg.SweepInterval, "sweep-interval", defaults.SweepInterval, "how often overdue loans are marked late (0 disables)")
	cmd.Flags().StringVar(&o.cfg.OTLPEndpoint, "otlp-endpoint", "", "OTLP/HTTP trace collector host:port")
	return cmd
}

func newInitCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new database and admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(o.cfg.DBPath); err == nil {
				return fmt.Errorf("database file %s already exists", o.cfg.DBPath)
			}

			database, password, err := initDatabase(cmd.Context(), o.cfg.DBPath, o.adminUser)
			if err != nil {
				return err
			}
			defer database.Close()

			printInitResult(cmd.OutOrStdout(), o.cfg.DBPath, o.adminUser, password)
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.adminUser, "user", "u", "Admin", "admin username")
	return cmd
}

func newSweepCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue loans late and prune expired revoked tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(o.cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := newManager(database, o.cfg).SweepLate(ctx)
			if err != nil {
				return fmt.Errorf("sweeping late loans: %w", err)
			}
			pruned, err := store.PruneRevokedTokens(ctx, database, time.Now())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d loan(s) late, pruned %d revoked token(s).\n", n, pruned)
			return nil
		},
	}
}

func openDatabase(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("database %s does not exist, run init first", path)
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func newManager(database *sql.DB, cfg config.Config) *loan.Manager {
	return loan.New(database,
		loan.WithLendingPeriod(cfg.LendingPeriod),
		loan.WithPolicy(cfg.Visibility),
	)
}

func serve(ctx context.Context, o *options) error {
	cfg := o.cfg

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.DBPath); errors.Is(err, os.ErrNotExist) {
		database, password, err := initDatabase(ctx, cfg.DBPath, o.adminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(os.Stdout, cfg.DBPath, o.adminUser, password)
		fmt.Println()
	}

	database, err := openDatabase(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.DBPath)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Error("flushing traces", "error", err)
		}
	}()

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	manager := newManager(database, cfg)
	gw := gateway.New(database, catalog.New(database, cfg.Visibility), manager)
	handler := api.LoggingMiddleware(api.NewRouter(api.Config{
		DB:      database,
		Gateway: gw,
		Issuer:  auth.NewIssuer(jwtSecret, cfg.TokenTTL),
	}))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SweepInterval > 0 {
		go manager.RunSweeper(ctx, cfg.SweepInterval)
	}
	if n, err := store.PruneRevokedTokens(ctx, database, time.Now()); err != nil {
		slog.Error("pruning revoked tokens", "error", err)
	} else if n > 0 {
		slog.Info("pruned revoked tokens", "count", n)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(sctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "visibility", cfg.Visibility, "lending_period", cfg.LendingPeriod)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
