// holdem-server runs the real-money No-Limit Texas Hold'em engine: a
// WebSocket API over per-table actors, backed by a wallet ledger and an
// append-only event log.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/game"
	"github.com/feltworks/holdem/internal/server"
	"github.com/feltworks/holdem/internal/table"
	"github.com/feltworks/holdem/internal/wallet"
)

var CLI struct {
	Config   string `short:"c" default:"holdem-server.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Listen address host:port (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	Database string `help:"Postgres DSN for the wallet ledger and event store (overrides config)"`
	Migrate  bool   `help:"Create database schema on startup"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		if host, port, err := net.SplitHostPort(CLI.Addr); err == nil {
			cfg.Server.Address = host
			cfg.Server.Port, _ = strconv.Atoi(port)
		} else {
			cfg.Server.Address = CLI.Addr
		}
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.Database != "" {
		cfg.Server.DatabaseURL = CLI.Database
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if level, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		kctx.Exit(1)
	}
}

func run(cfg *server.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		ledger wallet.Ledger
		store  events.Store
	)
	if cfg.Server.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.Server.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if CLI.Migrate {
			if err := wallet.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate wallet schema: %w", err)
			}
			if err := events.MigrateStore(ctx, db); err != nil {
				return fmt.Errorf("migrate events schema: %w", err)
			}
			logger.Info("database schema migrated")
		}
		ledger = wallet.NewPostgresLedger(db)
		store = events.NewPostgresStore(db)
		logger.Info("using postgres ledger and event store")
	} else {
		ledger = wallet.NewMemoryLedger()
		logger.Warn("no database configured, wallet and events are in-memory only")
	}

	registry := table.NewRegistry(ledger, store, nil, logger)
	for _, tc := range cfg.Tables {
		rake := game.RakeConfig{}
		if tc.Rake != nil {
			rake = game.RakeConfig{
				Rate:         tc.Rake.Percent,
				Cap:          tc.Rake.Cap,
				Threshold:    tc.Rake.Threshold,
				NoFlopNoDrop: tc.Rake.NoFlopNoDrop,
			}
		}
		_, err := registry.Create(table.Config{
			Name:          tc.Name,
			Seats:         tc.MaxSeats,
			SmallBlind:    tc.SmallBlind,
			BigBlind:      tc.BigBlind,
			MinBuyIn:      tc.BuyInMin,
			MaxBuyIn:      tc.BuyInMax,
			ActionTimeout: tc.ActionTimeout(),
			Rake:          rake,
			RakeAccount:   cfg.Server.RakeAccount,
			AutoStart:     tc.AutoStart,
		})
		if err != nil {
			return fmt.Errorf("create table %q: %w", tc.Name, err)
		}
	}

	service := server.NewGameService(registry, ledger, logger)
	srv := server.NewServer(
		net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port)),
		service, logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down, voiding live hands and refunding stacks")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return registry.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
