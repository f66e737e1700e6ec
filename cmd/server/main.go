/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the household card billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then command-line flags)
  2. Initialize SQLite store (migrations run on open)
  3. Restore the billing engine from the saved state
  4. Connect the payment event publisher when AMQP_URL is set
  5. Start the HTTP server and the drift audit scheduler

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the audit scheduler
  4. Close the publisher and the database
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/household.db"

  # Run with in-memory database and limit enforcement
  ENFORCE_LIMIT=true ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/household-finance/api"
	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/broker"
	"github.com/warp/household-finance/config"
	"github.com/warp/household-finance/generic"
	"github.com/warp/household-finance/logging"
	"github.com/warp/household-finance/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	// Flags override the environment
	port := flag.Int("port", 0, "HTTP server port (default from PORT)")
	dbPath := flag.String("db", "", "SQLite database path (default from DB_PATH)")
	flag.Parse()
	if *port != 0 {
		cfg.Port = strconv.Itoa(*port)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	root := logging.New(cfg.Logging())
	slog.SetDefault(root)
	logger := logging.WithComponent(root, logging.ComponentApp)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", logging.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, root); err != nil {
		logger.Error("server stopped with error", logging.FieldError, err)
		os.Exit(1)
	}
	logger.Info("server stopped", logging.FieldOperation, logging.OpShutdown)
}

func run(cfg *config.Config, root *slog.Logger) error {
	logger := logging.WithComponent(root, logging.ComponentApp)
	logger.Info("starting", logging.FieldOperation, logging.OpStartup, "config", cfg)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logging.WithComponent(root, logging.ComponentStorage).Info("database ready", logging.FieldDBPath, cfg.DBPath)

	// Optional payment event publisher
	var sink billing.EventSink
	if cfg.AMQPURL != "" {
		publisher, err := broker.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, root)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sink = publisher
		logger.Info("payment events enabled", logging.FieldExchange, cfg.AMQPExchange)
	}

	engine := billing.NewEngine(billing.Options{EnforceLimit: cfg.EnforceLimit})
	service := billing.NewService(engine, store, generic.NewLedger(store.Transactions()), sink, root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Load(ctx); err != nil {
		return err
	}

	scheduler := api.NewAuditScheduler(service, root)
	scheduler.CheckInterval = cfg.AuditInterval
	scheduler.AutoRepair = cfg.AuditAutoRepair

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(api.NewHandler(service), cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening",
			logging.FieldAddr, server.Addr,
			logging.FieldEnforcement, cfg.EnforceLimit)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", logging.FieldOperation, logging.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
