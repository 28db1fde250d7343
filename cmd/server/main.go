/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pesantren billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, config.yaml, PESANTREN_* env)
  2. Build the zap logger
  3. Open the store: SQLite (schema migrated on open) or in-memory
  4. Create API handler with services and metrics
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  PESANTREN_APP_PORT          HTTP port (default: 8080)
  PESANTREN_DATABASE_DRIVER   sqlite or memory (default: sqlite)
  PESANTREN_DATABASE_PATH     SQLite path (default: pesantren.db)
                              Use ":memory:" for an in-memory database
  PESANTREN_LOG_LEVEL         debug, info, warn, error
  PESANTREN_LOG_FORMAT        json, console
  See config/config.go for the full list.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/pesantren-billing/api"
	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/billing/store"
	"github.com/warp/pesantren-billing/config"
	"github.com/warp/pesantren-billing/logging"
	"github.com/warp/pesantren-billing/metrics"
	"github.com/warp/pesantren-billing/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	if cfg.IsProduction() {
		logCfg = logging.ProductionConfig()
	}
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	db, closeStore, err := openStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeStore()

	var m *metrics.Metrics
	metricsPath := ""
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsPath = cfg.Metrics.Path
	}

	handler := api.NewHandler(db, api.Options{
		StartMonth:   cfg.Billing.AcademicYearStartMonth,
		DueLookahead: cfg.Billing.DueLookaheadMonths,
		Institution:  cfg.App.Institution,
		Logger:       logger,
		Metrics:      m,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		MetricsPath:      metricsPath,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
			zap.String("database_driver", cfg.Database.Driver),
			zap.String("database", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured store and a function releasing it.
// The memory driver keeps nothing across restarts.
func openStore(cfg config.DatabaseConfig) (billing.TxStore, func() error, error) {
	if cfg.Driver == "memory" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	db, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}
