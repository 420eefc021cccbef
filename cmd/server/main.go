/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the extra-hours payroll server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the zap logger (development or production by ENV)
  3. Initialize SQLite store
  4. Create SheetService, metrics and API handler
  5. Start the period sheet scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DB_PATH, default: extrahours.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DB_PATH, ENV, CORS_ORIGINS, SCHEDULER_ENABLED, SCHEDULER_INTERVAL.
  A .env file in the working directory is loaded first when present.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/extra-hours/api"
	"github.com/warp/extra-hours/config"
	"github.com/warp/extra-hours/extrahours"
	"github.com/warp/extra-hours/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", *dbPath), zap.Error(err))
	}
	defer store.Close()

	// Initialize services
	sheets := extrahours.NewSheetService(store, logger.Named("sheets"))
	metrics := api.NewMetrics(prometheus.DefaultRegisterer)
	handler := api.NewHandler(store, sheets, metrics, logger.Named("api"))

	scheduler := api.NewPeriodScheduler(store, sheets, logger)
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()

	// Create router
	router := api.NewRouter(handler, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		AllowReset:  !cfg.IsProduction(),
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
