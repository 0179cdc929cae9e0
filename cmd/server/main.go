/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the outpass engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize structured logger
  3. Initialize SQLite store
  4. Build the mess reconciler and outpass service
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: outpass.db, env DATABASE_PATH)
           Use ":memory:" for in-memory database
  -quota   Monthly outpass quota per student (default: 6, env MONTHLY_QUOTA)
  -grace   Exit grace period, e.g. "30m" (default: 30m, env GRACE_PERIOD)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/hostel.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with a tighter quota
  ./server -quota=4

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hostelhub/outpass-engine/api"
	"github.com/hostelhub/outpass-engine/mess"
	"github.com/hostelhub/outpass-engine/outpass"
	"github.com/hostelhub/outpass-engine/store/sqlite"
)

func main() {
	// .env is optional; flags and real env always win
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "outpass.db"), "SQLite database path")
	quota := flag.Int("quota", envInt("MONTHLY_QUOTA", 6), "monthly outpass quota per student")
	grace := flag.Duration("grace", envDuration("GRACE_PERIOD", 30*time.Minute), "exit grace period")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	reconciler := mess.NewReconciler(mess.DefaultCalendar(), store, logger)

	svc := outpass.NewService(store, store, reconciler,
		outpass.WithLogger(logger),
		outpass.WithMonthlyQuota(*quota),
		outpass.WithGracePeriod(*grace),
	)

	handler := api.NewHandler(svc, store, logger)
	handler.Registry = store

	// Create router
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.Int("quota", *quota),
			zap.Duration("grace", *grace))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
