/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the litigation collection server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and command-line flags
  2. Load YAML configuration with env overrides
  3. Initialize SQLite store
  4. Wire domain services and API handler
  5. Start the statistics scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the statistics scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/contentieux.db"

  # Run with a config file
  ./server -config=config.yaml

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sodeca/contentieux-engine/api"
	"github.com/sodeca/contentieux-engine/config"
	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/store/sqlite"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "YAML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire domain services
	registry := mandat.NewRegistry(store)
	service := contentieux.NewAffaireService(store, registry)

	handler := api.NewHandler(service, store, registry, store)

	// Background statistics refresh
	scheduler := api.NewStatsScheduler(registry, cfg.Scheduler.RefreshStatistiques)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start statistics scheduler: %v", err)
	}
	defer scheduler.Stop()
	handler.Stats = scheduler.Cache

	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://%s", cfg.GetServerAddress())
		log.Printf("API available at http://%s/api", cfg.GetServerAddress())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
