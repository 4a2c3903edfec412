// Command api serves the reconciliation workflow over HTTP.
package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/troopledger/reconcile/internal/api"
	"github.com/troopledger/reconcile/internal/infrastructure/config"
	"github.com/troopledger/reconcile/internal/infrastructure/logging"
	"github.com/troopledger/reconcile/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := config.LoadOrEnvWithPath(*configPath)
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	repo, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	server := api.NewServer(cfg, repo, logger)
	if err := server.Run(); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
