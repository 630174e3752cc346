package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/api"
	"github.com/gh-risk-server/internal/app"
	"github.com/gh-risk-server/internal/config"
	"github.com/gh-risk-server/internal/database"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := app.NewLogger(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.Driver == "postgres" && cfg.Database.AutoMigrate {
		if err := migrateUp(ctx, configManager, logger); err != nil {
			logger.WithError(err).Fatal("Database migration failed")
		}
	}

	components, err := app.New(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize GH risk server")
	}
	defer components.Close()

	server := api.NewServer(cfg, api.Dependencies{
		Assessments: components.Assessments,
		Advice:      components.Advice,
		Health:      components.Health,
	}, logger)

	logger.WithFields(logrus.Fields{
		"host":         cfg.Server.Host,
		"port":         cfg.Server.Port,
		"policy":       cfg.Assessment.Policy,
		"store_policy": cfg.Store.Policy,
		"driver":       cfg.Database.Driver,
	}).Info("Starting GH risk screening server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func migrateUp(ctx context.Context, mgr *config.Manager, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(mgr.GetDatabaseURL(), mgr.GetConfig().Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(ctx)
}
