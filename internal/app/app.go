// Package app assembles the screening components from configuration. The HTTP server and
// the admin CLI share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/advice"
	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/cache"
	"github.com/gh-risk-server/internal/config"
	"github.com/gh-risk-server/internal/database"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/health"
	"github.com/gh-risk-server/internal/repository"
	"github.com/gh-risk-server/internal/service"
)

// Version is reported by /health and the MCP server.
const Version = "1.0.0"

// App holds the wired components.
type App struct {
	Config      *domain.Config
	Logger      *logrus.Logger
	Registry    *artifact.Registry
	Assessments *service.AssessmentService
	Advice      *advice.Service
	Health      *health.HealthChecker

	closers []func() error
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if strings.EqualFold(cfg.Output, "stderr") {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	return logger
}

// LoadRegistry loads the artifact bundle. Any error is fatal for startup.
func LoadRegistry(cfg *domain.Config, logger *logrus.Logger) (*artifact.Registry, error) {
	screen, priority := config.ThresholdOverrides(logger)
	loader := artifact.NewLoader(cfg.Artifacts, cfg.Assessment.Margin,
		artifact.ThresholdOverrides{Screen: screen, Priority: priority}, logger)
	return artifact.NewRegistry(loader, logger)
}

// New wires every component. On error, whatever was already opened is closed.
func New(ctx context.Context, mgr *config.Manager, logger *logrus.Logger) (_ *App, err error) {
	cfg := mgr.GetConfig()
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Registry, err = LoadRegistry(cfg, logger); err != nil {
		return nil, err
	}

	a.Health = health.NewHealthChecker(Version, 2*time.Second, logger)
	a.Health.RegisterCheck(health.NewArtifactHealthCheck(a.Registry))

	store, adviceStore, err := a.openStores(ctx, mgr)
	if err != nil {
		return nil, err
	}
	a.Health.RegisterCheck(health.NewPingHealthCheck("database", store, false))

	latest := a.openCache(ctx)

	a.Assessments, err = service.NewAssessmentService(logger, a.Registry, store, latest, cfg.Assessment, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Advice = advice.NewService(adviceStore, logger)
	return a, nil
}

type pingStore interface {
	domain.PredictionStore
	health.Pinger
}

func (a *App) openStores(ctx context.Context, mgr *config.Manager) (pingStore, advice.Store, error) {
	cfg := a.Config
	switch cfg.Database.Driver {
	case "sqlite":
		path := cfg.Database.SQLitePath
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		store, err := repository.NewSQLiteStore(path, cfg.Store.Policy, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening prediction store: %w", err)
		}
		a.closers = append(a.closers, store.Close)

		advicePath := filepath.Join(filepath.Dir(path), "advice.db")
		adviceStore, err := advice.NewSQLiteStore(advicePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening advice store: %w", err)
		}
		a.closers = append(a.closers, adviceStore.Close)
		return store, adviceStore, nil

	default:
		db, err := database.NewConnection(ctx, database.FromDomain(cfg.Database), a.Logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })

		store, err := repository.NewPostgresStore(db.Pool, cfg.Store.Policy, a.Logger)
		if err != nil {
			return nil, nil, err
		}

		adviceStore, err := advice.NewPostgresStoreFromURL(mgr.GetDatabaseURL())
		if err != nil {
			return nil, nil, fmt.Errorf("opening advice store: %w", err)
		}
		a.closers = append(a.closers, adviceStore.Close)
		return store, adviceStore, nil
	}
}

// openCache prefers Redis when configured and falls back to the in-process cache when it
// cannot be reached.
func (a *App) openCache(ctx context.Context) domain.LatestCache {
	cc := a.Config.Cache
	if cc.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cc, a.Logger)
		if err == nil {
			a.closers = append(a.closers, rc.Close)
			a.Health.RegisterCheck(health.NewPingHealthCheck("cache", rc, false))
			return rc
		}
		a.Logger.WithError(err).Warn("Redis unavailable, using in-process latest cache")
	}
	mc := cache.NewMemoryCache(cc.MaxItems, cc.DefaultTTL, a.Logger)
	a.Health.RegisterCheck(health.NewPingHealthCheck("cache", mc, false))
	return mc
}

// Close releases stores and connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
