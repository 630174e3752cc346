package mcp

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/advice"
	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/cache"
	litecfg "github.com/gh-risk-server/internal/config"
	"github.com/gh-risk-server/internal/repository"
	"github.com/gh-risk-server/internal/service"
)

// LiteServerOption is a functional option for NewLiteServer.
type LiteServerOption func(*liteDeps) error

type liteDeps struct {
	logger      *logrus.Logger
	adviceStore advice.Store
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(d *liteDeps) error {
		d.logger = logger
		return nil
	}
}

// WithAdviceStore sets a custom advice store.
func WithAdviceStore(store advice.Store) LiteServerOption {
	return func(d *liteDeps) error {
		d.adviceStore = store
		return nil
	}
}

// NewLiteServer wires a server that needs no external services: SQLite for predictions and
// advice, an in-process latest cache and the artifact bundle from cfg.ArtifactDir.
// A missing or invalid bundle is returned as an error.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*Server, error) {
	deps := &liteDeps{logger: newLiteLogger(cfg)}
	for _, opt := range opts {
		if err := opt(deps); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	logger := deps.logger

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	screen, priority := litecfg.ThresholdOverrides(logger)
	loader := artifact.NewLoader(cfg.ArtifactsConfig(), cfg.Margin,
		artifact.ThresholdOverrides{Screen: screen, Priority: priority}, logger)
	registry, err := artifact.NewRegistry(loader, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact bundle: %w", err)
	}

	store, err := repository.NewSQLiteStore(cfg.PredictionDBPath(), cfg.StorePolicy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open prediction store: %w", err)
	}

	latest := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL, logger)

	assessments, err := service.NewAssessmentService(logger, registry, store, latest, cfg.AssessmentConfig(), cfg.StoreConfig())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create assessment service: %w", err)
	}

	if deps.adviceStore == nil {
		adviceStore, err := advice.NewSQLiteStore(cfg.AdviceDBPath())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create advice store: %w", err)
		}
		deps.adviceStore = adviceStore
	}

	s := NewServer(Info{Name: "gh-risk-server-lite", Version: "v1.0.0"}, assessments,
		advice.NewService(deps.adviceStore, logger), logger)
	s.closers = append(s.closers, store, deps.adviceStore)

	logger.WithFields(logrus.Fields{
		"data_dir":     cfg.DataDir,
		"artifact_dir": cfg.ArtifactDir,
		"store_policy": cfg.StorePolicy,
	}).Info("Lite server initialized successfully")
	return s, nil
}

// newLiteLogger logs to stderr; stdout carries the MCP protocol.
func newLiteLogger(cfg *litecfg.LiteConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
