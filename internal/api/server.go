// Package api exposes GH risk screening over HTTP with gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/advice"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/health"
	"github.com/gh-risk-server/internal/middleware"
	"github.com/gh-risk-server/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Dependencies are the services the HTTP layer calls. Advice and Health may be nil, in
// which case their routes are not registered.
type Dependencies struct {
	Assessments *service.AssessmentService
	Advice      *advice.Service
	Health      *health.HealthChecker
}

// Server represents the HTTP server
type Server struct {
	cfg    *domain.Config
	deps   Dependencies
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
		router.Use(limiter.Middleware())
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	sc := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", sc.Host, sc.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{"addr": addr, "tls": sc.TLSEnabled}).Info("HTTP server listening")
		var err error
		if sc.TLSEnabled {
			err = s.server.ListenAndServeTLS(sc.CertFile, sc.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.deps.Health != nil {
		s.router.GET("/health", s.handleHealth)
	}

	gh := s.router.Group("/gh")
	{
		gh.POST("/predict-gh", s.handlePredict)
		gh.POST("/score-form", s.handleScoreForm)
		gh.GET("/latest/:patient_id", s.handleLatest)
		gh.GET("/history/:patient_id", s.handleHistory)
	}

	s.router.GET("/risk/patient/:patient_id/latest", s.handleRiskSummary)

	if s.deps.Advice != nil {
		patients := s.router.Group("/patients/:patient_id")
		patients.POST("/advice", s.handleAddAdvice)
		patients.GET("/advice", s.handleListAdvice)
	}

	admin := s.router.Group("/admin", middleware.AdminToken(s.cfg.Server.AdminToken))
	{
		admin.GET("/artifacts", s.handleArtifacts)
		admin.POST("/artifacts/reload", s.handleReloadArtifacts)
	}
}
