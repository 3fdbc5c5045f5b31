// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/api/alerts"
	"github.com/good-yellow-bee/datamantri/internal/api/health"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address           string
	Version           string        // Reported by /health
	EvaluateRateLimit int           // On-demand evaluations per client per minute (default: 10)
	ReadTimeout       time.Duration // default: 15s
	WriteTimeout      time.Duration // default: 2m, longer than a full alert evaluation
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.EvaluateRateLimit == 0 {
		c.EvaluateRateLimit = 10
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 2 * time.Minute
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	storage       storage.Storage
	runner        alerts.Runner
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
	handler       http.Handler
	cancel        context.CancelFunc
}

// New creates a new API server.
func New(cfg *Config, store storage.Storage, runner alerts.Runner, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		storage:       store,
		runner:        runner,
		logger:        logger.Named("api"),
		healthHandler: health.NewHandler(cfg.Version),
	}
	s.healthHandler.RegisterChecker(health.NewSQLiteChecker(store.DB()))

	// The limiter's sweeper lives as long as the server.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.handler = s.setupRouter(ctx)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.cancel()
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}
