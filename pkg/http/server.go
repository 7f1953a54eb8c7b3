package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"intake-server/pkg/database"
	"intake-server/pkg/metrics"
	"intake-server/pkg/pipeline"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Config holds HTTP server configuration
type Config struct {
	Port          int
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		EnableMetrics: true,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  60 * time.Second,
	}
}

// EventProcessor runs the intake pipeline for one raw webhook payload
type EventProcessor interface {
	ProcessCallEnded(ctx context.Context, raw []byte) (*pipeline.Result, error)
}

// CallerDirectory answers lookups about known callers
type CallerDirectory interface {
	ClassifyCaller(ctx context.Context, tenantID, phoneNumber, category string) (string, error)
	FactHistory(ctx context.Context, tenantID, phoneNumber string) ([]*database.CallerFact, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health() error
}

// Server is the HTTP ingress: webhook intake, caller lookups, health checks
// and metrics.
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	processor  EventProcessor
	directory  CallerDirectory
	database   HealthChecker
	startTime  time.Time
}

// NewServer creates a new HTTP server instance. directory and database may
// be nil; the corresponding endpoints degrade gracefully.
func NewServer(logger *logrus.Logger, config *Config, processor EventProcessor, directory CallerDirectory, database HealthChecker) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		processor: processor,
		directory: directory,
		database:  database,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	server.mux = mux

	mux.HandleFunc("/health", server.HealthHandler)
	mux.HandleFunc("/health/live", server.LivenessHandler)
	mux.HandleFunc("/health/ready", server.ReadinessHandler)
	mux.HandleFunc("/webhook/call-ended", server.CallEndedHandler)
	mux.HandleFunc("/callers/classify", server.ClassifyHandler)
	mux.HandleFunc("/callers/facts", server.FactsHandler)

	if config.EnableMetrics {
		if registry := metrics.GetRegistry(); registry != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(
				registry,
				promhttp.HandlerOpts{
					EnableOpenMetrics: true,
					Registry:          registry,
				},
			))
			logger.Info("Prometheus metrics endpoint enabled at /metrics")
		}
	}

	return server
}

// Start begins serving; blocks until the server stops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.WithField("address", addr).Info("HTTP server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}
