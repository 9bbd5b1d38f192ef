// Package http serves the engine's query interface: reports, sections,
// run triggers, predictions, and delay-impact simulations over a gin REST
// API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/pkg/metrics"
	"github.com/missatech/breach-analytics/usecase"
)

// Config controls the HTTP server.
type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// DefaultConfig returns the standard server shape.
func DefaultConfig() Config {
	return Config{
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Auth:            DefaultAuthConfig(),
		RateLimit:       DefaultRateLimitConfig(),
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return entity.NewValidationError("port", "must be between 1 and 65535")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return entity.NewValidationError("timeouts", "read and write timeouts must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return entity.NewValidationError("shutdown_timeout", "must be positive")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
}

// HealthChecker is implemented by backends the readiness probe inspects.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the engine's HTTP query interface.
type Server struct {
	cfg       Config
	router    *gin.Engine
	runner    *usecase.AnalysisRunner
	collector *metrics.Collector
	checks    map[string]HealthChecker
	logger    *zap.Logger

	httpSrv *http.Server
}

// NewServer wires routes and middleware around the analysis runner.
// collector may be nil (metrics disabled); checks lists the backends the
// readiness probe must see healthy.
func NewServer(
	cfg Config,
	runner *usecase.AnalysisRunner,
	collector *metrics.Collector,
	checks map[string]HealthChecker,
	logger *zap.Logger,
) (*Server, error) {
	if runner == nil {
		return nil, entity.NewValidationError("runner", "analysis runner is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:       cfg,
		runner:    runner,
		collector: collector,
		checks:    checks,
		logger:    logger.Named("http"),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(RequestLogger(s.logger))
	if s.collector != nil {
		s.router.Use(Metrics(s.collector))
	}

	s.router.GET("/healthz", s.healthz)
	s.router.GET("/readyz", s.readyz)
	if s.collector != nil {
		s.router.GET("/metrics", gin.WrapH(s.collector.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	if s.cfg.RateLimit.Enabled {
		v1.Use(RateLimit(s.cfg.RateLimit, s.logger))
	}
	if s.cfg.Auth.Enabled {
		v1.Use(Auth(s.cfg.Auth, s.logger))
	}
	{
		reports := v1.Group("/reports")
		{
			reports.GET("/latest", s.latestReport)
			reports.GET("/latest/sections/:key", s.reportSection)
			reports.GET("/runs/:id", s.reportByRun)
		}

		v1.POST("/analysis/runs", s.triggerRun)
		v1.POST("/predictions", s.predictCost)
		v1.POST("/simulations", s.simulate)
	}
}

// Router exposes the configured handler, used by tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.httpSrv.Shutdown(shutdownCtx)
}

// healthz is the liveness probe.
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "breach-analytics",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readyz reports whether the engine can serve. Backend failures flip the
// probe; a cold cost predictor does not, reports and runs still work.
func (s *Server) readyz(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	components := gin.H{}

	for name, check := range s.checks {
		if err := check.Health(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			components[name] = "ok"
		}
	}
	if s.runner.Ready() {
		components["cost_predictor"] = "trained"
	} else {
		components["cost_predictor"] = "cold"
	}

	c.JSON(status, gin.H{
		"ready":      status == http.StatusOK,
		"components": components,
	})
}
