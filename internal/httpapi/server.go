// Package httpapi exposes the context ranker and feedback API over
// HTTP, so non-Go callers can drive playbookd without linking Go
// (spec.md §1's out-of-scope "JSON-RPC server wrapper" reduced to its
// minimal concrete shape: one thin handler layer over the in-process
// API).
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/history"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/ranker"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints over a playbook store and ranker.
type Server struct {
	echo       *echo.Echo
	store      *playbook.Store
	searcher   history.Searcher
	rankerCfg  ranker.Config
	scoringCfg scoring.Config
	logger     *zap.Logger
	config     *Config
}

// NewServer creates a new HTTP server. searcher may be nil, in which
// case ranking proceeds without historical evidence (spec.md §4.G
// degrades gracefully when the searcher hook is absent).
func NewServer(store *playbook.Store, searcher history.Searcher, rankerCfg ranker.Config, scoringCfg scoring.Config, logger *zap.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		store:      store,
		searcher:   searcher,
		rankerCfg:  rankerCfg,
		scoringCfg: scoringCfg,
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/context", s.handleContext)
	v1.POST("/feedback", s.handleFeedback)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(200, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
