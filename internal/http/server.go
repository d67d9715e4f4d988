// Package http provides the HTTP API for routed.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/engine"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
)

// Server provides HTTP endpoints for routed.
type Server struct {
	echo   *echo.Echo
	router *engine.Router
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(router *engine.Router, logger *zap.Logger, cfg *Config) (*Server, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8640,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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
		echo:   e,
		router: router,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/route", s.handleRoute)
	v1.POST("/outcome", s.handleOutcome)
	v1.GET("/stats", s.handleStats)
}

// OutcomeRequest is the request body for POST /api/v1/outcome.
type OutcomeRequest struct {
	Fingerprint     string `json:"fingerprint"`
	Success         bool   `json:"success"`
	DurationMinutes int    `json:"duration_minutes"`
}

// OutcomeResponse is the response body for POST /api/v1/outcome.
type OutcomeResponse struct {
	Recorded bool `json:"recorded"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleRoute routes a task to a workflow.
func (s *Server) handleRoute(c echo.Context) error {
	var req engine.RouteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid route request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.router.Route(c.Request().Context(), req)
	if err != nil {
		var verr *engine.InputValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		s.logger.Error("routing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "routing failed")
	}

	return c.JSON(http.StatusOK, resp)
}

// handleOutcome records how a routed task went.
func (s *Server) handleOutcome(c echo.Context) error {
	var req OutcomeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid outcome request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.router.ReportOutcome(c.Request().Context(), req.Fingerprint, req.Success, req.DurationMinutes)
	if err != nil {
		var verr *engine.InputValidationError
		switch {
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		case errors.Is(err, outcomes.ErrUnknownFingerprint):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			s.logger.Error("recording outcome failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "recording outcome failed")
		}
	}

	return c.JSON(http.StatusOK, OutcomeResponse{Recorded: true})
}

// handleStats summarizes recorded routing activity.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.router.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "stats failed")
	}
	return c.JSON(http.StatusOK, stats)
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
