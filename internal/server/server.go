// Package server exposes batch runs, single analyses and history over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/notify"
	"github.com/ppiankov/veritas/internal/report"
	"github.com/ppiankov/veritas/internal/store"
	"github.com/ppiankov/veritas/internal/worker"
)

// OwnerHeader carries the caller's opaque owner id. Authentication happens
// in front of this service.
const OwnerHeader = "X-User-ID"

// Analyzer classifies a single input
type Analyzer interface {
	Analyze(ctx context.Context, ownerID, input string) (model.BatchItem, error)
}

// HistorySource reads stored verdicts and run summaries
type HistorySource interface {
	History(ctx context.Context, ownerID string, filter store.Filter) ([]model.VerdictRecord, error)
	Runs(ctx context.Context, ownerID string, limit int) ([]model.RunSummary, error)
}

// Config wires a Server. History may be nil when no store is configured.
type Config struct {
	Manager        *worker.Manager
	Broker         *notify.Broker
	Exporter       *report.Exporter
	Analyzer       Analyzer
	History        HistorySource
	MaxUploadBytes int64
	MaxItems       int
	Version        string
	Logger         *slog.Logger
}

// Server is the HTTP front end
type Server struct {
	echo      *echo.Echo
	manager   *worker.Manager
	broker    *notify.Broker
	exporter  *report.Exporter
	analyzer  Analyzer
	history   HistorySource
	maxUpload int64
	maxItems  int
	version   string
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a server and registers its routes
func New(cfg Config) *Server {
	s := &Server{
		manager:   cfg.Manager,
		broker:    cfg.Broker,
		exporter:  cfg.Exporter,
		analyzer:  cfg.Analyzer,
		history:   cfg.History,
		maxUpload: cfg.MaxUploadBytes,
		maxItems:  cfg.MaxItems,
		version:   cfg.Version,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.exporter == nil {
		s.exporter = report.NewExporter(0)
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 5 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/health", s.health)

	api := e.Group("/api")
	api.POST("/batches", s.createBatch)
	api.GET("/batches/:id", s.getBatch)
	api.GET("/batches/:id/events", s.batchEvents)
	api.POST("/batches/:id/cancel", s.cancelBatch)
	api.GET("/batches/:id/report", s.batchReport)
	api.POST("/analyze", s.analyze)
	api.GET("/history", s.listHistory)
	api.GET("/runs", s.listRuns)

	s.echo = e
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.logger.Info("server listening", "addr", addr, "version", s.version)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, then stops the active runs
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.echo.Shutdown(ctx)
	runErr := s.manager.Shutdown(ctx)
	return errors.Join(httpErr, runErr)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func ownerID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(OwnerHeader))
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
