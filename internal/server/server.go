package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/collectors"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/telemetry"
	"github.com/mohammad-safakhou/osinthunter/internal/runlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RunLister lists recently completed investigations.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]runlog.RunSummary, error)
}

// Options carries the dependencies of the HTTP front end.
type Options struct {
	Registry *collectors.Registry
	Deps     agent.Deps
	Index    *runlog.Index // nil disables evidence search
	Runs     RunLister     // nil disables run listing
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server is the echo front end over the orchestrator.
type Server struct {
	cfg      *config.Config
	registry *collectors.Registry
	deps     agent.Deps
	index    *runlog.Index
	runs     RunLister
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// New validates the configuration by building one orchestrator up front.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil || opts.Registry == nil {
		return nil, fmt.Errorf("config and registry are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := agent.New(cfg, opts.Registry, opts.Deps); err != nil {
		return nil, err
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      cfg,
		registry: opts.Registry,
		deps:     opts.Deps,
		index:    opts.Index,
		runs:     opts.Runs,
		gatherer: gatherer,
		logger:   logger,
	}, nil
}

// Echo builds the router.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = s.errorHandler
	e.Renderer = &pageRenderer{templates: pageTemplates}

	e.GET("/", s.indexPage)
	e.POST("/run", s.runPage)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.GET("/collectors", s.listCollectors)
	api.POST("/investigations", s.investigate)
	api.GET("/evidence/search", s.searchEvidence)
	api.GET("/runs", s.recentRuns)
	return e
}

// errorHandler renders every error as {"error": msg} and logs it.
func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("remote", c.RealIP()),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

// Run wires configuration, telemetry and run-log backends, then serves until
// ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == "" {
		addr = cfg.Server.Address
	}

	tracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, "serve")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	sinks, err := runlog.Open(ctx, cfg.RunLog, logger.Named("runlog"))
	if err != nil {
		return err
	}
	defer sinks.Close()

	reg, err := collectors.NewRegistry(cfg, collectors.WithLogger(logger.Named("collectors")))
	if err != nil {
		return err
	}

	opts := Options{
		Registry: reg,
		Deps:     agent.Deps{Sink: sinks.Multi, Metrics: metrics.Hooks(), Logger: logger},
		Index:    sinks.Index,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger.Named("http"),
	}
	if sinks.Postgres != nil {
		opts.Runs = sinks.Postgres
	}
	srv, err := New(cfg, opts)
	if err != nil {
		return err
	}

	e := srv.Echo()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
