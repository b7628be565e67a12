// Package http exposes the forge pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/logging"
	"github.com/kcowger/commcare-forge-sub001/internal/pipeline"
	"github.com/kcowger/commcare-forge-sub001/internal/sanitize"
	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
	"github.com/kcowger/commcare-forge-sub001/internal/toolchain"
)

// Pipeline is the subset of the orchestrator the server drives.
type Pipeline interface {
	ValidateUpload(ctx context.Context, path string) (*pipeline.Result, error)
	Generate(ctx context.Context, req pipeline.GenerateRequest) (*pipeline.Result, error)
	Export(ctx context.Context, artifactPath, baseName string) (*pipeline.Result, error)
}

// Server provides the HTTP endpoints of forge.
type Server struct {
	echo       *echo.Echo
	pipeline   Pipeline
	capability toolchain.Capability
	scrubber   secrets.Scrubber
	logger     *zap.Logger
	config     *Config
	metrics    *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	// UploadDir holds the per-request upload directories. Defaults to the
	// system temp directory.
	UploadDir string
}

// DefaultMaxUploadBytes bounds uploads when Config.MaxUploadBytes is unset.
const DefaultMaxUploadBytes int64 = 64 << 20

// Option configures a Server.
type Option func(*Server)

// WithMeter records HTTP metrics on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(s *Server) {
		s.metrics = NewHTTPMetrics(m, s.logger)
	}
}

// NewServer creates a new HTTP server.
func NewServer(p Pipeline, capability toolchain.Capability, scrubber secrets.Scrubber, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if capability == nil {
		return nil, fmt.Errorf("toolchain capability cannot be nil")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8765,
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		pipeline:   p,
		capability: capability,
		scrubber:   scrubber,
		logger:     logger,
		config:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(nil, logger)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(req.Context(), rid)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			var he *echo.HTTPError
			if err != nil && asHTTPError(err, &he) {
				status = he.Code
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", rid),
			)

			return err
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/toolchain", s.handleToolchain)
	v1.POST("/validate", s.handleValidate)
	v1.POST("/generate", s.handleGenerate)
	v1.POST("/export", s.handleExport)
}

// Echo returns the underlying router, for tests and embedding.
func (s *Server) Echo() *echo.Echo { return s.echo }

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleToolchain(c echo.Context) error {
	return c.JSON(http.StatusOK, s.capability.Check(c.Request().Context()))
}

func (s *Server) handleValidate(c echo.Context) error {
	path, cleanup, err := s.receiveUpload(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, events := collectEvents(c.Request().Context())
	res, err := s.pipeline.ValidateUpload(ctx, path)
	dropUploadPaths(res, path)
	return s.respond(c, res, *events, err)
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid generate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}

	ctx, events := collectEvents(c.Request().Context())
	res, err := s.pipeline.Generate(ctx, pipeline.GenerateRequest{
		Prompt:   req.Prompt,
		BaseName: req.BaseName,
	})
	return s.respond(c, res, *events, err)
}

func (s *Server) handleExport(c echo.Context) error {
	path, cleanup, err := s.receiveUpload(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, events := collectEvents(c.Request().Context())
	res, err := s.pipeline.Export(ctx, path, c.FormValue("base_name"))
	dropUploadPaths(res, path)
	return s.respond(c, res, *events, err)
}

// dropUploadPaths clears references to the upload, which is deleted once
// the response is written.
func dropUploadPaths(res *pipeline.Result, upload string) {
	if res == nil {
		return
	}
	if res.Artifacts.PackagePath == upload {
		res.Artifacts.PackagePath = ""
	}
	for i := range res.History {
		if res.History[i].ArtifactPath == upload {
			res.History[i].ArtifactPath = ""
		}
	}
}

// collectEvents attaches a sink that appends every progress event of the
// run. Runs deliver events on the calling goroutine.
func collectEvents(ctx context.Context) (context.Context, *[]pipeline.ProgressEvent) {
	events := []pipeline.ProgressEvent{}
	ctx = pipeline.ContextWithSink(ctx, func(ev pipeline.ProgressEvent) {
		events = append(events, ev)
	})
	return ctx, &events
}

// respond writes a run result. A run that completed, successfully or not,
// is 200; unreadable packages are 422 and other aborts 500.
func (s *Server) respond(c echo.Context, res *pipeline.Result, events []pipeline.ProgressEvent, err error) error {
	body := RunResponse{Result: res, Events: events}
	if err == nil {
		return c.JSON(http.StatusOK, body)
	}

	body.Error = s.scrubber.Scrub(err.Error()).Scrubbed
	status := http.StatusInternalServerError
	if errors.Is(err, ccz.ErrParse) {
		status = http.StatusUnprocessableEntity
	}
	s.logger.Warn("pipeline run aborted",
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.String("error", body.Error),
	)
	return c.JSON(status, body)
}

// receiveUpload stores the multipart "file" field in a fresh directory under
// the upload root. cleanup removes that directory.
func (s *Server) receiveUpload(c echo.Context) (string, func(), error) {
	req := c.Request()
	if req.ContentLength > s.config.MaxUploadBytes {
		return "", nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", s.config.MaxUploadBytes))
	}
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.config.MaxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.config.MaxUploadBytes))
		}
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	name, err := sanitize.SafeBasename(fh.Filename)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "invalid file name")
	}

	dir, err := os.MkdirTemp(s.config.UploadDir, "upload-")
	if err != nil {
		s.logger.Error("failed to create upload directory", zap.Error(err))
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove upload directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	path := filepath.Join(dir, name)
	size, err := saveFormFile(fh, path)
	if err != nil {
		cleanup()
		s.logger.Error("failed to store upload", zap.Error(err))
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}
	s.metrics.RecordUpload(c, size)

	return path, cleanup, nil
}

func saveFormFile(fh *multipart.FileHeader, path string) (int64, error) {
	src, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func asHTTPError(err error, target **echo.HTTPError) bool {
	return errors.As(err, target)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
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
