// Package http provides the docrag HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
)

const defaultDocumentsLimit = 20

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// DocumentLister lists recent document records.
type DocumentLister interface {
	ListDocuments(ctx context.Context, limit int) ([]metadata.Document, error)
}

// Server provides HTTP endpoints for docrag.
type Server struct {
	echo      *echo.Echo
	ingester  ingest.Ingester
	answerer  answer.Answerer
	documents DocumentLister
	checks    map[string]HealthCheck
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	BodyLimit string
	Version   string

	// Meter records request metrics. Nil uses the global provider.
	Meter metric.Meter
}

const (
	ingestRoute    = "/api/v1/ingest"
	chatRoute      = "/api/v1/chat"
	documentsRoute = "/api/v1/documents"
)

// Deps are the services behind the API. Documents and Checks are optional.
type Deps struct {
	Ingester  ingest.Ingester
	Answerer  answer.Answerer
	Documents DocumentLister
	Checks    map[string]HealthCheck
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if deps.Answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "20M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			return next(c)
		}
	})
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
	e.Use(newRequestMetrics(cfg.Meter, logger).middleware())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	s := &Server{
		echo:      e,
		ingester:  deps.Ingester,
		answerer:  deps.Answerer,
		documents: deps.Documents,
		checks:    deps.Checks,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST(ingestRoute, s.handleIngest)
	s.echo.POST(chatRoute, s.handleChat)
	s.echo.GET(documentsRoute, s.handleDocuments)
}

// Echo exposes the router for additional routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleHealth runs every registered check. Any failure reports degraded with 503.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.config.Version}
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "error: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

// handleIngest accepts a multipart upload in field "file".
func (s *Server) handleIngest(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No file uploaded"})
	}

	f, err := fh.Open()
	if err != nil {
		s.logger.Warn("failed to open upload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read uploaded file"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.logger.Warn("failed to read upload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read uploaded file"})
	}

	res, err := s.ingester.Ingest(c.Request().Context(), ingest.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	})
	if err != nil {
		return s.ingestError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) ingestError(c echo.Context, err error) error {
	status := statusForIngestError(err)
	body := ErrorResponse{Error: messageForIngestError(err)}

	var rl *ingest.RateLimitError
	if errors.As(err, &rl) {
		secs := rl.RetryAfterSeconds()
		body.RetryAfterSeconds = secs
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("ingestion failed", zap.String("reason", ingest.Reason(err)), zap.Error(err))
	} else {
		s.logger.Info("ingestion rejected", zap.String("reason", ingest.Reason(err)), zap.Error(err))
	}
	return c.JSON(status, body)
}

// statusForIngestError maps pipeline errors onto HTTP status codes.
func statusForIngestError(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest),
		errors.Is(err, ingest.ErrExtractionInsufficient):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func messageForIngestError(err error) string {
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest):
		return "No file uploaded"
	case errors.Is(err, ingest.ErrRateLimited):
		return "Please wait before uploading another document"
	case errors.Is(err, ingest.ErrExtractionInsufficient):
		return "Not enough text could be extracted from the file"
	default:
		return "Failed to process file"
	}
}

// handleChat answers a question. Only malformed input is an error; every
// downstream failure is reported inside a 200 answer.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	res, err := s.answerer.Answer(c.Request().Context(), req.Message)
	if errors.Is(err, answer.ErrInvalidRequest) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message field is required"})
	}
	if err != nil {
		s.logger.Error("answer failed", zap.Error(err))
		return c.JSON(http.StatusOK, ChatResponse{Answer: answer.FallbackAnswer, Sources: []answer.Source{}})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Answer:        res.Answer,
		UsedContext:   res.UsedContext,
		ContextLength: res.ContextLength,
		Sources:       res.Sources,
	})
}

// handleDocuments lists recent documents, newest first.
func (s *Server) handleDocuments(c echo.Context) error {
	if s.documents == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "document listing is not configured"})
	}

	limit := defaultDocumentsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}

	docs, err := s.documents.ListDocuments(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("listing documents failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list documents"})
	}

	resp := DocumentsResponse{Documents: make([]DocumentInfo, len(docs)), Count: len(docs)}
	for i, d := range docs {
		resp.Documents[i] = documentInfo(d)
	}
	return c.JSON(http.StatusOK, resp)
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
