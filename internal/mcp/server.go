package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
	"github.com/fyrsmithlabs/docrag/internal/secrets"
)

// DefaultMaxFileSize bounds files read by ingest_file.
const DefaultMaxFileSize = 20 << 20

// DocumentLister lists recent document records.
type DocumentLister interface {
	ListDocuments(ctx context.Context, limit int) ([]metadata.Document, error)
}

// Server is an MCP server backed by the docrag services.
type Server struct {
	mcp       *mcp.Server
	answerer  answer.Answerer
	ingester  ingest.Ingester
	documents DocumentLister
	scrubber  secrets.Scrubber
	metrics   *toolMetrics
	config    *Config
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "docrag")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// AllowedRoot restricts ingest_file to paths beneath it. Empty allows any path.
	AllowedRoot string

	// MaxFileSize bounds files read by ingest_file (default: 20 MiB).
	MaxFileSize int64

	// Meter records tool metrics. Nil uses the global meter provider.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:        "docrag",
		Version:     "1.0.0",
		Logger:      zap.NewNop(),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// NewServer creates a new MCP server with the given services. documents is
// optional; list_documents is only registered when it is set.
func NewServer(cfg *Config, answerer answer.Answerer, ingester ingest.Ingester, documents DocumentLister, scrubber secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if answerer == nil {
		return nil, fmt.Errorf("answer service is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if scrubber == nil {
		scrubber = secrets.NoopScrubber{}
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:       mcpServer,
		answerer:  answerer,
		ingester:  ingester,
		documents: documents,
		scrubber:  scrubber,
		metrics:   newToolMetrics(cfg.Meter, cfg.Logger),
		config:    cfg,
		logger:    cfg.Logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
