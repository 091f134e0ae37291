package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/embeddings"
	"github.com/fyrsmithlabs/docrag/internal/events"
	"github.com/fyrsmithlabs/docrag/internal/extraction"
	"github.com/fyrsmithlabs/docrag/internal/generation"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
	"github.com/fyrsmithlabs/docrag/internal/prompts"
	"github.com/fyrsmithlabs/docrag/internal/secrets"
	"github.com/fyrsmithlabs/docrag/internal/storage"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
	"github.com/fyrsmithlabs/docrag/internal/vectorstore"
	"github.com/fyrsmithlabs/docrag/internal/workflows"
)

// LLM is the generation client shared by answering and summarization.
type LLM interface {
	generation.Generator
	generation.Summarizer
}

// BuildOptions overrides parts of the graph Build would otherwise construct
// from configuration.
type BuildOptions struct {
	Logger *logging.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	// EmbeddingProvider replaces the configured embeddings provider.
	EmbeddingProvider embeddings.Provider
	// LLM replaces the configured generation client.
	LLM LLM
	// ExtraSinks receive every telemetry event alongside the log sink.
	ExtraSinks []telemetry.Sink
}

// Build constructs every service described by cfg. On error, anything
// already opened is closed before returning.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (_ Registry, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	zl := logger.Underlying()

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	pool, err := connectPostgres(ctx, cfg, zl)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		closers = append(closers, func() error { pool.Close(); return nil })
	}

	meta, err := metadata.Open(ctx, cfg.Database, pool)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}
	closers = append(closers, meta.Close)

	objects, err := storage.NewFileStore(cfg.Storage.Root, zl.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("opening object storage: %w", err)
	}

	sinks := []telemetry.Sink{telemetry.NewLogSink(logger.Named("events"))}
	publisher, err := events.Connect(cfg.Events, zl.Named("events"))
	switch {
	case errors.Is(err, events.ErrDisabled):
		publisher = nil
	case err != nil:
		return nil, err
	default:
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
	}
	sinks = append(sinks, opts.ExtraSinks...)

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("docrag")
	}
	hooks := telemetry.NewHooks(tracer, logger, sinks...)

	provider := opts.EmbeddingProvider
	if provider == nil {
		provider, err = embeddings.NewProvider(cfg.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("creating embeddings provider: %w", err)
		}
		if c, ok := provider.(io.Closer); ok {
			closers = append(closers, c.Close)
		}
	}
	provider = embeddings.Traced(provider, tracer)
	embedder, err := embeddings.NewAdapter(provider, embeddings.Config{
		Dimension:         cfg.Embeddings.Dimension,
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
		Timeout:           cfg.Embeddings.Timeout.Duration(),
		Name:              cfg.Embeddings.Provider,
	}, hooks, embeddings.WithMetrics(embeddings.NewMetrics(opts.Meter, zl.Named("embeddings"))))
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.NewStore(ctx, cfg.VectorStore, cfg.Embeddings.Dimension,
		zl.Named("vectorstore"), vectorstore.WithPool(pool))
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	closers = append(closers, vectors.Close)
	if err = vectors.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring vector collection: %w", err)
	}

	llm := opts.LLM
	if llm == nil {
		client, err := generation.New(cfg.Generation, cfg.Ingest.SummaryMaxChars)
		if err != nil {
			return nil, fmt.Errorf("creating generation client: %w", err)
		}
		llm = client
	}

	chain, err := prompts.New(ctx, cfg.Prompts, hooks, zl.Named("prompts"))
	if err != nil {
		return nil, fmt.Errorf("creating prompt chain: %w", err)
	}
	closers = append(closers, chain.Close)

	scrubber, err := secrets.New(cfg.Redaction, zl.Named("secrets"))
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	ingestSvc, err := ingest.NewService(ingest.ConfigFromSettings(cfg.Ingest), ingest.Deps{
		Metadata:   meta,
		Objects:    objects,
		Extractor:  extraction.New(zl.Named("extraction")),
		Embedder:   embedder,
		Vectors:    vectors,
		Summarizer: llm,
		Scrubber:   scrubber,
		Reporter:   hooks,
		Logger:     zl.Named("ingest"),
	})
	if err != nil {
		return nil, err
	}

	answerSvc, err := answer.NewService(cfg.Retrieval.TopK, answer.Deps{
		Embedder:  embedder,
		Vectors:   vectors,
		Generator: llm,
		Prompts:   chain,
		Reporter:  hooks,
		Logger:    zl.Named("answer"),
	})
	if err != nil {
		return nil, err
	}

	checks := map[string]HealthCheck{
		"metadata": meta.Ping,
		"vectorstore": func(ctx context.Context) error {
			return vectorstore.Health(ctx, vectors)
		},
	}
	if publisher != nil {
		checks["events"] = publisher.Health
	}

	logger.Info(ctx, "services initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", cfg.Embeddings.Dimension),
		zap.Bool("events", publisher != nil),
		zap.Bool("redaction", scrubber.IsEnabled()),
	)

	return NewRegistry(Options{
		Ingester:    ingest.WithObservability(ingestSvc, hooks),
		Answerer:    answer.WithObservability(answerSvc, hooks),
		Metadata:    meta,
		VectorStore: vectors,
		Embedder:    embedder,
		Scrubber:    scrubber,
		Hooks:       hooks,
		Activities:  workflows.NewActivities(meta, llm),
		Checks:      checks,
		Closers:     closers,
	}), nil
}

// connectPostgres opens the shared pool when either store needs it.
func connectPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.Database.Driver != "postgres" && cfg.VectorStore.Provider != "pgvector" {
		return nil, nil
	}
	url := cfg.Database.URL.Value()
	if url == "" {
		return nil, errors.New("database.url is required for postgres and pgvector")
	}
	pool, err := metadata.ConnectPostgres(ctx, url, metadata.ConnectOptions{
		MaxConns:     cfg.Database.MaxConns,
		ConnectTries: cfg.Database.ConnectTries,
		ConnectDelay: cfg.Database.ConnectDelay.Duration(),
	}, logger.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return pool, nil
}
