package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

type factoryOptions struct {
	pool  *pgxpool.Pool
	retry RetryConfig
}

// Option configures NewStore.
type Option func(*factoryOptions)

// WithPool supplies a shared Postgres pool for the pgvector provider.
// The returned store does not close it.
func WithPool(pool *pgxpool.Pool) Option {
	return func(o *factoryOptions) { o.pool = pool }
}

// WithRetry overrides the query retry policy of remote providers.
func WithRetry(cfg RetryConfig) Option {
	return func(o *factoryOptions) { o.retry = cfg }
}

// NewStore builds the configured backend and wraps it with a dimension
// guard and metrics. Supported providers are chromem (default), qdrant and pgvector.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, dim int, logger *zap.Logger, opts ...Option) (Store, error) {
	o := factoryOptions{retry: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "chromem"
	}

	var (
		store Store
		err   error
	)
	switch provider {
	case "chromem":
		store, err = NewChromemStore(ChromemConfig{
			Path:           cfg.ChromemPath,
			Compress:       cfg.ChromemCompress,
			CollectionName: cfg.Collection,
			VectorSize:     dim,
		}, logger.Named("chromem"))

	case "qdrant":
		store, err = NewQdrantStore(ctx, QdrantConfig{
			Host:           cfg.QdrantHost,
			Port:           cfg.QdrantPort,
			APIKey:         cfg.QdrantAPIKey.Value(),
			UseTLS:         cfg.QdrantUseTLS,
			CollectionName: cfg.Collection,
			VectorSize:     uint64(dim),
			Retry:          o.retry,
		}, logger.Named("qdrant"))

	case "pgvector":
		store, err = NewPGVectorStore(o.pool, false, PGVectorConfig{
			Table:      DefaultPGVectorTable,
			VectorSize: dim,
			Retry:      o.retry,
		}, logger.Named("pgvector"))

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant, pgvector)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(NewGuard(store, dim), provider), nil
}
