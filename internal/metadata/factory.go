package metadata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

// Open builds the configured Store. The postgres driver runs on pool, which
// the caller owns and closes.
func Open(ctx context.Context, cfg config.DatabaseConfig, pool *pgxpool.Pool) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres metadata store requires a connection pool")
		}
		return NewPostgresStore(ctx, pool, false)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, postgres)", cfg.Driver)
	}
}
