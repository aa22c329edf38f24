// Package postgres is the durable store: lots, orders, reservation rows,
// stock adjustments and the transactional outbox share one database so the
// engine commits them atomically.
package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.Storage("postgres.connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Storage("postgres.ping", err)
	}
	return pool, nil
}
