package db

import (
	"context"
	"fmt"
	"time"

	"github.com/fiemcasals/controlador/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTimeout = 5 * time.Second

var (
	newPoolFn  = pgxpool.NewWithConfig
	pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

// ConnectPostgres opens the trajectory store pool and checks it answers
// within POSTGRES_CONNECT_TIMEOUT.
func ConnectPostgres(cfg config.Config) (*pgxpool.Pool, error) {
	timeout := cfg.PostgresConnectTimeout
	if timeout <= 0 {
		timeout = defaultPostgresTimeout
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	poolCfg.ConnConfig.ConnectTimeout = timeout

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := newPoolFn(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pingPoolFn(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
