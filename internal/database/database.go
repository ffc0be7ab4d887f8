package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the pgx pool shared by the repository implementations in
// this package.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// PoolSettings sizes the connection pool. Zero values keep the pgx
// defaults.
type PoolSettings struct {
	MaxConns int32
	MinConns int32
}

// Connect opens a pool against databaseURL and verifies it with a ping
// before returning it.
func Connect(ctx context.Context, databaseURL string, ps PoolSettings, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if ps.MaxConns > 0 {
		cfg.MaxConns = ps.MaxConns
	}
	if ps.MinConns > 0 {
		cfg.MinConns = ps.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info().
		Str("database", redacted(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("connected to postgres")

	return &DB{Pool: pool, log: log}, nil
}

// HealthCheck pings the pool with a short deadline.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// Close releases the pool.
func (db *DB) Close() {
	db.Pool.Close()
	db.log.Debug().Msg("database pool closed")
}

// redacted strips the password from a connection URL for logging.
func redacted(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable url)"
	}
	return u.Redacted()
}
