package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// RunMigrations applies the schema. Statements are idempotent so running
// them at every startup is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			poll_interval_ms BIGINT NOT NULL,
			is_paused BOOLEAN NOT NULL DEFAULT FALSE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			video_id TEXT NOT NULL,
			label TEXT NOT NULL,
			custom_title TEXT NOT NULL DEFAULT '',
			is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
			is_paused BOOLEAN NOT NULL DEFAULT FALSE,
			is_disabled BOOLEAN NOT NULL DEFAULT FALSE,
			failure_count INT NOT NULL DEFAULT 0,
			last_failure_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_event_id ON streams(event_id)`,
		`CREATE TABLE IF NOT EXISTS samples (
			event_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			total BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_event_ts ON samples(event_id, ts)`,
		`CREATE TABLE IF NOT EXISTS stream_samples (
			event_id TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			concurrent_viewers BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_samples_event_ts ON stream_samples(event_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_samples_stream_ts ON stream_samples(event_id, stream_id, ts)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations completed")
	return nil
}
