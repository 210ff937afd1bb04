package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

// SampleRepo implements domain.SampleStore on PostgreSQL. Samples are
// append-only; nothing here mutates or deletes rows.
type SampleRepo struct {
	pool *pgxpool.Pool
}

func NewSampleRepo(pool *pgxpool.Pool) *SampleRepo {
	return &SampleRepo{pool: pool}
}

func (r *SampleRepo) AppendTotal(ctx context.Context, eventID string, ts time.Time, total int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO samples (event_id, ts, total) VALUES ($1, $2, $3)`,
		eventID, ts, total)
	if err != nil {
		return fmt.Errorf("failed to append total sample: %w", err)
	}
	return nil
}

func (r *SampleRepo) AppendStreamSample(ctx context.Context, eventID, streamID string, ts time.Time, viewers int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO stream_samples (event_id, stream_id, ts, concurrent_viewers) VALUES ($1, $2, $3, $4)`,
		eventID, streamID, ts, viewers)
	if err != nil {
		return fmt.Errorf("failed to append stream sample: %w", err)
	}
	return nil
}

func (r *SampleRepo) TotalsSince(ctx context.Context, eventID string, since time.Time, limit int) ([]domain.SamplePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ts, total FROM samples WHERE event_id = $1 AND ts > $2 ORDER BY ts LIMIT $3`,
		eventID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	return scanSamplePoints(rows)
}

func (r *SampleRepo) TotalsBetween(ctx context.Context, eventID string, from, to time.Time, limit int) ([]domain.SamplePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ts, total FROM samples WHERE event_id = $1 AND ts BETWEEN $2 AND $3 ORDER BY ts LIMIT $4`,
		eventID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	return scanSamplePoints(rows)
}

func (r *SampleRepo) StreamSamplesSince(ctx context.Context, eventID string, since time.Time, limit int) ([]domain.StreamSamplePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ts, stream_id, concurrent_viewers FROM stream_samples
		 WHERE event_id = $1 AND ts > $2 ORDER BY ts LIMIT $3`,
		eventID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream samples: %w", err)
	}
	return scanStreamSamplePoints(rows)
}

func (r *SampleRepo) StreamSamplesBetween(ctx context.Context, eventID string, from, to time.Time, limit int) ([]domain.StreamSamplePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ts, stream_id, concurrent_viewers FROM stream_samples
		 WHERE event_id = $1 AND ts BETWEEN $2 AND $3 ORDER BY ts LIMIT $4`,
		eventID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream samples: %w", err)
	}
	return scanStreamSamplePoints(rows)
}

func (r *SampleRepo) StreamSamplesForStream(ctx context.Context, eventID, streamID string, since time.Time, limit int) ([]domain.StreamSamplePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ts, stream_id, concurrent_viewers FROM stream_samples
		 WHERE event_id = $1 AND stream_id = $2 AND ts > $3 ORDER BY ts LIMIT $4`,
		eventID, streamID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream samples: %w", err)
	}
	return scanStreamSamplePoints(rows)
}

func scanSamplePoints(rows pgx.Rows) ([]domain.SamplePoint, error) {
	defer rows.Close()
	var out []domain.SamplePoint
	for rows.Next() {
		var p domain.SamplePoint
		if err := rows.Scan(&p.Ts, &p.Total); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanStreamSamplePoints(rows pgx.Rows) ([]domain.StreamSamplePoint, error) {
	defer rows.Close()
	var out []domain.StreamSamplePoint
	for rows.Next() {
		var p domain.StreamSamplePoint
		if err := rows.Scan(&p.Ts, &p.StreamID, &p.Viewers); err != nil {
			return nil, fmt.Errorf("failed to scan stream sample: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
