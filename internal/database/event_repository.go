package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

// EventRepo implements domain.EventStore. It is the durable side of the
// event catalogue; the in-memory registry stays authoritative at runtime.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) ListActive(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, poll_interval_ms, is_paused, created_at
		 FROM events WHERE NOT is_deleted ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			ev     domain.Event
			pollMs int64
		)
		if err := rows.Scan(&ev.ID, &ev.Name, &pollMs, &ev.Paused, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.PollInterval = time.Duration(pollMs) * time.Millisecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *EventRepo) ListStreams(ctx context.Context, eventID string) ([]domain.Stream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_id, video_id, label, custom_title,
		        is_favorite, is_paused, is_disabled, failure_count, last_failure_at
		 FROM streams WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var out []domain.Stream
	for rows.Next() {
		var st domain.Stream
		if err := rows.Scan(&st.ID, &st.EventID, &st.VideoID, &st.Label, &st.CustomTitle,
			&st.Favorite, &st.Paused, &st.Disabled, &st.FailureCount, &st.LastFailureAt); err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *EventRepo) InsertEvent(ctx context.Context, ev domain.Event) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO events (id, name, poll_interval_ms, is_paused, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Name, ev.PollInterval.Milliseconds(), ev.Paused, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *EventRepo) UpdateEvent(ctx context.Context, ev domain.Event) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET name = $1, poll_interval_ms = $2, is_paused = $3
		 WHERE id = $4 AND NOT is_deleted`,
		ev.Name, ev.PollInterval.Milliseconds(), ev.Paused, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepo) SoftDeleteEvent(ctx context.Context, eventID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET is_deleted = TRUE, deleted_at = NOW() WHERE id = $1 AND NOT is_deleted`,
		eventID)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepo) InsertStream(ctx context.Context, st domain.Stream) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO streams (id, event_id, video_id, label, custom_title,
		                      is_favorite, is_paused, is_disabled, failure_count, last_failure_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		st.ID, st.EventID, st.VideoID, st.Label, st.CustomTitle,
		st.Favorite, st.Paused, st.Disabled, st.FailureCount, st.LastFailureAt)
	if err != nil {
		return fmt.Errorf("failed to insert stream: %w", err)
	}
	return nil
}

func (r *EventRepo) UpdateStream(ctx context.Context, st domain.Stream) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE streams SET video_id = $1, label = $2, custom_title = $3,
		        is_favorite = $4, is_paused = $5, is_disabled = $6,
		        failure_count = $7, last_failure_at = $8
		 WHERE id = $9 AND event_id = $10`,
		st.VideoID, st.Label, st.CustomTitle,
		st.Favorite, st.Paused, st.Disabled,
		st.FailureCount, st.LastFailureAt, st.ID, st.EventID)
	if err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (r *EventRepo) DeleteStream(ctx context.Context, eventID, streamID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM streams WHERE id = $1 AND event_id = $2`, streamID, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}
