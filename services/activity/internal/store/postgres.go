package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProgressRepository is the production Postgres-backed implementation.
type PostgresProgressRepository struct {
	db *pgxpool.Pool
}

func NewPostgresProgressRepository(db *pgxpool.Pool) *PostgresProgressRepository {
	return &PostgresProgressRepository{db: db}
}

func (r *PostgresProgressRepository) Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	rec = Normalize(rec)

	q := `
INSERT INTO user_lesson_progress (user_id, lesson_id, last_watch_seconds, max_watch_seconds, duration_seconds, completed, client_ts_ms, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, lesson_id)
DO UPDATE SET
  last_watch_seconds = EXCLUDED.last_watch_seconds,
  max_watch_seconds  = GREATEST(user_lesson_progress.max_watch_seconds, EXCLUDED.max_watch_seconds),
  duration_seconds   = GREATEST(user_lesson_progress.duration_seconds, EXCLUDED.duration_seconds),
  completed          = user_lesson_progress.completed OR EXCLUDED.completed,
  client_ts_ms       = EXCLUDED.client_ts_ms,
  updated_at         = EXCLUDED.updated_at
WHERE user_lesson_progress.client_ts_ms <= EXCLUDED.client_ts_ms
RETURNING last_watch_seconds, max_watch_seconds, duration_seconds, completed, client_ts_ms, updated_at`

	var out ProgressRecord
	out.UserID = rec.UserID
	out.LessonID = rec.LessonID

	err := r.db.QueryRow(ctx, q,
		rec.UserID, rec.LessonID, rec.LastWatchSeconds, rec.MaxWatchSeconds,
		rec.DurationSeconds, rec.Completed, rec.ClientTsMs, time.Now().UTC(),
	).Scan(&out.LastWatchSeconds, &out.MaxWatchSeconds, &out.DurationSeconds, &out.Completed, &out.ClientTsMs, &out.UpdatedAt)

	if err != nil {
		// WHERE clause blocked a stale write; return current state instead.
		if errors.Is(err, pgx.ErrNoRows) {
			return r.Get(ctx, rec.UserID, rec.LessonID)
		}
		return ProgressRecord{}, fmt.Errorf("progress upsert: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) Get(ctx context.Context, userID, lessonID uuid.UUID) (ProgressRecord, error) {
	q := `SELECT last_watch_seconds, max_watch_seconds, duration_seconds, completed, client_ts_ms, updated_at
	      FROM user_lesson_progress WHERE user_id=$1 AND lesson_id=$2`
	var out ProgressRecord
	out.UserID = userID
	out.LessonID = lessonID
	err := r.db.QueryRow(ctx, q, userID, lessonID).
		Scan(&out.LastWatchSeconds, &out.MaxWatchSeconds, &out.DurationSeconds, &out.Completed, &out.ClientTsMs, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressRecord{}, ErrNotFound
		}
		return ProgressRecord{}, fmt.Errorf("progress get: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) List(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	q := `SELECT lesson_id, last_watch_seconds, max_watch_seconds, duration_seconds, completed, client_ts_ms, updated_at
	      FROM user_lesson_progress WHERE user_id=$1`
	args := []any{userID}

	if cursor != nil {
		q += " AND (updated_at, lesson_id) < (to_timestamp($2 / 1000.0), $3)"
		args = append(args, cursor.UpdatedAt.UnixMilli(), cursor.LessonID)
	}
	q += " ORDER BY updated_at DESC, lesson_id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("progress list: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		var rec ProgressRecord
		rec.UserID = userID
		if err := rows.Scan(&rec.LessonID, &rec.LastWatchSeconds, &rec.MaxWatchSeconds, &rec.DurationSeconds, &rec.Completed, &rec.ClientTsMs, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("progress list scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
