package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	platformconfig "github.com/example/course-platform/internal/platform/config"
)

// ProgressEvent is the payload published by the BFF for lesson watch progress.
type ProgressEvent struct {
	EventID         string `json:"event_id"`
	UserID          string `json:"user_id"`
	LessonID        string `json:"lesson_id"`
	LastWatchTime   int    `json:"last_watch_time"`
	MaxWatchTime    int    `json:"max_watch_time"`
	DurationSeconds int    `json:"duration_seconds"`
	ClientTsMs      int64  `json:"client_ts_ms"`
	CreatedAt       string `json:"created_at"`
}

// StartProgressConsumer subscribes to activity.progress and applies idempotent
// upserts to the DB in batches. Each batch is one transaction; a failed batch
// is nak'd and redelivered.
func StartProgressConsumer(ctx context.Context, nc *nats.Conn, pool *pgxpool.Pool, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("progress consumer: jetstream", zap.Error(err))
		return
	}

	if err := ensureStream(js); err != nil {
		log.Error("progress consumer: ensure stream", zap.Error(err))
		return
	}

	sub, err := js.PullSubscribe("activity.progress", "activity_progress")
	if err != nil {
		log.Error("progress consumer: subscribe", zap.Error(err))
		return
	}

	go func() {
		batchSize := platformconfig.EnvInt("WORKER_BATCH_SIZE", 100)
		maxWait := platformconfig.EnvDuration("WORKER_BATCH_INTERVAL", 2*time.Second)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(batchSize, nats.MaxWait(maxWait))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				log.Warn("progress consumer: fetch", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			if len(msgs) == 0 {
				continue
			}

			if err := applyBatch(ctx, pool, msgs, log); err != nil {
				log.Warn("progress consumer: batch failed", zap.Error(err))
				nakAll(msgs, log)
				continue
			}
			for _, m := range msgs {
				if err := m.Ack(); err != nil {
					log.Warn("progress consumer: ack", zap.Error(err))
				}
			}
		}
	}()
}

// ensureStream provisions ACTIVITY_EVENTS so pull consumers can bind before
// the first publish arrives.
func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo("ACTIVITY_EVENTS")
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "ACTIVITY_EVENTS",
		Subjects: []string{"activity.>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	return err
}

func applyBatch(ctx context.Context, pool *pgxpool.Pool, msgs []*nats.Msg, log *zap.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range msgs {
		var ev ProgressEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			// Poison message: record and move on rather than wedging the batch.
			log.Warn("progress consumer: invalid json, skipping", zap.Error(err))
			continue
		}

		ct, err := tx.Exec(ctx,
			`INSERT INTO processed_events (event_id, subject, created_at, payload)
			 VALUES ($1,$2,$3,$4) ON CONFLICT (event_id) DO NOTHING`,
			ev.EventID, "activity.progress", ev.CreatedAt, m.Data)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			// Already processed; skip.
			continue
		}

		if err := applyProgressUpsert(ctx, tx, &ev); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// applyProgressUpsert runs the idempotent upsert into user_lesson_progress.
// The high-water mark never regresses and completion is sticky.
func applyProgressUpsert(ctx context.Context, tx pgx.Tx, ev *ProgressEvent) error {
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
WHERE user_lesson_progress.client_ts_ms <= EXCLUDED.client_ts_ms;
`
	last := ev.LastWatchTime
	if last < 0 {
		last = 0
	}
	maxW := ev.MaxWatchTime
	if maxW < last {
		maxW = last
	}
	dur := ev.DurationSeconds
	if dur < 0 {
		dur = 0
	}
	completed := dur > 0 && float64(maxW)/float64(dur) >= 0.90
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, q, ev.UserID, ev.LessonID, last, maxW, dur, completed, ev.ClientTsMs, now)
	return err
}

func nakAll(msgs []*nats.Msg, log *zap.Logger) {
	for _, m := range msgs {
		if err := m.Nak(); err != nil {
			log.Warn("progress consumer: nak", zap.Error(err))
		}
	}
}
