package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no progress record exists for a lesson.
var ErrNotFound = errors.New("progress not found")

// ProgressRecord is the internal representation of lesson watch progress.
// MaxWatchSeconds is the furthest position the learner has ever reached and
// only ever grows; LastWatchSeconds is the resume cursor.
type ProgressRecord struct {
	UserID           uuid.UUID
	LessonID         uuid.UUID
	LastWatchSeconds int
	MaxWatchSeconds  int
	DurationSeconds  int
	Completed        bool
	ClientTsMs       int64
	UpdatedAt        time.Time
}

// ProgressCursor is the decoded form of the opaque pagination cursor.
type ProgressCursor struct {
	UpdatedAt time.Time
	LessonID  uuid.UUID
}

// ProgressRepository defines persistence operations for watch progress.
type ProgressRepository interface {
	// Upsert inserts or updates progress. Stale writes (client_ts_ms <= existing)
	// are ignored, and max_watch_seconds never decreases regardless of the
	// incoming value. Returns the current (possibly unchanged) record.
	Upsert(ctx context.Context, r ProgressRecord) (ProgressRecord, error)
	// Get returns the record for one lesson, or ErrNotFound.
	Get(ctx context.Context, userID, lessonID uuid.UUID) (ProgressRecord, error)
	// List returns up to limit records ordered by updated_at DESC.
	// cursor, if non-nil, acts as an exclusive lower bound for keyset pagination.
	List(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error)
}

// completedThreshold is the watch ratio at which a lesson counts as completed.
const completedThreshold = 0.90

// Normalize clamps negative inputs and restores the record invariants:
// max >= last, and a watch ratio past the threshold marks completion.
func Normalize(r ProgressRecord) ProgressRecord {
	if r.LastWatchSeconds < 0 {
		r.LastWatchSeconds = 0
	}
	if r.MaxWatchSeconds < r.LastWatchSeconds {
		r.MaxWatchSeconds = r.LastWatchSeconds
	}
	if r.DurationSeconds < 0 {
		r.DurationSeconds = 0
	}
	if r.DurationSeconds > 0 &&
		float64(r.MaxWatchSeconds)/float64(r.DurationSeconds) >= completedThreshold {
		r.Completed = true
	}
	return r
}
