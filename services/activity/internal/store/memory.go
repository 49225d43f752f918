package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryProgressRepository is a development-only in-memory implementation.
// It mirrors the Postgres semantics: stale writes are ignored and the
// high-water mark never regresses.
type InMemoryProgressRepository struct {
	mu      sync.RWMutex
	records map[string]ProgressRecord // user|lesson -> record
}

func NewInMemoryProgressRepository() *InMemoryProgressRepository {
	return &InMemoryProgressRepository{records: make(map[string]ProgressRecord)}
}

func key(userID, lessonID uuid.UUID) string {
	return userID.String() + "|" + lessonID.String()
}

func (s *InMemoryProgressRepository) Upsert(_ context.Context, rec ProgressRecord) (ProgressRecord, error) {
	rec = Normalize(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.UserID, rec.LessonID)
	cur, ok := s.records[k]
	if ok && rec.ClientTsMs < cur.ClientTsMs {
		// Stale write; keep current state.
		return cur, nil
	}
	if ok {
		if cur.MaxWatchSeconds > rec.MaxWatchSeconds {
			rec.MaxWatchSeconds = cur.MaxWatchSeconds
		}
		if cur.DurationSeconds > rec.DurationSeconds {
			rec.DurationSeconds = cur.DurationSeconds
		}
		rec.Completed = rec.Completed || cur.Completed
	}
	rec.UpdatedAt = time.Now().UTC()
	s.records[k] = rec
	return rec, nil
}

func (s *InMemoryProgressRepository) Get(_ context.Context, userID, lessonID uuid.UUID) (ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(userID, lessonID)]
	if !ok {
		return ProgressRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryProgressRepository) List(_ context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []ProgressRecord
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if cursor != nil && !beforeCursor(rec, cursor) {
			continue
		}
		all = append(all, rec)
	}

	// Lexicographic (updated_at, lesson_id) descending, same as the SQL
	// ORDER BY; the cursor is an exclusive upper bound on that pair.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return bytes.Compare(all[i].LessonID[:], all[j].LessonID[:]) > 0
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// beforeCursor reports whether rec sorts strictly below the cursor pair,
// the same row comparison Postgres runs: (updated_at, lesson_id) < (cursor).
// Timestamps compare at millisecond precision, matching the opaque cursor.
func beforeCursor(rec ProgressRecord, cursor *ProgressCursor) bool {
	rm, cm := rec.UpdatedAt.UnixMilli(), cursor.UpdatedAt.UnixMilli()
	if rm != cm {
		return rm < cm
	}
	return bytes.Compare(rec.LessonID[:], cursor.LessonID[:]) < 0
}
