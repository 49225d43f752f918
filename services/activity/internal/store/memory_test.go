package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInMemoryProgress_UpsertAndGet(t *testing.T) {
	s := NewInMemoryProgressRepository()
	ctx := context.Background()
	user, lesson := uuid.New(), uuid.New()

	rec, err := s.Upsert(ctx, ProgressRecord{
		UserID: user, LessonID: lesson,
		LastWatchSeconds: 25, MaxWatchSeconds: 30, DurationSeconds: 300, ClientTsMs: 1000,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.MaxWatchSeconds != 30 {
		t.Fatalf("expected max 30, got %d", rec.MaxWatchSeconds)
	}

	got, err := s.Get(ctx, user, lesson)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastWatchSeconds != 25 {
		t.Fatalf("expected last 25, got %d", got.LastWatchSeconds)
	}
}

func TestInMemoryProgress_Get_NotFound(t *testing.T) {
	s := NewInMemoryProgressRepository()
	_, err := s.Get(context.Background(), uuid.New(), uuid.New())
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryProgress_MaxNeverDecreases(t *testing.T) {
	s := NewInMemoryProgressRepository()
	ctx := context.Background()
	user, lesson := uuid.New(), uuid.New()

	_, _ = s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: lesson, LastWatchSeconds: 100, MaxWatchSeconds: 100, DurationSeconds: 300, ClientTsMs: 1000})

	// Rewinding the cursor lowers last but must not lower max.
	rec, err := s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: lesson, LastWatchSeconds: 10, MaxWatchSeconds: 10, DurationSeconds: 300, ClientTsMs: 2000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.LastWatchSeconds != 10 {
		t.Fatalf("expected last 10, got %d", rec.LastWatchSeconds)
	}
	if rec.MaxWatchSeconds != 100 {
		t.Fatalf("expected max to hold at 100, got %d", rec.MaxWatchSeconds)
	}
}

func TestInMemoryProgress_StaleWriteIgnored(t *testing.T) {
	s := NewInMemoryProgressRepository()
	ctx := context.Background()
	user, lesson := uuid.New(), uuid.New()

	_, _ = s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: lesson, LastWatchSeconds: 50, MaxWatchSeconds: 50, ClientTsMs: 2000})

	rec, err := s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: lesson, LastWatchSeconds: 10, MaxWatchSeconds: 10, ClientTsMs: 1000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.LastWatchSeconds != 50 {
		t.Fatalf("stale write applied: expected last 50, got %d", rec.LastWatchSeconds)
	}
}

func TestInMemoryProgress_CompletedIsSticky(t *testing.T) {
	s := NewInMemoryProgressRepository()
	ctx := context.Background()
	user, lesson := uuid.New(), uuid.New()

	// Finished the lesson: duration flush marks it completed.
	rec, _ := s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: lesson, LastWatchSeconds: 300, MaxWatchSeconds: 300, DurationSeconds: 300, ClientTsMs: 1000})
	if !rec.Completed {
		t.Fatal("expected completed after full watch")
	}

	// A later rewatch from the start must not clear completion.
	rec, _ = s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: lesson, LastWatchSeconds: 5, MaxWatchSeconds: 5, DurationSeconds: 300, ClientTsMs: 2000})
	if !rec.Completed {
		t.Fatal("expected completed to stay true")
	}
}

func TestNormalize_MaxAtLeastLast(t *testing.T) {
	rec := Normalize(ProgressRecord{LastWatchSeconds: 42, MaxWatchSeconds: 10})
	if rec.MaxWatchSeconds != 42 {
		t.Fatalf("expected max raised to 42, got %d", rec.MaxWatchSeconds)
	}
}

func TestInMemoryProgress_ListOrdersByRecency(t *testing.T) {
	s := NewInMemoryProgressRepository()
	ctx := context.Background()
	user := uuid.New()

	l1, l2 := uuid.New(), uuid.New()
	_, _ = s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: l1, LastWatchSeconds: 10, MaxWatchSeconds: 10, ClientTsMs: 1})
	_, _ = s.Upsert(ctx, ProgressRecord{UserID: user, LessonID: l2, LastWatchSeconds: 20, MaxWatchSeconds: 20, ClientTsMs: 2})

	out, err := s.List(ctx, user, 10, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].UpdatedAt.Before(out[1].UpdatedAt) {
		t.Fatal("expected most recent first")
	}
}

func TestInMemoryProgress_ListPaginatesWithoutRepeats(t *testing.T) {
	s := NewInMemoryProgressRepository()
	user := uuid.New()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// The newest record carries the lowest-sorting lesson id so a cursor
	// filter comparing the fields independently would return it twice.
	lessons := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
	}
	for i, l := range lessons {
		s.records[key(user, l)] = ProgressRecord{
			UserID: user, LessonID: l,
			LastWatchSeconds: 10, MaxWatchSeconds: 10, DurationSeconds: 100,
			UpdatedAt: base.Add(time.Duration(len(lessons)-i) * time.Minute),
		}
	}

	ctx := context.Background()
	page1, err := s.List(ctx, user, 2, nil)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 2 || page1[0].LessonID != lessons[0] || page1[1].LessonID != lessons[1] {
		t.Fatalf("page 1 = %v", page1)
	}

	last := page1[len(page1)-1]
	page2, err := s.List(ctx, user, 2, &ProgressCursor{UpdatedAt: last.UpdatedAt, LessonID: last.LessonID})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].LessonID != lessons[2] {
		t.Fatalf("page 2 = %v, want only %s", page2, lessons[2])
	}
}
