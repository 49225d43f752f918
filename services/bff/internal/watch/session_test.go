package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakePlayer struct {
	mu       sync.Mutex
	pos      float64
	duration float64
	seeks    []float64
	released bool
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) Duration() float64 { return p.duration }

func (p *fakePlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = seconds
	p.seeks = append(p.seeks, seconds)
}

func (p *fakePlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

func (p *fakePlayer) setPos(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = v
}

type save struct {
	last, max int
}

type fakeSink struct {
	mu    sync.Mutex
	saves []save
	err   error
}

func (s *fakeSink) SaveWatchTime(_ context.Context, _ uuid.UUID, last, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, save{last, max})
	return nil
}

func (s *fakeSink) all() []save {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]save, len(s.saves))
	copy(out, s.saves)
	return out
}

type fakeFetcher struct {
	last, max int
	ok        bool
	err       error
}

func (f *fakeFetcher) FetchProgress(context.Context, uuid.UUID) (int, int, bool, error) {
	return f.last, f.max, f.ok, f.err
}

func TestHighWaterMarkNeverDecreases(t *testing.T) {
	s := Open(context.Background(), Options{LessonID: uuid.New()})

	for _, pos := range []float64{5, 12, 8, 30, 2, 29} {
		s.OnTimeUpdate(pos)
	}
	last, max := s.Progress()
	if last != 29 {
		t.Fatalf("last = %v, want 29", last)
	}
	if max != 30 {
		t.Fatalf("max = %v, want 30", max)
	}
}

func TestHydrateSeedsHighWaterMark(t *testing.T) {
	s := Open(context.Background(), Options{
		LessonID: uuid.New(),
		Fetcher:  &fakeFetcher{last: 40, max: 90, ok: true},
	})
	s.OnTimeUpdate(50)
	_, max := s.Progress()
	if max != 90 {
		t.Fatalf("max = %v, want hydrated 90", max)
	}
}

func TestHydrateFailureIsFailOpen(t *testing.T) {
	s := Open(context.Background(), Options{
		LessonID: uuid.New(),
		Fetcher:  &fakeFetcher{err: errors.New("store down")},
	})
	last, max := s.Progress()
	if last != 0 || max != 0 {
		t.Fatalf("expected zeroed session, got (%v,%v)", last, max)
	}
}

func TestSeekClampedBeyondHighWaterMark(t *testing.T) {
	p := &fakePlayer{duration: 600}
	s := Open(context.Background(), Options{LessonID: uuid.New()})
	s.OnReady(p)
	s.OnTimeUpdate(100)

	got, clamped := s.OnSeeking(250)
	if !clamped || got != 100 {
		t.Fatalf("OnSeeking(250) = (%v,%v), want (100,true)", got, clamped)
	}
	if len(p.seeks) == 0 || p.seeks[len(p.seeks)-1] != 100 {
		t.Fatalf("expected player forced back to 100, seeks %v", p.seeks)
	}

	got, clamped = s.OnSeeking(50)
	if clamped || got != 50 {
		t.Fatalf("backward seek should pass through, got (%v,%v)", got, clamped)
	}
}

func TestSeekUnrestrictedWhenCompleted(t *testing.T) {
	s := Open(context.Background(), Options{LessonID: uuid.New(), IsCompleted: true})
	s.OnTimeUpdate(10)

	got, clamped := s.OnSeeking(500)
	if clamped || got != 500 {
		t.Fatalf("completed lesson seek = (%v,%v), want (500,false)", got, clamped)
	}
}

func TestOnEndedPersistsFullDuration(t *testing.T) {
	p := &fakePlayer{duration: 300}
	sink := &fakeSink{}
	var completedCalled bool
	s := Open(context.Background(), Options{
		LessonID:    uuid.New(),
		Sink:        sink,
		OnCompleted: func() { completedCalled = true },
	})
	s.OnReady(p)
	s.OnTimeUpdate(123.7)

	s.OnEnded()

	saves := sink.all()
	if len(saves) != 1 || saves[0] != (save{300, 300}) {
		t.Fatalf("expected single (300,300) save, got %v", saves)
	}
	if !completedCalled {
		t.Fatal("OnCompleted callback not invoked")
	}
	if !s.Completed() {
		t.Fatal("session should be completed after ended")
	}
	if got, clamped := s.OnSeeking(10); clamped || got != 10 {
		t.Fatalf("post-ended seek should be free, got (%v,%v)", got, clamped)
	}
}

func TestResumeSeekOnReady(t *testing.T) {
	p := &fakePlayer{duration: 600}
	s := Open(context.Background(), Options{
		LessonID: uuid.New(),
		Fetcher:  &fakeFetcher{last: 45, max: 80, ok: true},
	})
	s.OnReady(p)
	if len(p.seeks) != 1 || p.seeks[0] != 45 {
		t.Fatalf("expected resume seek to 45, got %v", p.seeks)
	}
}

func TestPeriodicFlushThenPause(t *testing.T) {
	p := &fakePlayer{duration: 600}
	sink := &fakeSink{}
	s := Open(context.Background(), Options{
		LessonID:      uuid.New(),
		Sink:          sink,
		FlushInterval: 15 * time.Millisecond,
	})
	s.OnReady(p)

	s.OnPlay()
	for i := 1; i <= 5; i++ {
		p.setPos(float64(i * 5))
		time.Sleep(16 * time.Millisecond)
	}
	p.setPos(25)
	s.OnPause()

	saves := sink.all()
	if len(saves) < 3 {
		t.Fatalf("expected periodic saves plus pause save, got %d: %v", len(saves), saves)
	}
	for i := 1; i < len(saves); i++ {
		if saves[i].max < saves[i-1].max {
			t.Fatalf("persisted max regressed at %d: %v", i, saves)
		}
	}
	final := saves[len(saves)-1]
	if final != (save{25, 25}) {
		t.Fatalf("pause save = %v, want {25 25}", final)
	}

	// Pause stopped the task; no further saves should arrive.
	n := len(saves)
	time.Sleep(40 * time.Millisecond)
	if got := len(sink.all()); got != n {
		t.Fatalf("flush task survived pause: %d -> %d saves", n, got)
	}
}

func TestCloseIsIdempotentAndReleasesPlayer(t *testing.T) {
	p := &fakePlayer{duration: 600}
	sink := &fakeSink{}
	s := Open(context.Background(), Options{LessonID: uuid.New(), Sink: sink})
	s.OnReady(p)
	p.setPos(42)

	s.Close()
	s.Close()

	if !p.released {
		t.Fatal("player not released on close")
	}
	saves := sink.all()
	if len(saves) != 1 || saves[0] != (save{42, 42}) {
		t.Fatalf("expected single final save {42 42}, got %v", saves)
	}
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("activity down")}
	s := Open(context.Background(), Options{LessonID: uuid.New(), Sink: sink})
	s.OnTimeUpdate(10)
	s.OnPause()

	last, max := s.Progress()
	if last != 10 || max != 10 {
		t.Fatalf("in-memory state disturbed by persist failure: (%v,%v)", last, max)
	}
}

func TestNoLessonIDPersistsNothing(t *testing.T) {
	sink := &fakeSink{}
	s := Open(context.Background(), Options{Sink: sink})
	s.OnTimeUpdate(99)
	s.OnPause()
	s.Close()

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("expected no saves without lesson id, got %v", got)
	}
}
