// Package watch tracks how far a learner has watched a lesson and enforces
// the anti-skip rule: seeking past the furthest position ever reached is
// clamped unless the lesson is already completed. Progress persistence is
// best-effort telemetry and never blocks playback.
package watch

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultFlushInterval = 10 * time.Second

// Player is the host-side handle for the remote video element. The session
// issues seek commands through it and samples the playback cursor from it.
type Player interface {
	Position() float64
	Duration() float64
	Seek(seconds float64)
	Release()
}

// ProgressFetcher loads prior progress for a lesson. ok=false means the
// lesson has never been watched.
type ProgressFetcher interface {
	FetchProgress(ctx context.Context, lessonID uuid.UUID) (last, max int, ok bool, err error)
}

// ProgressSink persists watch positions. Implementations must treat the call
// as an idempotent overwrite, not an accumulator.
type ProgressSink interface {
	SaveWatchTime(ctx context.Context, lessonID uuid.UUID, last, max int) error
}

type Options struct {
	// LessonID keys the persisted record. uuid.Nil disables persistence
	// entirely; the session still tracks state in memory.
	LessonID    uuid.UUID
	IsCompleted bool
	OnCompleted func()

	// FlushInterval is the periodic persist cadence while playing.
	FlushInterval time.Duration

	Fetcher ProgressFetcher
	Sink    ProgressSink
	Logger  *zap.Logger
}

// Session owns playback-position state for one player mount.
type Session struct {
	mu sync.Mutex

	lessonID    uuid.UUID
	completed   bool
	onCompleted func()
	interval    time.Duration

	last float64
	max  float64

	player Player
	flush  *flushTask

	sink   ProgressSink
	log    *zap.Logger
	closed bool
}

// Open creates a session, hydrating prior progress when a lesson id and
// fetcher are present. A fetch failure is logged and treated as no prior
// progress; playback is never blocked by the progress store.
func Open(ctx context.Context, opts Options) *Session {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Session{
		lessonID:    opts.LessonID,
		completed:   opts.IsCompleted,
		onCompleted: opts.OnCompleted,
		interval:    opts.FlushInterval,
		sink:        opts.Sink,
		log:         opts.Logger,
	}

	if opts.LessonID != uuid.Nil && opts.Fetcher != nil {
		last, max, ok, err := opts.Fetcher.FetchProgress(ctx, opts.LessonID)
		if err != nil {
			s.log.Warn("progress fetch failed, starting from zero",
				zap.String("lesson_id", opts.LessonID.String()), zap.Error(err))
		} else if ok {
			s.last = float64(last)
			s.max = float64(max)
			if s.max < s.last {
				s.max = s.last
			}
		}
	}
	return s
}

// OnReady attaches the player and resumes from the last known position.
func (s *Session) OnReady(p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.player = p
	if s.last > 0 {
		p.Seek(s.last)
	}
}

// OnPlay starts the periodic flush task. Only one task is ever outstanding;
// starting play cancels any prior one first.
func (s *Session) OnPlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.flush != nil {
		s.flush.cancel()
	}
	s.flush = startFlushTask(s.interval, s.tick)
}

// OnPause samples the cursor, persists immediately and stops the flush task.
func (s *Session) OnPause() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopFlushLocked()
	s.sampleLocked()
	last, max := s.last, s.max
	s.mu.Unlock()

	s.persist(last, max)
}

// OnTimeUpdate raises the in-memory high-water mark on every position event,
// so the mark stays accurate between periodic persists.
func (s *Session) OnTimeUpdate(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = pos
	if pos > s.max {
		s.max = pos
	}
}

// OnSeeking clamps a forward seek past the high-water mark unless the lesson
// is completed. It returns the final position and whether it was clamped.
func (s *Session) OnSeeking(target float64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.completed || target <= s.max {
		return target, false
	}
	if s.player != nil {
		s.player.Seek(s.max)
	}
	return s.max, true
}

// OnEnded records the lesson as fully watched. Duration is persisted for both
// values so timer granularity can never undercount a finished lesson.
func (s *Session) OnEnded() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopFlushLocked()
	d := s.max
	if s.player != nil {
		d = s.player.Duration()
	}
	s.last, s.max = d, d
	s.completed = true
	cb := s.onCompleted
	s.mu.Unlock()

	s.persist(d, d)
	if cb != nil {
		cb()
	}
}

// Close performs the final best-effort persist, cancels the flush task and
// releases the player. It is idempotent and safe on every exit path.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopFlushLocked()
	s.sampleLocked()
	last, max := s.last, s.max
	p := s.player
	s.player = nil
	s.mu.Unlock()

	s.persist(last, max)
	if p != nil {
		p.Release()
	}
}

// Progress returns the current in-memory cursor and high-water mark.
func (s *Session) Progress() (last, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.max
}

// Completed reports whether seek limiting is lifted.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *Session) tick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.sampleLocked()
	last, max := s.last, s.max
	s.mu.Unlock()

	s.persist(last, max)
}

func (s *Session) sampleLocked() {
	if s.player == nil {
		return
	}
	pos := s.player.Position()
	if pos > 0 {
		s.last = pos
	}
	if s.last > s.max {
		s.max = s.last
	}
}

func (s *Session) stopFlushLocked() {
	if s.flush != nil {
		s.flush.cancel()
		s.flush = nil
	}
}

// persist floors both values to whole seconds and writes them through the
// sink. Failures are logged only; progress is telemetry, never a blocker.
func (s *Session) persist(last, max float64) {
	if s.lessonID == uuid.Nil || s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.sink.SaveWatchTime(ctx, s.lessonID, int(math.Floor(last)), int(math.Floor(max)))
	if err != nil {
		s.log.Warn("watch time save failed",
			zap.String("lesson_id", s.lessonID.String()), zap.Error(err))
	}
}

// flushTask is the single scheduled persistence task owned by a session.
type flushTask struct {
	stop chan struct{}
	once sync.Once
}

func startFlushTask(interval time.Duration, fn func()) *flushTask {
	t := &flushTask{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return t
}

func (t *flushTask) cancel() {
	t.once.Do(func() { close(t.stop) })
}
