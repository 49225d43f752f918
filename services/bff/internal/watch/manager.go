package watch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultIdleTTL = 10 * time.Minute

// Manager tracks live sessions by id and reaps abandoned ones, so the final
// persist and player release run even when the client never says goodbye.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	idleTTL  time.Duration
	log      *zap.Logger
}

type entry struct {
	session  *Session
	owner    string
	lastSeen time.Time
}

func NewManager(idleTTL time.Duration, log *zap.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*entry),
		idleTTL:  idleTTL,
		log:      log,
	}
}

// Add registers a session for the owning user and returns its id.
func (m *Manager) Add(s *Session, owner string) uuid.UUID {
	id := uuid.New()
	m.mu.Lock()
	m.sessions[id] = &entry{session: s, owner: owner, lastSeen: time.Now()}
	m.mu.Unlock()
	return id
}

// Get returns the session and refreshes its idle deadline. A caller who is
// not the owner sees the same not-found as a missing id.
func (m *Manager) Get(id uuid.UUID, owner string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.owner != owner {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.session, true
}

// Close removes the owner's session and runs its teardown.
func (m *Manager) Close(id uuid.UUID, owner string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok && e.owner != owner {
		ok = false
	} else if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.session.Close()
	return true
}

// Run reaps idle sessions until ctx is done, then closes whatever remains.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.idleTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	cutoff := time.Now().Add(-m.idleTTL)

	m.mu.Lock()
	var stale []*Session
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.session)
			delete(m.sessions, id)
			m.log.Info("reaping idle player session", zap.String("session_id", id.String()))
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e.session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
