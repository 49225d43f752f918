package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/bff/internal/client"
	"github.com/example/course-platform/services/bff/internal/watch"
)

// playerProxy stands in for the remote video element. Position and duration
// come from client-reported events; seek commands queue up for the next
// response.
type playerProxy struct {
	mu          sync.Mutex
	pos         float64
	duration    float64
	pendingSeek *float64
}

func (p *playerProxy) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *playerProxy) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *playerProxy) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = seconds
	v := seconds
	p.pendingSeek = &v
}

func (p *playerProxy) Release() {}

func (p *playerProxy) report(pos, duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos >= 0 {
		p.pos = pos
	}
	if duration > 0 {
		p.duration = duration
	}
}

// takeSeek returns and clears the queued seek command, if any.
func (p *playerProxy) takeSeek() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingSeek == nil {
		return 0, false
	}
	v := *p.pendingSeek
	p.pendingSeek = nil
	return v, true
}

// activityFetcher hydrates prior progress through the activity service with
// the caller's own token.
type activityFetcher struct {
	client *client.ActivityClient
	token  string
}

func (f activityFetcher) FetchProgress(ctx context.Context, lessonID uuid.UUID) (int, int, bool, error) {
	p, ok, err := f.client.GetProgress(ctx, f.token, lessonID)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	return p.LastWatchTime, p.MaxWatchTime, true, nil
}

// natsProgressSink writes watch time as an async event. The activity consumer
// applies it idempotently, so occasional reordering is tolerated.
type natsProgressSink struct {
	pub    *EventPublisher
	userID string
	proxy  *playerProxy
}

func (s natsProgressSink) SaveWatchTime(_ context.Context, lessonID uuid.UUID, last, max int) error {
	_, err := s.pub.PublishJSON(SubjectProgress, map[string]any{
		"user_id":          s.userID,
		"lesson_id":        lessonID.String(),
		"last_watch_time":  last,
		"max_watch_time":   max,
		"duration_seconds": int(s.proxy.Duration()),
		"client_ts_ms":     time.Now().UnixMilli(),
	})
	return err
}

// httpProgressSink is the synchronous fallback when NATS is absent.
type httpProgressSink struct {
	client *client.ActivityClient
	token  string
	proxy  *playerProxy
}

func (s httpProgressSink) SaveWatchTime(ctx context.Context, lessonID uuid.UUID, last, max int) error {
	return s.client.SaveWatchTime(ctx, s.token, client.SaveWatchTimeRequest{
		LessonID:        lessonID,
		LastWatchTime:   last,
		MaxWatchTime:    max,
		DurationSeconds: int(s.proxy.Duration()),
		ClientTsMs:      time.Now().UnixMilli(),
	})
}

// PlayerHandlers hosts watch sessions behind the player-session endpoints.
type PlayerHandlers struct {
	Manager   *watch.Manager
	Activity  *client.ActivityClient
	Events    *EventPublisher
	Analytics *analytics.Publisher
	Log       *zap.Logger

	mu      sync.Mutex
	proxies map[uuid.UUID]*playerProxy
}

func NewPlayerHandlers(m *watch.Manager, ac *client.ActivityClient, ev *EventPublisher, ap *analytics.Publisher, log *zap.Logger) *PlayerHandlers {
	return &PlayerHandlers{
		Manager:   m,
		Activity:  ac,
		Events:    ev,
		Analytics: ap,
		Log:       log,
		proxies:   make(map[uuid.UUID]*playerProxy),
	}
}

type openSessionPayload struct {
	LessonID    string  `json:"lesson_id"`
	IsCompleted bool    `json:"is_completed"`
	Duration    float64 `json:"duration"`
}

type openSessionResponse struct {
	SessionID     uuid.UUID `json:"session_id"`
	LastWatchTime float64   `json:"last_watch_time"`
	MaxWatchTime  float64   `json:"max_watch_time"`
}

// OpenSession handles POST /v1/player/sessions
func (h *PlayerHandlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return
	}

	var p openSessionPayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}

	// An absent lesson id is allowed: the session tracks in memory only.
	var lessonID uuid.UUID
	if raw := strings.TrimSpace(p.LessonID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.BadRequest(w, "INVALID_LESSON_ID", "lesson_id must be a UUID", rid, nil)
			return
		}
		lessonID = id
	}

	proxy := &playerProxy{duration: p.Duration}
	token := bearerToken(r)

	var sink watch.ProgressSink
	if h.Events.Enabled() {
		sink = natsProgressSink{pub: h.Events, userID: uid, proxy: proxy}
	} else if h.Activity != nil {
		sink = httpProgressSink{client: h.Activity, token: token, proxy: proxy}
	}

	var fetcher watch.ProgressFetcher
	if h.Activity != nil {
		fetcher = activityFetcher{client: h.Activity, token: token}
	}

	lid := lessonID
	session := watch.Open(r.Context(), watch.Options{
		LessonID:    lessonID,
		IsCompleted: p.IsCompleted,
		Fetcher:     fetcher,
		Sink:        sink,
		Logger:      h.Log,
		OnCompleted: func() {
			h.Analytics.Publish(analytics.SubjectLessonCompleted, "lesson_completed", uid, map[string]any{
				"lesson_id": lid.String(),
			})
		},
	})

	id := h.Manager.Add(session, uid)
	h.mu.Lock()
	h.proxies[id] = proxy
	h.mu.Unlock()

	h.Analytics.Publish(analytics.SubjectPlaybackStarted, "playback_started", uid, map[string]any{
		"lesson_id": lid.String(),
	})

	last, max := session.Progress()
	api.WriteJSON(w, http.StatusCreated, openSessionResponse{SessionID: id, LastWatchTime: last, MaxWatchTime: max})
}

type playerEventPayload struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
	Target   float64 `json:"target"`
	Duration float64 `json:"duration"`
}

type playerEventResponse struct {
	Position *float64 `json:"position,omitempty"`
	Clamped  bool     `json:"clamped,omitempty"`
	SeekTo   *float64 `json:"seek_to,omitempty"`
}

// SessionEvent handles POST /v1/player/sessions/{sessionID}/events
func (h *PlayerHandlers) SessionEvent(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "sessionID")))
	if err != nil {
		api.BadRequest(w, "INVALID_SESSION_ID", "session id must be a UUID", rid, nil)
		return
	}
	session, ok := h.Manager.Get(id, uid)
	if !ok {
		api.NotFound(w, "SESSION_NOT_FOUND", "player session not found", rid)
		return
	}
	h.mu.Lock()
	proxy := h.proxies[id]
	h.mu.Unlock()
	if proxy == nil {
		api.NotFound(w, "SESSION_NOT_FOUND", "player session not found", rid)
		return
	}

	var p playerEventPayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}
	proxy.report(p.Position, p.Duration)

	var resp playerEventResponse
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "ready":
		session.OnReady(proxy)
		if target, ok := proxy.takeSeek(); ok {
			resp.SeekTo = &target
		}
	case "play":
		session.OnPlay()
	case "pause":
		session.OnPause()
	case "timeupdate":
		session.OnTimeUpdate(p.Position)
	case "seeking":
		pos, clamped := session.OnSeeking(p.Target)
		resp.Position = &pos
		resp.Clamped = clamped
		proxy.takeSeek()
	case "ended":
		session.OnEnded()
	default:
		api.BadRequest(w, "INVALID_EVENT_TYPE", "unknown player event type", rid, nil)
		return
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// CloseSession handles DELETE /v1/player/sessions/{sessionID}
func (h *PlayerHandlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "sessionID")))
	if err != nil {
		api.BadRequest(w, "INVALID_SESSION_ID", "session id must be a UUID", rid, nil)
		return
	}
	if !h.Manager.Close(id, uid) {
		api.NotFound(w, "SESSION_NOT_FOUND", "player session not found", rid)
		return
	}
	h.mu.Lock()
	delete(h.proxies, id)
	h.mu.Unlock()
	api.NoContent(w)
}
