package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/bff/internal/client"
)

// ProgressHandlers proxies the lesson-progress surface. Writes prefer the
// async event path and fall back to a synchronous call when NATS is absent.
type ProgressHandlers struct {
	Activity *client.ActivityClient
	Events   *EventPublisher
	Log      *zap.Logger
}

type watchTimePayload struct {
	LessonID        string `json:"lesson_id"`
	LastWatchTime   int    `json:"last_watch_time"`
	MaxWatchTime    int    `json:"max_watch_time"`
	DurationSeconds int    `json:"duration_seconds"`
	ClientTsMs      int64  `json:"client_ts_ms"`
}

// SaveWatchTime handles POST /v1/progress/watch-time
func (h *ProgressHandlers) SaveWatchTime(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return
	}

	var p watchTimePayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}
	lessonID, err := uuid.Parse(strings.TrimSpace(p.LessonID))
	if err != nil {
		api.BadRequest(w, "INVALID_LESSON_ID", "lesson_id must be a UUID", rid, nil)
		return
	}
	if p.LastWatchTime < 0 || p.MaxWatchTime < 0 {
		api.BadRequest(w, "INVALID_WATCH_TIME", "watch times must be non-negative", rid, nil)
		return
	}
	if p.ClientTsMs == 0 {
		p.ClientTsMs = time.Now().UnixMilli()
	}

	if h.Events.Enabled() {
		eventID, err := h.Events.PublishJSON(SubjectProgress, map[string]any{
			"user_id":          uid,
			"lesson_id":        lessonID.String(),
			"last_watch_time":  p.LastWatchTime,
			"max_watch_time":   p.MaxWatchTime,
			"duration_seconds": p.DurationSeconds,
			"client_ts_ms":     p.ClientTsMs,
		})
		if err == nil {
			w.Header().Set("X-Event-ID", eventID)
			api.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "event_id": eventID})
			return
		}
		h.Log.Warn("async watch-time publish failed, falling back to sync", zap.Error(err))
	}

	err = h.Activity.SaveWatchTime(r.Context(), bearerToken(r), client.SaveWatchTimeRequest{
		LessonID:        lessonID,
		LastWatchTime:   p.LastWatchTime,
		MaxWatchTime:    p.MaxWatchTime,
		DurationSeconds: p.DurationSeconds,
		ClientTsMs:      p.ClientTsMs,
	})
	if err != nil {
		// Progress writes are best-effort telemetry; the client carries on.
		h.Log.Warn("sync watch-time save failed", zap.Error(err), zap.String("request_id", rid))
		api.BadGateway(w, "ACTIVITY_UNAVAILABLE", "progress store unavailable", rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

// GetProgress handles GET /v1/progress/{lesson_id}
func (h *ProgressHandlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	lessonID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "lesson_id")))
	if err != nil {
		api.BadRequest(w, "INVALID_LESSON_ID", "lesson_id must be a UUID", rid, nil)
		return
	}

	p, found, err := h.Activity.GetProgress(r.Context(), bearerToken(r), lessonID)
	if err != nil {
		h.Log.Warn("activity get progress failed", zap.Error(err), zap.String("request_id", rid))
		api.BadGateway(w, "ACTIVITY_UNAVAILABLE", "progress store unavailable", rid)
		return
	}
	if !found {
		api.NotFound(w, "NOT_FOUND", "no progress for lesson", rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// ListProgress handles GET /v1/progress (continue-learning feed).
func (h *ProgressHandlers) ListProgress(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	body, err := h.Activity.ListProgress(r.Context(), bearerToken(r), r.URL.RawQuery)
	if err != nil {
		h.Log.Warn("activity list progress failed", zap.Error(err), zap.String("request_id", rid))
		api.BadGateway(w, "ACTIVITY_UNAVAILABLE", "progress store unavailable", rid)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
