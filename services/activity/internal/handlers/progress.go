package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/activity/internal/store"
)

type saveWatchTimeRequest struct {
	LessonID        string `json:"lesson_id"`
	LastWatchTime   int    `json:"last_watch_time"`
	MaxWatchTime    int    `json:"max_watch_time"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ClientTsMs      int64  `json:"client_ts_ms,omitempty"`
}

type progressResponse struct {
	LessonID        string `json:"lesson_id"`
	LastWatchTime   int    `json:"last_watch_time"`
	MaxWatchTime    int    `json:"max_watch_time"`
	DurationSeconds int    `json:"duration_seconds"`
	Completed       bool   `json:"completed"`
	UpdatedAtMs     int64  `json:"updated_at_ms"`
}

type listProgressResponse struct {
	Items      []progressResponse `json:"items"`
	Limit      int                `json:"limit"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func toResponse(r store.ProgressRecord) progressResponse {
	return progressResponse{
		LessonID:        r.LessonID.String(),
		LastWatchTime:   r.LastWatchSeconds,
		MaxWatchTime:    r.MaxWatchSeconds,
		DurationSeconds: r.DurationSeconds,
		Completed:       r.Completed,
		UpdatedAtMs:     r.UpdatedAt.UnixMilli(),
	}
}

// GetProgress handles GET /v1/progress/{lesson_id}
func GetProgress(repo store.ProgressRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		lessonID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "lesson_id")))
		if err != nil {
			api.BadRequest(w, "INVALID_LESSON_ID", "lesson_id must be a UUID", rid, nil)
			return
		}

		rec, err := repo.Get(r.Context(), uid, lessonID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "no progress for lesson", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, toResponse(rec))
	}
}

// SaveWatchTime handles POST /v1/progress/watch-time. The write is an
// idempotent overwrite; stale client timestamps are silently ignored.
func SaveWatchTime(repo store.ProgressRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		var req saveWatchTimeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		lessonID, err := uuid.Parse(strings.TrimSpace(req.LessonID))
		if err != nil {
			api.BadRequest(w, "INVALID_LESSON_ID", "lesson_id must be a UUID", rid, nil)
			return
		}
		if req.ClientTsMs == 0 {
			req.ClientTsMs = time.Now().UnixMilli()
		}

		rec, err := repo.Upsert(r.Context(), store.ProgressRecord{
			UserID:           uid,
			LessonID:         lessonID,
			LastWatchSeconds: req.LastWatchTime,
			MaxWatchSeconds:  req.MaxWatchTime,
			DurationSeconds:  req.DurationSeconds,
			ClientTsMs:       req.ClientTsMs,
		})
		if err != nil {
			log.Warn("watch-time upsert failed", zap.String("lesson_id", req.LessonID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, toResponse(rec))
	}
}

// ListProgress handles GET /v1/progress — the continue-learning feed.
func ListProgress(repo store.ProgressRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		limit := clampLimit(r.URL.Query().Get("limit"), 25, 100)
		cursor := decodeCursor(r.URL.Query().Get("cursor"))

		records, err := repo.List(r.Context(), uid, limit, cursor)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		resp := listProgressResponse{Limit: limit}
		for _, rec := range records {
			resp.Items = append(resp.Items, toResponse(rec))
		}
		if len(records) == limit {
			last := records[len(records)-1]
			resp.NextCursor = encodeCursor(last.UpdatedAt.UnixMilli(), last.LessonID.String())
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

func userID(r *http.Request) (uuid.UUID, bool) {
	raw, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	uid, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, false
	}
	return uid, true
}

// encodeCursor encodes updated_at millis and lesson UUID as a base64 opaque cursor.
func encodeCursor(tsMs int64, lessonID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(tsMs, 10) + ":" + lessonID))
}

// decodeCursor parses the opaque cursor produced by encodeCursor.
func decodeCursor(raw string) *store.ProgressCursor {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	parts := strings.SplitN(string(b), ":", 2)
	if len(parts) != 2 {
		return nil
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	lid, err := uuid.Parse(parts[1])
	if err != nil {
		return nil
	}
	return &store.ProgressCursor{
		UpdatedAt: time.UnixMilli(ts).UTC(),
		LessonID:  lid,
	}
}

func clampLimit(raw string, def, maxVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return def
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
