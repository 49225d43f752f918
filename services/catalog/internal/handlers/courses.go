package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/catalog/internal/store"
)

type courseResponse struct {
	ID           uuid.UUID `json:"id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	CategoryID   uuid.UUID `json:"category_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	LevelName    string    `json:"level_name"`
	OrderIndex   int       `json:"order_index"`
	CreatedAt    string    `json:"created_at"`
}

func toCourseResponse(c store.Course) courseResponse {
	return courseResponse{
		ID:           c.ID,
		InstructorID: c.InstructorID,
		CategoryID:   c.CategoryID,
		Title:        c.Title,
		Description:  c.Description,
		Status:       c.Status,
		LevelName:    c.Level.Name,
		OrderIndex:   c.Level.OrderIndex,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// userID pulls the authenticated user out of the request context as a UUID.
func userID(r *http.Request) (uuid.UUID, bool) {
	raw, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ListCourses handles GET /v1/courses. Without an explicit instructor_id the
// listing is scoped to the authenticated user so instructors see their own
// drafts; status defaults to published.
func ListCourses(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		f := store.CourseFilter{Status: store.StatusPublished}
		q := r.URL.Query()
		if raw := strings.TrimSpace(q.Get("instructor_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				api.BadRequest(w, "INVALID_INSTRUCTOR_ID", "instructor_id must be a UUID", rid, nil)
				return
			}
			f.InstructorID = id
		} else if uid, ok := userID(r); ok {
			f.InstructorID = uid
		}
		if raw := strings.TrimSpace(q.Get("category_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				api.BadRequest(w, "INVALID_CATEGORY_ID", "category_id must be a UUID", rid, nil)
				return
			}
			f.CategoryID = id
		}
		if raw := strings.TrimSpace(q.Get("status")); raw != "" {
			if raw != store.StatusDraft && raw != store.StatusPublished {
				api.BadRequest(w, "INVALID_STATUS", "status must be draft or published", rid, nil)
				return
			}
			f.Status = raw
		}

		courses, err := st.ListCourses(r.Context(), f)
		if err != nil {
			log.Error("list courses", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}

		out := make([]courseResponse, 0, len(courses))
		for _, c := range courses {
			out = append(out, toCourseResponse(c))
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"courses": out})
	}
}
