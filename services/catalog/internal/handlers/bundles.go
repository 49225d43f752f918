package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/catalog/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON into dst.
// On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

type bundleResponse struct {
	ID              uuid.UUID `json:"id"`
	InstructorID    uuid.UUID `json:"instructor_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Type            string    `json:"type"`
	DiscountPercent int       `json:"discount_percent"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       string    `json:"updated_at"`
}

func toBundleResponse(b store.Bundle) bundleResponse {
	return bundleResponse{
		ID:              b.ID,
		InstructorID:    b.InstructorID,
		Name:            b.Name,
		Description:     b.Description,
		Type:            b.Type,
		DiscountPercent: b.DiscountPercent,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type bundleCourseResponse struct {
	OrderIndex int            `json:"order_index"`
	Course     courseResponse `json:"course"`
}

type bundlePayload struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	DiscountPercent int    `json:"discount_percent"`
}

func (p bundlePayload) validate() string {
	if strings.TrimSpace(p.Name) == "" {
		return "name is required"
	}
	if strings.TrimSpace(p.Type) == "" {
		return "type is required"
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return "discount_percent must be between 0 and 100"
	}
	return ""
}

func bundleIDParam(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "bundleID")))
	if err != nil {
		api.BadRequest(w, "INVALID_BUNDLE_ID", "bundle id must be a UUID", rid, nil)
		return uuid.Nil, false
	}
	return id, true
}

// writeStoreError maps the store sentinels onto the error envelope.
func writeStoreError(w http.ResponseWriter, rid string, err error, log *zap.Logger, op string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "bundle not found", rid)
	case errors.Is(err, store.ErrNotOwner):
		api.Forbidden(w, "NOT_OWNER", "bundle belongs to another instructor", rid)
	default:
		log.Error(op, zap.Error(err), zap.String("request_id", rid))
		api.Internal(w, rid)
	}
}

// GetBundle handles GET /v1/bundles/{bundleID}
func GetBundle(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := bundleIDParam(w, r, rid)
		if !ok {
			return
		}
		b, err := st.GetBundle(r.Context(), id)
		if err != nil {
			writeStoreError(w, rid, err, log, "get bundle")
			return
		}
		api.WriteJSON(w, http.StatusOK, toBundleResponse(b))
	}
}

// ListBundleCourses handles GET /v1/bundles/{bundleID}/courses. Entries come
// back in order_index order with the joined course payload.
func ListBundleCourses(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := bundleIDParam(w, r, rid)
		if !ok {
			return
		}
		if _, err := st.GetBundle(r.Context(), id); err != nil {
			writeStoreError(w, rid, err, log, "get bundle")
			return
		}

		members, err := st.ListBundleCourses(r.Context(), id)
		if err != nil {
			writeStoreError(w, rid, err, log, "list bundle courses")
			return
		}

		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.CourseID)
		}
		courses, err := st.GetCoursesByIDs(r.Context(), ids)
		if err != nil {
			writeStoreError(w, rid, err, log, "get courses by ids")
			return
		}
		byID := make(map[uuid.UUID]store.Course, len(courses))
		for _, c := range courses {
			byID[c.ID] = c
		}

		out := make([]bundleCourseResponse, 0, len(members))
		for _, m := range members {
			c, ok := byID[m.CourseID]
			if !ok {
				continue
			}
			out = append(out, bundleCourseResponse{OrderIndex: m.OrderIndex, Course: toCourseResponse(c)})
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"courses": out})
	}
}

// CreateBundle handles POST /v1/bundles
func CreateBundle(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		var p bundlePayload
		if !decodeJSON(w, r, rid, &p) {
			return
		}
		if msg := p.validate(); msg != "" {
			api.UnprocessableEntity(w, "INVALID_BUNDLE", msg, rid, nil)
			return
		}

		b, err := st.CreateBundle(r.Context(), store.Bundle{
			InstructorID:    uid,
			Name:            strings.TrimSpace(p.Name),
			Description:     strings.TrimSpace(p.Description),
			Type:            strings.TrimSpace(p.Type),
			DiscountPercent: p.DiscountPercent,
		})
		if err != nil {
			writeStoreError(w, rid, err, log, "create bundle")
			return
		}
		api.WriteJSON(w, http.StatusCreated, toBundleResponse(b))
	}
}

// UpdateBundle handles PUT /v1/bundles/{bundleID}
func UpdateBundle(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		id, ok := bundleIDParam(w, r, rid)
		if !ok {
			return
		}
		var p bundlePayload
		if !decodeJSON(w, r, rid, &p) {
			return
		}
		if msg := p.validate(); msg != "" {
			api.UnprocessableEntity(w, "INVALID_BUNDLE", msg, rid, nil)
			return
		}

		b, err := st.UpdateBundle(r.Context(), store.Bundle{
			ID:              id,
			InstructorID:    uid,
			Name:            strings.TrimSpace(p.Name),
			Description:     strings.TrimSpace(p.Description),
			Type:            strings.TrimSpace(p.Type),
			DiscountPercent: p.DiscountPercent,
		})
		if err != nil {
			writeStoreError(w, rid, err, log, "update bundle")
			return
		}
		api.WriteJSON(w, http.StatusOK, toBundleResponse(b))
	}
}

type addCoursePayload struct {
	CourseID   uuid.UUID `json:"course_id"`
	OrderIndex int       `json:"order_index"`
}

// AddBundleCourse handles POST /v1/bundles/{bundleID}/courses
func AddBundleCourse(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		id, ok := bundleIDParam(w, r, rid)
		if !ok {
			return
		}
		var p addCoursePayload
		if !decodeJSON(w, r, rid, &p) {
			return
		}
		if p.CourseID == uuid.Nil {
			api.UnprocessableEntity(w, "INVALID_COURSE", "course_id is required", rid, nil)
			return
		}

		err := st.AddBundleCourse(r.Context(), uid, store.BundleCourse{
			BundleID:   id,
			CourseID:   p.CourseID,
			OrderIndex: p.OrderIndex,
		})
		if err != nil {
			writeStoreError(w, rid, err, log, "add bundle course")
			return
		}
		api.NoContent(w)
	}
}

// RemoveBundleCourse handles DELETE /v1/bundles/{bundleID}/courses/{courseID}
func RemoveBundleCourse(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		bundleID, ok := bundleIDParam(w, r, rid)
		if !ok {
			return
		}
		courseID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "courseID")))
		if err != nil {
			api.BadRequest(w, "INVALID_COURSE_ID", "course id must be a UUID", rid, nil)
			return
		}

		if err := st.RemoveBundleCourse(r.Context(), uid, bundleID, courseID); err != nil {
			writeStoreError(w, rid, err, log, "remove bundle course")
			return
		}
		api.NoContent(w)
	}
}

type reorderPayload struct {
	Courses []addCoursePayload `json:"courses"`
}

// ReorderBundleCourses handles PUT /v1/bundles/{bundleID}/courses/order.
// The payload is authoritative for every listed course's order_index.
func ReorderBundleCourses(st store.CatalogStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(r)
		if !ok {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		bundleID, ok := bundleIDParam(w, r, rid)
		if !ok {
			return
		}
		var p reorderPayload
		if !decodeJSON(w, r, rid, &p) {
			return
		}
		if len(p.Courses) == 0 {
			api.UnprocessableEntity(w, "EMPTY_ORDER", "courses must not be empty", rid, nil)
			return
		}

		order := make([]store.BundleCourse, 0, len(p.Courses))
		seen := make(map[uuid.UUID]struct{}, len(p.Courses))
		for _, c := range p.Courses {
			if c.CourseID == uuid.Nil {
				api.UnprocessableEntity(w, "INVALID_COURSE", "course_id is required", rid, nil)
				return
			}
			if _, dup := seen[c.CourseID]; dup {
				api.UnprocessableEntity(w, "DUPLICATE_COURSE", "duplicate course_id "+c.CourseID.String(), rid, nil)
				return
			}
			seen[c.CourseID] = struct{}{}
			order = append(order, store.BundleCourse{BundleID: bundleID, CourseID: c.CourseID, OrderIndex: c.OrderIndex})
		}

		if err := st.ReorderBundleCourses(r.Context(), uid, bundleID, order); err != nil {
			writeStoreError(w, rid, err, log, "reorder bundle courses")
			return
		}
		api.NoContent(w)
	}
}
