package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/cache"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/bff/internal/client"
)

// cacheKeyPrefix namespaces every BFF catalog cache entry so the NATS
// invalidator can drop them all with one prefix scan.
const cacheKeyPrefix = "catalog:"

// CatalogHandlers proxies the catalog surface with a cache-aside Redis layer.
// The cache is best-effort: any Redis trouble falls through to the catalog.
type CatalogHandlers struct {
	Catalog   *client.CatalogClient
	Cache     *cache.RedisCache // nil disables caching
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// StartCacheInvalidator drops the catalog cache whenever the catalog service
// emits a change event. Coarse by design: bundle membership changes affect
// listings keyed by arbitrary query strings.
func StartCacheInvalidator(nc *nats.Conn, c *cache.RedisCache, log *zap.Logger) error {
	if nc == nil || c == nil {
		return nil
	}
	_, err := nc.Subscribe("catalog.>", func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.DeletePrefix(ctx, cacheKeyPrefix); err != nil {
			log.Warn("catalog cache invalidation failed", zap.String("subject", m.Subject), zap.Error(err))
		}
	})
	return err
}

func (h *CatalogHandlers) cacheGet(ctx context.Context, key string, dest any) bool {
	if h.Cache == nil {
		return false
	}
	hit, err := h.Cache.Get(ctx, key, dest)
	if err != nil {
		h.Log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (h *CatalogHandlers) cacheSet(ctx context.Context, key string, v any) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(ctx, key, v); err != nil {
		h.Log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// ListCourses handles GET /v1/courses. The instructor's own catalog is the
// source list for the bundle composer, so it is the hottest read here.
func (h *CatalogHandlers) ListCourses(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return
	}

	f := client.CourseFilter{Status: strings.TrimSpace(r.URL.Query().Get("status"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("instructor_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.BadRequest(w, "INVALID_INSTRUCTOR_ID", "instructor_id must be a UUID", rid, nil)
			return
		}
		f.InstructorID = id
	} else if id, err := uuid.Parse(uid); err == nil {
		f.InstructorID = id
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("category_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.BadRequest(w, "INVALID_CATEGORY_ID", "category_id must be a UUID", rid, nil)
			return
		}
		f.CategoryID = id
	}

	key := cacheKeyPrefix + "courses:" + f.InstructorID.String() + ":" + f.CategoryID.String() + ":" + f.Status
	var courses []client.Course
	if !h.cacheGet(r.Context(), key, &courses) {
		var err error
		courses, err = h.Catalog.ListCourses(r.Context(), bearerToken(r), f)
		if err != nil {
			h.Log.Warn("catalog list courses failed", zap.Error(err), zap.String("request_id", rid))
			api.BadGateway(w, "CATALOG_UNAVAILABLE", "course catalog unavailable", rid)
			return
		}
		h.cacheSet(r.Context(), key, courses)
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

// GetBundle handles GET /v1/bundles/{bundleID}
func (h *CatalogHandlers) GetBundle(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "bundleID")))
	if err != nil {
		api.BadRequest(w, "INVALID_BUNDLE_ID", "bundle id must be a UUID", rid, nil)
		return
	}

	key := cacheKeyPrefix + "bundle:" + id.String()
	var b client.Bundle
	if !h.cacheGet(r.Context(), key, &b) {
		b, err = h.Catalog.GetBundle(r.Context(), bearerToken(r), id)
		if err != nil {
			h.Log.Warn("catalog get bundle failed", zap.Error(err), zap.String("request_id", rid))
			api.BadGateway(w, "CATALOG_UNAVAILABLE", "bundle unavailable", rid)
			return
		}
		h.cacheSet(r.Context(), key, b)
	}

	uid, _ := auth.UserIDFromContext(r.Context())
	h.Analytics.Publish(analytics.SubjectCatalogCourseViewed, "bundle_viewed", uid, map[string]any{
		"bundle_id": id.String(),
	})
	api.WriteJSON(w, http.StatusOK, b)
}

// GetBundleCourses handles GET /v1/bundles/{bundleID}/courses
func (h *CatalogHandlers) GetBundleCourses(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "bundleID")))
	if err != nil {
		api.BadRequest(w, "INVALID_BUNDLE_ID", "bundle id must be a UUID", rid, nil)
		return
	}

	key := cacheKeyPrefix + "bundle_courses:" + id.String()
	var members []client.BundleCourse
	if !h.cacheGet(r.Context(), key, &members) {
		members, err = h.Catalog.ListBundleCourses(r.Context(), bearerToken(r), id)
		if err != nil {
			h.Log.Warn("catalog bundle courses failed", zap.Error(err), zap.String("request_id", rid))
			api.BadGateway(w, "CATALOG_UNAVAILABLE", "bundle courses unavailable", rid)
			return
		}
		h.cacheSet(r.Context(), key, members)
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{"courses": members})
}
