package auth

import (
	"net/http"
	"strings"

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/httpserver"
)

const (
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// RequireInstructor allows the request only when RequireUser already injected
// role=instructor (or admin) into context. Course and bundle authoring
// surfaces sit behind this.
func RequireInstructor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		switch strings.ToLower(strings.TrimSpace(role)) {
		case RoleInstructor, RoleAdmin:
			next.ServeHTTP(w, r)
		default:
			api.Forbidden(w, "FORBIDDEN", "instructor role required", httpserver.RequestIDFromContext(r.Context()))
		}
	})
}

// RequireAdmin allows the request only if role=admin is present in context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if !strings.EqualFold(strings.TrimSpace(role), RoleAdmin) {
			api.Forbidden(w, "FORBIDDEN", "admin role required", httpserver.RequestIDFromContext(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
