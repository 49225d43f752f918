package handlers

import (
	"context"
	"errors"
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
	"github.com/example/course-platform/services/bff/internal/combo"
)

// catalogBundleAPI adapts the catalog HTTP client to the composer's API,
// carrying the instructor's own token on every call.
type catalogBundleAPI struct {
	client *client.CatalogClient
	token  string
}

func (a catalogBundleAPI) GetBundle(ctx context.Context, id uuid.UUID) (combo.BundleMeta, error) {
	b, err := a.client.GetBundle(ctx, a.token, id)
	if err != nil {
		return combo.BundleMeta{}, err
	}
	return combo.BundleMeta{
		Name:            b.Name,
		Description:     b.Description,
		Type:            b.Type,
		DiscountPercent: b.DiscountPercent,
	}, nil
}

func (a catalogBundleAPI) ListBundleCourses(ctx context.Context, id uuid.UUID) ([]combo.Course, error) {
	members, err := a.client.ListBundleCourses(ctx, a.token, id)
	if err != nil {
		return nil, err
	}
	out := make([]combo.Course, 0, len(members))
	for _, m := range members {
		out = append(out, combo.Course{
			ID:         m.Course.ID,
			CategoryID: m.Course.CategoryID,
			Title:      m.Course.Title,
			OrderIndex: m.Course.OrderIndex,
		})
	}
	return out, nil
}

func (a catalogBundleAPI) CreateBundle(ctx context.Context, meta combo.BundleMeta) (uuid.UUID, error) {
	b, err := a.client.CreateBundle(ctx, a.token, client.BundleMeta{
		Name:            meta.Name,
		Description:     meta.Description,
		Type:            meta.Type,
		DiscountPercent: meta.DiscountPercent,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return b.ID, nil
}

func (a catalogBundleAPI) UpdateBundle(ctx context.Context, id uuid.UUID, meta combo.BundleMeta) error {
	_, err := a.client.UpdateBundle(ctx, a.token, id, client.BundleMeta{
		Name:            meta.Name,
		Description:     meta.Description,
		Type:            meta.Type,
		DiscountPercent: meta.DiscountPercent,
	})
	return err
}

func (a catalogBundleAPI) AddBundleCourse(ctx context.Context, bundleID, courseID uuid.UUID, orderIndex int) error {
	return a.client.AddBundleCourse(ctx, a.token, bundleID, courseID, orderIndex)
}

func (a catalogBundleAPI) RemoveBundleCourse(ctx context.Context, bundleID, courseID uuid.UUID) error {
	return a.client.RemoveBundleCourse(ctx, a.token, bundleID, courseID)
}

func (a catalogBundleAPI) ReorderBundleCourses(ctx context.Context, bundleID uuid.UUID, order []combo.CourseOrder) error {
	out := make([]client.CourseOrder, 0, len(order))
	for _, o := range order {
		out = append(out, client.CourseOrder{CourseID: o.CourseID, OrderIndex: o.OrderIndex})
	}
	return a.client.ReorderBundleCourses(ctx, a.token, bundleID, out)
}

type composerEntry struct {
	mu       sync.Mutex // Composer is not concurrency-safe; held across every call
	composer *combo.Composer
	userID   string
	lastSeen time.Time
}

// ComposerHandlers hosts bundle-builder sessions. The map lock guards the
// session table; each entry carries its own lock so gestures on one session
// apply strictly in sequence.
type ComposerHandlers struct {
	Catalog   *client.CatalogClient
	Analytics *analytics.Publisher
	Log       *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*composerEntry
	idleTTL  time.Duration
}

func NewComposerHandlers(cc *client.CatalogClient, ap *analytics.Publisher, log *zap.Logger) *ComposerHandlers {
	return &ComposerHandlers{
		Catalog:   cc,
		Analytics: ap,
		Log:       log,
		sessions:  make(map[uuid.UUID]*composerEntry),
		idleTTL:   30 * time.Minute,
	}
}

// Run sweeps abandoned composer sessions until ctx is done. Discarding is
// just dropping in-memory state; nothing was written anywhere.
func (h *ComposerHandlers) Run(ctx context.Context) {
	ticker := time.NewTicker(h.idleTTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.idleTTL)
			h.mu.Lock()
			for id, e := range h.sessions {
				if e.lastSeen.Before(cutoff) {
					delete(h.sessions, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *ComposerHandlers) get(id uuid.UUID, userID string) (*composerEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[id]
	if !ok || e.userID != userID {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e, true
}

type openComposerPayload struct {
	BundleID string `json:"bundle_id"` // empty for create mode
}

type composerCoursePayload struct {
	CourseID   uuid.UUID `json:"course_id"`
	CategoryID uuid.UUID `json:"category_id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
}

type composerStateResponse struct {
	SessionID      uuid.UUID               `json:"session_id"`
	Selected       []composerCoursePayload `json:"selected"`
	OrderViolation string                  `json:"order_violation,omitempty"`
	Meta           *client.BundleMeta      `json:"meta,omitempty"`
}

func (h *ComposerHandlers) stateResponse(id uuid.UUID, c *combo.Composer, includeMeta bool) composerStateResponse {
	sel := c.Selected()
	out := composerStateResponse{SessionID: id, Selected: make([]composerCoursePayload, 0, len(sel))}
	for _, s := range sel {
		out.Selected = append(out.Selected, composerCoursePayload{
			CourseID:   s.ID,
			CategoryID: s.CategoryID,
			Title:      s.Title,
			OrderIndex: s.OrderIndex,
		})
	}
	if err := c.ValidateOrder(); err != nil {
		out.OrderViolation = err.Error()
	}
	if includeMeta {
		m := c.Meta()
		out.Meta = &client.BundleMeta{
			Name:            m.Name,
			Description:     m.Description,
			Type:            m.Type,
			DiscountPercent: m.DiscountPercent,
		}
	}
	return out
}

// OpenSession handles POST /v1/composer/sessions. A bundle_id switches to
// edit mode and hydrates the existing membership.
func (h *ComposerHandlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return
	}

	var p openComposerPayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}

	bundleAPI := catalogBundleAPI{client: h.Catalog, token: bearerToken(r)}

	var (
		c   *combo.Composer
		err error
	)
	edit := strings.TrimSpace(p.BundleID) != ""
	if edit {
		bundleID, perr := uuid.Parse(strings.TrimSpace(p.BundleID))
		if perr != nil {
			api.BadRequest(w, "INVALID_BUNDLE_ID", "bundle_id must be a UUID", rid, nil)
			return
		}
		c, err = combo.Load(r.Context(), bundleAPI, bundleID)
		if err != nil {
			h.Log.Warn("composer hydrate failed", zap.Error(err), zap.String("request_id", rid))
			api.BadGateway(w, "CATALOG_UNAVAILABLE", "could not load bundle", rid)
			return
		}
	} else {
		c = combo.NewComposer(bundleAPI)
	}

	id := uuid.New()
	h.mu.Lock()
	h.sessions[id] = &composerEntry{composer: c, userID: uid, lastSeen: time.Now()}
	h.mu.Unlock()

	api.WriteJSON(w, http.StatusCreated, h.stateResponse(id, c, edit))
}

func (h *ComposerHandlers) session(w http.ResponseWriter, r *http.Request, rid string) (*composerEntry, uuid.UUID, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "sessionID")))
	if err != nil {
		api.BadRequest(w, "INVALID_SESSION_ID", "session id must be a UUID", rid, nil)
		return nil, uuid.Nil, false
	}
	e, ok := h.get(id, uid)
	if !ok {
		api.NotFound(w, "SESSION_NOT_FOUND", "composer session not found", rid)
		return nil, uuid.Nil, false
	}
	return e, id, true
}

// GetState handles GET /v1/composer/sessions/{sessionID}
func (h *ComposerHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	e, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	api.WriteJSON(w, http.StatusOK, h.stateResponse(id, e.composer, false))
}

// Toggle handles POST /v1/composer/sessions/{sessionID}/toggle
func (h *ComposerHandlers) Toggle(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	e, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var p composerCoursePayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}
	if p.CourseID == uuid.Nil {
		api.UnprocessableEntity(w, "INVALID_COURSE", "course_id is required", rid, nil)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.composer.Toggle(combo.Course{
		ID:         p.CourseID,
		CategoryID: p.CategoryID,
		Title:      p.Title,
		OrderIndex: p.OrderIndex,
	})
	if errors.Is(err, combo.ErrCategoryMismatch) {
		api.UnprocessableEntity(w, "CATEGORY_MISMATCH", "course belongs to a different category than the bundle", rid, nil)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.stateResponse(id, e.composer, false))
}

// Remove handles POST /v1/composer/sessions/{sessionID}/remove
func (h *ComposerHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	e, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var p composerCoursePayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.composer.Remove(p.CourseID)
	api.WriteJSON(w, http.StatusOK, h.stateResponse(id, e.composer, false))
}

// AutoSort handles POST /v1/composer/sessions/{sessionID}/autosort
func (h *ComposerHandlers) AutoSort(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	e, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.composer.AutoSort()
	api.WriteJSON(w, http.StatusOK, h.stateResponse(id, e.composer, false))
}

type reorderGesturePayload struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Reorder handles POST /v1/composer/sessions/{sessionID}/reorder
func (h *ComposerHandlers) Reorder(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	e, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var p reorderGesturePayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.composer.Reorder(p.From, p.To)
	api.WriteJSON(w, http.StatusOK, h.stateResponse(id, e.composer, false))
}

type submitPayload struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	DiscountPercent int    `json:"discount_percent"`
}

// Submit handles POST /v1/composer/sessions/{sessionID}/submit. Local
// validation failures are 422s with zero catalog calls; backend failures
// surface as 502 with whatever partial writes already applied left in place.
func (h *ComposerHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, _ := auth.UserIDFromContext(r.Context())
	e, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var p submitPayload
	if !decodeJSON(w, r, rid, &p) {
		return
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Type) == "" {
		api.UnprocessableEntity(w, "INVALID_BUNDLE", "name and type are required", rid, nil)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	edit := e.composer.EditMode()

	bundleID, err := e.composer.Submit(r.Context(), combo.BundleMeta{
		Name:            strings.TrimSpace(p.Name),
		Description:     strings.TrimSpace(p.Description),
		Type:            strings.TrimSpace(p.Type),
		DiscountPercent: p.DiscountPercent,
	})
	if err != nil {
		var viol *combo.OrderViolationError
		switch {
		case errors.As(err, &viol):
			api.UnprocessableEntity(w, "ORDER_VIOLATION", viol.Error(), rid, nil)
		case errors.Is(err, combo.ErrCategoryMismatch):
			api.UnprocessableEntity(w, "CATEGORY_MISMATCH", "all courses must share one category", rid, nil)
		case errors.Is(err, combo.ErrEmptySelection):
			api.UnprocessableEntity(w, "EMPTY_SELECTION", "select at least one course", rid, nil)
		default:
			h.Log.Warn("composer submit failed", zap.Error(err), zap.String("request_id", rid))
			api.BadGateway(w, "CATALOG_UNAVAILABLE", err.Error(), rid)
		}
		return
	}

	subject, name := analytics.SubjectBundleCreated, "bundle_created"
	if edit {
		subject, name = analytics.SubjectBundleUpdated, "bundle_updated"
	}
	h.Analytics.Publish(subject, name, uid, map[string]any{"bundle_id": bundleID.String()})

	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()

	api.WriteJSON(w, http.StatusOK, map[string]any{"bundle_id": bundleID})
}

// CloseSession handles DELETE /v1/composer/sessions/{sessionID}. Discards
// in-memory state only; nothing submitted is undone.
func (h *ComposerHandlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	_, id, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	api.NoContent(w)
}
