package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/services/bff/internal/watch"
)

func authedReq(method, target string, body []byte, userID string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = auth.WithUserID(ctx, userID)
	return req.WithContext(ctx)
}

func newTestPlayerHandlers() *PlayerHandlers {
	return NewPlayerHandlers(watch.NewManager(0, nil), nil, nil, nil, zap.NewNop())
}

func openPlayerSession(t *testing.T, h *PlayerHandlers, user, body string) uuid.UUID {
	t.Helper()
	rr := httptest.NewRecorder()
	h.OpenSession(rr, authedReq(http.MethodPost, "/v1/player/sessions", []byte(body), user, nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("open status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp openSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode open response: %v", err)
	}
	return resp.SessionID
}

func postEvent(t *testing.T, h *PlayerHandlers, user string, id uuid.UUID, body string) (playerEventResponse, int) {
	t.Helper()
	rr := httptest.NewRecorder()
	params := map[string]string{"sessionID": id.String()}
	h.SessionEvent(rr, authedReq(http.MethodPost, "/v1/player/sessions/"+id.String()+"/events", []byte(body), user, params))
	var resp playerEventResponse
	if rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode event response: %v", err)
		}
	}
	return resp, rr.Code
}

func TestPlayerSessionSeekClamping(t *testing.T) {
	h := newTestPlayerHandlers()
	user := uuid.NewString()
	id := openPlayerSession(t, h, user, `{"duration":300}`)

	if _, code := postEvent(t, h, user, id, `{"type":"ready","position":0,"duration":300}`); code != http.StatusOK {
		t.Fatalf("ready status = %d", code)
	}
	if _, code := postEvent(t, h, user, id, `{"type":"timeupdate","position":100}`); code != http.StatusOK {
		t.Fatalf("timeupdate status = %d", code)
	}

	resp, code := postEvent(t, h, user, id, `{"type":"seeking","target":250}`)
	if code != http.StatusOK {
		t.Fatalf("seeking status = %d", code)
	}
	if !resp.Clamped || resp.Position == nil || *resp.Position != 100 {
		t.Fatalf("forward seek should clamp to 100, got %+v", resp)
	}

	resp, _ = postEvent(t, h, user, id, `{"type":"seeking","target":40}`)
	if resp.Clamped || resp.Position == nil || *resp.Position != 40 {
		t.Fatalf("backward seek should pass, got %+v", resp)
	}
}

func TestPlayerSessionSeekFreeAfterEnded(t *testing.T) {
	h := newTestPlayerHandlers()
	user := uuid.NewString()
	id := openPlayerSession(t, h, user, `{"duration":300}`)

	postEvent(t, h, user, id, `{"type":"ready","duration":300}`)
	postEvent(t, h, user, id, `{"type":"timeupdate","position":50}`)
	if _, code := postEvent(t, h, user, id, `{"type":"ended"}`); code != http.StatusOK {
		t.Fatalf("ended status = %d", code)
	}

	resp, _ := postEvent(t, h, user, id, `{"type":"seeking","target":250}`)
	if resp.Clamped {
		t.Fatalf("seek after ended must be unrestricted, got %+v", resp)
	}
}

func TestPlayerSessionCompletedSkipsClamp(t *testing.T) {
	h := newTestPlayerHandlers()
	user := uuid.NewString()
	id := openPlayerSession(t, h, user, `{"is_completed":true,"duration":300}`)

	resp, _ := postEvent(t, h, user, id, `{"type":"seeking","target":290}`)
	if resp.Clamped || resp.Position == nil || *resp.Position != 290 {
		t.Fatalf("completed lesson seek = %+v, want free 290", resp)
	}
}

func TestPlayerSessionClose(t *testing.T) {
	h := newTestPlayerHandlers()
	user := uuid.NewString()
	id := openPlayerSession(t, h, user, `{}`)

	params := map[string]string{"sessionID": id.String()}
	rr := httptest.NewRecorder()
	h.CloseSession(rr, authedReq(http.MethodDelete, "/v1/player/sessions/"+id.String(), nil, user, params))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.CloseSession(rr, authedReq(http.MethodDelete, "/v1/player/sessions/"+id.String(), nil, user, params))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second close status = %d, want 404", rr.Code)
	}

	if _, code := postEvent(t, h, user, id, `{"type":"play"}`); code != http.StatusNotFound {
		t.Fatalf("event on closed session = %d, want 404", code)
	}
}

func TestPlayerSessionRejectsUnknownEvent(t *testing.T) {
	h := newTestPlayerHandlers()
	user := uuid.NewString()
	id := openPlayerSession(t, h, user, `{}`)
	if _, code := postEvent(t, h, user, id, `{"type":"rewind"}`); code != http.StatusBadRequest {
		t.Fatalf("unknown event status = %d, want 400", code)
	}
}

func TestPlayerSessionRejectsBadLessonID(t *testing.T) {
	h := newTestPlayerHandlers()
	rr := httptest.NewRecorder()
	h.OpenSession(rr, authedReq(http.MethodPost, "/v1/player/sessions", []byte(`{"lesson_id":"nope"}`), uuid.NewString(), nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestPlayerSessionIsolatedPerUser(t *testing.T) {
	h := newTestPlayerHandlers()
	owner := uuid.NewString()
	id := openPlayerSession(t, h, owner, `{"duration":300}`)

	if _, code := postEvent(t, h, uuid.NewString(), id, `{"type":"play"}`); code != http.StatusNotFound {
		t.Fatalf("foreign user event = %d, want 404", code)
	}

	params := map[string]string{"sessionID": id.String()}
	rr := httptest.NewRecorder()
	h.CloseSession(rr, authedReq(http.MethodDelete, "/v1/player/sessions/"+id.String(), nil, uuid.NewString(), params))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign user close = %d, want 404", rr.Code)
	}

	// Still alive for the owner.
	if _, code := postEvent(t, h, owner, id, `{"type":"play"}`); code != http.StatusOK {
		t.Fatalf("owner event after foreign close attempt = %d", code)
	}
}
