package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/services/bff/internal/client"
)

// fakeCatalog is an httptest-backed stand-in for the catalog service that
// counts writes, so tests can prove no-network-call guarantees.
type fakeCatalog struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeCatalog) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/bundles", func(w http.ResponseWriter, r *http.Request) {
		f.note("create")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": uuid.New()})
	})
	mux.HandleFunc("POST /v1/bundles/{bundleID}/courses", func(w http.ResponseWriter, r *http.Request) {
		f.note("add")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /v1/bundles/{bundleID}/courses/{courseID}", func(w http.ResponseWriter, r *http.Request) {
		f.note("remove")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /v1/bundles/{bundleID}/courses/order", func(w http.ResponseWriter, r *http.Request) {
		f.note("reorder")
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeCatalog) note(op string) {
	f.mu.Lock()
	f.writes = append(f.writes, op)
	f.mu.Unlock()
}

func (f *fakeCatalog) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

func newComposerFixture(t *testing.T) (*ComposerHandlers, *fakeCatalog) {
	t.Helper()
	fc := &fakeCatalog{}
	srv := httptest.NewServer(fc.handler())
	t.Cleanup(srv.Close)
	return NewComposerHandlers(client.NewCatalogClient(srv.URL), nil, zap.NewNop()), fc
}

func openComposer(t *testing.T, h *ComposerHandlers, userID string) uuid.UUID {
	t.Helper()
	rr := httptest.NewRecorder()
	h.OpenSession(rr, authedReq(http.MethodPost, "/v1/composer/sessions", []byte(`{}`), userID, nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("open status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp composerStateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.SessionID
}

func composerPost(t *testing.T, h *ComposerHandlers, fn http.HandlerFunc, userID string, id uuid.UUID, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	params := map[string]string{"sessionID": id.String()}
	fn(rr, authedReq(http.MethodPost, "/v1/composer/sessions/"+id.String()+path, []byte(body), userID, params))
	return rr
}

func TestComposerFlowCreateMode(t *testing.T) {
	h, fc := newComposerFixture(t)
	user := uuid.NewString()
	id := openComposer(t, h, user)

	cat := uuid.New()
	courseA := `{"course_id":"` + uuid.NewString() + `","category_id":"` + cat.String() + `","title":"a","order_index":1}`
	courseB := `{"course_id":"` + uuid.NewString() + `","category_id":"` + cat.String() + `","title":"b","order_index":2}`

	if rr := composerPost(t, h, h.Toggle, user, id, "/toggle", courseA); rr.Code != http.StatusOK {
		t.Fatalf("toggle a = %d", rr.Code)
	}
	if rr := composerPost(t, h, h.Toggle, user, id, "/toggle", courseB); rr.Code != http.StatusOK {
		t.Fatalf("toggle b = %d", rr.Code)
	}

	// foreign category rejected locally
	foreign := `{"course_id":"` + uuid.NewString() + `","category_id":"` + uuid.NewString() + `","title":"x","order_index":1}`
	if rr := composerPost(t, h, h.Toggle, user, id, "/toggle", foreign); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("foreign category toggle = %d, want 422", rr.Code)
	}

	// drag b before a, submit blocked with zero catalog writes
	if rr := composerPost(t, h, h.Reorder, user, id, "/reorder", `{"from":1,"to":0}`); rr.Code != http.StatusOK {
		t.Fatalf("reorder = %d", rr.Code)
	}
	rr := composerPost(t, h, h.Submit, user, id, "/submit", `{"name":"pack","type":"package"}`)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "ORDER_VIOLATION") {
		t.Fatalf("submit with violation = %d body %s", rr.Code, rr.Body.String())
	}
	if got := fc.ops(); len(got) != 0 {
		t.Fatalf("blocked submit must not reach catalog, ops %v", got)
	}

	// autosort clears the violation, then submit goes through
	if rr := composerPost(t, h, h.AutoSort, user, id, "/autosort", `{}`); rr.Code != http.StatusOK {
		t.Fatalf("autosort = %d", rr.Code)
	}
	rr = composerPost(t, h, h.Submit, user, id, "/submit", `{"name":"pack","type":"package","discount_percent":10}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit = %d body %s", rr.Code, rr.Body.String())
	}
	want := []string{"create", "add", "add"}
	got := fc.ops()
	if len(got) != len(want) {
		t.Fatalf("catalog ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("op %d = %s, want %s", i, got[i], want[i])
		}
	}

	// session consumed on success
	if rr := composerPost(t, h, h.AutoSort, user, id, "/autosort", `{}`); rr.Code != http.StatusNotFound {
		t.Fatalf("session should be gone after submit, got %d", rr.Code)
	}
}

func TestComposerSessionIsolatedPerUser(t *testing.T) {
	h, _ := newComposerFixture(t)
	owner := uuid.NewString()
	id := openComposer(t, h, owner)

	if rr := composerPost(t, h, h.AutoSort, uuid.NewString(), id, "/autosort", `{}`); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign user must not see session, got %d", rr.Code)
	}
}

func TestComposerSubmitRequiresName(t *testing.T) {
	h, fc := newComposerFixture(t)
	user := uuid.NewString()
	id := openComposer(t, h, user)

	cat := uuid.NewString()
	course := `{"course_id":"` + uuid.NewString() + `","category_id":"` + cat + `","title":"a","order_index":1}`
	composerPost(t, h, h.Toggle, user, id, "/toggle", course)

	rr := composerPost(t, h, h.Submit, user, id, "/submit", `{"type":"package"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit without name = %d, want 422", rr.Code)
	}
	if got := fc.ops(); len(got) != 0 {
		t.Fatalf("invalid submit must not reach catalog, ops %v", got)
	}
}

func TestComposerConcurrentTogglesOneSession(t *testing.T) {
	h, _ := newComposerFixture(t)
	user := uuid.NewString()
	id := openComposer(t, h, user)
	cat := uuid.NewString()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			body := `{"course_id":"` + uuid.NewString() + `","category_id":"` + cat +
				`","title":"c","order_index":` + strconv.Itoa(i+1) + `}`
			if rr := composerPost(t, h, h.Toggle, user, id, "/toggle", body); rr.Code != http.StatusOK {
				t.Errorf("toggle %d = %d", i, rr.Code)
			}
		}(i)
	}
	wg.Wait()

	rr := httptest.NewRecorder()
	params := map[string]string{"sessionID": id.String()}
	h.GetState(rr, authedReq(http.MethodGet, "/v1/composer/sessions/"+id.String(), nil, user, params))
	if rr.Code != http.StatusOK {
		t.Fatalf("state = %d", rr.Code)
	}
	var resp composerStateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Selected) != n {
		t.Fatalf("selected = %d, want %d", len(resp.Selected), n)
	}
}
