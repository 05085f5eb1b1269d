package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/handoff"
	"github.com/m3rciful/menubot/core/journal"
)

type fakeSessions map[string]dialog.Session

func (f fakeSessions) Get(userID string) (dialog.Session, bool) {
	s, ok := f[userID]
	return s, ok
}

func (f fakeSessions) List() []dialog.Session {
	out := make([]dialog.Session, 0, len(f))
	for _, s := range f {
		out = append(out, s)
	}
	return out
}

type fakeJournal struct {
	gotUser  string
	gotLimit int
	err      error
}

func (f *fakeJournal) Recent(_ context.Context, userID string, limit int) ([]journal.Record, error) {
	f.gotUser, f.gotLimit = userID, limit
	if f.err != nil {
		return nil, f.err
	}
	return []journal.Record{{UserID: userID, FromState: "menu_ready", ToState: "awaiting_agent", Input: "8", Action: "handoff"}}, nil
}

type fakeHandoffs struct{ err error }

func (f fakeHandoffs) Peek(_ context.Context, n int64) ([]handoff.Event, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return []handoff.Event{{ID: "a", Type: handoff.EventRequested, UserID: "tg:1"}}, 3, nil
}

func testDeps() Deps {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Deps{
		Sessions: fakeSessions{
			"tg:1":  {UserID: "tg:1", State: dialog.StateAwaitingAgent, CreatedAt: now, LastMessageTime: now, PendingTimeout: dialog.Handle{UserID: "tg:1", Seq: 1}},
			"web:b": {UserID: "web:b", State: dialog.StateMenuReady, CreatedAt: now, LastMessageTime: now},
		},
		Catalog: dialog.DefaultCatalog,
		Version: "test",
	}
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, NewRouter(testDeps()), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("body = %v", body)
	}
}

func TestListSessions(t *testing.T) {
	h := NewRouter(testDeps())

	var body struct {
		Sessions []SessionView `json:"sessions"`
		Total    int           `json:"total"`
	}
	decode(t, do(t, h, "/api/sessions"), &body)
	if body.Total != 2 || body.Sessions[0].UserID != "tg:1" || !body.Sessions[0].HandoffPending {
		t.Fatalf("sessions = %+v", body)
	}

	decode(t, do(t, h, "/api/sessions?state=menu_ready"), &body)
	if body.Total != 1 || body.Sessions[0].UserID != "web:b" || body.Sessions[0].HandoffPending {
		t.Fatalf("filtered = %+v", body)
	}
}

func TestGetSession(t *testing.T) {
	h := NewRouter(testDeps())

	rec := do(t, h, "/api/sessions/tg:1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view SessionView
	decode(t, rec, &view)
	if view.State != "awaiting_agent" {
		t.Fatalf("view = %+v", view)
	}

	if rec := do(t, h, "/api/sessions/tg:404"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rec.Code)
	}
}

func TestTransitions(t *testing.T) {
	deps := testDeps()
	if rec := do(t, NewRouter(deps), "/api/sessions/tg:1/transitions"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("journal disabled status = %d", rec.Code)
	}

	j := &fakeJournal{}
	deps.Transitions = j
	h := NewRouter(deps)

	rec := do(t, h, "/api/sessions/tg:1/transitions?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if j.gotUser != "tg:1" || j.gotLimit != 5 {
		t.Fatalf("journal called with %q %d", j.gotUser, j.gotLimit)
	}
	if !strings.Contains(rec.Body.String(), `"action":"handoff"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	if rec := do(t, h, "/api/sessions/tg:1/transitions?limit=x"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	j.err = errors.New("db down")
	if rec := do(t, h, "/api/sessions/tg:1/transitions"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("db error status = %d", rec.Code)
	}
}

func TestHandoffs(t *testing.T) {
	deps := testDeps()
	if rec := do(t, NewRouter(deps), "/api/handoffs"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled status = %d", rec.Code)
	}

	deps.Handoffs = fakeHandoffs{}
	rec := do(t, NewRouter(deps), "/api/handoffs?limit=1")
	var body struct {
		Events []handoff.Event `json:"events"`
		Total  int64           `json:"total"`
	}
	decode(t, rec, &body)
	if body.Total != 3 || len(body.Events) != 1 || body.Events[0].Type != handoff.EventRequested {
		t.Fatalf("body = %+v", body)
	}

	deps.Handoffs = fakeHandoffs{err: errors.New("redis down")}
	if rec := do(t, NewRouter(deps), "/api/handoffs"); rec.Code != http.StatusBadGateway {
		t.Fatalf("redis error status = %d", rec.Code)
	}
}

func TestMenu(t *testing.T) {
	rec := do(t, NewRouter(testDeps()), "/api/menu")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/yaml") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "token: \"8\"") {
		t.Fatalf("menu yaml = %s", rec.Body.String())
	}
}

func TestWebChatMount(t *testing.T) {
	deps := testDeps()
	deps.WebChat = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	deps.WebChatPath = "/chat"
	if rec := do(t, NewRouter(deps), "/chat"); rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
