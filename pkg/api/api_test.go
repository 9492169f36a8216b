package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"wabot/pkg/session"
	"wabot/pkg/state"
)

const testKey = "secret-key"

type fakeSession struct {
	sent        []string
	failTargets map[string]bool
}

func (f *fakeSession) Connect(ctx context.Context) error { return nil }
func (f *fakeSession) Disconnect()                       {}
func (f *fakeSession) Close() error                      { return nil }
func (f *fakeSession) OwnID() string                     { return "bot@s.whatsapp.net" }
func (f *fakeSession) Events() <-chan session.Event      { return nil }

func (f *fakeSession) SendText(ctx context.Context, to, text string) error {
	if f.failTargets[to] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, to+"|"+text)
	return nil
}

func (f *fakeSession) SendQuotedText(ctx context.Context, to, text string, quoted *session.MessageEvent) error {
	return f.SendText(ctx, to, text)
}

func (f *fakeSession) MarkRead(ctx context.Context, msg *session.MessageEvent) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *state.State) {
	t.Helper()
	st := state.New()
	return NewServer(testKey, st), st
}

func doRequest(t *testing.T, srv *Server, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if _, ok := body["uptime"]; !ok {
		t.Error("expected uptime field")
	}
	if _, ok := body["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestAdminRoutesRequireKey(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, key := range []string{"", "wrong-key"} {
		rec := doRequest(t, srv, http.MethodGet, "/api/admin/status", key, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q: expected 401, got %d", key, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "Unauthorized" {
			t.Errorf("key %q: unexpected body %v", key, body)
		}
	}
}

func TestStatusReportsCounters(t *testing.T) {
	srv, st := newTestServer(t)
	st.TrackMessage("a@s.whatsapp.net")
	st.TrackMessage("b@s.whatsapp.net")
	st.CountCommand()
	st.CountCommand()
	st.CountCommand()

	rec := doRequest(t, srv, http.MethodGet, "/api/admin/status", testKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["isActive"] != true {
		t.Error("expected isActive true")
	}
	if body["totalUsers"] != float64(2) {
		t.Errorf("expected 2 users, got %v", body["totalUsers"])
	}
	if body["totalCommands"] != float64(3) {
		t.Errorf("expected 3 total commands, got %v", body["totalCommands"])
	}
	if body["commandsToday"] != float64(3) {
		t.Errorf("expected 3 commands today, got %v", body["commandsToday"])
	}
}

func TestToggleFlipsActiveFlag(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/toggle", testKey,
		map[string]any{"status": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["newStatus"] != false {
		t.Errorf("unexpected body %v", body)
	}
	if st.IsActive() {
		t.Error("expected state inactive after toggle")
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/admin/toggle", testKey,
		map[string]any{"status": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !st.IsActive() {
		t.Error("expected state active after second toggle")
	}
}

func TestToggleRejectsNonBoolean(t *testing.T) {
	srv, st := newTestServer(t)

	cases := []any{
		map[string]any{"status": "yes"},
		map[string]any{"status": 1},
		map[string]any{},
	}
	for _, body := range cases {
		rec := doRequest(t, srv, http.MethodPost, "/api/admin/toggle", testKey, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, rec.Code)
		}
	}
	if !st.IsActive() {
		t.Error("rejected toggles must not mutate the flag")
	}
}

func TestUsersListsRegistry(t *testing.T) {
	srv, st := newTestServer(t)
	st.TrackMessage("a@s.whatsapp.net")
	st.TrackMessage("a@s.whatsapp.net")
	st.TrackMessage("b@s.whatsapp.net")

	rec := doRequest(t, srv, http.MethodGet, "/api/admin/users", testKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(2) {
		t.Errorf("expected total 2, got %v", body["total"])
	}
	users, ok := body["users"].([]any)
	if !ok || len(users) != 2 {
		t.Fatalf("expected 2 user entries, got %v", body["users"])
	}
}

func TestBroadcastWithoutSessionFails(t *testing.T) {
	srv, st := newTestServer(t)
	st.TrackMessage("a@s.whatsapp.net")

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/broadcast", testKey,
		map[string]any{"message": "hello"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestBroadcastRequiresMessage(t *testing.T) {
	srv, st := newTestServer(t)
	st.SetSession(&fakeSession{})

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/broadcast", testKey,
		map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBroadcastSendsToAllUsers(t *testing.T) {
	srv, st := newTestServer(t)
	sess := &fakeSession{}
	st.SetSession(sess)
	st.TrackMessage("a@s.whatsapp.net")
	st.TrackMessage("b@s.whatsapp.net")
	st.TrackMessage("c@s.whatsapp.net")

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/broadcast", testKey,
		map[string]any{"message": "maintenance tonight"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("expected success, got %v", body)
	}
	if body["sentCount"] != float64(3) || body["failedCount"] != float64(0) {
		t.Errorf("unexpected counts %v", body)
	}
	if len(sess.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(sess.sent))
	}
	for _, s := range sess.sent {
		if !strings.Contains(s, "*Broadcast Message*\n\nmaintenance tonight") {
			t.Errorf("missing broadcast header in %q", s)
		}
	}
}

func TestBroadcastCountsPerRecipientFailures(t *testing.T) {
	srv, st := newTestServer(t)
	sess := &fakeSession{failTargets: map[string]bool{"b@s.whatsapp.net": true}}
	st.SetSession(sess)
	st.TrackMessage("a@s.whatsapp.net")
	st.TrackMessage("b@s.whatsapp.net")
	st.TrackMessage("c@s.whatsapp.net")

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/broadcast", testKey,
		map[string]any{"message": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["sentCount"] != float64(2) || body["failedCount"] != float64(1) {
		t.Errorf("unexpected counts %v", body)
	}
	if body["success"] != false {
		t.Errorf("expected success false with failures, got %v", body["success"])
	}
}

func TestBroadcastSingleTarget(t *testing.T) {
	srv, st := newTestServer(t)
	sess := &fakeSession{}
	st.SetSession(sess)
	st.TrackMessage("a@s.whatsapp.net")
	st.TrackMessage("b@s.whatsapp.net")

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/broadcast", testKey,
		map[string]any{"message": "just you", "targetUserId": "b@s.whatsapp.net"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["sentCount"] != float64(1) {
		t.Errorf("expected 1 send, got %v", body["sentCount"])
	}
	if len(sess.sent) != 1 || !strings.HasPrefix(sess.sent[0], "b@s.whatsapp.net|") {
		t.Errorf("unexpected sends %v", sess.sent)
	}
}

func TestActivityReturnsRecentEntries(t *testing.T) {
	srv, st := newTestServer(t)
	st.Activity().Record(state.ActivityInfo, "first")
	st.Activity().Record(state.ActivityCommand, "second")

	rec := doRequest(t, srv, http.MethodGet, "/api/admin/activity", testKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(2) {
		t.Errorf("expected 2 entries, got %v", body["total"])
	}
}

func TestEventsStreamsActivity(t *testing.T) {
	srv, st := newTestServer(t)
	st.Activity().Record(state.ActivityConnection, "connected")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/events"
	header := http.Header{"X-API-Key": []string{testKey}}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var entry state.ActivityEntry
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if entry.Message != "connected" {
		t.Errorf("expected replayed entry, got %+v", entry)
	}

	st.Activity().Record(state.ActivityBroadcast, "live entry")
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read live entry: %v", err)
	}
	if entry.Message != "live entry" {
		t.Errorf("expected live entry, got %+v", entry)
	}
}

func TestEventsRejectsMissingKey(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial failure without key")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 handshake response, got %+v", resp)
	}
}
