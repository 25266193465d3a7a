package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/funnyzak/reqdeck/internal/autosave"
	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/request"
)

// noopLogger implements logger.Logger for tests
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

type fakeDoer struct {
	mu    sync.Mutex
	calls []*request.Resolved
	resp  *request.Response
	err   error
}

func (f *fakeDoer) Do(_ context.Context, r *request.Resolved) (*request.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r)
	if f.err != nil {
		return request.FailureResponse(f.err, 1), f.err
	}
	return f.resp, nil
}

func (f *fakeDoer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDoer) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type testEnv struct {
	ws     *workspace.Store
	doer   *fakeDoer
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*config.ServerConfig)) *testEnv {
	t.Helper()
	ws := workspace.New()
	doer := &fakeDoer{resp: &request.Response{Status: 200, StatusText: "OK", Data: "pong", Headers: map[string]string{}}}
	comp := composer.New(ws, doer, noopLogger{})

	store, err := storage.New(&config.StorageConfig{Driver: "memory", MaxSnapshots: 5}, noopLogger{})
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	coord := autosave.New(ws, store, config.AutoSaveConfig{Enabled: true, Debounce: time.Hour, Interval: time.Hour}, noopLogger{})
	t.Cleanup(func() {
		coord.Close()
		store.Close()
	})

	cfg := &config.ServerConfig{APIPath: "/api", WebSocket: true}
	if mutate != nil {
		mutate(cfg)
	}
	srv := New(cfg, ws, comp, coord, noopLogger{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		if srv.hub != nil {
			srv.hub.Close()
		}
		ts.Close()
	})
	return &testEnv{ws: ws, doer: doer, server: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}, http.Header) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: invalid json %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded, resp.Header
}

func TestCollectionsLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)

	status, folder, _ := e.do(t, http.MethodPost, "/api/collections/folders", map[string]interface{}{"name": "Users"})
	if status != http.StatusCreated {
		t.Fatalf("create folder: status %d", status)
	}
	folderID := folder["id"].(string)

	status, item, _ := e.do(t, http.MethodPost, "/api/collections", map[string]interface{}{
		"name":     "list",
		"folderId": folderID,
		"request":  map[string]interface{}{"method": "get", "url": "https://example.com/users"},
	})
	if status != http.StatusCreated {
		t.Fatalf("save request: status %d", status)
	}
	itemID := item["id"].(string)
	if req := item["request"].(map[string]interface{}); req["method"] != "GET" {
		t.Fatalf("method should be normalized, got %v", req["method"])
	}

	status, listing, _ := e.do(t, http.MethodGet, "/api/collections", nil)
	if status != http.StatusOK || listing["total"] != float64(1) {
		t.Fatalf("list collections: status %d body %v", status, listing)
	}

	status, renamed, _ := e.do(t, http.MethodPatch, "/api/collections/"+itemID, map[string]interface{}{"name": "all users"})
	if status != http.StatusOK || renamed["name"] != "all users" {
		t.Fatalf("rename: status %d body %v", status, renamed)
	}

	status, _, _ = e.do(t, http.MethodPatch, "/api/collections/"+itemID, map[string]interface{}{"isExpanded": true})
	if status != http.StatusBadRequest {
		t.Fatalf("expanding a request should be rejected, got %d", status)
	}

	status, found, _ := e.do(t, http.MethodGet, "/api/collections?search=ALL", nil)
	if status != http.StatusOK || len(found["data"].([]interface{})) != 1 {
		t.Fatalf("search: status %d body %v", status, found)
	}

	if status, _, _ = e.do(t, http.MethodDelete, "/api/collections/"+folderID, nil); status != http.StatusNoContent {
		t.Fatalf("delete folder: status %d", status)
	}
	if e.ws.Tree().CountRequests() != 0 {
		t.Fatalf("folder delete should remove its requests")
	}
	if status, _, _ = e.do(t, http.MethodDelete, "/api/collections/"+folderID, nil); status != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", status)
	}
}

func TestEnvironmentsEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)

	status, env, _ := e.do(t, http.MethodPost, "/api/environments", map[string]interface{}{
		"name":      "dev",
		"variables": []map[string]interface{}{{"key": "host", "value": "api.local", "enabled": true}},
	})
	if status != http.StatusCreated {
		t.Fatalf("create environment: status %d", status)
	}
	id := env["id"].(string)
	if id == "" {
		t.Fatalf("environment id should be assigned")
	}

	if status, _, _ = e.do(t, http.MethodPost, "/api/environments", map[string]interface{}{"name": " "}); status != http.StatusBadRequest {
		t.Fatalf("blank name: expected 400, got %d", status)
	}

	status, active, _ := e.do(t, http.MethodPut, "/api/environments/active", map[string]interface{}{"id": id})
	if status != http.StatusOK || active["active"] != id {
		t.Fatalf("activate: status %d body %v", status, active)
	}
	if status, _, _ = e.do(t, http.MethodPut, "/api/environments/active", map[string]interface{}{"id": "missing"}); status != http.StatusNotFound {
		t.Fatalf("activate unknown: expected 404, got %d", status)
	}

	status, updated, _ := e.do(t, http.MethodPut, "/api/environments/"+id, map[string]interface{}{"name": "development"})
	if status != http.StatusOK || updated["name"] != "development" || updated["id"] != id {
		t.Fatalf("update: status %d body %v", status, updated)
	}
	if status, _, _ = e.do(t, http.MethodPut, "/api/environments/nope", map[string]interface{}{"name": "x"}); status != http.StatusNotFound {
		t.Fatalf("update unknown: expected 404, got %d", status)
	}

	if status, _, _ = e.do(t, http.MethodDelete, "/api/environments/"+id, nil); status != http.StatusNoContent {
		t.Fatalf("delete: status %d", status)
	}
	status, listing, _ := e.do(t, http.MethodGet, "/api/environments", nil)
	if status != http.StatusOK || listing["active"] != "" || len(listing["data"].([]interface{})) != 0 {
		t.Fatalf("deleting the active environment should clear it: %v", listing)
	}
}

func TestSendAndHistory(t *testing.T) {
	e := newTestEnv(t, nil)

	status, body, _ := e.do(t, http.MethodPost, "/api/send", map[string]interface{}{
		"request": map[string]interface{}{"method": "POST", "url": "https://example.com", "body": "{bad"},
	})
	if status != http.StatusBadRequest || !strings.Contains(body["error"].(string), "invalid JSON body") {
		t.Fatalf("invalid body: status %d body %v", status, body)
	}
	if e.doer.callCount() != 0 || len(e.ws.History()) != 0 {
		t.Fatalf("invalid body must not be sent or recorded")
	}

	status, result, _ := e.do(t, http.MethodPost, "/api/send", map[string]interface{}{
		"request": map[string]interface{}{"method": "GET", "url": "https://example.com/ping"},
	})
	if status != http.StatusOK {
		t.Fatalf("send: status %d body %v", status, result)
	}
	if resp := result["response"].(map[string]interface{}); resp["status"] != float64(200) || resp["data"] != "pong" {
		t.Fatalf("unexpected response: %v", resp)
	}
	entryID := result["entry"].(map[string]interface{})["id"].(string)

	status, listing, _ := e.do(t, http.MethodGet, "/api/history?search=ping", nil)
	if status != http.StatusOK || listing["total"] != float64(1) {
		t.Fatalf("history: status %d body %v", status, listing)
	}
	if status, _, _ = e.do(t, http.MethodGet, "/api/history/"+entryID, nil); status != http.StatusOK {
		t.Fatalf("history entry: status %d", status)
	}
	if status, _, _ = e.do(t, http.MethodGet, "/api/history/unknown", nil); status != http.StatusNotFound {
		t.Fatalf("unknown entry: expected 404, got %d", status)
	}

	e.doer.fail(errors.New("connection refused"))
	status, failed, _ := e.do(t, http.MethodPost, "/api/send", map[string]interface{}{
		"request": map[string]interface{}{"url": "http://127.0.0.1:1"},
	})
	if status != http.StatusOK {
		t.Fatalf("transport failure: status %d", status)
	}
	if resp := failed["response"].(map[string]interface{}); resp["status"] != float64(0) {
		t.Fatalf("transport failure should be a status-0 response: %v", resp)
	}
	if len(e.ws.History()) != 2 {
		t.Fatalf("transport failure should be recorded")
	}

	if status, _, _ = e.do(t, http.MethodDelete, "/api/history", nil); status != http.StatusNoContent {
		t.Fatalf("clear history: status %d", status)
	}
	if len(e.ws.History()) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestHistoryExport(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ws.AddHistory(request.Draft{Method: request.MethodGet, URL: "https://example.com/a"}, &request.Response{Status: 200, StatusText: "OK"})
	e.ws.AddHistory(request.Draft{Method: request.MethodDelete, URL: "https://example.com/b"}, &request.Response{Status: 204})

	resp, err := http.Get(e.http.URL + "/api/history/export?format=csv&method=DELETE")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), ".csv") {
		t.Fatalf("missing file name: %q", resp.Header.Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "https://example.com/b") {
		t.Fatalf("expected only the DELETE entry, got %q", raw)
	}

	if status, _, _ := e.do(t, http.MethodGet, "/api/history/export?format=xlsx", nil); status != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", status)
	}
}

func TestResolveSavedItemWithNamedEnvironment(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, http.MethodPost, "/api/environments", map[string]interface{}{
		"name":      "staging",
		"variables": []map[string]interface{}{{"key": "token", "value": "s3cret", "enabled": true}},
	})
	e.do(t, http.MethodPost, "/api/collections", map[string]interface{}{
		"name": "me",
		"request": map[string]interface{}{
			"url":  "https://example.com/me/{{user}}",
			"auth": map[string]interface{}{"type": "bearer", "bearer": map[string]interface{}{"token": "{{token}}"}},
		},
	})

	status, preview, _ := e.do(t, http.MethodPost, "/api/resolve", map[string]interface{}{"item": "ME", "environment": "staging"})
	if status != http.StatusOK {
		t.Fatalf("resolve: status %d body %v", status, preview)
	}
	resolved := preview["resolved"].(map[string]interface{})
	headers := resolved["headers"].(map[string]interface{})
	if headers["Authorization"] != "Bearer s3cret" {
		t.Fatalf("expected bearer header, got %v", headers)
	}
	if preview["environment"] != "staging" {
		t.Fatalf("unexpected environment: %v", preview["environment"])
	}
	if unresolved := preview["unresolved"].([]interface{}); len(unresolved) != 1 || unresolved[0] != "user" {
		t.Fatalf("unexpected unresolved list: %v", unresolved)
	}
	if e.doer.callCount() != 0 {
		t.Fatalf("resolve must not send")
	}

	if status, _, _ = e.do(t, http.MethodPost, "/api/resolve", map[string]interface{}{"item": "nope"}); status != http.StatusNotFound {
		t.Fatalf("unknown item: expected 404, got %d", status)
	}
	if status, _, _ = e.do(t, http.MethodPost, "/api/resolve", map[string]interface{}{}); status != http.StatusBadRequest {
		t.Fatalf("empty payload: expected 400, got %d", status)
	}
}

func TestImportAndExport(t *testing.T) {
	e := newTestEnv(t, nil)
	v2 := `{"info":{"name":"demo"},"item":[{"id":"r1","name":"ping","request":{"method":"GET","url":"https://example.com/ping"}}]}`

	if status, _, _ := e.do(t, http.MethodPost, "/api/collections/import", "not json: [unclosed"); status != http.StatusBadRequest {
		t.Fatalf("garbage import: expected 400, got %d", status)
	}
	if status, _, _ := e.do(t, http.MethodPost, "/api/collections/import", `{"info":{"name":"x"},"item":[]}`); status != http.StatusBadRequest {
		t.Fatalf("empty import: expected 400, got %d", status)
	}

	status, res, _ := e.do(t, http.MethodPost, "/api/collections/import", v2)
	if status != http.StatusOK || res["kind"] != "collection" || res["added"] != float64(1) {
		t.Fatalf("import: status %d body %v", status, res)
	}
	// Re-importing the same ids adds nothing.
	_, res, _ = e.do(t, http.MethodPost, "/api/collections/import", v2)
	if res["added"] != float64(0) {
		t.Fatalf("re-import should be idempotent: %v", res)
	}

	status, doc, headers := e.do(t, http.MethodGet, "/api/collections/export", nil)
	if status != http.StatusOK {
		t.Fatalf("export: status %d", status)
	}
	if !strings.Contains(headers.Get("Content-Disposition"), "reqdeck-collection-") {
		t.Fatalf("unexpected disposition: %s", headers.Get("Content-Disposition"))
	}
	if items := doc["item"].([]interface{}); len(items) != 1 {
		t.Fatalf("export should contain one item: %v", doc)
	}

	if status, _, _ := e.do(t, http.MethodPost, "/api/workspace/import", v2); status != http.StatusBadRequest {
		t.Fatalf("collection document on workspace import: expected 400, got %d", status)
	}
	wsDoc := `{"type":"workspace","environments":[{"id":"e1","name":"dev","variables":[]}]}`
	status, res, _ = e.do(t, http.MethodPost, "/api/workspace/import", wsDoc)
	if status != http.StatusOK || res["kind"] != "workspace" {
		t.Fatalf("workspace import: status %d body %v", status, res)
	}
	if len(e.ws.Environments()) != 1 || e.ws.Tree().CountRequests() != 1 {
		t.Fatalf("workspace import should replace only environments")
	}

	status, exported, _ := e.do(t, http.MethodGet, "/api/workspace", nil)
	if status != http.StatusOK || exported["type"] != workspace.ExportType {
		t.Fatalf("workspace export: status %d body %v", status, exported)
	}
}

func TestSettingsSaveAndSnapshots(t *testing.T) {
	e := newTestEnv(t, nil)

	status, settings, _ := e.do(t, http.MethodGet, "/api/settings", nil)
	if status != http.StatusOK || settings["autoSave"] != true {
		t.Fatalf("settings: status %d body %v", status, settings)
	}
	_, settings, _ = e.do(t, http.MethodPut, "/api/settings", map[string]interface{}{"autoSave": false})
	if settings["autoSave"] != false || e.ws.AutoSaveEnabled() {
		t.Fatalf("auto-save should be disabled: %v", settings)
	}

	e.ws.SaveToCollection("ping", request.NewDraft(), "")
	if status, _, _ = e.do(t, http.MethodPost, "/api/save", nil); status != http.StatusOK {
		t.Fatalf("save: status %d", status)
	}

	status, snaps, _ := e.do(t, http.MethodGet, "/api/snapshots", nil)
	if status != http.StatusOK || snaps["total"] != float64(1) {
		t.Fatalf("snapshots: status %d body %v", status, snaps)
	}
	snapID := snaps["data"].([]interface{})[0].(map[string]interface{})["id"].(string)

	e.ws.ClearHistory()
	items := e.ws.Tree()
	if err := e.ws.DeleteNode(items[0].NodeID()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if status, _, _ = e.do(t, http.MethodPost, "/api/snapshots/missing/restore", nil); status != http.StatusNotFound {
		t.Fatalf("restore unknown: expected 404, got %d", status)
	}
	if status, _, _ = e.do(t, http.MethodPost, "/api/snapshots/"+snapID+"/restore", nil); status != http.StatusOK {
		t.Fatalf("restore: status %d", status)
	}
	if e.ws.Tree().CountRequests() != 1 {
		t.Fatalf("restore should bring the saved request back")
	}
}

func TestBodyLimit(t *testing.T) {
	e := newTestEnv(t, func(c *config.ServerConfig) { c.MaxBodyBytes = 16 })

	status, _, _ := e.do(t, http.MethodPost, "/api/collections/import", strings.Repeat("x", 64))
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", status)
	}
}

func TestRootAPIPath(t *testing.T) {
	e := newTestEnv(t, func(c *config.ServerConfig) { c.APIPath = "/" })

	if status, _, _ := e.do(t, http.MethodGet, "/settings", nil); status != http.StatusOK {
		t.Fatalf("expected routes at the root, got %d", status)
	}
}

func TestWebsocketFeed(t *testing.T) {
	e := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.server.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	e.do(t, http.MethodPost, "/api/environments", map[string]interface{}{"name": "dev"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event ChangeEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != "workspace" || len(event.Change) != 1 || event.Change[0] != "environments" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestWebsocketDisabled(t *testing.T) {
	e := newTestEnv(t, func(c *config.ServerConfig) { c.WebSocket = false })

	resp, err := http.Get(e.http.URL + "/api/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without websocket, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{workspace.ErrNotFound, http.StatusNotFound},
		{workspace.ErrNotFolder, http.StatusBadRequest},
		{request.ErrInvalidBody, http.StatusBadRequest},
		{errRequestBodyTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
