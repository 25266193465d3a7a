package printer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/i18n"
	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

func init() {
	color.NoColor = true
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

func newTestPrinter(t *testing.T, mutate func(*config.OutputConfig)) (*ConsolePrinter, *bytes.Buffer) {
	t.Helper()
	t.Setenv("REQDECK_TEST_WIDTH", "100")

	translator, err := i18n.NewTranslator("en")
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	cfg := &config.OutputConfig{
		Mode:          "console",
		Locale:        "en",
		RedactHeaders: []string{"authorization", "set-cookie"},
		BodyView: config.BodyViewConfig{
			Enable: true,
			Json:   config.JSONViewConfig{Enable: true, Pretty: true, MaxIndentBytes: 1024},
			Form:   config.FormViewConfig{Enable: true},
			XML:    config.XMLViewConfig{Enable: true, Pretty: true, StripControl: true},
			HTML:   config.HTMLViewConfig{Enable: true, StripControl: true},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	p := NewConsolePrinter(noopLogger{}, cfg, translator)
	buf := &bytes.Buffer{}
	p.SetOutput(buf)
	return p, buf
}

func jsonResult() *composer.Result {
	return &composer.Result{
		Preview: composer.Preview{
			Resolved:    &request.Resolved{Method: request.MethodPost, URL: "https://api.example.com/users"},
			Environment: "dev",
		},
		Response: &request.Response{
			Status:     201,
			StatusText: "Created",
			Data:       map[string]any{"id": json.Number("42"), "name": "demo"},
			Headers: map[string]string{
				"content-type": "application/json",
				"set-cookie":   "session=secret",
			},
			Duration: 35,
			Size:     27,
		},
	}
}

func TestConsolePrinter_PrintResult(t *testing.T) {
	p, buf := newTestPrinter(t, nil)

	if err := p.PrintResult(jsonResult()); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"POST https://api.example.com/users  [Env: dev]",
		"Status: 201 Created | Time: 35ms | Size: 27 B",
		"content-type: application/json",
		"set-cookie: [REDACTED]",
		"\n  \"id\": 42,",
		"\n  \"name\": \"demo\"",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "session=secret") {
		t.Fatalf("sensitive header should be redacted")
	}
}

func TestConsolePrinter_PrintResultFailure(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	res := &composer.Result{
		Preview:  composer.Preview{Resolved: &request.Resolved{Method: request.MethodGet, URL: "http://127.0.0.1:1"}},
		Response: request.FailureResponse(errString("connection refused"), 3),
	}

	if err := p.PrintResult(res); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Request failed: connection refused") {
		t.Fatalf("expected failure line, got:\n%s", output)
	}
	if strings.Contains(output, "Status:") {
		t.Fatalf("failure should not print a status line")
	}
}

func TestConsolePrinter_Silence(t *testing.T) {
	p, buf := newTestPrinter(t, func(c *config.OutputConfig) { c.Silence = true })

	if err := p.PrintResult(jsonResult()); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Status: 201 Created") {
		t.Fatalf("summary should still be printed, got:\n%s", output)
	}
	if strings.Contains(output, "demo") || strings.Contains(output, "content-type") {
		t.Fatalf("silenced output should omit headers and body, got:\n%s", output)
	}
}

func TestConsolePrinter_FormTable(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	res := jsonResult()
	res.Response.Headers = map[string]string{"content-type": "application/x-www-form-urlencoded"}
	res.Response.Data = "name=demo&tag=a&tag=b"

	if err := p.PrintResult(res); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Form data:") {
		t.Fatalf("expected form title, got:\n%s", output)
	}
	if !strings.Contains(output, "tag  │ a, b") {
		t.Fatalf("expected aligned form row, got:\n%s", output)
	}
}

func TestConsolePrinter_TruncationNotice(t *testing.T) {
	p, buf := newTestPrinter(t, func(c *config.OutputConfig) { c.BodyView.MaxPreviewBytes = 10 })
	res := jsonResult()
	res.Response.Headers = map[string]string{"content-type": "text/plain"}
	res.Response.Data = strings.Repeat("abc", 10)

	if err := p.PrintResult(res); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "abcabcabca\n") {
		t.Fatalf("expected body cut to 10 bytes, got:\n%s", output)
	}
	if !strings.Contains(output, "Body truncated to 10 B of 30 B") {
		t.Fatalf("expected truncation notice, got:\n%s", output)
	}
}

func TestConsolePrinter_BinaryPreview(t *testing.T) {
	p, buf := newTestPrinter(t, func(c *config.OutputConfig) {
		c.BodyView.Binary = config.BinaryViewConfig{HexPreviewEnable: true, HexPreviewBytes: 4}
	})
	res := jsonResult()
	res.Response.Headers = map[string]string{"content-type": "image/png"}
	res.Response.Data = map[string]any{"binary": true, "base64": "iVBORwAAAAA="}

	if err := p.PrintResult(res); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "[Binary Body: image/png, 8 B. Content skipped.]") {
		t.Fatalf("expected binary summary, got:\n%s", output)
	}
	if !strings.Contains(output, "Hex preview (4 bytes):") || !strings.Contains(output, "89 50 4e 47") {
		t.Fatalf("expected hex preview, got:\n%s", output)
	}
}

func TestConsolePrinter_PrintPreview(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	preview := &composer.Preview{
		Resolved: &request.Resolved{
			Method:  request.MethodPost,
			URL:     "https://api.example.com/{{version}}/items",
			Headers: map[string]string{"Authorization": "Bearer abc", "Content-Type": "application/json"},
			Body:    map[string]any{"a": 1},
		},
		Auth:       "header Authorization",
		Unresolved: []string{"version"},
	}

	if err := p.PrintPreview(preview); err != nil {
		t.Fatalf("print preview failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{
		"Resolved request (not sent)",
		"Auth: header Authorization",
		"Unresolved placeholders: version",
		"Authorization: [REDACTED]",
		"\"a\": 1",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Bearer abc") {
		t.Fatalf("authorization should be redacted")
	}
}

func TestConsolePrinter_PrintHistory(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	now := time.Now()
	entries := []*workspace.HistoryEntry{
		{
			ID:        ident.NewTimestamp(now),
			Timestamp: now,
			Request:   request.Draft{Method: request.MethodGet, URL: "https://example.com/a"},
			Response:  &request.Response{Status: 200, Duration: 12},
		},
		{
			ID:        ident.NewTimestamp(now),
			Timestamp: now,
			Request:   request.Draft{Method: request.MethodDelete, URL: "https://example.com/b"},
			Response:  request.FailureResponse(errString("timeout"), 5),
		},
	}

	if err := p.PrintHistory(entries, 5); err != nil {
		t.Fatalf("print history failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"METHOD", "GET", "200", "12ms", "DELETE", "ERR", "https://example.com/b", "2 of 5 entries"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}

	buf.Reset()
	if err := p.PrintHistory(nil, 0); err != nil {
		t.Fatalf("print empty history failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No history yet." {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}
}

func TestConsolePrinter_PrintTree(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	folder := &collection.Folder{ID: "f1", Name: "Users", IsExpanded: true}
	folder.Items = collection.Tree{
		&collection.RequestItem{ID: "r1", Name: "create", Request: request.Draft{Method: request.MethodPost, URL: "/users"}},
	}
	tree := collection.Tree{
		folder,
		&collection.Folder{ID: "f2", Name: "Empty", Items: collection.Tree{}},
		&collection.RequestItem{ID: "r2", Name: "health", Request: request.Draft{Method: request.MethodGet, URL: "/health"}},
	}

	if err := p.PrintTree(tree); err != nil {
		t.Fatalf("print tree failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"▾ Users  f1", "  POST   create  /users  r1", "▸ Empty", "GET    health", "2 requests"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestConsolePrinter_PrintEnvironments(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	envs := []*environment.Environment{
		{ID: "e1", Name: "dev", Variables: []environment.Variable{
			{Key: "host", Value: "localhost", Enabled: true},
			{Key: "token", Value: "x", Enabled: false},
		}},
		{ID: "e2", Name: "production"},
	}

	if err := p.PrintEnvironments(envs, "e1"); err != nil {
		t.Fatalf("print environments failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "* dev         e1  2 variables, 1 active") {
		t.Fatalf("expected active dev line, got:\n%s", output)
	}
	if !strings.Contains(output, "  production  e2  0 variables, 0 active") {
		t.Fatalf("expected production line, got:\n%s", output)
	}

	buf.Reset()
	if err := p.PrintEnvironments(envs, ""); err != nil {
		t.Fatalf("print environments failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No active environment") {
		t.Fatalf("expected none-active notice, got:\n%s", buf.String())
	}
}

func TestConsolePrinter_PrintSnapshots(t *testing.T) {
	p, buf := newTestPrinter(t, nil)
	snaps := []*storage.Snapshot{
		{ID: "SNAP-2", Timestamp: time.Now(), Reason: "debounce", Size: 2048},
	}

	if err := p.PrintSnapshots(snaps, 1); err != nil {
		t.Fatalf("print snapshots failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"SNAP-2", "debounce", "2.0 kB", "1 of 1 entries"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}

	buf.Reset()
	_ = p.PrintSnapshots(nil, 0)
	if !strings.Contains(buf.String(), "No saved revisions.") {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}
}

func TestConsolePrinter_Locale(t *testing.T) {
	p, buf := newTestPrinter(t, func(c *config.OutputConfig) { c.Locale = "zh_CN" })

	if err := p.PrintResult(jsonResult()); err != nil {
		t.Fatalf("print result failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "状态: 201 Created") {
		t.Fatalf("expected zh-CN labels, got:\n%s", output)
	}
	if !strings.Contains(output, "set-cookie: [已隐藏]") {
		t.Fatalf("expected zh-CN redaction label, got:\n%s", output)
	}
}

func TestWrapText(t *testing.T) {
	p, _ := newTestPrinter(t, nil)
	lines := p.wrapText("alpha beta gamma delta", 11)
	want := []string{"alpha beta", "gamma delta"}
	if len(lines) != len(want) {
		t.Fatalf("expected %v, got %v", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
