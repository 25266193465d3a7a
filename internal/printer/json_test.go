package printer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/environment"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, decoded)
	}
	return out
}

func TestJSONPrinter_PrintResult(t *testing.T) {
	p := NewJSONPrinter(noopLogger{})
	buf := &bytes.Buffer{}
	p.SetOutput(buf)

	if err := p.PrintResult(jsonResult()); err != nil {
		t.Fatalf("print result failed: %v", err)
	}

	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["type"] != "result" {
		t.Fatalf("unexpected envelope: %v", lines)
	}
	data := lines[0]["data"].(map[string]interface{})
	resp := data["response"].(map[string]interface{})
	if resp["status"] != float64(201) {
		t.Fatalf("unexpected status: %v", resp["status"])
	}
	if data["environment"] != "dev" {
		t.Fatalf("unexpected environment: %v", data["environment"])
	}
}

func TestJSONPrinter_Lists(t *testing.T) {
	p := NewJSONPrinter(noopLogger{})
	buf := &bytes.Buffer{}
	p.SetOutput(buf)

	envs := []*environment.Environment{{ID: "e1", Name: "dev"}, {ID: "e2", Name: "prod"}}
	if err := p.PrintEnvironments(envs, "e2"); err != nil {
		t.Fatalf("print environments failed: %v", err)
	}
	if err := p.PrintHistory([]*workspace.HistoryEntry(nil), 7); err != nil {
		t.Fatalf("print history failed: %v", err)
	}
	if err := p.PrintNotice("saved"); err != nil {
		t.Fatalf("print notice failed: %v", err)
	}

	lines := decodeLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	list := lines[0]["data"].([]interface{})
	if list[0].(map[string]interface{})["active"] != false || list[1].(map[string]interface{})["active"] != true {
		t.Fatalf("unexpected active flags: %v", list)
	}
	if list[1].(map[string]interface{})["name"] != "prod" {
		t.Fatalf("environment fields should be inlined: %v", list[1])
	}

	if lines[1]["type"] != "history" || lines[1]["total"] != float64(7) {
		t.Fatalf("unexpected history envelope: %v", lines[1])
	}
	if entries, ok := lines[1]["data"].([]interface{}); !ok || len(entries) != 0 {
		t.Fatalf("expected empty history array, got %v", lines[1]["data"])
	}

	if lines[2]["type"] != "notice" || lines[2]["data"] != "saved" {
		t.Fatalf("unexpected notice: %v", lines[2])
	}
}
