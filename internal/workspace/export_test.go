package workspace

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/funnyzak/reqdeck/pkg/request"
)

func exportFixture() []*HistoryEntry {
	ts := time.Date(2025, time.November, 7, 12, 0, 0, 0, time.UTC)
	post := request.NewDraft()
	post.Method = request.MethodPost
	post.URL = "{{baseUrl}}/hook"
	post.Headers = []request.Header{
		{Key: "X-Trace", Value: "1", Enabled: true},
		{Key: "Content-Type", Value: "application/json", Enabled: true},
		{Key: "X-Off", Value: "no", Enabled: false},
	}
	post.Body = `{"foo":"bar"}`

	get := request.NewDraft()
	get.URL = "http://127.0.0.1:1/down"

	return []*HistoryEntry{
		{
			ID:        "2",
			Timestamp: ts,
			Request:   post,
			Response:  &request.Response{Status: 201, StatusText: "Created", Duration: 35},
		},
		{
			ID:        "1",
			Timestamp: ts.Add(-time.Minute),
			Request:   get,
			Response:  request.FailureResponse(errors.New("connection refused"), 2),
		},
	}
}

func TestExportHistoryText(t *testing.T) {
	buf := &bytes.Buffer{}
	contentType, ext, err := ExportHistory(buf, exportFixture(), "txt")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if contentType != "text/plain; charset=utf-8" || ext != "txt" {
		t.Fatalf("unexpected metadata: %s %s", contentType, ext)
	}

	got := buf.String()
	for _, want := range []string{
		"POST {{baseUrl}}/hook\n",
		"Content-Type: application/json\nX-Trace: 1\n",
		`{"foo":"bar"}`,
		"--> 201 Created (35 ms)",
		"--> failed: connection refused",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "X-Off") {
		t.Fatalf("disabled headers must not be exported")
	}
}

func TestExportHistoryCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, ext, err := ExportHistory(buf, exportFixture(), "CSV"); err != nil || ext != "csv" {
		t.Fatalf("export failed: %v (%s)", err, ext)
	}

	rows, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[1][2] != "POST" || rows[1][4] != "201" {
		t.Fatalf("unexpected rows: %v", rows[:2])
	}
	if rows[2][4] != "0" {
		t.Fatalf("failed send should export status 0, got %q", rows[2][4])
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(rows[1][8]), &headers); err != nil || headers["X-Trace"] != "1" {
		t.Fatalf("unexpected headers column %q: %v", rows[1][8], err)
	}
}

func TestExportHistoryJSONAndErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, _, err := ExportHistory(buf, nil, "json"); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("empty history should export as [], got %q", buf.String())
	}

	if _, _, err := ExportHistory(&bytes.Buffer{}, nil, "xlsx"); !errors.Is(err, ErrUnsupportedExport) {
		t.Fatalf("expected ErrUnsupportedExport, got %v", err)
	}

	if name := HistoryExportName(time.UnixMilli(1700000000000), "csv"); name != "reqdeck-history-1700000000000.csv" {
		t.Fatalf("unexpected name %q", name)
	}
}
