package workspace

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedExport reports an unknown history export format.
var ErrUnsupportedExport = errors.New("unsupported export format")

// ExportFormats lists the history export formats.
var ExportFormats = []string{"csv", "json", "txt"}

// ExportHistory writes entries to w in format and returns the content type
// and file extension of the result.
func ExportHistory(w io.Writer, entries []*HistoryEntry, format string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []*HistoryEntry{}
		}
		return "application/json", "json", enc.Encode(entries)
	case "csv":
		return "text/csv", "csv", exportHistoryCSV(w, entries)
	case "txt":
		return "text/plain; charset=utf-8", "txt", exportHistoryText(w, entries)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedExport, format)
	}
}

// HistoryExportName names a history export written at t.
func HistoryExportName(t time.Time, ext string) string {
	return fmt.Sprintf("reqdeck-history-%d.%s", t.UnixMilli(), ext)
}

func exportHistoryCSV(w io.Writer, entries []*HistoryEntry) error {
	writer := csv.NewWriter(w)
	columns := []string{
		"id", "timestamp", "method", "url", "status", "status_text",
		"duration_ms", "body_type", "headers", "body",
	}
	if err := writer.Write(columns); err != nil {
		return err
	}

	for _, entry := range entries {
		headers := make(map[string]string)
		for _, h := range entry.Request.EnabledHeaders() {
			headers[h.Key] = h.Value
		}
		headersJSON, _ := json.Marshal(headers)

		status, statusText, duration := "", "", ""
		if resp := entry.Response; resp != nil {
			status = strconv.Itoa(resp.Status)
			statusText = resp.StatusText
			duration = strconv.FormatInt(resp.Duration, 10)
		}
		line := []string{
			entry.ID.String(),
			entry.Timestamp.UTC().Format(time.RFC3339),
			string(entry.Request.Method),
			entry.Request.URL,
			status,
			statusText,
			duration,
			string(entry.Request.BodyType),
			string(headersJSON),
			entry.Request.Body,
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func exportHistoryText(w io.Writer, entries []*HistoryEntry) error {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s  %s\n", entry.ID, entry.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "%s %s\n", entry.Request.Method, entry.Request.URL)

		headers := entry.Request.EnabledHeaders()
		sort.SliceStable(headers, func(a, c int) bool { return headers[a].Key < headers[c].Key })
		for _, h := range headers {
			fmt.Fprintf(&b, "%s: %s\n", h.Key, h.Value)
		}
		if entry.Request.Method.CarriesBody() && entry.Request.Body != "" {
			b.WriteString("\n")
			b.WriteString(entry.Request.Body)
			b.WriteString("\n")
		}

		switch resp := entry.Response; {
		case resp == nil:
			b.WriteString("--> no response\n")
		case resp.Failed():
			fmt.Fprintf(&b, "--> failed: %s\n", resp.StatusText)
		default:
			fmt.Fprintf(&b, "--> %d %s (%d ms)\n", resp.Status, resp.StatusText, resp.Duration)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
