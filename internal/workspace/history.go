package workspace

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

// DefaultHistoryLimit caps the number of kept history entries.
const DefaultHistoryLimit = 50

// HistoryEntry is one sent request together with its response summary.
type HistoryEntry struct {
	ID        ident.ID          `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Request   request.Draft     `json:"request"`
	Response  *request.Response `json:"response"`
}

// UnmarshalJSON tolerates numeric ids and epoch-millisecond timestamps.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        ident.ID          `json:"id"`
		Timestamp json.RawMessage   `json:"timestamp"`
		Request   request.Draft     `json:"request"`
		Response  *request.Response `json:"response"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.ID = raw.ID
	h.Request = raw.Request
	h.Request.Normalize()
	h.Response = raw.Response
	h.Timestamp = time.Time{}
	if len(raw.Timestamp) > 0 {
		var v any
		dec := json.NewDecoder(bytes.NewReader(raw.Timestamp))
		dec.UseNumber()
		if err := dec.Decode(&v); err == nil {
			h.Timestamp = collection.ParseTime(v)
		}
	}
	return nil
}

func (h *HistoryEntry) clone() *HistoryEntry {
	if h == nil {
		return nil
	}
	out := *h
	out.Request = h.Request.Clone()
	if h.Response != nil {
		resp := *h.Response
		if h.Response.Headers != nil {
			resp.Headers = make(map[string]string, len(h.Response.Headers))
			for k, v := range h.Response.Headers {
				resp.Headers[k] = v
			}
		}
		out.Response = &resp
	}
	return &out
}

// HistoryQuery filters history listings.
type HistoryQuery struct {
	// Search matches the request URL case-insensitively.
	Search string
	Method string
	Limit  int
	Offset int
}

func (q HistoryQuery) matches(entry *HistoryEntry) bool {
	if method := strings.ToUpper(strings.TrimSpace(q.Method)); method != "" {
		if string(entry.Request.Method) != method {
			return false
		}
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(entry.Request.URL), search) ||
		strings.Contains(strings.ToLower(string(entry.Request.Method)), search)
}
