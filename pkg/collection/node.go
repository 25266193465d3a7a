// Package collection models the saved request tree and converts it from
// and to the interchange formats used for import and export.
package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

// Node is either a *Folder or a *RequestItem.
type Node interface {
	NodeID() ident.ID
	NodeName() string
	isNode()
}

// Folder groups nodes. It owns its items.
type Folder struct {
	ID         ident.ID `json:"id"`
	Name       string   `json:"name"`
	IsExpanded bool     `json:"isExpanded"`
	Items      Tree     `json:"items"`
}

// RequestItem is a saved request snapshot.
type RequestItem struct {
	ID        ident.ID      `json:"id"`
	Name      string        `json:"name"`
	Request   request.Draft `json:"request"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (f *Folder) NodeID() ident.ID      { return f.ID }
func (f *Folder) NodeName() string      { return f.Name }
func (*Folder) isNode()                 {}
func (r *RequestItem) NodeID() ident.ID { return r.ID }
func (r *RequestItem) NodeName() string { return r.Name }
func (*RequestItem) isNode()            {}

// NewRequestItem snapshots draft into a new item.
func NewRequestItem(name string, draft request.Draft, now time.Time) *RequestItem {
	return &RequestItem{
		ID:        ident.New(),
		Name:      name,
		Request:   draft.Clone(),
		CreatedAt: now,
	}
}

// NewFolder returns an empty, collapsed folder.
func NewFolder(name string) *Folder {
	return &Folder{ID: ident.New(), Name: name, Items: Tree{}}
}

// MarshalJSON tags folders so they can be told apart from requests.
func (f *Folder) MarshalJSON() ([]byte, error) {
	items := f.Items
	if items == nil {
		items = Tree{}
	}
	return json.Marshal(struct {
		ID         ident.ID `json:"id"`
		Type       string   `json:"type"`
		Name       string   `json:"name"`
		IsExpanded bool     `json:"isExpanded"`
		Items      Tree     `json:"items"`
	}{f.ID, "folder", f.Name, f.IsExpanded, items})
}

// UnmarshalJSON accepts createdAt as an RFC 3339 string or epoch
// milliseconds. A missing or unreadable timestamp is left zero.
func (r *RequestItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        ident.ID        `json:"id"`
		Name      string          `json:"name"`
		Request   request.Draft   `json:"request"`
		CreatedAt json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Name = raw.Name
	r.Request = raw.Request
	r.Request.Normalize()
	r.CreatedAt = time.Time{}
	if len(raw.CreatedAt) > 0 {
		var v any
		dec := json.NewDecoder(bytes.NewReader(raw.CreatedAt))
		dec.UseNumber()
		if err := dec.Decode(&v); err == nil {
			r.CreatedAt = ParseTime(v)
		}
	}
	return nil
}

// Tree is an ordered forest of nodes.
type Tree []Node

// MarshalJSON encodes a nil tree as an empty array.
func (t Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, node := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := json.Marshal(node)
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the canonical tree encoding. Objects tagged
// "type": "folder" or carrying an items array are folders; everything else
// is a request.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	if raws == nil {
		*t = nil
		return nil
	}
	out := make(Tree, 0, len(raws))
	for i, raw := range raws {
		node, err := decodeNode(raw)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		out = append(out, node)
	}
	*t = out
	return nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var probe struct {
		Type  string          `json:"type"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	items := bytes.TrimSpace(probe.Items)
	if strings.EqualFold(probe.Type, "folder") || (len(items) > 0 && items[0] == '[') {
		folder := &Folder{}
		if err := json.Unmarshal(raw, folder); err != nil {
			return nil, err
		}
		if folder.Items == nil {
			folder.Items = Tree{}
		}
		return folder, nil
	}
	item := &RequestItem{}
	if err := json.Unmarshal(raw, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ParseTime reads timestamps written as RFC 3339 text or epoch
// milliseconds.
func ParseTime(v any) time.Time {
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t
		}
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	case json.Number:
		if ms, err := val.Int64(); err == nil {
			return time.UnixMilli(ms)
		}
		if f, err := val.Float64(); err == nil {
			return time.UnixMilli(int64(f))
		}
	case float64:
		return time.UnixMilli(int64(val))
	case int:
		return time.UnixMilli(int64(val))
	case int64:
		return time.UnixMilli(val)
	case time.Time:
		return val
	}
	return time.Time{}
}
