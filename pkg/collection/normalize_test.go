package collection

import (
	"errors"
	"strings"
	"testing"

	"github.com/funnyzak/reqdeck/pkg/request"
)

func TestNormalizeV2FolderWithTwoRequests(t *testing.T) {
	doc := `{
		"info": {"name": "Demo", "schema": "` + SchemaV21 + `"},
		"item": [
			{
				"name": "Users",
				"item": [
					{"name": "List", "request": {"method": "GET", "url": "https://api.local/users"}},
					{"name": "Create", "request": {"method": "POST", "url": {"raw": "https://api.local/users"}}}
				]
			}
		]
	}`

	tree, err := NormalizeBytes([]byte(doc))
	if err != nil {
		t.Fatalf("NormalizeBytes failed: %v", err)
	}
	if len(tree) != 1 {
		t.Fatalf("expected one root node, got %d", len(tree))
	}
	folder, ok := tree[0].(*Folder)
	if !ok {
		t.Fatalf("expected folder, got %T", tree[0])
	}
	if folder.IsExpanded {
		t.Errorf("imported folders start collapsed")
	}
	if len(folder.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(folder.Items))
	}
	if folder.ID.IsZero() {
		t.Errorf("expected generated folder id")
	}
	second := folder.Items[1].(*RequestItem)
	if second.Request.URL != "https://api.local/users" || second.Request.Method != request.MethodPost {
		t.Errorf("unexpected request %+v", second.Request)
	}
	if second.CreatedAt.IsZero() {
		t.Errorf("expected createdAt to be stamped")
	}
}

func TestNormalizeV2RequestDetails(t *testing.T) {
	doc := `{
		"info": {"name": "Demo"},
		"item": [
			{
				"id": "keep-me",
				"request": {
					"method": "post",
					"url": {"protocol": "https", "host": ["api", "local"], "path": ["v1", "items"], "query": [{"key": "a", "value": "1"}, {"key": "b", "value": "2", "disabled": true}]},
					"header": [
						{"key": "X-On", "value": "1"},
						{"key": "X-Off", "value": "0", "disabled": true}
					],
					"body": {"mode": "raw", "raw": "<a/>", "options": {"raw": {"language": "xml"}}},
					"auth": {"type": "apikey", "apikey": [{"key": "key", "value": "X-Key"}, {"key": "value", "value": "{{token}}"}, {"key": "in", "value": "query"}]}
				}
			},
			{
				"request": {
					"method": "PUT",
					"url": "http://x",
					"body": {"mode": "urlencoded", "urlencoded": [{"key": "a", "value": "1"}, {"key": "b", "value": "2"}]}
				}
			},
			{
				"request": {
					"method": "PUT",
					"url": "http://x",
					"body": {"mode": "formdata", "formdata": [{"key": "f", "value": "v"}]}
				}
			},
			{
				"request": {"method": "POST", "url": "http://x", "body": {"mode": "raw", "raw": "{}"}}
			}
		]
	}`

	tree, err := NormalizeBytes([]byte(doc))
	if err != nil {
		t.Fatalf("NormalizeBytes failed: %v", err)
	}
	if len(tree) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(tree))
	}

	first := tree[0].(*RequestItem)
	if first.ID != "keep-me" {
		t.Errorf("expected id preserved, got %s", first.ID)
	}
	if first.Name != "Imported Request 1" {
		t.Errorf("unexpected default name %q", first.Name)
	}
	if first.Request.URL != "https://api.local/v1/items?a=1" {
		t.Errorf("unexpected structured url %q", first.Request.URL)
	}
	if len(first.Request.Headers) != 2 || !first.Request.Headers[0].Enabled || first.Request.Headers[1].Enabled {
		t.Errorf("unexpected headers %+v", first.Request.Headers)
	}
	if first.Request.BodyType != request.BodyXML || first.Request.Body != "<a/>" {
		t.Errorf("unexpected body %q/%s", first.Request.Body, first.Request.BodyType)
	}
	auth := first.Request.Auth
	if auth.Type != request.AuthAPIKey || auth.APIKey.Location != request.LocationQuery || auth.APIKey.Value != "{{token}}" {
		t.Errorf("unexpected auth %+v", auth)
	}

	second := tree[1].(*RequestItem)
	if second.Request.Body != "a=1&b=2" || second.Request.BodyType != request.BodyFormData {
		t.Errorf("unexpected urlencoded body %q/%s", second.Request.Body, second.Request.BodyType)
	}

	third := tree[2].(*RequestItem)
	if !strings.Contains(third.Request.Body, `"key":"f"`) || third.Request.BodyType != request.BodyFormData {
		t.Errorf("unexpected formdata body %q/%s", third.Request.Body, third.Request.BodyType)
	}

	fourth := tree[3].(*RequestItem)
	if fourth.Request.BodyType != request.BodyJSON {
		t.Errorf("raw without language defaults to json, got %s", fourth.Request.BodyType)
	}
}

func TestNormalizeV1(t *testing.T) {
	doc := `{
		"id": "legacy",
		"name": "Legacy",
		"order": ["r1"],
		"folders_order": ["f1"],
		"folders": [{"id": "f1", "name": "Nested", "order": ["r2"]}],
		"requests": [
			{"id": "r1", "name": "Root", "method": "GET", "url": "http://x", "headers": {"Accept": "application/json"}},
			{"id": "r2", "name": "Inner", "method": "POST", "url": "http://x", "headers": "X-A: 1\nX-B: 2\n", "dataMode": "raw", "rawModeData": "plain text"},
			{"id": "r3", "method": "POST", "url": "http://x", "dataMode": "urlencoded", "data": [{"key": "a", "value": "1"}]}
		]
	}`

	tree, err := NormalizeBytes([]byte(doc))
	if err != nil {
		t.Fatalf("NormalizeBytes failed: %v", err)
	}
	if tree.CountRequests() != 3 {
		t.Fatalf("expected 3 requests, got %d", tree.CountRequests())
	}
	folder, ok := tree[0].(*Folder)
	if !ok || folder.ID != "f1" || len(folder.Items) != 1 {
		t.Fatalf("expected folder f1 first, got %#v", tree[0])
	}

	root := tree.FindRequest("r1")
	if len(root.Request.Headers) != 1 || root.Request.Headers[0].Key != "Accept" || !root.Request.Headers[0].Enabled {
		t.Errorf("unexpected mapped headers %+v", root.Request.Headers)
	}

	inner := tree.FindRequest("r2")
	if len(inner.Request.Headers) != 2 || inner.Request.Headers[1].Value != "2" {
		t.Errorf("unexpected text headers %+v", inner.Request.Headers)
	}
	if inner.Request.Body != "plain text" || inner.Request.BodyType != request.BodyRaw {
		t.Errorf("unexpected raw body %q/%s", inner.Request.Body, inner.Request.BodyType)
	}

	orphan := tree.FindRequest("r3")
	if orphan == nil || orphan.Request.BodyType != request.BodyFormData || orphan.Request.Body != "a=1" {
		t.Errorf("unexpected unordered request %+v", orphan)
	}
}

func TestNormalizeInternalArray(t *testing.T) {
	doc := `[
		{"id": "a", "name": "One", "request": {"method": "GET", "url": "http://x", "headers": [], "body": "", "bodyType": "json"}, "createdAt": "2024-01-01T00:00:00.000Z"},
		{"id": "f", "name": "Folder", "type": "folder", "isExpanded": true, "items": [
			{"name": "Two", "request": {"method": "DELETE", "url": "http://y"}}
		]}
	]`

	tree, err := NormalizeBytes([]byte(doc))
	if err != nil {
		t.Fatalf("NormalizeBytes failed: %v", err)
	}
	if tree.FindRequest("a") == nil {
		t.Fatalf("expected id a preserved")
	}
	folder := tree.FindFolder("f")
	if folder == nil || !folder.IsExpanded {
		t.Fatalf("expected folder state preserved")
	}
	if folder.Items[0].NodeID().IsZero() {
		t.Fatalf("expected fresh id for nested item")
	}
}

func TestNormalizeSingleRequest(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		method request.Method
		url    string
	}{
		{
			name:   "bare draft",
			doc:    `{"method": "PATCH", "url": "http://x/1", "headers": {"A": "1"}, "body": {"a": 1}}`,
			method: request.MethodPatch,
			url:    "http://x/1",
		},
		{
			name:   "wrapped draft",
			doc:    `{"name": "Saved", "request": {"method": "DELETE", "url": "http://x/2"}}`,
			method: request.MethodDelete,
			url:    "http://x/2",
		},
		{
			name:   "exchange item",
			doc:    `{"name": "Item", "request": {"method": "HEAD", "url": {"raw": "http://x/3"}, "header": []}}`,
			method: request.MethodHead,
			url:    "http://x/3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NormalizeBytes([]byte(tt.doc))
			if err != nil {
				t.Fatalf("NormalizeBytes failed: %v", err)
			}
			if len(tree) != 1 {
				t.Fatalf("expected a single node, got %d", len(tree))
			}
			item := tree[0].(*RequestItem)
			if item.Request.Method != tt.method || item.Request.URL != tt.url {
				t.Fatalf("unexpected request %+v", item.Request)
			}
		})
	}
}

func TestNormalizeBareDraftEncodesStructuredBody(t *testing.T) {
	tree, err := NormalizeBytes([]byte(`{"method": "POST", "url": "http://x", "body": {"a": 1}}`))
	if err != nil {
		t.Fatalf("NormalizeBytes failed: %v", err)
	}
	if body := tree[0].(*RequestItem).Request.Body; body != `{"a":1}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestNormalizeYAML(t *testing.T) {
	doc := `
info:
  name: From YAML
item:
  - name: Ping
    request:
      method: GET
      url: http://x/ping
`
	tree, err := NormalizeBytes([]byte(doc))
	if err != nil {
		t.Fatalf("NormalizeBytes failed: %v", err)
	}
	if len(tree) != 1 || tree[0].NodeName() != "Ping" {
		t.Fatalf("unexpected yaml tree %#v", tree)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{name: "empty document", doc: "", err: ErrUnsupportedFormat},
		{name: "scalar", doc: `"hello"`, err: ErrUnsupportedFormat},
		{name: "unknown object", doc: `{"foo": "bar"}`, err: ErrUnsupportedFormat},
		{name: "item without info", doc: `{"item": []}`, err: ErrUnsupportedFormat},
		{name: "empty v2", doc: `{"info": {}, "item": []}`, err: ErrEmptyImport},
		{name: "only folders", doc: `{"info": {}, "item": [{"name": "F", "item": [{"name": "G", "item": []}]}]}`, err: ErrEmptyImport},
		{name: "empty array", doc: `[]`, err: ErrEmptyImport},
		{name: "empty v1", doc: `{"requests": []}`, err: ErrEmptyImport},
		{name: "array of scalars", doc: `[1, 2]`, err: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeBytes([]byte(tt.doc))
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}
}
