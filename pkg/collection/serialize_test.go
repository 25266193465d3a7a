package collection

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

func roundTripTree() Tree {
	created := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	return Tree{
		&RequestItem{ID: "json", Name: "Create", CreatedAt: created, Request: request.Draft{
			Method:   request.MethodPost,
			URL:      "https://{{host}}/v1/items?draft=true",
			Headers:  []request.Header{{Key: "X-Trace", Value: "1", Enabled: true}, {Key: "X-Off", Value: "0", Enabled: false}},
			Body:     `{"name":"x"}`,
			BodyType: request.BodyJSON,
			Auth:     request.AuthConfig{Type: request.AuthBearer, Bearer: &request.BearerAuth{Token: "{{token}}"}},
		}},
		&RequestItem{ID: "form", Name: "Form", CreatedAt: created, Request: request.Draft{
			Method:   request.MethodPut,
			URL:      "http://localhost:8080/form",
			Headers:  []request.Header{},
			Body:     "a=1&b=2",
			BodyType: request.BodyFormData,
			Auth:     request.AuthConfig{Type: request.AuthBasic, Basic: &request.BasicAuth{Username: "u", Password: "p"}},
		}},
		&RequestItem{ID: "text", Name: "Text", CreatedAt: created, Request: request.Draft{
			Method:   request.MethodPost,
			URL:      "http://x/echo",
			Headers:  []request.Header{},
			Body:     "hello",
			BodyType: request.BodyRaw,
			Auth:     request.AuthConfig{Type: request.AuthAPIKey, APIKey: &request.APIKeyAuth{Key: "k", Value: "v", Location: request.LocationQuery}},
		}},
		&RequestItem{ID: "none", Name: "Get", CreatedAt: created, Request: request.Draft{
			Method:   request.MethodGet,
			URL:      "http://x",
			Headers:  []request.Header{},
			BodyType: request.BodyNone,
			Auth:     request.AuthConfig{Type: request.AuthCustom, Custom: &request.CustomAuth{Header: "X-Key", Value: "secret"}},
		}},
		&RequestItem{ID: "xml", Name: "Xml", CreatedAt: created, Request: request.Draft{
			Method:   request.MethodPost,
			URL:      "http://x/xml",
			Headers:  []request.Header{},
			Body:     "not=a&pair",
			BodyType: request.BodyXML,
			Auth:     request.AuthConfig{Type: request.AuthNone},
		}},
	}
}

func sortedIDs(t Tree) []ident.ID {
	ids := t.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestSerializeRoundTrip(t *testing.T) {
	original := roundTripTree()

	raw, err := json.Marshal(Serialize(original))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := NormalizeBytes(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if !reflect.DeepEqual(sortedIDs(original), sortedIDs(restored)) {
		t.Fatalf("ids differ: %v vs %v", sortedIDs(original), sortedIDs(restored))
	}
	for _, want := range original.Requests() {
		got := restored.FindRequest(want.ID)
		if got == nil {
			t.Fatalf("request %s missing", want.ID)
		}
		if got.Name != want.Name {
			t.Errorf("%s: name %q, want %q", want.ID, got.Name, want.Name)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("%s: createdAt %v, want %v", want.ID, got.CreatedAt, want.CreatedAt)
		}
		if !reflect.DeepEqual(got.Request, want.Request) {
			t.Errorf("%s: request differs\n got: %+v\nwant: %+v", want.ID, got.Request, want.Request)
		}
	}
}

func TestSerializeFoldersRoundTrip(t *testing.T) {
	original := sampleTree()
	for _, item := range original.Requests() {
		item.Request.Headers = []request.Header{}
		item.Request.BodyType = request.BodyJSON
		item.Request.Auth = request.AuthConfig{Type: request.AuthNone}
	}

	restored, err := Normalize(mustDecode(t, Serialize(original)))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	folder := restored.FindFolder("f2")
	if folder == nil {
		t.Fatalf("nested folder missing")
	}
	_, parent := restored.Find("f2")
	if parent == nil || parent.ID != "f1" {
		t.Fatalf("folder nesting not preserved")
	}
	if len(folder.Items) != 1 || folder.Items[0].NodeID() != "r3" {
		t.Fatalf("unexpected nested items %#v", folder.Items)
	}
}

func TestSerializeShape(t *testing.T) {
	doc := SerializeAt(Tree{
		&RequestItem{ID: "r", Name: "R", Request: request.Draft{
			Method:   request.MethodGet,
			URL:      "https://api.example.com:8443/a/b?c=d",
			Headers:  []request.Header{{Key: "", Value: "skip", Enabled: true}},
			BodyType: request.BodyJSON,
		}},
		&Folder{ID: "f", Name: "Empty"},
	}, time.Unix(0, 0))

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	text := string(raw)

	for _, want := range []string{
		`"schema":"` + SchemaV21 + `"`,
		`"protocol":"https"`,
		`"host":["api","example","com"]`,
		`"path":["a","b"]`,
		`"header":[]`,
		`"response":[]`,
		`{"name":"Empty","id":"f","item":[]}`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %s in %s", want, text)
		}
	}
	if strings.Contains(text, `"body"`) {
		t.Errorf("empty json body must be omitted: %s", text)
	}
}

func TestExportFileName(t *testing.T) {
	if got := ExportFileName(time.UnixMilli(1700000000123)); got != "reqdeck-collection-1700000000123.json" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func mustDecode(t *testing.T, doc *Document) any {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return decoded
}
