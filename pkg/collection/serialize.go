package collection

import (
	"fmt"
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/pkg/request"
)

// TimeLayout is the timestamp format written into exported documents.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Serialize converts tree into an exchange v2 document. Normalize reads
// the result back into an equivalent tree with the same ids.
func Serialize(tree Tree) *Document {
	return SerializeAt(tree, time.Now())
}

// SerializeAt is Serialize with an explicit export time.
func SerializeAt(tree Tree, now time.Time) *Document {
	return &Document{
		Info: Info{
			Name:        "reqdeck collection",
			Description: "Exported from reqdeck",
			Version:     "2.1.0",
			Schema:      SchemaV21,
			ExportedAt:  now.UTC().Format(TimeLayout),
		},
		Item: serializeNodes(tree),
	}
}

// ExportFileName names an export written at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("reqdeck-collection-%d.json", t.UnixMilli())
}

func serializeNodes(tree Tree) []Item {
	out := make([]Item, 0, len(tree))
	for _, node := range tree {
		switch n := node.(type) {
		case *Folder:
			out = append(out, Item{
				Name: n.Name,
				ID:   n.ID,
				Item: serializeNodes(n.Items),
			})
		case *RequestItem:
			out = append(out, serializeRequest(n))
		}
	}
	return out
}

func serializeRequest(item *RequestItem) Item {
	draft := item.Request
	headers := make([]Header, 0, len(draft.Headers))
	for _, h := range draft.Headers {
		if strings.TrimSpace(h.Key) == "" {
			continue
		}
		headers = append(headers, Header{
			Key:      h.Key,
			Value:    h.Value,
			Type:     "text",
			Disabled: !h.Enabled,
		})
	}

	method := draft.Method
	if method == "" {
		method = request.MethodGet
	}

	var created string
	if !item.CreatedAt.IsZero() {
		created = item.CreatedAt.UTC().Format(TimeLayout)
	}

	return Item{
		Name: item.Name,
		ID:   item.ID,
		Request: &Request{
			Method: string(method),
			Header: headers,
			Body:   serializeBody(draft),
			URL:    serializeURL(draft.URL),
			Auth:   serializeAuth(draft.Auth),
		},
		Response:  []any{},
		CreatedAt: created,
	}
}

func serializeBody(draft request.Draft) *Body {
	bodyType := draft.BodyType
	if bodyType == "" {
		bodyType = request.BodyJSON
	}
	if draft.Body == "" && bodyType == request.BodyJSON {
		return nil
	}

	switch bodyType {
	case request.BodyJSON, request.BodyXML, request.BodyHTML:
		return &Body{Mode: "raw", Raw: draft.Body, Options: &BodyOptions{Raw: RawOptions{Language: string(bodyType)}}}
	case request.BodyFormData:
		return &Body{Mode: "urlencoded", Raw: draft.Body, URLEncoded: splitPairs(draft.Body)}
	case request.BodyNone:
		return &Body{Mode: "none", Raw: draft.Body}
	default:
		return &Body{Mode: "raw", Raw: draft.Body, Options: &BodyOptions{Raw: RawOptions{Language: "text"}}}
	}
}

// splitPairs splits a key=value&key=value body. It returns nil when any
// segment is not a pair.
func splitPairs(body string) []KeyValue {
	if body == "" {
		return nil
	}
	segments := strings.Split(body, "&")
	out := make([]KeyValue, 0, len(segments))
	for _, seg := range segments {
		key, value, ok := strings.Cut(seg, "=")
		if !ok || key == "" {
			return nil
		}
		out = append(out, KeyValue{Key: key, Value: value, Type: "text"})
	}
	return out
}

// serializeURL splits raw into protocol, host labels and path segments.
// Templated URLs are split textually since they may not parse.
func serializeURL(raw string) URL {
	u := URL{Raw: raw, Host: []string{}, Path: []string{}}
	if raw == "" {
		return u
	}
	u.Protocol = "http"
	if strings.HasPrefix(strings.ToLower(raw), "https") {
		u.Protocol = "https"
	}

	base := raw
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "/")
	if len(parts) > 2 {
		host, _, _ := strings.Cut(parts[2], ":")
		if host != "" {
			u.Host = strings.Split(host, ".")
		}
	}
	if len(parts) > 3 {
		u.Path = append(u.Path, parts[3:]...)
	}
	return u
}

func serializeAuth(auth request.AuthConfig) *Auth {
	switch auth.Type {
	case request.AuthBearer:
		if auth.Bearer == nil {
			return nil
		}
		return &Auth{Type: "bearer", Bearer: []KeyValue{{Key: "token", Value: auth.Bearer.Token, Type: "string"}}}
	case request.AuthBasic:
		if auth.Basic == nil {
			return nil
		}
		return &Auth{Type: "basic", Basic: []KeyValue{
			{Key: "username", Value: auth.Basic.Username, Type: "string"},
			{Key: "password", Value: auth.Basic.Password, Type: "string"},
		}}
	case request.AuthAPIKey:
		if auth.APIKey == nil {
			return nil
		}
		location := auth.APIKey.Location
		if location == "" {
			location = request.LocationHeader
		}
		return &Auth{Type: "apikey", APIKey: []KeyValue{
			{Key: "key", Value: auth.APIKey.Key, Type: "string"},
			{Key: "value", Value: auth.APIKey.Value, Type: "string"},
			{Key: "in", Value: string(location), Type: "string"},
		}}
	case request.AuthCustom:
		if auth.Custom == nil {
			return nil
		}
		return &Auth{Type: "custom", Custom: []KeyValue{
			{Key: "header", Value: auth.Custom.Header, Type: "string"},
			{Key: "value", Value: auth.Custom.Value, Type: "string"},
		}}
	default:
		return nil
	}
}
