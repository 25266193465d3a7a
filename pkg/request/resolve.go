package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/funnyzak/reqdeck/pkg/environment"
)

// ErrInvalidBody is returned when a JSON body cannot be parsed. A request
// failing with it must not be sent.
var ErrInvalidBody = errors.New("invalid JSON body")

// Resolved is a fully substituted, auth-applied request ready for the
// transport.
type Resolved struct {
	Method  Method            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	// Body is nil, a string, or the decoded JSON value.
	Body any            `json:"body,omitempty"`
	Auth AuthResolution `json:"auth"`
}

// Resolve substitutes the draft against env, applies its auth and decodes
// JSON bodies. The draft is not modified.
func Resolve(draft Draft, env *environment.Environment) (*Resolved, error) {
	method := draft.Method
	if m, ok := ParseMethod(string(method)); ok {
		method = m
	} else if method == "" {
		method = MethodGet
	}

	target := environment.Substitute(draft.URL, env)

	auth := ResolveAuth(draft.Auth, env, environment.Substitute)
	if auth.Kind == ResolutionQuery {
		target = appendQuery(target, auth.Name, auth.Value)
	}

	headers := make(map[string]string, len(draft.Headers)+2)
	if auth.Kind == ResolutionHeader {
		headers[auth.Name] = auth.Value
	}
	for _, h := range draft.Headers {
		if !h.Active() {
			continue
		}
		key := environment.Substitute(strings.TrimSpace(h.Key), env)
		headers[key] = environment.Substitute(strings.TrimSpace(h.Value), env)
	}

	var body any
	if method.CarriesBody() && strings.TrimSpace(draft.Body) != "" {
		text := environment.Substitute(draft.Body, env)
		if draft.BodyType == BodyJSON || draft.BodyType == "" {
			parsed, err := decodeJSON(text)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
			}
			body = parsed
			setHeader(headers, "Content-Type", "application/json")
		} else {
			body = text
		}
	}

	return &Resolved{
		Method:  method,
		URL:     target,
		Headers: headers,
		Body:    body,
		Auth:    auth,
	}, nil
}

// BodyBytes encodes the resolved body for the wire.
func (r *Resolved) BodyBytes() ([]byte, error) {
	switch v := r.Body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}
}

// setHeader sets name, replacing keys that differ from it only in case.
func setHeader(headers map[string]string, name, value string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
	headers[name] = value
}

func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func appendQuery(target, name, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + encodeComponent(name) + "=" + encodeComponent(value)
}

// encodeComponent percent-encodes s for use as a query key or value.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
