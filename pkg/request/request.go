package request

import (
	"encoding/json"
	"strings"
)

// Method is an HTTP method accepted by the composer.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Methods lists the supported methods in display order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions}

// ParseMethod returns the Method named by s, ignoring case.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// CarriesBody reports whether a draft body is sent for this method.
func (m Method) CarriesBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}

// BodyType describes how a draft body is interpreted.
type BodyType string

const (
	BodyJSON     BodyType = "json"
	BodyFormData BodyType = "form-data"
	BodyRaw      BodyType = "raw"
	BodyNone     BodyType = "none"
	BodyXML      BodyType = "xml"
	BodyHTML     BodyType = "html"
)

// ParseBodyType returns the BodyType named by s, ignoring case.
func ParseBodyType(s string) (BodyType, bool) {
	switch bt := BodyType(strings.ToLower(strings.TrimSpace(s))); bt {
	case BodyJSON, BodyFormData, BodyRaw, BodyNone, BodyXML, BodyHTML:
		return bt, true
	case "form", "formdata", "urlencoded":
		return BodyFormData, true
	case "text":
		return BodyRaw, true
	default:
		return "", false
	}
}

// Header is a single request header row. Disabled rows are kept for
// display but never sent.
type Header struct {
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// UnmarshalJSON treats a missing enabled flag as enabled.
func (h *Header) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key     string `json:"key"`
		Value   string `json:"value"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.Key = raw.Key
	h.Value = raw.Value
	h.Enabled = raw.Enabled == nil || *raw.Enabled
	return nil
}

// Active reports whether the header takes part in resolution.
func (h Header) Active() bool {
	return h.Enabled && strings.TrimSpace(h.Key) != "" && strings.TrimSpace(h.Value) != ""
}

// Draft is an editable, unsent request configuration.
type Draft struct {
	Method   Method     `json:"method" yaml:"method"`
	URL      string     `json:"url" yaml:"url"`
	Headers  []Header   `json:"headers" yaml:"headers"`
	Body     string     `json:"body" yaml:"body"`
	BodyType BodyType   `json:"bodyType" yaml:"bodyType"`
	Auth     AuthConfig `json:"auth" yaml:"auth"`
}

// NewDraft returns the blank draft a new editing session starts from.
func NewDraft() Draft {
	return Draft{
		Method:   MethodGet,
		Headers:  []Header{{Enabled: true}},
		BodyType: BodyJSON,
		Auth:     AuthConfig{Type: AuthNone},
	}
}

// Clone returns a deep copy of the draft so snapshots never share
// mutable state with the editing session.
func (d Draft) Clone() Draft {
	out := d
	if d.Headers != nil {
		out.Headers = append([]Header(nil), d.Headers...)
	}
	out.Auth = d.Auth.Clone()
	return out
}

// Normalize fills defaults for fields left empty by older documents.
func (d *Draft) Normalize() {
	if m, ok := ParseMethod(string(d.Method)); ok {
		d.Method = m
	} else {
		d.Method = MethodGet
	}
	if bt, ok := ParseBodyType(string(d.BodyType)); ok {
		d.BodyType = bt
	} else {
		d.BodyType = BodyJSON
	}
	d.Auth.normalize()
}

// EnabledHeaders returns the headers that are switched on, in order.
func (d Draft) EnabledHeaders() []Header {
	out := make([]Header, 0, len(d.Headers))
	for _, h := range d.Headers {
		if h.Enabled {
			out = append(out, h)
		}
	}
	return out
}
