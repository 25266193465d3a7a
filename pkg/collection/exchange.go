package collection

import (
	"encoding/json"

	"github.com/funnyzak/reqdeck/pkg/ident"
)

// SchemaV21 is the schema URL written into exported documents.
const SchemaV21 = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// Document is an exchange v2 collection.
type Document struct {
	Info Info   `json:"info"`
	Item []Item `json:"item"`
}

type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Schema      string `json:"schema"`
	ExportedAt  string `json:"exportedAt,omitempty"`
}

// Item is either a folder (Request == nil) or a request.
type Item struct {
	Name      string   `json:"name"`
	ID        ident.ID `json:"id"`
	Item      []Item   `json:"item,omitempty"`
	Request   *Request `json:"request,omitempty"`
	Response  []any    `json:"response"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// MarshalJSON writes folders with an item array, even when empty, and
// without request fields.
func (i Item) MarshalJSON() ([]byte, error) {
	if i.Request == nil {
		items := i.Item
		if items == nil {
			items = []Item{}
		}
		return json.Marshal(struct {
			Name string   `json:"name"`
			ID   ident.ID `json:"id"`
			Item []Item   `json:"item"`
		}{i.Name, i.ID, items})
	}
	type plain Item
	p := plain(i)
	p.Item = nil
	if p.Response == nil {
		p.Response = []any{}
	}
	return json.Marshal(p)
}

type Request struct {
	Method string   `json:"method"`
	Header []Header `json:"header"`
	Body   *Body    `json:"body,omitempty"`
	URL    URL      `json:"url"`
	Auth   *Auth    `json:"auth,omitempty"`
}

type Header struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Type     string `json:"type"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Body struct {
	Mode       string       `json:"mode"`
	Raw        string       `json:"raw,omitempty"`
	URLEncoded []KeyValue   `json:"urlencoded,omitempty"`
	Options    *BodyOptions `json:"options,omitempty"`
}

type BodyOptions struct {
	Raw RawOptions `json:"raw"`
}

type RawOptions struct {
	Language string `json:"language"`
}

type URL struct {
	Raw      string   `json:"raw"`
	Protocol string   `json:"protocol,omitempty"`
	Host     []string `json:"host"`
	Path     []string `json:"path"`
}

type Auth struct {
	Type   string     `json:"type"`
	Bearer []KeyValue `json:"bearer,omitempty"`
	Basic  []KeyValue `json:"basic,omitempty"`
	APIKey []KeyValue `json:"apikey,omitempty"`
	Custom []KeyValue `json:"custom,omitempty"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}
