package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

var (
	// ErrUnsupportedFormat reports a document matching none of the known
	// collection shapes.
	ErrUnsupportedFormat = errors.New("unsupported collection format")
	// ErrEmptyImport reports a document that yields no requests.
	ErrEmptyImport = errors.New("import contains no requests")
)

// Decode parses an import document. JSON is tried first; anything else is
// read as YAML. Numbers decoded from JSON are json.Number.
func Decode(data []byte) (any, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnsupportedFormat)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err == nil && !dec.More() {
		return doc, nil
	}

	var ydoc any
	if err := yaml.Unmarshal(data, &ydoc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	switch ydoc.(type) {
	case map[string]any, []any:
		return ydoc, nil
	default:
		return nil, fmt.Errorf("%w: document is neither an object nor an array", ErrUnsupportedFormat)
	}
}

// NormalizeBytes decodes data and normalizes the result.
func NormalizeBytes(data []byte) (Tree, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Normalize(doc)
}

// Normalize converts a decoded import document into a canonical tree.
//
// Recognized shapes, in order: an exchange v2 collection (info + item
// array), a legacy v1 collection (requests array), a bare array already in
// canonical form, and a single request object. Nodes without an id get a
// fresh one; existing ids are kept so that re-importing an export is
// idempotent.
func Normalize(doc any) (Tree, error) {
	n := &normalizer{now: time.Now()}

	var tree Tree
	var err error
	switch v := doc.(type) {
	case map[string]any:
		items, isV2 := v["item"].([]any)
		requests, isV1 := v["requests"].([]any)
		switch {
		case v["info"] != nil && isV2:
			tree = n.fromV2Items(items)
		case isV1:
			tree = n.fromV1(v, requests)
		case v["request"] != nil || v["method"] != nil:
			tree, err = n.fromSingle(v)
		default:
			return nil, fmt.Errorf("%w: unrecognized object", ErrUnsupportedFormat)
		}
	case []any:
		tree, err = n.fromArray(v)
	case Tree:
		tree = v.Clone()
	default:
		return nil, fmt.Errorf("%w: unexpected %T document", ErrUnsupportedFormat, doc)
	}
	if err != nil {
		return nil, err
	}

	tree.AssignMissing(n.now)
	if tree.CountRequests() == 0 {
		return nil, ErrEmptyImport
	}
	return tree, nil
}

type normalizer struct {
	now   time.Time
	count int
}

func (n *normalizer) nextName() string {
	n.count++
	return fmt.Sprintf("Imported Request %d", n.count)
}

func (n *normalizer) fromV2Items(items []any) Tree {
	out := make(Tree, 0, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if sub, ok := m["item"].([]any); ok {
			out = append(out, &Folder{
				ID:         itemID(m),
				Name:       stringOr(m["name"], "Imported Folder"),
				IsExpanded: false,
				Items:      n.fromV2Items(sub),
			})
			continue
		}
		out = append(out, n.fromV2Request(m))
	}
	return out
}

func (n *normalizer) fromV2Request(m map[string]any) *RequestItem {
	item := &RequestItem{
		ID:        itemID(m),
		Name:      stringOr(m["name"], n.nextName()),
		CreatedAt: ParseTime(m["createdAt"]),
	}
	switch req := m["request"].(type) {
	case string:
		item.Request = blankDraft()
		item.Request.URL = req
	case map[string]any:
		item.Request = draftFromV2(req)
	default:
		item.Request = blankDraft()
	}
	return item
}

func draftFromV2(req map[string]any) request.Draft {
	draft := blankDraft()
	if m, ok := request.ParseMethod(str(req["method"])); ok {
		draft.Method = m
	}
	draft.URL = urlFromV2(req["url"])
	draft.Headers = headersFromV2(req["header"])
	draft.Body, draft.BodyType = bodyFromV2(req["body"])
	draft.Auth = authFromV2(req["auth"])
	return draft
}

func urlFromV2(v any) string {
	switch u := v.(type) {
	case string:
		return u
	case map[string]any:
		if raw := str(u["raw"]); raw != "" {
			return raw
		}
		host := joinSegments(u["host"], ".")
		if host == "" {
			return ""
		}
		var b strings.Builder
		if proto := str(u["protocol"]); proto != "" {
			b.WriteString(strings.TrimSuffix(proto, "://"))
			b.WriteString("://")
		}
		b.WriteString(host)
		if port := str(u["port"]); port != "" {
			b.WriteString(":" + port)
		}
		if path := joinSegments(u["path"], "/"); path != "" {
			b.WriteString("/" + strings.TrimPrefix(path, "/"))
		}
		if query := joinPairs(u["query"]); query != "" {
			b.WriteString("?" + query)
		}
		return b.String()
	default:
		return ""
	}
}

func headersFromV2(v any) []request.Header {
	switch hs := v.(type) {
	case []any:
		out := make([]request.Header, 0, len(hs))
		for _, raw := range hs {
			h, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, request.Header{
				Key:     str(h["key"]),
				Value:   str(h["value"]),
				Enabled: !truthy(h["disabled"]),
			})
		}
		return out
	case string:
		return headersFromText(hs)
	case map[string]any:
		return headersFromMap(hs)
	default:
		return []request.Header{}
	}
}

func bodyFromV2(v any) (string, request.BodyType) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", request.BodyJSON
	}

	var body string
	if raw := str(m["raw"]); raw != "" {
		body = raw
	} else if pairs, ok := m["urlencoded"].([]any); ok {
		body = joinPairs(pairs)
	} else if fields, ok := m["formdata"].([]any); ok {
		if encoded, err := json.Marshal(fields); err == nil {
			body = string(encoded)
		}
	}

	mode := strings.ToLower(str(m["mode"]))
	switch mode {
	case "raw":
		return body, languageBodyType(lookup(m, "options", "raw", "language"))
	case "urlencoded", "formdata":
		return body, request.BodyFormData
	case "":
		return body, request.BodyJSON
	}
	if bt, ok := request.ParseBodyType(mode); ok {
		return body, bt
	}
	return body, request.BodyJSON
}

func languageBodyType(v any) request.BodyType {
	switch strings.ToLower(str(v)) {
	case "", "json":
		return request.BodyJSON
	case "xml":
		return request.BodyXML
	case "html":
		return request.BodyHTML
	default:
		return request.BodyRaw
	}
}

func authFromV2(v any) request.AuthConfig {
	m, ok := v.(map[string]any)
	if !ok {
		return request.AuthConfig{Type: request.AuthNone}
	}
	typ := strings.ToLower(str(m["type"]))
	params := authParams(m[typ])

	switch request.AuthType(typ) {
	case request.AuthBearer:
		return request.AuthConfig{Type: request.AuthBearer, Bearer: &request.BearerAuth{Token: params["token"]}}
	case request.AuthBasic:
		return request.AuthConfig{Type: request.AuthBasic, Basic: &request.BasicAuth{
			Username: params["username"],
			Password: params["password"],
		}}
	case request.AuthAPIKey:
		location := request.LocationHeader
		if strings.EqualFold(params["in"], string(request.LocationQuery)) {
			location = request.LocationQuery
		}
		return request.AuthConfig{Type: request.AuthAPIKey, APIKey: &request.APIKeyAuth{
			Key:      params["key"],
			Value:    params["value"],
			Location: location,
		}}
	case request.AuthCustom:
		return request.AuthConfig{Type: request.AuthCustom, Custom: &request.CustomAuth{
			Header: params["header"],
			Value:  params["value"],
		}}
	default:
		return request.AuthConfig{Type: request.AuthNone}
	}
}

// authParams reads auth attributes written either as a list of key/value
// objects or as a plain mapping.
func authParams(v any) map[string]string {
	out := map[string]string{}
	switch p := v.(type) {
	case []any:
		for _, raw := range p {
			if kv, ok := raw.(map[string]any); ok {
				out[str(kv["key"])] = str(kv["value"])
			}
		}
	case map[string]any:
		for k, val := range p {
			out[k] = str(val)
		}
	}
	return out
}

func (n *normalizer) fromV1(doc map[string]any, requests []any) Tree {
	byID := make(map[ident.ID]*RequestItem, len(requests))
	ordered := make([]*RequestItem, 0, len(requests))
	for _, raw := range requests {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		item := n.fromV1Request(m)
		if !item.ID.IsZero() {
			byID[item.ID] = item
		}
		ordered = append(ordered, item)
	}

	used := make(map[*RequestItem]bool, len(ordered))
	take := func(ids any, dst *Tree) {
		list, _ := ids.([]any)
		for _, id := range list {
			item, ok := byID[ident.FromAny(id)]
			if !ok || used[item] {
				continue
			}
			used[item] = true
			*dst = append(*dst, item)
		}
	}

	folderDocs, _ := doc["folders"].([]any)
	folders := make(map[ident.ID]*Folder, len(folderDocs))
	var folderOrder []*Folder
	childFolders := map[ident.ID][]any{}
	for _, raw := range folderDocs {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		folder := &Folder{ID: ident.FromAny(m["id"]), Name: stringOr(m["name"], "Imported Folder"), Items: Tree{}}
		take(m["order"], &folder.Items)
		if folder.ID.IsZero() {
			folder.ID = ident.New()
		}
		folders[folder.ID] = folder
		folderOrder = append(folderOrder, folder)
		if children, ok := m["folders_order"].([]any); ok {
			childFolders[folder.ID] = children
		}
	}

	nested := map[*Folder]bool{}
	for parentID, children := range childFolders {
		parent := folders[parentID]
		for _, raw := range children {
			child, ok := folders[ident.FromAny(raw)]
			if !ok || child == parent || nested[child] {
				continue
			}
			nested[child] = true
			parent.Items = append(parent.Items, child)
		}
	}

	var tree Tree
	if rootOrder, ok := doc["folders_order"].([]any); ok {
		for _, raw := range rootOrder {
			if folder, ok := folders[ident.FromAny(raw)]; ok && !nested[folder] {
				nested[folder] = true
				tree = append(tree, folder)
			}
		}
	}
	for _, folder := range folderOrder {
		if !nested[folder] {
			nested[folder] = true
			tree = append(tree, folder)
		}
	}

	take(doc["order"], &tree)
	for _, item := range ordered {
		if !used[item] {
			used[item] = true
			tree = append(tree, item)
		}
	}
	return tree
}

func (n *normalizer) fromV1Request(m map[string]any) *RequestItem {
	draft := blankDraft()
	if method, ok := request.ParseMethod(str(m["method"])); ok {
		draft.Method = method
	}
	draft.URL = str(m["url"])
	draft.Headers = headersFromAny(m["headers"])

	switch data := m["data"].(type) {
	case string:
		draft.Body = data
	case []any:
		draft.Body = joinPairs(data)
	}
	if raw := str(m["rawModeData"]); raw != "" {
		draft.Body = raw
	}

	switch mode := strings.ToLower(str(m["dataMode"])); mode {
	case "", "raw":
		if draft.Body == "" || json.Valid([]byte(draft.Body)) {
			draft.BodyType = request.BodyJSON
		} else {
			draft.BodyType = request.BodyRaw
		}
	case "params", "urlencoded":
		draft.BodyType = request.BodyFormData
	case "binary":
		draft.BodyType = request.BodyRaw
	default:
		if bt, ok := request.ParseBodyType(mode); ok {
			draft.BodyType = bt
		}
	}
	if auth, ok := m["auth"].(map[string]any); ok {
		draft.Auth = authFromV2(auth)
	}

	created := m["createdAt"]
	if created == nil {
		created = m["time"]
	}
	return &RequestItem{
		ID:        ident.FromAny(m["id"]),
		Name:      stringOr(m["name"], n.nextName()),
		Request:   draft,
		CreatedAt: ParseTime(created),
	}
}

func (n *normalizer) fromArray(arr []any) (Tree, error) {
	raw, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	var tree Tree
	if err := json.Unmarshal(raw, &tree); err == nil {
		return tree, nil
	} else if fallback := n.fromV2Items(arr); fallback.CountRequests() > 0 {
		return fallback, nil
	} else {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
}

func (n *normalizer) fromSingle(m map[string]any) (Tree, error) {
	switch req := m["request"].(type) {
	case string:
		return Tree{n.fromV2Request(m)}, nil
	case map[string]any:
		if looksLikeV2Request(req) {
			return Tree{n.fromV2Request(m)}, nil
		}
		draft, err := draftFromMap(req)
		if err != nil {
			return nil, err
		}
		return Tree{&RequestItem{
			ID:        itemID(m),
			Name:      stringOr(m["name"], "Imported Request"),
			Request:   draft,
			CreatedAt: ParseTime(m["createdAt"]),
		}}, nil
	case nil:
		draft, err := draftFromMap(m)
		if err != nil {
			return nil, err
		}
		return Tree{&RequestItem{
			ID:        itemID(m),
			Name:      stringOr(m["name"], "Imported Request"),
			Request:   draft,
			CreatedAt: ParseTime(m["createdAt"]),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: request must be an object", ErrUnsupportedFormat)
	}
}

func looksLikeV2Request(req map[string]any) bool {
	if _, ok := req["header"]; ok {
		return true
	}
	if _, ok := req["url"].(map[string]any); ok {
		return true
	}
	_, ok := req["body"].(map[string]any)
	return ok
}

// draftFromMap decodes a request written in the canonical draft shape.
// Bodies given as structured values are re-encoded as JSON text and
// headers given as a mapping are expanded into rows.
func draftFromMap(m map[string]any) (request.Draft, error) {
	fields := make(map[string]any, len(m))
	for k, v := range m {
		fields[k] = v
	}
	if body, ok := fields["body"]; ok && body != nil {
		if _, isString := body.(string); !isString {
			encoded, err := json.Marshal(body)
			if err != nil {
				return request.Draft{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
			}
			fields["body"] = string(encoded)
		}
	}
	if headers, ok := fields["headers"]; ok {
		if _, isList := headers.([]any); !isList {
			fields["headers"] = headersFromAny(headers)
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return request.Draft{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	var draft request.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return request.Draft{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	draft.Normalize()
	return draft, nil
}

func headersFromAny(v any) []request.Header {
	switch hs := v.(type) {
	case map[string]any:
		return headersFromMap(hs)
	case string:
		return headersFromText(hs)
	case []any:
		return headersFromV2(hs)
	default:
		return []request.Header{}
	}
}

// headersFromMap expands a key to value mapping into enabled rows, sorted
// by key since mappings carry no order.
func headersFromMap(m map[string]any) []request.Header {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]request.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, request.Header{Key: k, Value: str(m[k]), Enabled: true})
	}
	return out
}

// headersFromText reads "Key: Value" lines.
func headersFromText(text string) []request.Header {
	out := []request.Header{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		enabled := true
		if strings.HasPrefix(line, "//") {
			enabled = false
			line = strings.TrimSpace(strings.TrimPrefix(line, "//"))
		}
		key, value, _ := strings.Cut(line, ":")
		out = append(out, request.Header{
			Key:     strings.TrimSpace(key),
			Value:   strings.TrimSpace(value),
			Enabled: enabled,
		})
	}
	return out
}

func blankDraft() request.Draft {
	return request.Draft{
		Method:   request.MethodGet,
		Headers:  []request.Header{},
		BodyType: request.BodyJSON,
		Auth:     request.AuthConfig{Type: request.AuthNone},
	}
}

func itemID(m map[string]any) ident.ID {
	if id := ident.FromAny(m["id"]); !id.IsZero() {
		return id
	}
	return ident.FromAny(m["_postman_id"])
}

// joinPairs joins enabled key/value objects as key=value&key=value.
func joinPairs(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, raw := range list {
		kv, ok := raw.(map[string]any)
		if !ok || truthy(kv["disabled"]) {
			continue
		}
		key := str(kv["key"])
		if key == "" {
			continue
		}
		parts = append(parts, key+"="+str(kv["value"]))
	}
	return strings.Join(parts, "&")
}

func joinSegments(v any, sep string) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			if seg := str(p); seg != "" {
				parts = append(parts, seg)
			}
		}
		return strings.Join(parts, sep)
	default:
		return ""
	}
}

func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		next, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = next[key]
	}
	return cur
}

func str(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func stringOr(v any, fallback string) string {
	if s := strings.TrimSpace(str(v)); s != "" {
		return s
	}
	return fallback
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}
