package printer

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/url"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	nethtml "golang.org/x/net/html"

	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/pkg/i18n"
)

// bodyKind is the rendering chosen for a response body.
type bodyKind int

const (
	kindText bodyKind = iota
	kindJSON
	kindForm
	kindXML
	kindHTML
)

// bodyFormatter renders text response bodies for the console.
type bodyFormatter struct {
	cfg    *config.BodyViewConfig
	log    logger.Logger
	intl   *i18n.Translator
	locale string
}

type formattedBody struct {
	Text    string
	Notices []string
}

func newBodyFormatter(cfg *config.BodyViewConfig, log logger.Logger, translator *i18n.Translator, locale string) *bodyFormatter {
	if cfg == nil {
		cfg = &config.BodyViewConfig{}
	}
	if log == nil {
		log = logger.Nop()
	}
	locale = strings.TrimSpace(locale)
	if translator != nil {
		locale = translator.Match(locale)
	}
	return &bodyFormatter{cfg: cfg, log: log, intl: translator, locale: locale}
}

func (f *bodyFormatter) t(key string) string {
	if f == nil || f.intl == nil {
		return key
	}
	return f.intl.Text(f.locale, key)
}

func (f *bodyFormatter) tf(key string, args ...interface{}) string {
	return fmt.Sprintf(f.t(key), args...)
}

// Format renders body for its content type. Bodies over max_preview_bytes
// are cut unless full_body is set.
func (f *bodyFormatter) Format(contentType string, body []byte) formattedBody {
	if f == nil || len(body) == 0 {
		return formattedBody{}
	}
	if !f.cfg.Enable {
		return formattedBody{Text: string(body)}
	}

	var cut string
	if limit := f.cfg.MaxPreviewBytes; limit > 0 && !f.cfg.FullBody && len(body) > limit {
		cut = f.tf(keyBodyTruncate, humanize.Bytes(uint64(limit)), humanize.Bytes(uint64(len(body))))
		body = body[:limit]
	}

	mediaType := mediaTypeOf(contentType)
	out := f.render(f.kindOf(mediaType, body), mediaType, body)
	if cut != "" {
		out.Notices = append(out.Notices, cut)
	}
	return out
}

// kindOf picks the first enabled rendering that accepts the body.
func (f *bodyFormatter) kindOf(mediaType string, body []byte) bodyKind {
	switch {
	case f.cfg.Json.Enable && (strings.Contains(mediaType, "json") || bracketed(body)):
		return kindJSON
	case f.cfg.Form.Enable && mediaType == "application/x-www-form-urlencoded":
		return kindForm
	case f.cfg.XML.Enable && strings.Contains(mediaType, "xml"):
		return kindXML
	case f.cfg.HTML.Enable && (strings.Contains(mediaType, "html") || htmlDocument(body)):
		return kindHTML
	}
	return kindText
}

func (f *bodyFormatter) render(kind bodyKind, mediaType string, body []byte) formattedBody {
	switch kind {
	case kindJSON:
		return f.renderJSON(mediaType, body)
	case kindForm:
		return f.renderForm(body)
	case kindXML:
		return f.renderMarkup("xml", body, f.cfg.XML.StripControl, f.cfg.XML.Pretty, indentXML)
	case kindHTML:
		return f.renderMarkup("html", body, f.cfg.HTML.StripControl, f.cfg.HTML.Pretty, indentHTML)
	}
	return formattedBody{Text: string(body)}
}

func (f *bodyFormatter) renderJSON(mediaType string, body []byte) formattedBody {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		// Cut previews and mislabelled bodies print as they are.
		return formattedBody{Text: string(body)}
	}
	if !f.cfg.Json.Pretty {
		return formattedBody{Text: string(body)}
	}
	if limit := f.cfg.Json.MaxIndentBytes; limit > 0 && len(trimmed) > limit {
		return formattedBody{
			Text:    string(body),
			Notices: []string{f.tf(keyJSONIndentSkipped, humanize.Bytes(uint64(limit)))},
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		f.log.Debug("json indent failed", "media_type", mediaType, "error", err)
		return formattedBody{Text: string(body)}
	}
	return formattedBody{Text: buf.String()}
}

// renderForm prints urlencoded pairs as a two-column table sorted by key.
func (f *bodyFormatter) renderForm(body []byte) formattedBody {
	values, err := url.ParseQuery(string(body))
	if err != nil || len(values) == 0 {
		if err != nil {
			f.log.Debug("form parse failed", "error", err)
		}
		return formattedBody{Text: string(body)}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keyHeader, valueHeader := f.t(keyFormKeyHeader), f.t(keyFormValueHeader)
	width := runewidth.StringWidth(keyHeader)
	for _, k := range keys {
		width = max(width, runewidth.StringWidth(k))
	}

	var b strings.Builder
	b.WriteString(f.t(keyFormTitle) + "\n")
	b.WriteString(runewidth.FillRight(keyHeader, width) + " │ " + valueHeader + "\n")
	b.WriteString(strings.Repeat("─", width) + "─┼" + strings.Repeat("─", 40) + "\n")
	for _, k := range keys {
		b.WriteString(runewidth.FillRight(k, width) + " │ " + strings.Join(values[k], ", ") + "\n")
	}
	return formattedBody{Text: b.String()}
}

func (f *bodyFormatter) renderMarkup(name string, body []byte, strip, pretty bool, indent func([]byte) (string, error)) formattedBody {
	if strip {
		body = dropControlBytes(body)
	}
	if !pretty {
		return formattedBody{Text: string(body)}
	}
	text, err := indent(body)
	if err != nil {
		f.log.Debug(name+" indent failed", "error", err)
		return formattedBody{Text: string(body)}
	}
	return formattedBody{Text: text}
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func bracketed(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < 2 {
		return false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

func htmlDocument(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	return bytes.HasPrefix(head, []byte("<html")) || bytes.HasPrefix(head, []byte("<!doc"))
}

// dropControlBytes removes C0 control bytes other than tab, CR and LF.
func dropControlBytes(b []byte) []byte {
	return bytes.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, b)
}

func indentXML(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if err := enc.EncodeToken(tok); err != nil {
			return "", err
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func indentHTML(data []byte) (string, error) {
	doc, err := nethtml.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	w := &htmlWriter{}
	w.node(doc, 0)
	return w.String(), nil
}

// htmlWriter prints one element, text run or comment per line.
type htmlWriter struct {
	strings.Builder
}

func (w *htmlWriter) line(depth int, s string) {
	w.WriteString(strings.Repeat("  ", depth))
	w.WriteString(s)
	w.WriteByte('\n')
}

func (w *htmlWriter) node(n *nethtml.Node, depth int) {
	switch n.Type {
	case nethtml.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c, depth)
		}
	case nethtml.ElementNode:
		var open strings.Builder
		open.WriteString("<" + n.Data)
		for _, a := range n.Attr {
			fmt.Fprintf(&open, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
		if voidElements[n.Data] {
			w.line(depth, open.String()+" />")
			return
		}
		w.line(depth, open.String()+">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.node(c, depth+1)
		}
		w.line(depth, "</"+n.Data+">")
	case nethtml.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			w.line(depth, text)
		}
	case nethtml.CommentNode:
		w.line(depth, "<!--"+strings.TrimSpace(n.Data)+"-->")
	}
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}
