package printer

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/i18n"
	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// ColorScheme color scheme
type ColorScheme struct {
	MethodGET      *color.Color
	MethodPOST     *color.Color
	MethodPUT      *color.Color
	MethodDELETE   *color.Color
	MethodPATCH    *color.Color
	HeaderKey      *color.Color
	HeaderValue    *color.Color
	Separator      *color.Color
	Timestamp      *color.Color
	BodyContent    *color.Color
	BinaryNotice   *color.Color
	TruncateNotice *color.Color
	Environment    *color.Color
	Folder         *color.Color
	Status2xx      *color.Color
	Status3xx      *color.Color
	Status4xx      *color.Color
	Status5xx      *color.Color
}

// NewColorScheme creates a new color scheme
func NewColorScheme() *ColorScheme {
	return &ColorScheme{
		MethodGET:      color.New(color.FgBlue, color.Bold),
		MethodPOST:     color.New(color.FgGreen, color.Bold),
		MethodPUT:      color.New(color.FgYellow, color.Bold),
		MethodDELETE:   color.New(color.FgRed, color.Bold),
		MethodPATCH:    color.New(color.FgMagenta, color.Bold),
		HeaderKey:      color.New(color.FgCyan),
		HeaderValue:    color.New(color.FgWhite),
		Separator:      color.New(color.FgYellow, color.Bold),
		Timestamp:      color.New(color.FgHiBlack),
		BodyContent:    color.New(color.FgWhite),
		BinaryNotice:   color.New(color.FgHiRed, color.Bold),
		TruncateNotice: color.New(color.FgHiYellow, color.Bold),
		Environment:    color.New(color.FgHiBlue),
		Folder:         color.New(color.FgHiCyan, color.Bold),
		Status2xx:      color.New(color.FgGreen, color.Bold),
		Status3xx:      color.New(color.FgCyan, color.Bold),
		Status4xx:      color.New(color.FgYellow, color.Bold),
		Status5xx:      color.New(color.FgRed, color.Bold),
	}
}

// ConsolePrinter console printer
type ConsolePrinter struct {
	colorScheme *ColorScheme
	logger      logger.Logger
	out         io.Writer
	formatter   *bodyFormatter
	redact      map[string]bool
	silence     bool
	hexPreview  int
}

// NewConsolePrinter creates a new console printer. A nil translator prints
// message keys.
func NewConsolePrinter(log logger.Logger, cfg *config.OutputConfig, translator *i18n.Translator) *ConsolePrinter {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	redact := make(map[string]bool, len(cfg.RedactHeaders))
	for _, name := range cfg.RedactHeaders {
		redact[strings.ToLower(strings.TrimSpace(name))] = true
	}
	p := &ConsolePrinter{
		colorScheme: NewColorScheme(),
		logger:      log,
		out:         os.Stdout,
		formatter:   newBodyFormatter(&cfg.BodyView, log, translator, cfg.Locale),
		redact:      redact,
		silence:     cfg.Silence,
	}
	if cfg.BodyView.Binary.HexPreviewEnable {
		p.hexPreview = cfg.BodyView.Binary.HexPreviewBytes
	}
	return p
}

// SetOutput replaces the output target
func (p *ConsolePrinter) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	p.out = w
}

func (p *ConsolePrinter) t(key string) string {
	return p.formatter.t(key)
}

func (p *ConsolePrinter) tf(key string, args ...interface{}) string {
	return p.formatter.tf(key, args...)
}

// getTerminalWidth gets the current terminal width with fallback
func (p *ConsolePrinter) getTerminalWidth() int {
	if testWidth := os.Getenv("REQDECK_TEST_WIDTH"); testWidth != "" {
		if width, err := strconv.Atoi(testWidth); err == nil {
			return clampWidth(width)
		}
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	switch {
	case width < 40:
		return 40
	case width > 150:
		return 150
	default:
		return width
	}
}

// wrapText wraps text to fit within the specified width, preserving words
func (p *ConsolePrinter) wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)

	if len(words) == 0 {
		return []string{""}
	}

	currentLine := words[0]
	currentWidth := runewidth.StringWidth(currentLine)

	for _, word := range words[1:] {
		wordWidth := runewidth.StringWidth(word)
		if currentWidth+1+wordWidth > maxWidth {
			lines = append(lines, currentLine)
			currentLine = word
			currentWidth = wordWidth
			continue
		}
		currentLine += " " + word
		currentWidth += 1 + wordWidth
	}

	return append(lines, currentLine)
}

// PrintResult prints a sent request and its response
func (p *ConsolePrinter) PrintResult(res *composer.Result) error {
	if res == nil {
		return nil
	}
	width := p.getTerminalWidth()
	separator := p.buildSeparator(width)

	p.colorScheme.Separator.Fprintln(p.out, separator)
	if res.Resolved != nil {
		p.printRequestLine(res.Resolved.Method, res.Resolved.URL, res.Environment)
	}
	resp := res.Response
	if resp == nil || resp.Failed() {
		msg := ""
		if resp != nil {
			msg = resp.StatusText
		}
		p.colorScheme.BinaryNotice.Fprintf(p.out, "%s: %s\n", p.t(keyResultFailed), msg)
		p.colorScheme.Separator.Fprintln(p.out, separator)
		fmt.Fprintln(p.out)
		return nil
	}
	p.printStatusLine(resp)
	p.colorScheme.Separator.Fprintln(p.out, separator)
	fmt.Fprintln(p.out)

	if p.silence {
		return nil
	}
	if len(resp.Headers) > 0 {
		p.printHeaders(resp.Headers, width)
		fmt.Fprintln(p.out)
	}
	p.printResponseBody(resp)
	fmt.Fprintln(p.out)
	return nil
}

// PrintPreview prints a resolved request that was not sent
func (p *ConsolePrinter) PrintPreview(preview *composer.Preview) error {
	if preview == nil || preview.Resolved == nil {
		return nil
	}
	width := p.getTerminalWidth()
	separator := p.buildSeparator(width)
	resolved := preview.Resolved

	p.colorScheme.Separator.Fprintln(p.out, separator)
	p.colorScheme.Separator.Fprintln(p.out, p.t(keyPreviewTitle))
	p.printRequestLine(resolved.Method, resolved.URL, preview.Environment)
	fmt.Fprintf(p.out, "%s: %s\n", p.t(keyPreviewAuth), preview.Auth)
	if len(preview.Unresolved) > 0 {
		p.colorScheme.TruncateNotice.Fprintf(p.out, "%s: %s\n",
			p.t(keyPreviewUnresolved), strings.Join(preview.Unresolved, ", "))
	}
	p.colorScheme.Separator.Fprintln(p.out, separator)
	fmt.Fprintln(p.out)

	if len(resolved.Headers) > 0 {
		p.printHeaders(resolved.Headers, width)
		fmt.Fprintln(p.out)
	}
	body, err := resolved.BodyBytes()
	if err != nil {
		return err
	}
	if len(body) > 0 {
		p.printFormatted(headerValue(resolved.Headers, "content-type"), body)
		fmt.Fprintln(p.out)
	}
	return nil
}

// PrintHistory prints history entries as a table, newest first
func (p *ConsolePrinter) PrintHistory(entries []*workspace.HistoryEntry, total int) error {
	if len(entries) == 0 {
		fmt.Fprintln(p.out, p.t(keyHistoryEmpty))
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		status, duration := "-", "-"
		if resp := entry.Response; resp != nil {
			status = strconv.Itoa(resp.Status)
			if resp.Failed() {
				status = "ERR"
			}
			duration = formatMillis(resp.Duration)
		}
		rows = append(rows, []string{
			entry.ID.String(),
			humanize.Time(entry.Timestamp),
			string(entry.Request.Method),
			status,
			duration,
			entry.Request.URL,
		})
	}
	p.printTable([]string{"ID", p.t(keyHistoryWhen), p.t(keyHistoryMethod), p.t(keyHistoryStatus),
		p.t(keyHistoryTime), p.t(keyHistoryURL)}, rows, map[int]bool{2: true})
	p.colorScheme.Timestamp.Fprintln(p.out, p.tf(keyHistoryTotal, len(entries), total))
	return nil
}

// PrintTree prints the collection tree, folders before their children
func (p *ConsolePrinter) PrintTree(tree collection.Tree) error {
	if len(tree) == 0 {
		fmt.Fprintln(p.out, p.t(keyTreeEmpty))
		return nil
	}
	tree.Walk(func(node collection.Node, _ *collection.Folder, depth int) bool {
		indent := strings.Repeat("  ", depth)
		switch n := node.(type) {
		case *collection.Folder:
			marker := "▸"
			if n.IsExpanded {
				marker = "▾"
			}
			fmt.Fprint(p.out, indent)
			p.colorScheme.Folder.Fprintf(p.out, "%s %s", marker, n.Name)
			p.colorScheme.Timestamp.Fprintf(p.out, "  %s\n", n.ID)
		case *collection.RequestItem:
			method := string(n.Request.Method)
			fmt.Fprint(p.out, indent)
			p.getMethodColor(method).Fprint(p.out, runewidth.FillRight(method, 7))
			fmt.Fprintf(p.out, "%s  ", n.Name)
			p.colorScheme.Timestamp.Fprintf(p.out, "%s  %s\n", n.Request.URL, n.ID)
		}
		return true
	})
	p.colorScheme.Timestamp.Fprintln(p.out, p.tf(keyTreeSummary, tree.CountRequests()))
	return nil
}

// PrintEnvironments prints environments, marking the active one
func (p *ConsolePrinter) PrintEnvironments(envs []*environment.Environment, activeID ident.ID) error {
	if len(envs) == 0 {
		fmt.Fprintln(p.out, p.t(keyEnvEmpty))
		return nil
	}
	nameWidth := 0
	for _, env := range envs {
		if w := runewidth.StringWidth(env.Name); w > nameWidth {
			nameWidth = w
		}
	}
	activeFound := false
	for _, env := range envs {
		marker := " "
		active := !activeID.IsZero() && env.ID == activeID
		if active {
			marker = "*"
			activeFound = true
		}
		fmt.Fprintf(p.out, "%s ", marker)
		name := runewidth.FillRight(env.Name, nameWidth)
		if active {
			p.colorScheme.Environment.Fprint(p.out, name)
		} else {
			fmt.Fprint(p.out, name)
		}
		p.colorScheme.Timestamp.Fprintf(p.out, "  %s  %s\n", env.ID,
			p.tf(keyEnvVariables, len(env.Variables), env.ActiveCount()))
	}
	if !activeFound {
		p.colorScheme.Timestamp.Fprintln(p.out, p.t(keyEnvNoneActive))
	}
	return nil
}

// PrintSnapshots prints auto-save revisions, newest first
func (p *ConsolePrinter) PrintSnapshots(snaps []*storage.Snapshot, total int) error {
	if len(snaps) == 0 {
		fmt.Fprintln(p.out, p.t(keySnapshotsEmpty))
		return nil
	}
	rows := make([][]string, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, []string{
			snap.ID,
			humanize.Time(snap.Timestamp),
			snap.Reason,
			humanize.Bytes(uint64(snap.Size)),
		})
	}
	p.printTable([]string{p.t(keySnapshotsID), p.t(keyHistoryWhen), p.t(keySnapshotsReason),
		p.t(keySnapshotsSize)}, rows, nil)
	p.colorScheme.Timestamp.Fprintln(p.out, p.tf(keyHistoryTotal, len(snaps), total))
	return nil
}

// PrintNotice prints a one-line message
func (p *ConsolePrinter) PrintNotice(msg string) error {
	_, err := fmt.Fprintln(p.out, msg)
	return err
}

func (p *ConsolePrinter) buildSeparator(width int) string {
	return strings.Repeat("-", clampWidth(width))
}

func (p *ConsolePrinter) printRequestLine(method request.Method, target, env string) {
	name := strings.ToUpper(string(method))
	p.getMethodColor(name).Fprintf(p.out, "%s ", name)
	fmt.Fprint(p.out, target)
	if env != "" {
		fmt.Fprint(p.out, "  ")
		p.colorScheme.Environment.Fprintf(p.out, "[%s: %s]", p.t(keyResultEnvironment), env)
	}
	fmt.Fprintln(p.out)
}

func (p *ConsolePrinter) printStatusLine(resp *request.Response) {
	fmt.Fprintf(p.out, "%s: ", p.t(keyResultStatus))
	p.statusColor(resp.Status).Fprintf(p.out, "%d %s", resp.Status, resp.StatusText)
	fmt.Fprintf(p.out, " | %s: %s", p.t(keyResultTime), formatMillis(resp.Duration))
	fmt.Fprintf(p.out, " | %s: %s\n", p.t(keyResultSize), humanize.Bytes(uint64(resp.Size)))
}

func (p *ConsolePrinter) printHeaders(headers map[string]string, width int) {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := headers[key]
		if p.redact[strings.ToLower(key)] {
			value = p.t(keyHeadersRedacted)
		}
		p.printHeaderLine(key, value, width)
	}
}

func (p *ConsolePrinter) printHeaderLine(key, value string, width int) {
	prefix := key + ": "
	available := width - runewidth.StringWidth(prefix)
	if available < 20 {
		available = 20
	}

	wrapped := p.wrapText(value, available)
	p.colorScheme.HeaderKey.Fprint(p.out, prefix)
	p.colorScheme.HeaderValue.Fprintln(p.out, wrapped[0])

	indent := strings.Repeat(" ", utf8.RuneCountInString(prefix))
	for _, line := range wrapped[1:] {
		fmt.Fprint(p.out, indent)
		p.colorScheme.HeaderValue.Fprintln(p.out, line)
	}
}

func (p *ConsolePrinter) printResponseBody(resp *request.Response) {
	contentType := headerValue(resp.Headers, "content-type")
	switch data := resp.Data.(type) {
	case nil:
		p.colorScheme.BodyContent.Fprintln(p.out, p.t(keyBodyEmpty))
	case string:
		if data == "" {
			p.colorScheme.BodyContent.Fprintln(p.out, p.t(keyBodyEmpty))
			return
		}
		p.printFormatted(contentType, []byte(data))
	case map[string]any:
		if raw, ok := binaryData(data); ok {
			p.printBinary(contentType, raw)
			return
		}
		p.printJSONValue(contentType, data)
	default:
		p.printJSONValue(contentType, data)
	}
}

func (p *ConsolePrinter) printJSONValue(contentType string, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		if p.logger != nil {
			p.logger.Debug("encode response data failed", "error", err)
		}
		fmt.Fprintln(p.out, v)
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	p.printFormatted(contentType, bytes.TrimRight(buf.Bytes(), "\n"))
}

func (p *ConsolePrinter) printBinary(contentType string, raw []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	p.colorScheme.BinaryNotice.Fprintln(p.out,
		p.tf(keyBodyBinarySummary, contentType, humanize.Bytes(uint64(len(raw)))))
	if p.hexPreview <= 0 {
		return
	}
	preview := raw
	if len(preview) > p.hexPreview {
		preview = preview[:p.hexPreview]
	}
	p.colorScheme.TruncateNotice.Fprintln(p.out, p.tf(keyBodyHexTitle, len(preview)))
	fmt.Fprint(p.out, hex.Dump(preview))
}

func (p *ConsolePrinter) printFormatted(contentType string, body []byte) {
	formatted := p.formatter.Format(contentType, body)
	for _, line := range strings.Split(formatted.Text, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed == "" {
			continue
		}
		p.colorScheme.BodyContent.Fprintln(p.out, trimmed)
	}
	for _, notice := range formatted.Notices {
		p.colorScheme.TruncateNotice.Fprintln(p.out, notice)
	}
}

// printTable aligns columns by display width. Columns in colored are
// painted with the method color of their value.
func (p *ConsolePrinter) printTable(header []string, rows [][]string, colored map[int]bool) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	// The last column takes whatever room is left.
	last := len(header) - 1
	used := 0
	for i := 0; i < last; i++ {
		used += widths[i] + 2
	}
	if room := p.getTerminalWidth() - used; room >= 10 && widths[last] > room {
		widths[last] = room
	}

	for i, h := range header {
		p.colorScheme.HeaderKey.Fprint(p.out, p.cell(h, widths[i], i == last))
	}
	fmt.Fprintln(p.out)
	for _, row := range rows {
		for i, value := range row {
			text := p.cell(value, widths[i], i == last)
			if colored[i] {
				p.getMethodColor(value).Fprint(p.out, text)
				continue
			}
			fmt.Fprint(p.out, text)
		}
		fmt.Fprintln(p.out)
	}
}

func (p *ConsolePrinter) cell(value string, width int, last bool) string {
	if last {
		return runewidth.Truncate(value, width, "…")
	}
	return runewidth.FillRight(value, width) + "  "
}

func (p *ConsolePrinter) statusColor(status int) *color.Color {
	switch {
	case status >= 500:
		return p.colorScheme.Status5xx
	case status >= 400:
		return p.colorScheme.Status4xx
	case status >= 300:
		return p.colorScheme.Status3xx
	default:
		return p.colorScheme.Status2xx
	}
}

// getMethodColor gets the corresponding color based on HTTP method
func (p *ConsolePrinter) getMethodColor(method string) *color.Color {
	switch strings.ToUpper(method) {
	case "GET":
		return p.colorScheme.MethodGET
	case "POST":
		return p.colorScheme.MethodPOST
	case "PUT":
		return p.colorScheme.MethodPUT
	case "DELETE":
		return p.colorScheme.MethodDELETE
	case "PATCH":
		return p.colorScheme.MethodPATCH
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

func formatMillis(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// binaryData recognizes the base64 envelope recorded for binary bodies.
func binaryData(data map[string]any) ([]byte, bool) {
	if flag, _ := data["binary"].(bool); !flag {
		return nil, false
	}
	encoded, _ := data["base64"].(string)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	return raw, true
}
