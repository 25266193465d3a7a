// Package transport executes resolved requests over HTTP.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/pkg/request"
)

var (
	// ErrTransport wraps network-level failures. The accompanying response
	// has status 0.
	ErrTransport = errors.New("transport error")
	// ErrClosed indicates the client has been shut down.
	ErrClosed = errors.New("transport client is closed")
)

// Options configures the HTTP client.
type Options struct {
	Timeout               time.Duration
	MaxRedirects          int
	MaxResponseBytes      int64
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	TLSInsecureSkipVerify bool
	UserAgent             string
	DefaultHeaders        map[string]string
}

// OptionsFromConfig converts the transport section of the configuration.
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		Timeout:               time.Duration(cfg.Timeout) * time.Second,
		MaxRedirects:          cfg.MaxRedirects,
		MaxResponseBytes:      cfg.MaxResponseBytes,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       time.Duration(cfg.IdleConnTimeout) * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.ResponseHeaderTimeout) * time.Second,
		TLSHandshakeTimeout:   time.Duration(cfg.TLSHandshakeTimeout) * time.Second,
		ExpectContinueTimeout: time.Duration(cfg.ExpectContinueTimeout) * time.Second,
		TLSInsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		UserAgent:             cfg.UserAgent,
		DefaultHeaders:        cfg.DefaultHeaders,
	}
}

// Client sends resolved requests and summarizes their responses.
type Client struct {
	client   *http.Client
	logger   logger.Logger
	opts     Options
	mu       sync.Mutex
	cond     *sync.Cond
	closed   bool
	inflight int
}

// New creates a client with pooled connections.
func New(log logger.Logger, opts Options) *Client {
	if log == nil {
		log = logger.Nop()
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          positiveOrDefault(opts.MaxIdleConns, 100),
		MaxIdleConnsPerHost:   positiveOrDefault(opts.MaxIdleConnsPerHost, 10),
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       durationOrDefault(opts.IdleConnTimeout, 90*time.Second),
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   durationOrDefault(opts.TLSHandshakeTimeout, 10*time.Second),
		ExpectContinueTimeout: durationOrDefault(opts.ExpectContinueTimeout, 1*time.Second),
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.TLSInsecureSkipVerify,
		},
	}
	maxRedirects := opts.MaxRedirects
	c := &Client{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Past the limit the redirect response itself is returned.
				if len(via) > maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: log,
		opts:   opts,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Do sends r. A network-level failure yields a status-0 response together
// with an error wrapping ErrTransport; HTTP error statuses are not errors.
func (c *Client) Do(ctx context.Context, r *request.Resolved) (*request.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return request.FailureResponse(ErrClosed, 0), fmt.Errorf("%w: %v", ErrTransport, ErrClosed)
	}
	c.inflight++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight--
		if c.inflight == 0 {
			c.cond.Broadcast()
		}
		c.mu.Unlock()
	}()

	start := time.Now()
	resp, err := c.do(ctx, r)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.logger.Warn("Request failed",
			"method", string(r.Method),
			"url", r.URL,
			"error", err.Error(),
		)
		return request.FailureResponse(err, elapsed), fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp.Duration = elapsed
	c.logger.Debug("Request completed",
		"method", string(r.Method),
		"url", r.URL,
		"status", resp.Status,
		"duration_ms", elapsed,
	)
	return resp, nil
}

func (c *Client) do(ctx context.Context, r *request.Resolved) (*request.Response, error) {
	payload, err := r.BodyBytes()
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	method := string(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.opts.DefaultHeaders {
		req.Header.Set(k, v)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	// Resolved header names keep their case on the wire. Keys are applied in
	// sorted order so case-insensitive duplicates resolve the same way on
	// every send.
	names := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		for existing := range req.Header {
			if strings.EqualFold(existing, k) {
				delete(req.Header, existing)
			}
		}
		req.Header[k] = []string{r.Headers[k]}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("Failed to close response body", "error", cerr)
		}
	}()

	reader := io.Reader(resp.Body)
	limit := c.opts.MaxResponseBytes
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if limit > 0 && int64(len(raw)) > limit {
		raw = raw[:limit]
		c.logger.Warn("Response body truncated", "url", r.URL, "limit", limit)
	}

	return &request.Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Data:       decodeData(resp.Header.Get("Content-Type"), raw),
		Headers:    flattenHeaders(resp.Header),
		Size:       int64(len(raw)),
	}, nil
}

// Close waits for in-flight requests and releases idle connections.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	for c.inflight > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()

	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func statusText(resp *http.Response) string {
	// resp.Status is "200 OK"; keep the reason phrase sent by the server.
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// decodeData turns a body into the value recorded in history: decoded JSON,
// text, or base64 for binary content.
func decodeData(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if isJSONMedia(mediaType) || (mediaType == "" && json.Valid(raw)) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil && !dec.More() {
			return v
		}
	}
	if request.IsBinary(contentType, raw) {
		return map[string]any{
			"binary": true,
			"base64": base64.StdEncoding.EncodeToString(raw),
		}
	}
	return string(raw)
}

func isJSONMedia(mediaType string) bool {
	return mediaType == "application/json" ||
		strings.HasSuffix(mediaType, "+json") ||
		mediaType == "text/json"
}

// flattenHeaders lower-cases header names and joins repeated values.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[strings.ToLower(k)] = strings.Join(h[k], ", ")
	}
	return out
}

func positiveOrDefault(value, def int) int {
	if value > 0 {
		return value
	}
	return def
}

func durationOrDefault(value, def time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return def
}
