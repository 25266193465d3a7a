// Package composer runs the send pipeline: a draft is resolved against an
// environment, handed to the transport and recorded in history.
package composer

import (
	"context"
	"errors"
	"fmt"

	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/request"
)

// Doer executes a resolved request. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, r *request.Resolved) (*request.Response, error)
}

// Preview is a resolved draft that has not been sent.
type Preview struct {
	Resolved    *request.Resolved `json:"resolved"`
	Auth        string            `json:"auth"`
	Environment string            `json:"environment,omitempty"`
	// Unresolved lists placeholders no enabled variable provides.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Result describes one send.
type Result struct {
	Preview
	Response *request.Response       `json:"response"`
	Entry    *workspace.HistoryEntry `json:"entry"`
}

// Composer sends drafts on behalf of a workspace.
type Composer struct {
	ws     *workspace.Store
	client Doer
	logger logger.Logger
}

// New creates a composer.
func New(ws *workspace.Store, client Doer, log logger.Logger) *Composer {
	if log == nil {
		log = logger.Nop()
	}
	return &Composer{ws: ws, client: client, logger: log}
}

// Preview resolves draft against the active environment.
func (c *Composer) Preview(draft request.Draft) (*Preview, error) {
	return c.PreviewWith(draft, c.ws.ActiveEnvironment())
}

// PreviewWith resolves draft against env, which may be nil.
func (c *Composer) PreviewWith(draft request.Draft, env *environment.Environment) (*Preview, error) {
	resolved, err := request.Resolve(draft, env)
	if err != nil {
		return nil, err
	}
	p := &Preview{
		Resolved:   resolved,
		Auth:       resolved.Auth.Describe(),
		Unresolved: unresolved(draft, env),
	}
	if env != nil {
		p.Environment = env.Name
	}
	return p, nil
}

// Send resolves draft against the active environment, sends it and records
// the exchange.
func (c *Composer) Send(ctx context.Context, draft request.Draft) (*Result, error) {
	return c.SendWith(ctx, draft, c.ws.ActiveEnvironment())
}

// SendWith is Send with an explicit environment, which may be nil.
//
// A draft whose JSON body does not parse is rejected before anything is
// sent or recorded. Transport failures are recorded like any other
// response, with status 0; the returned error then wraps the transport
// error and the Result is still populated.
func (c *Composer) SendWith(ctx context.Context, draft request.Draft, env *environment.Environment) (*Result, error) {
	preview, err := c.PreviewWith(draft, env)
	if err != nil {
		c.logger.Warn("Request not sent", "url", draft.URL, "error", err.Error())
		return nil, err
	}
	if c.client == nil {
		return nil, errors.New("no transport configured")
	}

	resp, sendErr := c.client.Do(ctx, preview.Resolved)
	if resp == nil {
		if sendErr == nil {
			sendErr = errors.New("transport returned no response")
		}
		resp = request.FailureResponse(sendErr, 0)
	}
	entry := c.ws.AddHistory(draft, resp)

	result := &Result{Preview: *preview, Response: resp, Entry: entry}
	if sendErr != nil {
		return result, fmt.Errorf("send %s %s: %w", preview.Resolved.Method, preview.Resolved.URL, sendErr)
	}
	c.logger.Info("Request sent",
		"method", string(preview.Resolved.Method),
		"url", preview.Resolved.URL,
		"status", resp.Status,
		"duration_ms", resp.Duration,
	)
	return result, nil
}

func unresolved(draft request.Draft, env *environment.Environment) []string {
	texts := []string{draft.URL}
	for _, h := range draft.Headers {
		if h.Active() {
			texts = append(texts, h.Key, h.Value)
		}
	}
	if draft.Method.CarriesBody() {
		texts = append(texts, draft.Body)
	}
	auth := draft.Auth
	switch auth.Type {
	case request.AuthBearer:
		if auth.Bearer != nil {
			texts = append(texts, auth.Bearer.Token)
		}
	case request.AuthBasic:
		if auth.Basic != nil {
			texts = append(texts, auth.Basic.Username, auth.Basic.Password)
		}
	case request.AuthAPIKey:
		if auth.APIKey != nil {
			texts = append(texts, auth.APIKey.Key, auth.APIKey.Value)
		}
	case request.AuthCustom:
		if auth.Custom != nil {
			texts = append(texts, auth.Custom.Header, auth.Custom.Value)
		}
	}

	seen := make(map[string]struct{})
	var missing []string
	for _, text := range texts {
		for _, name := range environment.Unresolved(text, env) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			missing = append(missing, name)
		}
	}
	return missing
}
