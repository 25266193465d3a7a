package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

type sendOptions struct {
	method      string
	url         string
	headers     []string
	body        string
	bodyFile    string
	bodyType    string
	bearer      string
	basic       string
	apiKey      string
	apiKeyIn    string
	item        string
	fromHistory string
	env         string
	noEnv       bool
	dryRun      bool
	save        string
	folder      string
}

func newSendCmd(v *viper.Viper) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send [url]",
		Short: "Resolve and send a request",
		Long: `Send builds a request from flags, a saved collection item (--item) or a history
entry (--from-history), resolves {{placeholders}} against the active environment
(or --env), sends it and records the exchange in history.`,
		Example: `  reqdeck send https://api.example.com/users
  reqdeck send -X POST {{baseUrl}}/users -H 'Content-Type: application/json' -d '{"name":"ada"}'
  reqdeck send --item "List users" --env staging
  reqdeck send -X DELETE {{baseUrl}}/users/1 --bearer {{token}} --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if opts.url != "" {
					return errors.New("give the URL either as argument or with --url")
				}
				opts.url = args[0]
			}
			return withApp(cmd, v, func(a *app) error {
				return runSend(cmd, a, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.method, "method", "X", "", "HTTP method (default GET)")
	f.StringVarP(&opts.url, "url", "u", "", "Request URL, may contain {{placeholders}}")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "Request header 'Key: Value' (repeatable)")
	f.StringVarP(&opts.body, "data", "d", "", "Request body")
	f.StringVar(&opts.bodyFile, "data-file", "", "Read the request body from a file")
	f.StringVar(&opts.bodyType, "body-type", "", "Body type (json, raw, form-data, xml, html, none)")
	f.StringVar(&opts.bearer, "bearer", "", "Bearer token")
	f.StringVar(&opts.basic, "basic", "", "Basic credentials 'user:password'")
	f.StringVar(&opts.apiKey, "api-key", "", "API key 'name=value'")
	f.StringVar(&opts.apiKeyIn, "api-key-in", "header", "Where the API key goes (header, query)")
	f.StringVar(&opts.item, "item", "", "Send a saved request by id or name")
	f.StringVar(&opts.fromHistory, "from-history", "", "Send the request of a history entry again")
	f.StringVarP(&opts.env, "env", "e", "", "Environment id or name (default: active environment)")
	f.BoolVar(&opts.noEnv, "no-env", false, "Resolve without any environment")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Resolve and print the request without sending it")
	f.StringVar(&opts.save, "save", "", "Save the request to the collection under this name")
	f.StringVar(&opts.folder, "folder", "", "Folder id for --save")
	f.Bool("full-body", false, "Print response bodies without truncation")

	v.BindPFlag("output.body_view.full_body", f.Lookup("full-body"))
	return cmd
}

func runSend(cmd *cobra.Command, a *app, opts *sendOptions) error {
	draft, err := opts.draft(a.ws)
	if err != nil {
		return err
	}
	env, err := opts.environment(a.ws)
	if err != nil {
		return err
	}

	if opts.save != "" {
		item, err := a.ws.SaveToCollection(opts.save, draft, ident.ID(opts.folder))
		if err != nil {
			return err
		}
		a.log.Info("Request saved", "id", item.ID.String(), "name", item.Name)
	}

	if opts.dryRun {
		preview, err := a.composer.PreviewWith(draft, env)
		if err != nil {
			return err
		}
		return a.printer.PrintPreview(preview)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, sendErr := a.composer.SendWith(ctx, draft, env)
	if result == nil {
		return sendErr
	}
	if err := a.printer.PrintResult(result); err != nil {
		return err
	}
	// The failure is already recorded and printed; the error only sets the
	// exit status.
	return sendErr
}

// draft builds the request from exactly one source: a saved item, a
// history entry or the flags.
func (o *sendOptions) draft(ws *workspace.Store) (request.Draft, error) {
	sources := 0
	for _, s := range []string{o.item, o.fromHistory, o.url} {
		if strings.TrimSpace(s) != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		return request.Draft{}, errors.New("a URL, --item or --from-history is required")
	case sources > 1:
		return request.Draft{}, errors.New("use only one of URL, --item and --from-history")
	}

	if o.item != "" {
		item, err := ws.FindRequest(o.item)
		if err != nil {
			return request.Draft{}, err
		}
		return item.Request, nil
	}
	if o.fromHistory != "" {
		entry, err := ws.HistoryEntry(ident.ID(strings.TrimSpace(o.fromHistory)))
		if err != nil {
			return request.Draft{}, err
		}
		return entry.Request, nil
	}
	return o.fromFlags()
}

func (o *sendOptions) fromFlags() (request.Draft, error) {
	draft := request.NewDraft()
	draft.URL = strings.TrimSpace(o.url)

	if o.method != "" {
		m, ok := request.ParseMethod(o.method)
		if !ok {
			return request.Draft{}, fmt.Errorf("unsupported method %q", o.method)
		}
		draft.Method = m
	}

	headers, err := parseHeaders(o.headers)
	if err != nil {
		return request.Draft{}, err
	}
	draft.Headers = headers

	body := o.body
	if o.bodyFile != "" {
		if body != "" {
			return request.Draft{}, errors.New("use either --data or --data-file")
		}
		data, err := os.ReadFile(o.bodyFile)
		if err != nil {
			return request.Draft{}, fmt.Errorf("read body: %w", err)
		}
		body = string(data)
	}
	draft.Body = body
	if o.bodyType != "" {
		bt, ok := request.ParseBodyType(o.bodyType)
		if !ok {
			return request.Draft{}, fmt.Errorf("unsupported body type %q", o.bodyType)
		}
		draft.BodyType = bt
	}
	if o.method == "" && body != "" {
		draft.Method = request.MethodPost
	}

	auth, err := o.auth()
	if err != nil {
		return request.Draft{}, err
	}
	draft.Auth = auth
	return draft, nil
}

func (o *sendOptions) auth() (request.AuthConfig, error) {
	given := 0
	for _, s := range []string{o.bearer, o.basic, o.apiKey} {
		if s != "" {
			given++
		}
	}
	if given > 1 {
		return request.AuthConfig{}, errors.New("use only one of --bearer, --basic and --api-key")
	}

	switch {
	case o.bearer != "":
		return request.AuthConfig{Type: request.AuthBearer, Bearer: &request.BearerAuth{Token: o.bearer}}, nil
	case o.basic != "":
		user, pass, _ := strings.Cut(o.basic, ":")
		return request.AuthConfig{Type: request.AuthBasic, Basic: &request.BasicAuth{Username: user, Password: pass}}, nil
	case o.apiKey != "":
		key, value, ok := strings.Cut(o.apiKey, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return request.AuthConfig{}, fmt.Errorf("invalid --api-key %q, expected name=value", o.apiKey)
		}
		location := request.APIKeyLocation(strings.ToLower(o.apiKeyIn))
		if location != request.LocationHeader && location != request.LocationQuery {
			return request.AuthConfig{}, fmt.Errorf("invalid --api-key-in %q", o.apiKeyIn)
		}
		return request.AuthConfig{
			Type:   request.AuthAPIKey,
			APIKey: &request.APIKeyAuth{Key: strings.TrimSpace(key), Value: value, Location: location},
		}, nil
	}
	return request.AuthConfig{Type: request.AuthNone}, nil
}

func (o *sendOptions) environment(ws *workspace.Store) (*environment.Environment, error) {
	if o.noEnv {
		if o.env != "" {
			return nil, errors.New("use either --env or --no-env")
		}
		return nil, nil
	}
	if o.env == "" {
		return ws.ActiveEnvironment(), nil
	}
	return ws.FindEnvironment(o.env)
}

// parseHeaders turns "Key: Value" flags into enabled headers.
func parseHeaders(values []string) ([]request.Header, error) {
	headers := make([]request.Header, 0, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Key: Value'", raw)
		}
		headers = append(headers, request.Header{Key: key, Value: strings.TrimSpace(value), Enabled: true})
	}
	return headers, nil
}
