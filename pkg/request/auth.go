package request

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/funnyzak/reqdeck/pkg/environment"
)

// AuthType selects the authentication scheme of a draft.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "apikey"
	AuthCustom AuthType = "custom"
)

// APIKeyLocation tells where an API key is injected.
type APIKeyLocation string

const (
	LocationHeader APIKeyLocation = "header"
	LocationQuery  APIKeyLocation = "query"
)

type BearerAuth struct {
	Token string `json:"token" yaml:"token"`
}

type BasicAuth struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type APIKeyAuth struct {
	Key      string         `json:"key" yaml:"key"`
	Value    string         `json:"value" yaml:"value"`
	Location APIKeyLocation `json:"location" yaml:"location"`
}

type CustomAuth struct {
	Header string `json:"header" yaml:"header"`
	Value  string `json:"value" yaml:"value"`
}

// AuthConfig is the declarative authentication of a draft. Only the block
// matching Type is consulted. Field values may contain placeholders; they
// are substituted at resolution time.
type AuthConfig struct {
	Type   AuthType    `json:"type" yaml:"type"`
	Bearer *BearerAuth `json:"bearer,omitempty" yaml:"bearer,omitempty"`
	Basic  *BasicAuth  `json:"basic,omitempty" yaml:"basic,omitempty"`
	APIKey *APIKeyAuth `json:"apikey,omitempty" yaml:"apikey,omitempty"`
	Custom *CustomAuth `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (a AuthConfig) Clone() AuthConfig {
	out := AuthConfig{Type: a.Type}
	if a.Bearer != nil {
		v := *a.Bearer
		out.Bearer = &v
	}
	if a.Basic != nil {
		v := *a.Basic
		out.Basic = &v
	}
	if a.APIKey != nil {
		v := *a.APIKey
		out.APIKey = &v
	}
	if a.Custom != nil {
		v := *a.Custom
		out.Custom = &v
	}
	return out
}

func (a *AuthConfig) normalize() {
	switch t := AuthType(strings.ToLower(strings.TrimSpace(string(a.Type)))); t {
	case AuthBearer, AuthBasic, AuthAPIKey, AuthCustom:
		a.Type = t
	default:
		a.Type = AuthNone
	}
}

// ResolutionKind tells how a resolved credential is injected.
type ResolutionKind int

const (
	ResolutionNone ResolutionKind = iota
	ResolutionHeader
	ResolutionQuery
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionHeader:
		return "header"
	case ResolutionQuery:
		return "query"
	default:
		return "none"
	}
}

// MarshalText encodes the kind by name.
func (k ResolutionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name; unknown names mean none.
func (k *ResolutionKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "header":
		*k = ResolutionHeader
	case "query":
		*k = ResolutionQuery
	default:
		*k = ResolutionNone
	}
	return nil
}

// AuthResolution is the outcome of ResolveAuth.
type AuthResolution struct {
	Kind  ResolutionKind `json:"kind"`
	Name  string         `json:"name,omitempty"`
	Value string         `json:"value,omitempty"`
}

// Describe renders the resolution for previews.
func (r AuthResolution) Describe() string {
	switch r.Kind {
	case ResolutionHeader:
		return fmt.Sprintf("header %s: %s", r.Name, r.Value)
	case ResolutionQuery:
		return fmt.Sprintf("query %s=%s", r.Name, r.Value)
	default:
		return "no auth header will be generated"
	}
}

// ResolveAuth turns an auth configuration into the header or query
// parameter it produces. Every field is substituted exactly once from its
// raw value. Incomplete configurations resolve to ResolutionNone; this
// function never fails. A nil sub uses environment.Substitute.
func ResolveAuth(auth AuthConfig, env *environment.Environment, sub environment.SubstituteFunc) AuthResolution {
	if sub == nil {
		sub = environment.Substitute
	}
	none := AuthResolution{Kind: ResolutionNone}

	switch auth.Type {
	case AuthBearer:
		if auth.Bearer == nil {
			return none
		}
		token := sub(auth.Bearer.Token, env)
		if token == "" {
			return none
		}
		return AuthResolution{Kind: ResolutionHeader, Name: "Authorization", Value: "Bearer " + token}
	case AuthBasic:
		if auth.Basic == nil {
			return none
		}
		user := sub(auth.Basic.Username, env)
		pass := sub(auth.Basic.Password, env)
		if user == "" || pass == "" {
			return none
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		return AuthResolution{Kind: ResolutionHeader, Name: "Authorization", Value: "Basic " + encoded}
	case AuthAPIKey:
		if auth.APIKey == nil {
			return none
		}
		key := sub(auth.APIKey.Key, env)
		value := sub(auth.APIKey.Value, env)
		if key == "" || value == "" {
			return none
		}
		switch auth.APIKey.Location {
		case LocationHeader:
			return AuthResolution{Kind: ResolutionHeader, Name: key, Value: value}
		case LocationQuery:
			return AuthResolution{Kind: ResolutionQuery, Name: key, Value: value}
		default:
			return none
		}
	case AuthCustom:
		if auth.Custom == nil {
			return none
		}
		header := sub(auth.Custom.Header, env)
		value := sub(auth.Custom.Value, env)
		if header == "" || value == "" {
			return none
		}
		return AuthResolution{Kind: ResolutionHeader, Name: header, Value: value}
	default:
		return none
	}
}
