package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// TokenHeader carries the API token when the Authorization header is not
// convenient.
const TokenHeader = "X-Reqdeck-Token"

// autoToken asks for a random token generated at startup.
const autoToken = "auto"

// TokenAuth guards the API with a single shared token. A zero TokenAuth
// lets every request through.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates the guard for token. "auto" generates a random
// token; an empty token disables the check.
func NewTokenAuth(token string) *TokenAuth {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, autoToken) {
		token = randomToken()
	}
	return &TokenAuth{token: token}
}

// Enabled indicates whether requests must present the token.
func (a *TokenAuth) Enabled() bool {
	return a != nil && a.token != ""
}

// Token returns the expected token, "" when disabled.
func (a *TokenAuth) Token() string {
	if a == nil {
		return ""
	}
	return a.token
}

// Validate reports whether presented matches the token.
func (a *TokenAuth) Validate(presented string) bool {
	if !a.Enabled() {
		return true
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) == 1
}

// Middleware rejects requests without a valid token. Browsers cannot set
// headers on websocket upgrades, so the token is also read from the
// "token" query parameter.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Validate(presentedToken(r)) {
			w.Header().Set("Content-Type", contentTypeJSON)
			w.Header().Set("WWW-Authenticate", `Bearer realm="reqdeck"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func presentedToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return token
		}
	}
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func randomToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(buf)
}
