package environment

import (
	"regexp"
	"strings"

	"github.com/funnyzak/reqdeck/pkg/ident"
)

// Variable is a single key/value entry of an Environment.
type Variable struct {
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Environment is a named, ordered set of variables usable through
// {{key}} placeholders.
type Environment struct {
	ID        ident.ID   `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Variables []Variable `json:"variables" yaml:"variables"`
}

// Clone returns a deep copy of the environment.
func (e *Environment) Clone() *Environment {
	if e == nil {
		return nil
	}
	out := *e
	out.Variables = append([]Variable(nil), e.Variables...)
	return &out
}

// Lookup returns the value of the first enabled, non-empty variable named key.
func (e *Environment) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	key = strings.TrimSpace(key)
	for _, v := range e.Variables {
		if !v.usable() {
			continue
		}
		if strings.TrimSpace(v.Key) == key {
			return v.Value, true
		}
	}
	return "", false
}

// ActiveCount reports how many variables take part in substitution.
func (e *Environment) ActiveCount() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, v := range e.Variables {
		if v.usable() {
			n++
		}
	}
	return n
}

func (v Variable) usable() bool {
	return v.Enabled && v.Key != "" && v.Value != ""
}

// placeholderPattern matches {{ name }} with arbitrary inner whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// SubstituteFunc resolves placeholders in text against env.
type SubstituteFunc func(text string, env *Environment) string

// Substitute replaces {{key}} placeholders in text with the values of env.
//
// The text is scanned once: inserted values are never rescanned, so a value
// containing another placeholder is emitted verbatim. Unknown placeholders
// are left untouched. A nil env or empty text returns text unchanged.
func Substitute(text string, env *Environment) string {
	if env == nil || text == "" || !strings.Contains(text, "{{") {
		return text
	}
	if env.ActiveCount() == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if value, ok := env.Lookup(sub[1]); ok {
			return value
		}
		return match
	})
}

// Identity is a SubstituteFunc that performs no substitution.
func Identity(text string, _ *Environment) string {
	return text
}

// Placeholders lists the distinct placeholder names referenced by text in
// order of first appearance.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Unresolved lists the placeholder names in text that env cannot resolve.
func Unresolved(text string, env *Environment) []string {
	var missing []string
	for _, name := range Placeholders(text) {
		if _, ok := env.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
