// Package i18n looks up translated labels for command output.
package i18n

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// localeFiles embeds default translation resources.
//
//go:embed locales/*.yaml
var localeFiles embed.FS

// Translator resolves dotted message keys for a locale, falling back to
// the base language and then to the default locale.
type Translator struct {
	locales       map[string]map[string]string
	defaultLocale string
	mu            sync.RWMutex
}

// NewTranslator loads every embedded locale.
func NewTranslator(defaultLocale string) (*Translator, error) {
	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	locales := make(map[string]map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		data, err := localeFiles.ReadFile("locales/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		parsed := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		locales[name] = flattenMap(parsed, "")
	}

	if defaultLocale == "" {
		defaultLocale = "en"
	}
	if _, ok := locales[defaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %s missing", defaultLocale)
	}

	return &Translator{locales: locales, defaultLocale: defaultLocale}, nil
}

// Supported lists the loaded locales in sorted order.
func (t *Translator) Supported() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.locales))
	for key := range t.locales {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Text returns the translation of key, or key itself when no locale in
// the lookup chain defines it.
func (t *Translator) Text(locale, key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if key == "" {
		return ""
	}

	lookupChain := []string{}
	if locale != "" {
		lookupChain = append(lookupChain, locale)
		if base := baseLocale(locale); base != locale {
			lookupChain = append(lookupChain, base)
		}
	}
	if t.defaultLocale != "" {
		lookupChain = append(lookupChain, t.defaultLocale)
	}

	for _, candidate := range lookupChain {
		if values, ok := t.locales[candidate]; ok {
			if val, ok := values[key]; ok {
				return val
			}
		}
	}

	return key
}

// DefaultLocale returns the fallback locale.
func (t *Translator) DefaultLocale() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultLocale
}

// Textf formats the translation of key with args.
func (t *Translator) Textf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(t.Text(locale, key), args...)
}

// Match returns the loaded locale best matching the requested one, or the
// default locale. "zh_CN" and "zh-cn" both match "zh-CN"; "en-US" matches
// "en".
func (t *Translator) Match(locale string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	want := strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if want == "" {
		return t.defaultLocale
	}
	for name := range t.locales {
		if strings.EqualFold(name, want) {
			return name
		}
	}
	base := baseLocale(want)
	for name := range t.locales {
		if strings.EqualFold(name, base) {
			return name
		}
	}
	return t.defaultLocale
}

func baseLocale(locale string) string {
	locale = strings.ReplaceAll(locale, "_", "-")
	parts := strings.Split(locale, "-")
	if len(parts) > 1 {
		return parts[0]
	}
	return locale
}

func flattenMap(data map[string]interface{}, prefix string) map[string]string {
	out := make(map[string]string)
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			nested := flattenMap(v, fullKey)
			for nk, nv := range nested {
				out[nk] = nv
			}
		case string:
			out[fullKey] = v
		case fmt.Stringer:
			out[fullKey] = v.String()
		default:
			out[fullKey] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
