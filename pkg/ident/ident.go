// Package ident provides the opaque identifiers shared by environments,
// collection nodes and history entries.
package ident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque identifier. Documents written by older clients carry
// numeric identifiers (millisecond timestamps); those decode to their
// decimal text so they stay comparable with string identifiers.
type ID string

// New returns a fresh random identifier.
func New() ID {
	return ID(uuid.NewString())
}

var (
	clockMu  sync.Mutex
	lastTick int64
)

// NewTimestamp returns an identifier derived from the creation time in
// milliseconds. Identifiers created within the same millisecond are bumped
// so that each call yields a distinct, increasing value.
func NewTimestamp(t time.Time) ID {
	ms := t.UnixMilli()
	clockMu.Lock()
	if ms <= lastTick {
		ms = lastTick + 1
	}
	lastTick = ms
	clockMu.Unlock()
	return ID(strconv.FormatInt(ms, 10))
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is empty.
func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// FromAny converts a loosely typed decoded value into an identifier.
func FromAny(v any) ID {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return ID(val)
	case ID:
		return val
	case json.Number:
		return ID(val.String())
	case float64:
		return ID(strconv.FormatFloat(val, 'f', -1, 64))
	case int:
		return ID(strconv.Itoa(val))
	case int64:
		return ID(strconv.FormatInt(val, 10))
	case uint64:
		return ID(strconv.FormatUint(val, 10))
	default:
		return ID(fmt.Sprint(val))
	}
}
