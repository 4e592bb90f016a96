package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// KeySeparator joins the segments of a derived cache key.
const KeySeparator = ":"

// KeyDeriver maps a record identity to its cache key. Implementations must be
// pure: the same identity always yields the same key.
type KeyDeriver interface {
	DeriveKey(hash, rng any) string
}

// KeyOption configures a KeyDeriver.
type KeyOption func(*keyDeriver)

// WithKeyPrefix prepends a namespace segment to every derived key. Useful
// when several deployments share one cache store.
func WithKeyPrefix(prefix string) KeyOption {
	return func(d *keyDeriver) {
		d.prefix = prefix
	}
}

type keyDeriver struct {
	table  string
	prefix string
}

// NewKeyDeriver returns the default deriver bound to a table name.
func NewKeyDeriver(tableName string, opts ...KeyOption) KeyDeriver {
	d := &keyDeriver{table: tableName}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *keyDeriver) DeriveKey(hash, rng any) string {
	key := DeriveKey(d.table, hash, rng)
	if d.prefix == "" {
		return key
	}
	return strings.ToLower(d.prefix) + KeySeparator + key
}

// DeriveKey builds the cache key for a record identity:
//
//	lower(table + ":" + hash [+ ":" + range])
//
// The range segment is present whenever rng is non-nil.
func DeriveKey(tableName string, hash, rng any) string {
	var b strings.Builder
	b.WriteString(tableName)
	b.WriteString(KeySeparator)
	b.WriteString(Canonical(hash))
	if rng != nil {
		b.WriteString(KeySeparator)
		b.WriteString(Canonical(rng))
	}
	return strings.ToLower(b.String())
}

// Canonical renders a key value as a stable string. Strings are used
// verbatim and pointers are dereferenced. Numbers are written in plain
// decimal notation, never with an exponent, so an integer and the float64 it
// decodes to after a JSON round trip render the same (1234567 and
// float64(1234567) both give "1234567"). Anything else falls back to JSON.
func Canonical(v any) string {
	if v == nil {
		return "nil"
	}

	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return Canonical(rv.Elem().Interface())
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.String:
		return rv.String()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%s:%v", rv.Type().String(), v)
	}
	return string(data)
}
