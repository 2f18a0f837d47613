package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Data is the open field mapping accumulated for an operation.
type Data map[string]any

// IsEmpty reports whether v carries no usable value.
// Zero numbers count as values so that "0" quantities are kept.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Has reports whether key holds a non-empty value.
func (d Data) Has(key string) bool {
	if d == nil {
		return false
	}
	return !IsEmpty(d[key])
}

// String returns the value of key rendered as a trimmed string.
func (d Data) String(key string) string {
	if d == nil {
		return ""
	}
	switch v := d[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a shallow copy of d.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// IsInternalKey reports whether key is bookkeeping owned by the assistant.
func IsInternalKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Entries returns the list-of-mappings stored under key.
func (d Data) Entries(key string) []Data {
	raw, ok := d[key]
	if !ok {
		return nil
	}
	var out []Data
	switch list := raw.(type) {
	case []Data:
		return list
	case []map[string]any:
		for _, m := range list {
			out = append(out, Data(m))
		}
	case []any:
		for _, item := range list {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Data(m))
			case Data:
				out = append(out, m)
			}
		}
	}
	return out
}
