// Package audit holds the pure helpers behind audit logging: request body redaction,
// action and resource derivation, and export encodings.
package audit

import (
	"encoding/json"
	"reflect"
	"strings"
)

const (
	Redacted = "[REDACTED]"
	Circular = "[CIRCULAR]"
)

var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"key",
	"apikey",
	"api_key",
	"authorization",
	"credential",
}

// IsSensitiveKey reports whether a field name must never be persisted in clear
func IsSensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of v with the value under every sensitive key replaced by
// Redacted, at any depth. A container that appears inside itself is replaced by Circular.
// The result is always acyclic, so Sanitize(Sanitize(v)) equals Sanitize(v).
func Sanitize(v any) any {
	return sanitize(v, map[uintptr]bool{})
}

func sanitize(v any, ancestors map[uintptr]bool) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		id := reflect.ValueOf(t).Pointer()
		if ancestors[id] {
			return Circular
		}
		ancestors[id] = true
		defer delete(ancestors, id)

		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = sanitize(val, ancestors)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = val
		}
		return out
	case []any:
		if len(t) == 0 {
			return []any{}
		}
		id := reflect.ValueOf(t).Pointer()
		if ancestors[id] {
			return Circular
		}
		ancestors[id] = true
		defer delete(ancestors, id)

		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitize(val, ancestors)
		}
		return out
	case string, bool, float64, float32, int, int64, int32, uint, uint64, json.Number:
		return t
	}

	// Structs and typed containers are normalized through their JSON form first
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		raw, err := json.Marshal(v)
		if err != nil {
			return Circular
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil
		}
		return sanitize(generic, ancestors)
	}
	return v
}

// SanitizeBody parses a JSON request body and returns its redacted form. Bodies that are
// not JSON are dropped.
func SanitizeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return Sanitize(v)
}
