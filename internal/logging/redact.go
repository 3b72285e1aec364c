package logging

import (
	"reflect"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Redacted replaces the value of any sensitive field.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"cookie":        {},
	"set_cookie":    {},
	"api_key":       {},
	"apikey":        {},
	"secret":        {},
	"client_secret": {},
}

// IsSensitiveKey reports whether a field named key must never be logged verbatim.
// Keys are compared after lowercasing and folding non-alphanumerics to '_'.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// redactingCore filters fields before delegating to the wrapped core.
type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so sensitive keys are replaced with Redacted,
// including keys nested inside maps and slices passed via zap.Any.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(RedactFields(fields))}
}

func (c *redactingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *redactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, RedactFields(fields))
}

// RedactFields returns a copy of fields with sensitive values replaced.
func RedactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(f zapcore.Field) zapcore.Field {
	if IsSensitiveKey(f.Key) {
		return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: Redacted}
	}
	if f.Type == zapcore.ReflectType && f.Interface != nil {
		f.Interface = RedactValue(f.Interface)
	}
	return f
}

// RedactValue walks maps and slices and replaces values stored under
// sensitive keys. Other values are returned unchanged.
func RedactValue(v any) any {
	if v == nil {
		return nil
	}
	return redactReflect(reflect.ValueOf(v))
}

func redactReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return rv.Interface()
		}
		if rv.Kind() == reflect.Interface {
			return redactReflect(rv.Elem())
		}
		return rv.Interface()
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Interface()
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if IsSensitiveKey(key) {
				out[key] = Redacted
				continue
			}
			out[key] = redactReflect(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return rv.Interface()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Interface()
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = redactReflect(rv.Index(i))
		}
		return out
	default:
		if !rv.CanInterface() {
			return nil
		}
		return rv.Interface()
	}
}
