package services

import (
	"strings"
	"time"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
)

// WriteContext is handed to Resource.BeforeWrite once a form validated.
type WriteContext struct {
	ActorID  string
	Creating bool
	Data     form.Values
	Record   map[string]any
}

// Resource bundles everything the admin screens need for one table: data
// access, the edit schema, and the list definition.
type Resource[T any] struct {
	Table        Table[T]
	Schema       form.Schema
	CreateSchema form.Schema
	List         listing.List[T]
	// Numeric fields arrive as text or JSON numbers and go through SetNumber.
	Numeric     []string
	Record      func(form.Values) map[string]any
	Values      func(T) form.Values
	BeforeWrite func(*WriteContext) error
}

func (r Resource[T]) SchemaFor(creating bool) form.Schema {
	if creating && r.CreateSchema != nil {
		return r.CreateSchema
	}
	return r.Schema
}

func (r Resource[T]) IsNumeric(field string) bool {
	return contains(r.Numeric, field)
}

func (r Resource[T]) Name() string { return r.Table.Name }

// copyField stores conv() under key when v carries key at all, so partial
// patches only touch the columns they name.
func copyField(out map[string]any, v form.Values, key string, conv func(form.Values, string) any) {
	if _, ok := v[key]; ok {
		out[key] = conv(v, key)
	}
}

func asString(v form.Values, key string) any { return v.String(key) }

func asOptionalString(v form.Values, key string) any { return v.OptionalString(key) }

func asInt(v form.Values, key string) any { return v.Int(key) }

func asFloat(v form.Values, key string) any { return v.Float(key) }

func asBool(v form.Values, key string) any { return v.Bool(key) }

func asTime(v form.Values, key string) any {
	t, ok := parseTime(v[key])
	if !ok {
		return nil
	}
	return t
}

func parseTime(value any) (time.Time, bool) {
	switch t := value.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		raw := strings.TrimSpace(t)
		if raw == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// validTime accepts an empty value or one parseTime understands.
func validTime(value any, _ form.Values) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	_, ok := parseTime(value)
	return ok
}

func optionalInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
