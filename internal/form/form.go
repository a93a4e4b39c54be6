// Package form tracks the values, errors, touched flags and dirtiness of a
// flat record edited against a declarative Schema.
//
// Validation failures are data, never panics: they land in the error map and
// Submit refuses to run the caller's callback while any remain.
package form

import (
	"errors"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// ErrInvalid is returned by Submit when validation blocked the callback.
var ErrInvalid = errors.New("form has validation errors")

// NumberMessage is stored for a numeric field whose text does not parse.
const NumberMessage = "Must be a number"

type Values map[string]any

// String returns the trimmed text at key, or "".
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return strings.TrimSpace(s)
}

// OptionalString returns nil for a missing or blank value.
func (v Values) OptionalString(key string) *string {
	s := v.String(key)
	if s == "" {
		return nil
	}
	return &s
}

func (v Values) Bool(key string) bool {
	switch b := v[key].(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	}
	return false
}

// Int returns nil when the value is absent, not numeric, fractional, or
// outside the 32-bit range of the integer columns.
func (v Values) Int(key string) *int {
	f, ok := number(v[key])
	if !ok || !wholeInRange(f) {
		return nil
	}
	n := int(f)
	return &n
}

func (v Values) Float(key string) *float64 {
	f, ok := number(v[key])
	if !ok {
		return nil
	}
	return &f
}

type Options struct {
	ValidateOnBlur   bool
	ValidateOnChange bool
	ValidateOnSubmit bool
}

// DefaultOptions validates on blur and submit but not on every keystroke.
func DefaultOptions() Options {
	return Options{ValidateOnBlur: true, ValidateOnSubmit: true}
}

// Form is not safe for concurrent use; each editor owns its own instance.
type Form struct {
	schema  Schema
	opts    Options
	initial Values
	data    Values
	errors  map[string]string
	touched map[string]bool
}

func New(schema Schema, initial Values, opts Options) *Form {
	if initial == nil {
		initial = Values{}
	}
	return &Form{
		schema:  schema,
		opts:    opts,
		initial: maps.Clone(initial),
		data:    maps.Clone(initial),
		errors:  map[string]string{},
		touched: map[string]bool{},
	}
}

// SetField stores value, drops any error on the field, and re-validates it
// only when ValidateOnChange is set.
func (f *Form) SetField(name string, value any) {
	f.data[name] = value
	delete(f.errors, name)
	if f.opts.ValidateOnChange {
		f.ValidateField(name)
	}
}

// SetNumber handles numeric text input. Blank text stores nil rather than
// zero; text that does not parse to a finite number, NaN and Inf included,
// stores nil and records NumberMessage.
func (f *Form) SetNumber(name, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		f.SetField(name, nil)
		return
	}
	if n, err := strconv.Atoi(raw); err == nil {
		f.SetField(name, n)
		return
	}
	if x, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(x) && !math.IsInf(x, 0) {
		f.SetField(name, x)
		return
	}
	f.SetField(name, nil)
	f.errors[name] = NumberMessage
}

// Blur marks the field touched and validates it when ValidateOnBlur is set.
func (f *Form) Blur(name string) {
	f.touched[name] = true
	if f.opts.ValidateOnBlur {
		f.ValidateField(name)
	}
}

// ValidateField evaluates the rules of one field and returns the message of
// the first failing rule, or "" when the field is valid.
func (f *Form) ValidateField(name string) string {
	for _, rule := range f.schema[name] {
		if !Check(rule, f.data[name], f.data) {
			f.errors[name] = rule.Message
			return rule.Message
		}
	}
	delete(f.errors, name)
	return ""
}

// Validate checks every schema field and reports whether all passed.
// Fields that already hold a parse error keep it.
func (f *Form) Validate() bool {
	for _, name := range f.schema.Fields() {
		if f.errors[name] == NumberMessage {
			continue
		}
		f.ValidateField(name)
	}
	return len(f.errors) == 0
}

// Submit validates the whole schema when ValidateOnSubmit is set. On failure
// every schema field is marked touched and onSubmit is not called.
func (f *Form) Submit(onSubmit func(Values) error) error {
	if f.opts.ValidateOnSubmit && !f.Validate() {
		for _, name := range f.schema.Fields() {
			f.touched[name] = true
		}
		return ErrInvalid
	}
	if onSubmit == nil {
		return nil
	}
	return onSubmit(f.Data())
}

// Reset restores the initial data and clears errors and touched flags.
func (f *Form) Reset() {
	f.data = maps.Clone(f.initial)
	f.errors = map[string]string{}
	f.touched = map[string]bool{}
}

func (f *Form) Data() Values { return maps.Clone(f.data) }

func (f *Form) Value(name string) any { return f.data[name] }

func (f *Form) Errors() map[string]string { return maps.Clone(f.errors) }

func (f *Form) Touched() map[string]bool { return maps.Clone(f.touched) }

func (f *Form) IsValid() bool { return len(f.errors) == 0 }

// IsDirty reports whether the data differs from the initial record.
func (f *Form) IsDirty() bool {
	return !cmp.Equal(f.initial, f.data)
}

// Changed returns the entries whose value differs from the initial record.
func (f *Form) Changed() Values {
	out := Values{}
	for name, value := range f.data {
		if old, ok := f.initial[name]; !ok || !cmp.Equal(old, value) {
			out[name] = value
		}
	}
	return out
}
