package form

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

type RuleKind int

const (
	KindRequired RuleKind = iota
	KindMinLength
	KindMaxLength
	KindMin
	KindMax
	KindPattern
	KindOneOf
	KindCustom
	KindInteger
)

func (k RuleKind) String() string {
	switch k {
	case KindRequired:
		return "required"
	case KindMinLength:
		return "minLength"
	case KindMaxLength:
		return "maxLength"
	case KindMin:
		return "min"
	case KindMax:
		return "max"
	case KindPattern:
		return "pattern"
	case KindOneOf:
		return "oneOf"
	case KindCustom:
		return "custom"
	case KindInteger:
		return "integer"
	}
	return fmt.Sprintf("RuleKind(%d)", int(k))
}

// Rule is one validation constraint. Only the parameters that belong to Kind
// are read.
type Rule struct {
	Kind    RuleKind
	Length  int
	Bound   float64
	Pattern *regexp.Regexp
	Options []string
	Check   func(value any, data Values) bool
	Message string
}

func Required(message string) Rule {
	return Rule{Kind: KindRequired, Message: message}
}

func MinLength(n int, message string) Rule {
	return Rule{Kind: KindMinLength, Length: n, Message: message}
}

func MaxLength(n int, message string) Rule {
	return Rule{Kind: KindMaxLength, Length: n, Message: message}
}

func Min(bound float64, message string) Rule {
	return Rule{Kind: KindMin, Bound: bound, Message: message}
}

func Max(bound float64, message string) Rule {
	return Rule{Kind: KindMax, Bound: bound, Message: message}
}

func Pattern(re *regexp.Regexp, message string) Rule {
	return Rule{Kind: KindPattern, Pattern: re, Message: message}
}

func OneOf(options []string, message string) Rule {
	return Rule{Kind: KindOneOf, Options: options, Message: message}
}

// Integer requires a whole number that fits the 32-bit integer columns.
func Integer(message string) Rule {
	return Rule{Kind: KindInteger, Message: message}
}

// Custom runs check against the field value and the whole record, which
// allows cross-field rules such as "ends after starts".
func Custom(check func(value any, data Values) bool, message string) Rule {
	return Rule{Kind: KindCustom, Check: check, Message: message}
}

// Schema maps field names to their rules, evaluated in order; the first
// failing rule wins.
type Schema map[string][]Rule

// Fields returns the schema's field names in sorted order.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Check reports whether value satisfies rule. Only Required rejects an empty
// value; every other kind treats nil and "" as "nothing to check".
func Check(rule Rule, value any, data Values) bool {
	if rule.Kind == KindRequired {
		return !isEmpty(value)
	}
	if rule.Kind != KindCustom && isEmpty(value) {
		return true
	}
	switch rule.Kind {
	case KindMinLength:
		n, ok := length(value)
		return !ok || n >= rule.Length
	case KindMaxLength:
		n, ok := length(value)
		return !ok || n <= rule.Length
	case KindMin:
		f, ok := number(value)
		return ok && f >= rule.Bound
	case KindMax:
		f, ok := number(value)
		return ok && f <= rule.Bound
	case KindInteger:
		f, ok := number(value)
		return ok && wholeInRange(f)
	case KindPattern:
		s, ok := value.(string)
		return ok && rule.Pattern.MatchString(s)
	case KindOneOf:
		s := fmt.Sprint(value)
		for _, option := range rule.Options {
			if s == option {
				return true
			}
		}
		return false
	case KindCustom:
		return rule.Check(value, data)
	}
	return true
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

func length(value any) (int, bool) {
	switch v := value.(type) {
	case string:
		return utf8.RuneCountInString(strings.TrimSpace(v)), true
	case *string:
		if v == nil {
			return 0, true
		}
		return utf8.RuneCountInString(strings.TrimSpace(*v)), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len(), true
	}
	return 0, false
}

// number reports the numeric value of value; NaN and Inf are not numbers.
func number(value any) (float64, bool) {
	f, ok := rawNumber(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case *int:
		if v != nil {
			return float64(*v), true
		}
	case *float64:
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func wholeInRange(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32
}
