package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"slices"
	"strings"
)

// NormalizeRecord validates data against the fields of c and returns the
// normalized values keyed by field name. Fields absent from data are set to
// their zero value (nil, "", false or an empty list).
//
// Relation values are checked for shape and cardinality only; whether the
// referenced records exist is the store's concern.
func (c *Collection) NormalizeRecord(data map[string]any) (map[string]any, error) {
	var errs []FieldError

	for key := range data {
		if key == "id" {
			continue
		}
		if _, ok := c.FieldByName(key); !ok {
			errs = append(errs, FieldError{
				Path:    key,
				Code:    ErrUnknownField,
				Message: fmt.Sprintf("collection %q has no field %q", c.Name, key),
			})
		}
	}

	out := make(map[string]any, len(c.Fields))
	for _, f := range c.Fields {
		v, err := f.NormalizeValue(lookupFold(data, f.Name))
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		out[f.Name] = v
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

func lookupFold(data map[string]any, name string) any {
	if v, ok := data[name]; ok {
		return v
	}
	for k, v := range data {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// ZeroValue is the value a record holds for f when none was stored, for
// example after f was added to a collection with existing records.
func (f Field) ZeroValue() any {
	switch opts := f.Options.(type) {
	case NumberOptions:
		return float64(0)
	case BoolOptions:
		return false
	case SelectOptions:
		if opts.MaxSelect > 1 {
			return []string{}
		}
		return ""
	case RelationOptions:
		if opts.IsMultiple() {
			return []string{}
		}
		return ""
	case JSONOptions:
		return nil
	}
	return ""
}

// NormalizeValue validates a single raw value for f.
//
// Single-value relations and selects normalize to a string, multi-value ones
// to []string. Dates normalize to DateLayout strings.
func (f Field) NormalizeValue(v any) (any, *FieldError) {
	fail := func(code, format string, args ...any) (any, *FieldError) {
		return nil, &FieldError{Path: f.Name, Code: code, Message: fmt.Sprintf(format, args...)}
	}

	switch opts := f.Options.(type) {
	case TextOptions:
		s, ok := asString(v)
		if !ok {
			return fail(ErrValueType, "expected a string, got %T", v)
		}
		if s == "" {
			if f.Required {
				return fail(ErrValueRequired, "value is required")
			}
			return "", nil
		}
		n := len([]rune(s))
		if opts.Min != nil && n < *opts.Min {
			return fail(ErrValueRange, "must be at least %d characters", *opts.Min)
		}
		if opts.Max != nil && n > *opts.Max {
			return fail(ErrValueRange, "must be at most %d characters", *opts.Max)
		}
		if opts.Pattern != "" {
			re, err := regexp.Compile(opts.Pattern)
			if err != nil || !re.MatchString(s) {
				return fail(ErrValueRange, "does not match pattern %q", opts.Pattern)
			}
		}
		return s, nil

	case NumberOptions:
		if v == nil {
			if f.Required {
				return fail(ErrValueRequired, "value is required")
			}
			return nil, nil
		}
		n, ok := asFloat(v)
		if !ok {
			return fail(ErrValueType, "expected a number, got %T", v)
		}
		if opts.NoDecimal && n != math.Trunc(n) {
			return fail(ErrValueRange, "decimals are not allowed")
		}
		if opts.Min != nil && n < *opts.Min {
			return fail(ErrValueRange, "must be >= %v", *opts.Min)
		}
		if opts.Max != nil && n > *opts.Max {
			return fail(ErrValueRange, "must be <= %v", *opts.Max)
		}
		return n, nil

	case BoolOptions:
		if v == nil {
			if f.Required {
				return fail(ErrValueRequired, "value is required")
			}
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return fail(ErrValueType, "expected a bool, got %T", v)
		}
		if !b && f.Required {
			return fail(ErrValueRequired, "value is required")
		}
		return b, nil

	case EmailOptions:
		s, ok := asString(v)
		if !ok {
			return fail(ErrValueType, "expected a string, got %T", v)
		}
		if s == "" {
			if f.Required {
				return fail(ErrValueRequired, "value is required")
			}
			return "", nil
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return fail(ErrValueType, "invalid email address")
		}
		domain := strings.ToLower(s[strings.LastIndex(s, "@")+1:])
		if len(opts.OnlyDomains) > 0 && !slices.Contains(opts.OnlyDomains, domain) {
			return fail(ErrValueRange, "domain %q is not allowed", domain)
		}
		if slices.Contains(opts.ExceptDomains, domain) {
			return fail(ErrValueRange, "domain %q is not allowed", domain)
		}
		return s, nil

	case DateOptions:
		s, ok := asString(v)
		if !ok {
			return fail(ErrValueType, "expected a date string, got %T", v)
		}
		if s == "" {
			if f.Required {
				return fail(ErrValueRequired, "value is required")
			}
			return "", nil
		}
		t, err := ParseDate(s)
		if err != nil {
			return fail(ErrValueType, "%v", err)
		}
		if opts.Min != nil && t.Before(*opts.Min) {
			return fail(ErrValueRange, "must not be before %s", FormatDate(*opts.Min))
		}
		if opts.Max != nil && t.After(*opts.Max) {
			return fail(ErrValueRange, "must not be after %s", FormatDate(*opts.Max))
		}
		return FormatDate(t), nil

	case SelectOptions:
		values, ok := asStrings(v)
		if !ok {
			return fail(ErrValueType, "expected a string or list of strings, got %T", v)
		}
		if len(values) == 0 && f.Required {
			return fail(ErrValueRequired, "value is required")
		}
		if len(values) > opts.MaxSelect {
			return fail(ErrValueRange, "at most %d value(s) allowed", opts.MaxSelect)
		}
		for _, val := range values {
			if !slices.Contains(opts.Values, val) {
				return fail(ErrValueChoice, "value %q is not one of %v", val, opts.Values)
			}
		}
		if opts.MaxSelect == 1 {
			if len(values) == 0 {
				return "", nil
			}
			return values[0], nil
		}
		return values, nil

	case RelationOptions:
		ids, ok := asStrings(v)
		if !ok {
			return fail(ErrValueType, "expected a record id or list of ids, got %T", v)
		}
		if len(ids) == 0 && f.Required {
			return fail(ErrValueRequired, "value is required")
		}
		if opts.MaxSelect != nil && len(ids) > *opts.MaxSelect {
			return fail(ErrValueRange, "at most %d relation(s) allowed", *opts.MaxSelect)
		}
		if opts.MinSelect != nil && len(ids) > 0 && len(ids) < *opts.MinSelect {
			return fail(ErrValueRange, "at least %d relation(s) required", *opts.MinSelect)
		}
		if !opts.IsMultiple() {
			if len(ids) == 0 {
				return "", nil
			}
			return ids[0], nil
		}
		return ids, nil

	case JSONOptions:
		if v == nil {
			if f.Required {
				return fail(ErrValueRequired, "value is required")
			}
			return nil, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fail(ErrValueType, "not JSON serializable: %v", err)
		}
		if opts.MaxSize > 0 && len(raw) > opts.MaxSize {
			return fail(ErrValueRange, "exceeds %d bytes", opts.MaxSize)
		}
		return v, nil
	}

	return fail(ErrFieldType, "field has no type")
}

// RelationIDs returns the ids held by a normalized relation value.
func RelationIDs(v any) []string {
	ids, _ := asStrings(v)
	return ids
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return s, true
	}
	return "", false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// asStrings accepts nil, a string, []string or []any of strings.
// Blank strings are dropped.
func asStrings(v any) ([]string, bool) {
	var out []string
	switch s := v.(type) {
	case nil:
		return nil, true
	case string:
		if s != "" {
			out = append(out, s)
		}
	case []string:
		for _, e := range s {
			if e != "" {
				out = append(out, e)
			}
		}
	case []any:
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			if str != "" {
				out = append(out, str)
			}
		}
	default:
		return nil, false
	}
	return out, true
}
