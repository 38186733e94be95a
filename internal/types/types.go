// Package types provides domain models shared across tradepromo components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the engine core can be embedded without pulling in the
// storage or transport stack. ID utilities in ids.go import uuid but are
// isolated from the evaluation path.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind discriminates the closed set of literal value types.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

// String returns the lower-case kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "invalid"
	}
}

// Value is a tagged scalar: string, number or boolean.
// Literals from rule documents are converted to Value once at parse time.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// String builds a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number builds a numeric Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.Kind == KindInvalid }

// Any returns the Go representation of v (string, float64 or bool).
func (v Value) Any() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// GoString renders v for diagnostics.
func (v Value) GoString() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.Str)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
// Numbers are decoded through json.Number so integers survive unchanged.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := DecodeJSON(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromAny converts a decoded JSON/YAML scalar into a Value.
// Returns ErrTypeMismatch for nil, objects, arrays and non-finite numbers.
func ValueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, x.String())
		}
		return finiteNumber(f)
	case float64:
		return finiteNumber(x)
	case float32:
		return finiteNumber(float64(x))
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case nil:
		return Value{}, fmt.Errorf("%w: null is not a scalar", ErrTypeMismatch)
	default:
		return Value{}, fmt.Errorf("%w: %T is not a scalar", ErrTypeMismatch, raw)
	}
}

func finiteNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite number", ErrTypeMismatch)
	}
	return Number(f), nil
}

// AsFloat64 converts Go numeric kinds and json.Number to float64.
// Strings and booleans are not numbers.
func AsFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Subject is the mutable record a rule pass reads and writes.
// Owned by the caller; the engine and actions mutate it in place.
type Subject map[string]any

// Number returns the numeric field at key, or 0 when absent.
// A present, non-numeric value is ErrTypeMismatch.
func (s Subject) Number(key string) (float64, error) {
	raw, ok := s[key]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := AsFloat64(raw)
	if !ok {
		return 0, fmt.Errorf("%w: field %q holds %T, want number", ErrTypeMismatch, key, raw)
	}
	return f, nil
}

// Text returns the string field at key, or "" when absent.
func (s Subject) Text(key string) (string, error) {
	raw, ok := s[key]
	if !ok || raw == nil {
		return "", nil
	}
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q holds %T, want string", ErrTypeMismatch, key, raw)
	}
	return str, nil
}

// Clone returns a shallow copy of s.
func (s Subject) Clone() Subject {
	out := make(Subject, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Resource limits enforced by the rule compiler and loaders.
const (
	// MaxConditionDepth bounds recursion during compile and evaluation.
	MaxConditionDepth = 32

	// MaxConditionNodes caps the size of a single rule's condition tree.
	MaxConditionNodes = 1024

	// MaxRulesPerDocument limits a single rule document.
	MaxRulesPerDocument = 10000

	// MaxSlabs limits the serialized slab list of one slab discount.
	MaxSlabs = 256

	// MaxDocumentSize limits a rule document or subject payload.
	MaxDocumentSize = 1024 * 1024
)
