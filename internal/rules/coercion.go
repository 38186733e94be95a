// internal/rules/coercion.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/tradepromo/internal/types"
)

/*
 * Type checking and coercion for rule evaluation.
 *
 * Two regimes with different strictness:
 *   - Variable values (CheckType): strict. A string-declared variable that
 *     yields a number is ErrTypeMismatch. No implicit conversion.
 *   - Action parameters (CoerceParam): TEXT accepts strings only, NUMERIC
 *     accepts numbers and numeric strings ("25", " 3.5 "). Non-numeric input
 *     ("abc", "10abc", "") is rejected rather than truncated.
 *
 * Literals in condition leaves go through CheckLiteral at compile time so a
 * mismatched literal is a configuration error, never a silent false.
 */

// ValueType is the declared type of a rule variable.
type ValueType int

const (
	TypeString ValueType = iota + 1
	TypeNumeric
	TypeBoolean
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumeric:
		return "numeric"
	case TypeBoolean:
		return "boolean"
	default:
		return "unspecified"
	}
}

// FieldKind is the declared kind of an action parameter.
type FieldKind int

const (
	FieldText FieldKind = iota + 1
	FieldNumeric
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldNumeric:
		return "numeric"
	default:
		return "unspecified"
	}
}

// CheckType converts a raw accessor result to a Value of the declared type.
// Returns ErrTypeMismatch when the runtime type disagrees.
func CheckType(raw any, vt ValueType) (types.Value, error) {
	switch vt {
	case TypeString:
		if s, ok := raw.(string); ok {
			return types.String(s), nil
		}
	case TypeNumeric:
		if f, ok := types.AsFloat64(raw); ok {
			return types.Number(f), nil
		}
	case TypeBoolean:
		if b, ok := raw.(bool); ok {
			return types.Bool(b), nil
		}
	}
	return types.Value{}, fmt.Errorf("%w: got %T, want %s", types.ErrTypeMismatch, raw, vt)
}

// CheckLiteral converts a rule literal for comparison against a variable of
// type vt. Boolean operators take no literal, so nil is accepted there.
func CheckLiteral(raw any, vt ValueType) (types.Value, error) {
	if vt == TypeBoolean && raw == nil {
		return types.Value{}, nil
	}
	v, err := types.ValueFromAny(raw)
	if err != nil {
		return types.Value{}, err
	}
	want := map[ValueType]types.Kind{
		TypeString:  types.KindString,
		TypeNumeric: types.KindNumber,
		TypeBoolean: types.KindBool,
	}[vt]
	if v.Kind != want {
		return types.Value{}, fmt.Errorf("%w: literal %s is %s, variable is %s", types.ErrTypeMismatch, v.GoString(), v.Kind, vt)
	}
	return v, nil
}

// CoerceParam converts an action parameter to the declared field kind.
func CoerceParam(v types.Value, kind FieldKind) (types.Value, error) {
	switch kind {
	case FieldText:
		if v.Kind == types.KindString {
			return v, nil
		}
		return types.Value{}, fmt.Errorf("%w: got %s, want text", types.ErrTypeMismatch, v.Kind)
	case FieldNumeric:
		return coerceNumeric(v)
	default:
		return types.Value{}, fmt.Errorf("%w: unknown field kind %d", types.ErrTypeMismatch, kind)
	}
}

// coerceNumeric accepts numbers and numeric strings. Rejects booleans.
// Whitespace-only strings are not numbers.
func coerceNumeric(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindNumber:
		return v, nil
	case types.KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return types.Value{}, fmt.Errorf("%w: empty string is not numeric", types.ErrTypeMismatch)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("%w: %q is not numeric", types.ErrTypeMismatch, v.Str)
		}
		return types.ValueFromAny(f)
	default:
		return types.Value{}, fmt.Errorf("%w: got %s, want numeric", types.ErrTypeMismatch, v.Kind)
	}
}
