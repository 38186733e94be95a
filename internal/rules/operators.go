// internal/rules/operators.go
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/solatis/tradepromo/internal/types"
)

/*
 * Operator set per value type.
 *
 * string:  equal_to, not_equal_to, contains, starts_with, ends_with, each with
 *          an explicit *_case_insensitive variant; matches_regex; non_empty.
 * numeric: equal_to, not_equal_to, greater_than, greater_than_or_equal_to,
 *          less_than, less_than_or_equal_to.
 * boolean: is_true, is_false.
 *
 * Case sensitivity is always a named variant, never a default. Numeric
 * comparison is exact float64 comparison with no epsilon: 0.1+0.2 is not
 * equal_to 0.3. Rules comparing computed currency amounts should compare
 * against thresholds rather than exact values.
 *
 * Evaluation is a pure function of (actual, literal). Values reaching Compare
 * were type-checked by CheckType/CheckLiteral.
 */

// Operator names.
const (
	OpEqualTo              = "equal_to"
	OpNotEqualTo           = "not_equal_to"
	OpContains             = "contains"
	OpStartsWith           = "starts_with"
	OpEndsWith             = "ends_with"
	OpMatchesRegex         = "matches_regex"
	OpNonEmpty             = "non_empty"
	OpGreaterThan          = "greater_than"
	OpGreaterThanOrEqualTo = "greater_than_or_equal_to"
	OpLessThan             = "less_than"
	OpLessThanOrEqualTo    = "less_than_or_equal_to"
	OpIsTrue               = "is_true"
	OpIsFalse              = "is_false"
	caseInsensitiveSuffix  = "_case_insensitive"
)

// Operator describes one comparison. Immutable, shared across sessions.
type Operator struct {
	Name string
	Type ValueType

	// NoLiteral marks operators that ignore the leaf value.
	NoLiteral bool

	compare func(actual, literal types.Value, re *regexp.Regexp) bool
}

// Compare applies the operator. re is the compiled pattern for matches_regex.
func (o *Operator) Compare(actual, literal types.Value, re *regexp.Regexp) bool {
	return o.compare(actual, literal, re)
}

var operatorSets = map[ValueType]map[string]*Operator{
	TypeString:  stringOperators(),
	TypeNumeric: numericOperators(),
	TypeBoolean: booleanOperators(),
}

// LookupOperator returns the operator registered for vt under name.
// Returns ErrUnsupportedOperator for unknown names.
func LookupOperator(vt ValueType, name string) (*Operator, error) {
	if op, ok := operatorSets[vt][name]; ok {
		return op, nil
	}
	return nil, fmt.Errorf("%w: %q for %s variables", types.ErrUnsupportedOperator, name, vt)
}

// Operators lists operator names for vt in lexical order.
func Operators(vt ValueType) []string {
	names := make([]string, 0, len(operatorSets[vt]))
	for name := range operatorSets[vt] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringOperators() map[string]*Operator {
	ops := map[string]*Operator{}
	add := func(name string, fn func(a, b string) bool) {
		ops[name] = &Operator{Name: name, Type: TypeString, compare: func(a, l types.Value, _ *regexp.Regexp) bool {
			return fn(a.Str, l.Str)
		}}
		folded := name + caseInsensitiveSuffix
		ops[folded] = &Operator{Name: folded, Type: TypeString, compare: func(a, l types.Value, _ *regexp.Regexp) bool {
			return fn(strings.ToLower(a.Str), strings.ToLower(l.Str))
		}}
	}
	add(OpEqualTo, func(a, b string) bool { return a == b })
	add(OpNotEqualTo, func(a, b string) bool { return a != b })
	add(OpContains, strings.Contains)
	add(OpStartsWith, strings.HasPrefix)
	add(OpEndsWith, strings.HasSuffix)

	ops[OpMatchesRegex] = &Operator{Name: OpMatchesRegex, Type: TypeString, compare: func(a, _ types.Value, re *regexp.Regexp) bool {
		return re != nil && re.MatchString(a.Str)
	}}
	ops[OpNonEmpty] = &Operator{Name: OpNonEmpty, Type: TypeString, NoLiteral: true, compare: func(a, _ types.Value, _ *regexp.Regexp) bool {
		return a.Str != ""
	}}
	return ops
}

func numericOperators() map[string]*Operator {
	ops := map[string]*Operator{}
	add := func(name string, fn func(a, b float64) bool) {
		ops[name] = &Operator{Name: name, Type: TypeNumeric, compare: func(a, l types.Value, _ *regexp.Regexp) bool {
			return fn(a.Num, l.Num)
		}}
	}
	add(OpEqualTo, func(a, b float64) bool { return a == b })
	add(OpNotEqualTo, func(a, b float64) bool { return a != b })
	add(OpGreaterThan, func(a, b float64) bool { return a > b })
	add(OpGreaterThanOrEqualTo, func(a, b float64) bool { return a >= b })
	add(OpLessThan, func(a, b float64) bool { return a < b })
	add(OpLessThanOrEqualTo, func(a, b float64) bool { return a <= b })
	return ops
}

func booleanOperators() map[string]*Operator {
	return map[string]*Operator{
		OpIsTrue: {Name: OpIsTrue, Type: TypeBoolean, NoLiteral: true, compare: func(a, _ types.Value, _ *regexp.Regexp) bool {
			return a.Bool
		}},
		OpIsFalse: {Name: OpIsFalse, Type: TypeBoolean, NoLiteral: true, compare: func(a, _ types.Value, _ *regexp.Regexp) bool {
			return !a.Bool
		}},
	}
}
