// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/solatis/tradepromo/internal/types"
)

/*
 * Condition tree evaluation.
 *
 * Depth-first, left-to-right:
 *   - Leaf: read the variable's current value, apply the operator.
 *   - ALL: true iff every child is true; stops at the first false child.
 *   - ANY: true iff some child is true; stops at the first true child.
 *   - Empty ALL is true, empty ANY is false.
 *
 * Evaluation never mutates the subject. Errors (type mismatch from an
 * accessor, unknown variable when a tree is evaluated against a registry it
 * was not compiled for) abort the whole tree.
 */

// EvaluateCondition evaluates node against the bound variables.
func EvaluateCondition(node *Condition, vars *VariableRegistry) (bool, error) {
	switch node.Kind {
	case NodeLeaf:
		return evaluateLeaf(node, vars)
	case NodeAll:
		for _, child := range node.Children {
			ok, err := EvaluateCondition(child, vars)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case NodeAny:
		for _, child := range node.Children {
			ok, err := EvaluateCondition(child, vars)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: node kind %d", types.ErrMalformedRule, node.Kind)
	}
}

// evaluateLeaf re-checks the operator against the resolved variable type so
// a tree compiled against a different schema fails loudly.
func evaluateLeaf(node *Condition, vars *VariableRegistry) (bool, error) {
	v, err := vars.Resolve(node.Variable)
	if err != nil {
		return false, err
	}
	if node.Operator == nil || node.Operator.Type != v.Type {
		return false, fmt.Errorf("%w: leaf %q", types.ErrUnsupportedOperator, node.Variable)
	}
	actual, err := vars.ValueOf(node.Variable)
	if err != nil {
		return false, err
	}
	return node.Operator.Compare(actual, node.Literal, node.Pattern), nil
}
