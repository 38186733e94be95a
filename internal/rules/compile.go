// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/solatis/tradepromo/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.RuleDefinition into a CompiledRule whose condition tree has
 * every variable and operator resolved, every literal converted to a tagged
 * Value and type-checked, and every action invocation validated against the
 * action schema.
 *
 * Why compile-time validation: a broken rule definition (unknown variable,
 * operator not defined for the variable's type, literal of the wrong type,
 * missing action parameter) is a configuration error. Surfacing it when the
 * rule is loaded means it never masquerades as "condition did not match".
 *
 * Child order is preserved exactly. Evaluation is left-to-right because later
 * leaves may read fields written by earlier rules' actions.
 */

// NodeKind tags a Condition node.
type NodeKind int

const (
	NodeLeaf NodeKind = iota + 1
	NodeAll
	NodeAny
)

func (k NodeKind) String() string {
	switch k {
	case NodeLeaf:
		return "leaf"
	case NodeAll:
		return "all"
	case NodeAny:
		return "any"
	default:
		return "unknown"
	}
}

// Condition is a compiled condition tree node: a leaf comparison or an
// ALL/ANY combinator over ordered children.
type Condition struct {
	Kind     NodeKind
	Children []*Condition // combinators only

	Variable string      // leaf only
	Operator *Operator   // leaf only
	Literal  types.Value // zero for operators without literal
	Pattern  *regexp.Regexp
}

// Invocation is a compiled action invocation.
type Invocation struct {
	Name   string
	Params map[string]types.Value
}

// CompiledRule is fully validated and ready for evaluation.
type CompiledRule struct {
	ID        types.RuleID
	Name      string
	Condition *Condition
	Actions   []Invocation
	Nodes     int // condition node count
}

// Compile validates and pre-processes a rule against the variable and
// action schemas.
func Compile(def *types.RuleDefinition, vars *VariableSet, actions *ActionSet) (*CompiledRule, error) {
	nodes := 0
	cond, err := compileCondition(def.Conditions, vars, 1, &nodes)
	if err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}

	invocations := make([]Invocation, 0, len(def.Actions))
	for i, ad := range def.Actions {
		inv, err := compileInvocation(ad, actions)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		invocations = append(invocations, inv)
	}

	return &CompiledRule{
		ID:        def.ID,
		Name:      def.Name,
		Condition: cond,
		Actions:   invocations,
		Nodes:     nodes,
	}, nil
}

// CompileAll compiles defs in order. Rules that fail are omitted from the
// result and reported as *types.RuleError values joined into err.
func CompileAll(defs []types.RuleDefinition, vars *VariableSet, actions *ActionSet) ([]*CompiledRule, error) {
	compiled := make([]*CompiledRule, 0, len(defs))
	var errs []error
	for i := range defs {
		cr, err := Compile(&defs[i], vars, actions)
		if err != nil {
			errs = append(errs, &types.RuleError{Index: i, RuleID: defs[i].ID, Err: err})
			continue
		}
		compiled = append(compiled, cr)
	}
	return compiled, errors.Join(errs...)
}

// compileCondition validates one node and recurses into children.
// Enforces MaxConditionDepth and MaxConditionNodes.
func compileCondition(def types.ConditionDefinition, vars *VariableSet, depth int, nodes *int) (*Condition, error) {
	if depth > types.MaxConditionDepth {
		return nil, types.ErrConditionTooDeep
	}
	*nodes++
	if *nodes > types.MaxConditionNodes {
		return nil, types.ErrTooManyConditions
	}

	hasAll, hasAny, isLeaf := def.All != nil, def.Any != nil, def.IsLeaf()
	switch {
	case hasAll && hasAny:
		return nil, fmt.Errorf("%w: node has both \"all\" and \"any\"", types.ErrMalformedRule)
	case (hasAll || hasAny) && isLeaf:
		return nil, fmt.Errorf("%w: combinator node carries leaf fields", types.ErrMalformedRule)
	case hasAll:
		return compileCombinator(NodeAll, *def.All, vars, depth, nodes)
	case hasAny:
		return compileCombinator(NodeAny, *def.Any, vars, depth, nodes)
	case isLeaf:
		return compileLeaf(def, vars)
	default:
		return nil, fmt.Errorf("%w: empty condition node", types.ErrMalformedRule)
	}
}

func compileCombinator(kind NodeKind, children []types.ConditionDefinition, vars *VariableSet, depth int, nodes *int) (*Condition, error) {
	node := &Condition{Kind: kind, Children: make([]*Condition, 0, len(children))}
	for i, child := range children {
		cc, err := compileCondition(child, vars, depth+1, nodes)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", kind, i, err)
		}
		node.Children = append(node.Children, cc)
	}
	return node, nil
}

// compileLeaf resolves variable and operator and type-checks the literal.
// A literal whose type disagrees with the variable is both ErrMalformedRule
// and ErrTypeMismatch.
func compileLeaf(def types.ConditionDefinition, vars *VariableSet) (*Condition, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: leaf without variable name", types.ErrMalformedRule)
	}
	if def.Operator == "" {
		return nil, fmt.Errorf("%w: leaf %q without operator", types.ErrMalformedRule, def.Name)
	}

	v, err := vars.Resolve(def.Name)
	if err != nil {
		return nil, err
	}
	op, err := LookupOperator(v.Type, def.Operator)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", def.Name, err)
	}

	node := &Condition{Kind: NodeLeaf, Variable: v.Name, Operator: op}
	if op.NoLiteral {
		return node, nil
	}
	if def.Value == nil {
		return nil, fmt.Errorf("%w: leaf %q %s without value", types.ErrMalformedRule, def.Name, def.Operator)
	}
	lit, err := CheckLiteral(def.Value, v.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: leaf %q: %w", types.ErrMalformedRule, def.Name, err)
	}
	node.Literal = lit

	if op.Name == OpMatchesRegex {
		re, err := regexp.Compile(lit.Str)
		if err != nil {
			return nil, fmt.Errorf("%w: leaf %q: %v", types.ErrMalformedRule, def.Name, err)
		}
		node.Pattern = re
	}
	return node, nil
}

// compileInvocation converts parameter literals to Values and validates
// them against the action declaration.
func compileInvocation(def types.ActionDefinition, actions *ActionSet) (Invocation, error) {
	if def.Name == "" {
		return Invocation{}, fmt.Errorf("%w: action without name", types.ErrMalformedRule)
	}
	params := make(map[string]types.Value, len(def.Params))
	for k, raw := range def.Params {
		v, err := types.ValueFromAny(raw)
		if err != nil {
			return Invocation{}, &types.ParamError{Action: def.Name, Param: k, Err: err}
		}
		params[k] = v
	}
	if _, err := actions.Validate(def.Name, params); err != nil {
		return Invocation{}, err
	}
	return Invocation{Name: def.Name, Params: params}, nil
}
