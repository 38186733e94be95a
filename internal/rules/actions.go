// internal/rules/actions.go
package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/solatis/tradepromo/internal/types"
)

/*
 * Action registry.
 *
 * An Action declares its parameters (name + field kind + optional check) and
 * a Run function that mutates the subject. Invoke validates every declared
 * parameter before Run executes, so a rejected invocation never partially
 * applies. Unknown extra parameters are rejected as well: they indicate a
 * typo in the rule document.
 */

var (
	errMissingParam    = errors.New("missing")
	errUndeclaredParam = errors.New("not declared by action")
)

// Param declares one action parameter.
type Param struct {
	Name string
	Kind FieldKind

	// Check runs after kind coercion; a non-nil error rejects the invocation.
	Check func(types.Value) error
}

// Params holds validated, coerced parameter values.
type Params map[string]types.Value

// Text returns a validated text parameter.
func (p Params) Text(name string) string { return p[name].Str }

// Number returns a validated numeric parameter.
func (p Params) Number(name string) float64 { return p[name].Num }

// Action is a named, parameterized subject mutation.
type Action struct {
	Name   string
	Params []Param
	Run    func(types.Subject, Params) error
}

// ActionSet is the immutable action schema rules compile against.
type ActionSet struct {
	actions map[string]*Action
}

// NewActionSet registers actions.
func NewActionSet(actions ...Action) (*ActionSet, error) {
	set := &ActionSet{actions: make(map[string]*Action, len(actions))}
	for i := range actions {
		a := actions[i]
		if a.Name == "" || a.Run == nil {
			return nil, fmt.Errorf("action %d: name and run function required", i)
		}
		if _, dup := set.actions[a.Name]; dup {
			return nil, fmt.Errorf("action %q registered twice", a.Name)
		}
		set.actions[a.Name] = &a
	}
	return set, nil
}

// MustActionSet is NewActionSet that panics on error.
func MustActionSet(actions ...Action) *ActionSet {
	set, err := NewActionSet(actions...)
	if err != nil {
		panic(err)
	}
	return set
}

// Names lists registered action names in lexical order.
func (s *ActionSet) Names() []string {
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the action registered under name or ErrUnknownAction.
func (s *ActionSet) Resolve(name string) (*Action, error) {
	a, ok := s.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownAction, name)
	}
	return a, nil
}

// Validate checks raw parameters against the action's declaration and
// returns them coerced. Errors are *types.ParamError naming the parameter.
func (s *ActionSet) Validate(name string, raw map[string]types.Value) (Params, error) {
	a, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(a.Params))
	out := make(Params, len(a.Params))
	for _, p := range a.Params {
		declared[p.Name] = true
		v, ok := raw[p.Name]
		if !ok || v.IsZero() {
			return nil, &types.ParamError{Action: name, Param: p.Name, Err: errMissingParam}
		}
		coerced, err := CoerceParam(v, p.Kind)
		if err != nil {
			return nil, &types.ParamError{Action: name, Param: p.Name, Err: err}
		}
		if p.Check != nil {
			if err := p.Check(coerced); err != nil {
				return nil, &types.ParamError{Action: name, Param: p.Name, Err: err}
			}
		}
		out[p.Name] = coerced
	}

	// Sorted so the reported parameter is deterministic
	extra := make([]string, 0)
	for k := range raw {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, &types.ParamError{Action: name, Param: extra[0], Err: errUndeclaredParam}
	}
	return out, nil
}

// Bind closes the set over one subject record for a single session.
func (s *ActionSet) Bind(subject types.Subject) *ActionRegistry {
	return &ActionRegistry{set: s, subject: subject}
}

// ActionRegistry is an ActionSet bound to one subject record.
type ActionRegistry struct {
	set     *ActionSet
	subject types.Subject
}

// Invoke validates params and runs the named action against the subject.
func (r *ActionRegistry) Invoke(name string, params map[string]types.Value) error {
	validated, err := r.set.Validate(name, params)
	if err != nil {
		return err
	}
	a, _ := r.set.Resolve(name)
	if err := a.Run(r.subject, validated); err != nil {
		return fmt.Errorf("action %q: %w", name, err)
	}
	return nil
}
