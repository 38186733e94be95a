// internal/rules/variables.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/tradepromo/internal/types"
)

// Variable describes one named, typed accessor over a subject record.
// Immutable once registered. Accessors must only read the subject.
type Variable struct {
	Name     string
	Label    string
	Type     ValueType
	Accessor func(types.Subject) any
}

// VariableSet is the immutable variable schema conditions compile against.
type VariableSet struct {
	vars map[string]*Variable
}

// NewVariableSet registers variables. Duplicate or incomplete descriptors
// are programming errors and are returned as such.
func NewVariableSet(vars ...Variable) (*VariableSet, error) {
	set := &VariableSet{vars: make(map[string]*Variable, len(vars))}
	for i := range vars {
		v := vars[i]
		if v.Name == "" || v.Accessor == nil {
			return nil, fmt.Errorf("variable %d: name and accessor required", i)
		}
		if _, ok := operatorSets[v.Type]; !ok {
			return nil, fmt.Errorf("variable %q: unsupported type %s", v.Name, v.Type)
		}
		if _, dup := set.vars[v.Name]; dup {
			return nil, fmt.Errorf("variable %q registered twice", v.Name)
		}
		set.vars[v.Name] = &v
	}
	return set, nil
}

// MustVariableSet is NewVariableSet that panics on error.
func MustVariableSet(vars ...Variable) *VariableSet {
	set, err := NewVariableSet(vars...)
	if err != nil {
		panic(err)
	}
	return set
}

// Resolve returns the descriptor for name or ErrUnknownVariable.
func (s *VariableSet) Resolve(name string) (*Variable, error) {
	v, ok := s.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownVariable, name)
	}
	return v, nil
}

// Names lists registered variable names in lexical order.
func (s *VariableSet) Names() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind closes the set over one subject record for a single session.
func (s *VariableSet) Bind(subject types.Subject) *VariableRegistry {
	return &VariableRegistry{set: s, subject: subject}
}

// VariableRegistry is a VariableSet bound to one subject record.
type VariableRegistry struct {
	set     *VariableSet
	subject types.Subject
}

// Resolve returns the descriptor for name or ErrUnknownVariable.
func (r *VariableRegistry) Resolve(name string) (*Variable, error) {
	return r.set.Resolve(name)
}

// ValueOf reads the variable's current value from the bound subject.
// Returns ErrTypeMismatch when the accessor yields the wrong runtime type.
func (r *VariableRegistry) ValueOf(name string) (types.Value, error) {
	v, err := r.set.Resolve(name)
	if err != nil {
		return types.Value{}, err
	}
	val, err := CheckType(v.Accessor(r.subject), v.Type)
	if err != nil {
		return types.Value{}, fmt.Errorf("variable %q: %w", name, err)
	}
	return val, nil
}

// FieldVariable builds a variable reading path from the subject, falling
// back to def when the field is absent.
func FieldVariable(name, label string, vt ValueType, path string, def any) (Variable, error) {
	fp, err := ParseFieldPath(path)
	if err != nil {
		return Variable{}, fmt.Errorf("variable %q: %w", name, err)
	}
	return Variable{
		Name:  name,
		Label: label,
		Type:  vt,
		Accessor: func(s types.Subject) any {
			if res := Resolve(fp, s); res.Found {
				return res.Value
			}
			return def
		},
	}, nil
}
