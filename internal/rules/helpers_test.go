package rules

import (
	"errors"

	"github.com/solatis/tradepromo/internal/types"
)

var errBoom = errors.New("boom")

// testVariables mirrors a small customer schema.
func testVariables() *VariableSet {
	return MustVariableSet(
		Variable{Name: "region", Label: "Region", Type: TypeString, Accessor: func(s types.Subject) any {
			if v, ok := s["region"]; ok {
				return v
			}
			return ""
		}},
		Variable{Name: "purchase_value", Label: "Purchase Value", Type: TypeNumeric, Accessor: func(s types.Subject) any {
			if v, ok := s["purchase_value"]; ok {
				return v
			}
			return 0
		}},
		Variable{Name: "ptr_based", Label: "PTR Based", Type: TypeBoolean, Accessor: func(s types.Subject) any {
			if v, ok := s["ptr_based"]; ok {
				return v
			}
			return false
		}},
	)
}

// testActions provides a marker action, a numeric setter and a failing action.
func testActions() *ActionSet {
	return MustActionSet(
		Action{Name: "mark", Params: []Param{{Name: "key", Kind: FieldText}}, Run: func(s types.Subject, p Params) error {
			s[p.Text("key")] = true
			return nil
		}},
		Action{Name: "set_value", Params: []Param{{Name: "amount", Kind: FieldNumeric}}, Run: func(s types.Subject, p Params) error {
			s["purchase_value"] = p.Number("amount")
			return nil
		}},
		Action{Name: "fail", Run: func(types.Subject, Params) error {
			return errBoom
		}},
	)
}

func mark(key string) types.ActionDefinition {
	return types.ActionDefinition{Name: "mark", Params: map[string]any{"key": key}}
}

func mustCompile(def types.RuleDefinition) *CompiledRule {
	cr, err := Compile(&def, testVariables(), testActions())
	if err != nil {
		panic(err)
	}
	return cr
}
