package promo

import (
	"testing"

	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// run compiles a JSON rule document and evaluates it against subject.
func run(t *testing.T, doc string, subject types.Subject, stop bool, opts Options) (rules.Report, error) {
	t.Helper()
	defs, err := rules.ParseDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v, want nil", err)
	}
	actions := NewActions(opts)
	compiled, err := rules.CompileAll(defs, Variables(), actions)
	if err != nil {
		t.Fatalf("CompileAll() error = %v, want nil", err)
	}
	return rules.NewEngine(nil).Run(compiled, Variables().Bind(subject), actions.Bind(subject), stop)
}

// invoke runs one action directly, bypassing rule compilation.
func invoke(subject types.Subject, opts Options, name string, params map[string]any) error {
	converted := make(map[string]types.Value, len(params))
	for k, v := range params {
		val, err := types.ValueFromAny(v)
		if err != nil {
			return err
		}
		converted[k] = val
	}
	return NewActions(opts).Bind(subject).Invoke(name, converted)
}

func parseDoc(doc string) ([]types.RuleDefinition, error) {
	return rules.ParseDocument([]byte(doc))
}

func compileDoc(defs []types.RuleDefinition) ([]*rules.CompiledRule, error) {
	return rules.CompileAll(defs, Variables(), NewActions(Options{}))
}

func flatParams(percentage, qualifying any) map[string]any {
	return map[string]any{
		"percentage":       percentage,
		"qualifying_value": qualifying,
		"basis":            BasisValue,
		"operator":         OperatorAtLeast,
	}
}
