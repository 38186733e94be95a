package rules

import (
	"errors"
	"log/slog"

	"github.com/solatis/tradepromo/internal/types"
)

// Engine runs compiled rules against one evaluation session.
// Stateless between runs; safe to share across goroutines as long as each
// run gets its own bound registries.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a rules engine. A nil logger discards output.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// RuleOutcome records what happened to one evaluated rule.
type RuleOutcome struct {
	Index      int
	RuleID     types.RuleID
	Matched    bool
	ActionsRun int
	Err        error
}

// Report summarizes one run. Outcomes lists evaluated rules only; rules
// skipped by the stop policy are absent.
type Report struct {
	Triggered int
	Outcomes  []RuleOutcome
}

// Errors returns the non-nil outcome errors in rule order.
func (r Report) Errors() []error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// Run evaluates rules strictly in order. Each condition sees the subject as
// left by earlier rules' actions. A matching rule runs its actions in
// declared order and counts as triggered even if an action fails; the
// failing action's error is recorded and the rule's remaining actions are
// skipped. A condition error aborts that rule only. With stopOnFirstTrigger
// the run halts after the first matching rule.
//
// The returned error joins every per-rule error as *types.RuleError.
func (e *Engine) Run(rules []*CompiledRule, vars *VariableRegistry, actions *ActionRegistry, stopOnFirstTrigger bool) (Report, error) {
	report := Report{Outcomes: make([]RuleOutcome, 0, len(rules))}

	for i, rule := range rules {
		outcome := RuleOutcome{Index: i, RuleID: rule.ID}

		matched, err := EvaluateCondition(rule.Condition, vars)
		if err != nil {
			outcome.Err = &types.RuleError{Index: i, RuleID: rule.ID, Err: err}
			e.logger.Warn("rule condition failed", "rule_index", i, "rule_id", rule.ID, "error", err)
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}
		if !matched {
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		outcome.Matched = true
		for _, inv := range rule.Actions {
			if err := actions.Invoke(inv.Name, inv.Params); err != nil {
				outcome.Err = &types.RuleError{Index: i, RuleID: rule.ID, Err: err}
				e.logger.Warn("rule action failed", "rule_index", i, "rule_id", rule.ID, "action", inv.Name, "error", err)
				break
			}
			outcome.ActionsRun++
		}
		report.Triggered++
		report.Outcomes = append(report.Outcomes, outcome)
		e.logger.Debug("rule triggered", "rule_index", i, "rule_id", rule.ID, "actions_run", outcome.ActionsRun)

		if stopOnFirstTrigger {
			break
		}
	}

	return report, errors.Join(report.Errors()...)
}
