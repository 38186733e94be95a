package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for rule compilation and evaluation.
var (
	// ErrUnknownVariable indicates a condition references an unregistered variable.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnknownAction indicates an invocation names an unregistered action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrTypeMismatch indicates a value whose runtime type disagrees with its declared type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupportedOperator indicates an operator unknown for the variable's type.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrInvalidParameter indicates a missing or malformed action parameter.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrMalformedRule indicates a structurally invalid rule document.
	ErrMalformedRule = errors.New("malformed rule definition")

	// ErrSlabParse indicates a malformed serialized slab list.
	ErrSlabParse = errors.New("invalid slab format")

	// ErrUnsupportedConfiguration indicates an action configuration that has
	// no computed effect, surfaced only in strict mode.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrConditionTooDeep indicates a condition tree exceeds MaxConditionDepth.
	ErrConditionTooDeep = errors.New("condition tree exceeds maximum depth")

	// ErrTooManyConditions indicates a condition tree exceeds MaxConditionNodes.
	ErrTooManyConditions = errors.New("condition tree has too many nodes")

	// ErrDocumentTooLarge indicates a rule document exceeds MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")
)

// ParamError names the action parameter that failed validation.
// errors.Is(err, ErrInvalidParameter) always holds.
type ParamError struct {
	Action string
	Param  string
	Err    error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("action %q: parameter %q: %v", e.Action, e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// Is makes every ParamError match ErrInvalidParameter.
func (e *ParamError) Is(target error) bool { return target == ErrInvalidParameter }

// RuleError attributes a failure to one rule of an evaluation pass.
type RuleError struct {
	Index  int
	RuleID RuleID
	Err    error
}

func (e *RuleError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("rule %d (%s): %v", e.Index, e.RuleID, e.Err)
	}
	return fmt.Sprintf("rule %d: %v", e.Index, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err stems from a broken rule
// definition rather than from bad subject data.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownVariable) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrUnsupportedOperator) ||
		errors.Is(err, ErrMalformedRule) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrConditionTooDeep) ||
		errors.Is(err, ErrTooManyConditions)
}
