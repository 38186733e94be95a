package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

/*
 * Wire-format rule definitions.
 *
 * Mirrors the persisted rule document shape:
 *
 *   {
 *     "conditions": {"all": [ {"name": ..., "operator": ..., "value": ...}, {"any": [...]} ]},
 *     "actions":    [ {"name": ..., "params": {...}} ]
 *   }
 *
 * These types carry untyped literals (any) exactly as decoded; internal/rules
 * converts them into tagged Values and resolves every name at compile time.
 * All and Any are pointers so an explicitly empty list ({"all": []}) is
 * distinguishable from an absent key.
 */

// ConditionDefinition is either a combinator (All or Any set) or a leaf.
type ConditionDefinition struct {
	All      *[]ConditionDefinition `json:"all,omitempty"`
	Any      *[]ConditionDefinition `json:"any,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Operator string                 `json:"operator,omitempty"`
	Value    any                    `json:"value,omitempty"`
}

// IsLeaf reports whether the definition carries leaf fields.
func (c ConditionDefinition) IsLeaf() bool {
	return c.Name != "" || c.Operator != "" || c.Value != nil
}

// ActionDefinition is one action invocation: name plus parameter literals.
type ActionDefinition struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// RuleDefinition pairs one condition tree with an ordered action list.
// ID and Name are optional; rules have no identity beyond their position.
type RuleDefinition struct {
	ID         RuleID              `json:"id,omitempty"`
	Name       string              `json:"name,omitempty"`
	Conditions ConditionDefinition `json:"conditions"`
	Actions    []ActionDefinition  `json:"actions"`
}

// AllOf builds an ALL combinator definition.
func AllOf(children ...ConditionDefinition) ConditionDefinition {
	if children == nil {
		children = []ConditionDefinition{}
	}
	return ConditionDefinition{All: &children}
}

// AnyOf builds an ANY combinator definition.
func AnyOf(children ...ConditionDefinition) ConditionDefinition {
	if children == nil {
		children = []ConditionDefinition{}
	}
	return ConditionDefinition{Any: &children}
}

// Leaf builds a leaf comparison definition.
func Leaf(name, operator string, value any) ConditionDefinition {
	return ConditionDefinition{Name: name, Operator: operator, Value: value}
}

// DecodeJSON decodes data into v keeping numbers as json.Number and
// rejecting trailing content.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected content after offset %d", dec.InputOffset())
	}
	return nil
}
