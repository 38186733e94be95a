package types

import "github.com/google/uuid"

// RuleID identifies a rule. Rules loaded from files use "<file>#<n>";
// rules persisted in the database use UUIDv7.
type RuleID string

// EvaluationID identifies one evaluation session as a UUIDv7 string.
type EvaluationID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewEvaluationID generates a UUIDv7 evaluation identifier.
func NewEvaluationID() EvaluationID {
	return EvaluationID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to a UUID RuleID.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseEvaluationID validates and converts a string to EvaluationID.
func ParseEvaluationID(s string) (EvaluationID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return EvaluationID(s), nil
}
