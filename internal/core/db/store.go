package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/solatis/tradepromo/internal/types"
)

// ErrNotFound is returned when a rule, evaluation or API key does not exist
// or is not in a state the operation applies to.
var ErrNotFound = errors.New("not found")

// Rule states.
const (
	RuleStateActive   = "active"
	RuleStateDisabled = "disabled"
)

// RuleRecord is a persisted rule. Position orders evaluation.
type RuleRecord struct {
	ID         types.RuleID `db:"rule_id"`
	Name       string       `db:"name"`
	Position   int          `db:"position"`
	State      string       `db:"state"`
	Definition string       `db:"definition"`
	CreatedAt  time.Time    `db:"created_at"`
	ModifiedAt time.Time    `db:"modified_at"`
}

// Decode parses the stored rule document.
func (r RuleRecord) Decode() (types.RuleDefinition, error) {
	var def types.RuleDefinition
	if err := types.DecodeJSON([]byte(r.Definition), &def); err != nil {
		return types.RuleDefinition{}, fmt.Errorf("rule %s: %w: %v", r.ID, types.ErrMalformedRule, err)
	}
	def.ID = r.ID
	return def, nil
}

// EvaluationRecord is one journaled evaluation. Input, Result and Errors
// hold JSON.
type EvaluationRecord struct {
	ID        types.EvaluationID `db:"evaluation_id"`
	APIKeyID  sql.NullString     `db:"api_key_id"`
	Input     string             `db:"input"`
	Result    string             `db:"result"`
	Triggered int                `db:"triggered"`
	Errors    string             `db:"errors"`
	CreatedAt time.Time          `db:"created_at"`
}

// APIKeyRecord describes an issued API key. The hash is never read back.
type APIKeyRecord struct {
	ID         string       `db:"api_key_id"`
	Name       string       `db:"name"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// Store persists rules, the evaluation journal and API keys.
type Store struct {
	db      *sqlx.DB
	queries *Queries
}

// NewStore loads the named queries for db.
func NewStore(db *sqlx.DB) (*Store, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, queries: queries}, nil
}

// Queries exposes the named queries, e.g. for the authenticator.
func (s *Store) Queries() *Queries {
	return s.queries
}

// SaveRules appends defs after the existing rules, in order, as active
// rules. With replace the existing rules are deleted first. Rules whose ID
// is not a UUID (file-derived IDs) are assigned a new UUIDv7.
func (s *Store) SaveRules(ctx context.Context, defs []types.RuleDefinition, replace bool) ([]types.RuleID, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := s.queries.TxExec(ctx, tx, "delete-rules"); err != nil {
			return nil, fmt.Errorf("failed to delete rules: %w", err)
		}
	}

	var next int
	if err := s.queries.TxGet(ctx, tx, "next-rule-position", &next); err != nil {
		return nil, fmt.Errorf("failed to read rule position: %w", err)
	}

	now := time.Now().UTC()
	ids := make([]types.RuleID, 0, len(defs))
	for i := range defs {
		def := defs[i]
		if _, err := types.ParseRuleID(string(def.ID)); err != nil {
			def.ID = types.NewRuleID()
		}
		doc, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if _, err := s.queries.TxExec(ctx, tx, "insert-rule",
			string(def.ID), def.Name, next+i, RuleStateActive, string(doc), now, now); err != nil {
			return nil, fmt.Errorf("failed to insert rule %d: %w", i, err)
		}
		ids = append(ids, def.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rules: %w", err)
	}
	return ids, nil
}

// ListRules returns rules in evaluation order.
func (s *Store) ListRules(ctx context.Context, activeOnly bool) ([]RuleRecord, error) {
	var records []RuleRecord
	var err error
	if activeOnly {
		err = s.queries.SelectContext(ctx, "list-rules-by-state", &records, RuleStateActive)
	} else {
		err = s.queries.SelectContext(ctx, "list-rules", &records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return records, nil
}

// ActiveRuleDefinitions decodes the active rules in evaluation order.
func (s *Store) ActiveRuleDefinitions(ctx context.Context) ([]types.RuleDefinition, error) {
	records, err := s.ListRules(ctx, true)
	if err != nil {
		return nil, err
	}
	defs := make([]types.RuleDefinition, 0, len(records))
	for _, r := range records {
		def, err := r.Decode()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// SetRuleState enables or disables a rule.
func (s *Store) SetRuleState(ctx context.Context, id types.RuleID, state string) error {
	if state != RuleStateActive && state != RuleStateDisabled {
		return fmt.Errorf("invalid rule state %q", state)
	}
	res, err := s.queries.ExecContext(ctx, "set-rule-state", state, time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireRow(res, "rule", string(id))
}

// RecordEvaluation journals one evaluation.
func (s *Store) RecordEvaluation(ctx context.Context, rec EvaluationRecord) error {
	if rec.Errors == "" {
		rec.Errors = "[]"
	}
	_, err := s.queries.ExecContext(ctx, "insert-evaluation",
		string(rec.ID), rec.APIKeyID, rec.Input, rec.Result, rec.Triggered, rec.Errors, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}
	return nil
}

// GetEvaluation loads one journaled evaluation.
func (s *Store) GetEvaluation(ctx context.Context, id types.EvaluationID) (EvaluationRecord, error) {
	var rec EvaluationRecord
	err := s.queries.GetContext(ctx, "get-evaluation", &rec, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return EvaluationRecord{}, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return EvaluationRecord{}, fmt.Errorf("failed to load evaluation: %w", err)
	}
	return rec, nil
}

// ListEvaluations returns the most recent evaluations, newest first.
func (s *Store) ListEvaluations(ctx context.Context, limit int) ([]EvaluationRecord, error) {
	var recs []EvaluationRecord
	if err := s.queries.SelectContext(ctx, "list-evaluations", &recs, limit); err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	return recs, nil
}

// CreateAPIKey stores the hash of a newly issued key and returns its ID.
func (s *Store) CreateAPIKey(ctx context.Context, name, secretID, keyHash string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := s.queries.ExecContext(ctx, "insert-api-key", id, name, secretID, keyHash, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create API key: %w", err)
	}
	return id, nil
}

// RevokeAPIKey revokes an active key. Revoking twice is ErrNotFound.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.queries.ExecContext(ctx, "revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	return requireRow(res, "active API key", id)
}

// ListAPIKeys returns every issued key, revoked ones included.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKeyRecord, error) {
	var keys []APIKeyRecord
	if err := s.queries.SelectContext(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
