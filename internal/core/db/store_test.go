package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/solatis/tradepromo/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(migratedDB(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v, want nil", err)
	}
	return store
}

func flatRule(name string, threshold float64) types.RuleDefinition {
	return types.RuleDefinition{
		ID:         types.RuleID(name + ".json#0"),
		Name:       name,
		Conditions: types.AllOf(types.Leaf("purchase_value", "greater_than_or_equal_to", threshold)),
		Actions: []types.ActionDefinition{{
			Name:   "apply_discount",
			Params: map[string]any{"discount_percentage": 10.0},
		}},
	}
}

func TestStore_SaveRules_OrderAndIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	keep := types.NewRuleID()
	first := flatRule("first", 500)
	first.ID = keep

	ids, err := store.SaveRules(ctx, []types.RuleDefinition{first, flatRule("second", 100)}, false)
	if err != nil {
		t.Fatalf("SaveRules() error = %v, want nil", err)
	}
	if len(ids) != 2 {
		t.Fatalf("SaveRules() returned %d ids, want 2", len(ids))
	}
	if ids[0] != keep {
		t.Errorf("ids[0] = %s, want UUID %s kept", ids[0], keep)
	}
	if _, err := types.ParseRuleID(string(ids[1])); err != nil {
		t.Errorf("ids[1] = %s, want generated UUID", ids[1])
	}

	// Appending places new rules after existing ones.
	if _, err := store.SaveRules(ctx, []types.RuleDefinition{flatRule("third", 50)}, false); err != nil {
		t.Fatalf("SaveRules(append) error = %v, want nil", err)
	}

	defs, err := store.ActiveRuleDefinitions(ctx)
	if err != nil {
		t.Fatalf("ActiveRuleDefinitions() error = %v, want nil", err)
	}
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	if len(names) != 3 || names[0] != "first" || names[1] != "second" || names[2] != "third" {
		t.Errorf("rule order = %v, want [first second third]", names)
	}
	if defs[0].ID != keep {
		t.Errorf("decoded ID = %s, want %s", defs[0].ID, keep)
	}
	if len(defs[0].Actions) != 1 || defs[0].Actions[0].Name != "apply_discount" {
		t.Errorf("decoded actions = %+v, want one apply_discount", defs[0].Actions)
	}
}

func TestStore_SaveRules_Replace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.SaveRules(ctx, []types.RuleDefinition{flatRule("old", 1)}, false); err != nil {
		t.Fatalf("SaveRules() error = %v, want nil", err)
	}
	if _, err := store.SaveRules(ctx, []types.RuleDefinition{flatRule("new", 2)}, true); err != nil {
		t.Fatalf("SaveRules(replace) error = %v, want nil", err)
	}

	records, err := store.ListRules(ctx, false)
	if err != nil {
		t.Fatalf("ListRules() error = %v, want nil", err)
	}
	if len(records) != 1 || records[0].Name != "new" || records[0].Position != 0 {
		t.Errorf("ListRules() = %+v, want only 'new' at position 0", records)
	}
}

func TestStore_SetRuleState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.SaveRules(ctx, []types.RuleDefinition{flatRule("a", 1), flatRule("b", 2)}, false)
	if err != nil {
		t.Fatalf("SaveRules() error = %v, want nil", err)
	}

	if err := store.SetRuleState(ctx, ids[0], RuleStateDisabled); err != nil {
		t.Fatalf("SetRuleState(disabled) error = %v, want nil", err)
	}

	active, err := store.ListRules(ctx, true)
	if err != nil {
		t.Fatalf("ListRules(active) error = %v, want nil", err)
	}
	if len(active) != 1 || active[0].Name != "b" {
		t.Errorf("active rules = %+v, want only b", active)
	}

	all, err := store.ListRules(ctx, false)
	if err != nil {
		t.Fatalf("ListRules(all) error = %v, want nil", err)
	}
	if len(all) != 2 || all[0].State != RuleStateDisabled {
		t.Errorf("all rules = %+v, want a disabled and b active", all)
	}

	if err := store.SetRuleState(ctx, ids[0], RuleStateActive); err != nil {
		t.Fatalf("SetRuleState(active) error = %v, want nil", err)
	}
	if err := store.SetRuleState(ctx, types.NewRuleID(), RuleStateActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRuleState(unknown) error = %v, want ErrNotFound", err)
	}
	if err := store.SetRuleState(ctx, ids[0], "archived"); err == nil {
		t.Error("SetRuleState(archived) error = nil, want error")
	}
}

func TestStore_Evaluations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []types.EvaluationID
	for i := 0; i < 3; i++ {
		id := types.NewEvaluationID()
		ids = append(ids, id)
		rec := EvaluationRecord{
			ID:        id,
			APIKeyID:  sql.NullString{String: "key-1", Valid: i == 0},
			Input:     `{"purchase_value":1000}`,
			Result:    `{"flat_discount":null}`,
			Triggered: i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordEvaluation(ctx, rec); err != nil {
			t.Fatalf("RecordEvaluation() error = %v, want nil", err)
		}
	}

	got, err := store.GetEvaluation(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetEvaluation() error = %v, want nil", err)
	}
	if got.Input != `{"purchase_value":1000}` || got.Errors != "[]" {
		t.Errorf("GetEvaluation() = %+v, want stored input and empty errors", got)
	}
	if !got.APIKeyID.Valid || got.APIKeyID.String != "key-1" {
		t.Errorf("APIKeyID = %+v, want key-1", got.APIKeyID)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}

	recent, err := store.ListEvaluations(ctx, 2)
	if err != nil {
		t.Fatalf("ListEvaluations() error = %v, want nil", err)
	}
	if len(recent) != 2 || recent[0].ID != ids[2] || recent[1].ID != ids[1] {
		t.Errorf("ListEvaluations(2) returned %d records, want newest two", len(recent))
	}

	if _, err := store.GetEvaluation(ctx, types.NewEvaluationID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEvaluation(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStore_APIKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateAPIKey(ctx, "checkout", "default", "abc123")
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v, want nil", err)
	}
	if _, err := store.CreateAPIKey(ctx, "dup", "default", "abc123"); err == nil {
		t.Error("CreateAPIKey(duplicate hash) error = nil, want error")
	}

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v, want nil", err)
	}
	if len(keys) != 1 || keys[0].ID != id || keys[0].Name != "checkout" || keys[0].RevokedAt.Valid {
		t.Errorf("ListAPIKeys() = %+v, want one active checkout key", keys)
	}

	if err := store.RevokeAPIKey(ctx, id); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v, want nil", err)
	}
	if err := store.RevokeAPIKey(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RevokeAPIKey() error = %v, want ErrNotFound", err)
	}

	keys, err = store.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v, want nil", err)
	}
	if !keys[0].RevokedAt.Valid {
		t.Error("RevokedAt not set after revoke")
	}
}
