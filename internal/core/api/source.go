package api

import (
	"context"

	"github.com/solatis/tradepromo/internal/core/db"
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// RuleSource supplies rule definitions in evaluation order.
type RuleSource interface {
	Load(ctx context.Context) ([]types.RuleDefinition, error)
	String() string
}

// DirSource loads rule documents from a directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Load(ctx context.Context) ([]types.RuleDefinition, error) {
	return rules.LoadDir(s.Dir)
}

func (s DirSource) String() string { return "dir:" + s.Dir }

// StoreSource loads the active rules from the database.
type StoreSource struct {
	Store *db.Store
}

func (s StoreSource) Load(ctx context.Context) ([]types.RuleDefinition, error) {
	return s.Store.ActiveRuleDefinitions(ctx)
}

func (s StoreSource) String() string { return "db" }

// StaticSource serves a fixed rule list.
type StaticSource []types.RuleDefinition

func (s StaticSource) Load(ctx context.Context) ([]types.RuleDefinition, error) {
	return s, nil
}

func (s StaticSource) String() string { return "static" }
