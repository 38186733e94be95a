// internal/rules/load.go
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/solatis/tradepromo/internal/types"
	"gopkg.in/yaml.v3"
)

/*
 * Rule document loading.
 *
 * A document is one rule object or an array of rule objects. JSON is the
 * canonical format; YAML files are converted to the same structure first.
 * LoadDir reads files in lexical filename order so rule order, which matters
 * under stop-on-first-trigger, is stable across platforms.
 */

// ParseDocument decodes a JSON rule document into definitions.
// Returns ErrMalformedRule for anything but an object or array of objects.
func ParseDocument(data []byte) ([]types.RuleDefinition, error) {
	if len(data) > types.MaxDocumentSize {
		return nil, types.ErrDocumentTooLarge
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", types.ErrMalformedRule)
	}

	var defs []types.RuleDefinition
	switch trimmed[0] {
	case '{':
		var def types.RuleDefinition
		if err := types.DecodeJSON(trimmed, &def); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedRule, err)
		}
		defs = []types.RuleDefinition{def}
	case '[':
		if err := types.DecodeJSON(trimmed, &defs); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedRule, err)
		}
	default:
		return nil, fmt.Errorf("%w: document must be a rule object or an array of rules", types.ErrMalformedRule)
	}

	if len(defs) > types.MaxRulesPerDocument {
		return nil, fmt.Errorf("%w: %d rules exceeds limit %d", types.ErrMalformedRule, len(defs), types.MaxRulesPerDocument)
	}
	return defs, nil
}

// ParseYAMLDocument converts a YAML rule document to JSON and parses it.
func ParseYAMLDocument(data []byte) ([]types.RuleDefinition, error) {
	if len(data) > types.MaxDocumentSize {
		return nil, types.ErrDocumentTooLarge
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedRule, err)
	}
	converted, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedRule, err)
	}
	return ParseDocument(converted)
}

// LoadFile parses one rule file by extension and assigns "<file>#<n>" IDs
// to rules that carry none.
func LoadFile(path string) ([]types.RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []types.RuleDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		defs, err = ParseDocument(data)
	case ".yaml", ".yml":
		defs, err = ParseYAMLDocument(data)
	default:
		return nil, fmt.Errorf("unsupported rule file extension: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Base(path)
	for i := range defs {
		if defs[i].ID == "" {
			defs[i].ID = types.RuleID(fmt.Sprintf("%s#%d", base, i))
		}
	}
	return defs, nil
}

// LoadDir loads every .json, .yaml and .yml file in dir (non-recursive),
// in lexical filename order.
func LoadDir(dir string) ([]types.RuleDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var defs []types.RuleDefinition
	for _, name := range names {
		loaded, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}
