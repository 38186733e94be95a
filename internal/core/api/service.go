// Package api provides the promotion evaluation service behind the gRPC
// server and the CLI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/tradepromo/internal/core/auth"
	"github.com/solatis/tradepromo/internal/core/db"
	"github.com/solatis/tradepromo/internal/metrics"
	"github.com/solatis/tradepromo/internal/promo"
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// Options configures a PromotionService. Only Source is required.
type Options struct {
	Source RuleSource

	// Store journals evaluations to the database when set.
	Store *db.Store

	// Metrics records evaluations and reloads when set.
	Metrics *metrics.Metrics

	Logger *slog.Logger

	// DataDir enables the daily JSONL journal under DataDir/evaluations.
	DataDir string

	// StrictActions surfaces action configurations with no effect as errors.
	StrictActions bool
}

// PromotionService evaluates customers against the current rule set.
// Compiled rules are swapped atomically by Reload; each Evaluate call runs
// against its own session registries.
type PromotionService struct {
	source  RuleSource
	store   *db.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	engine  *rules.Engine
	vars    *rules.VariableSet
	actions *rules.ActionSet

	journalDir   string
	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex

	mu       sync.RWMutex
	compiled []*rules.CompiledRule
	loadedAt time.Time
}

// EvaluationResult is the outcome of one evaluation session.
type EvaluationResult struct {
	ID        types.EvaluationID `json:"evaluation_id"`
	Triggered int                `json:"triggered"`
	Subject   types.Subject      `json:"subject"`
	Summary   []string           `json:"summary"`
	Errors    []string           `json:"errors,omitempty"`
}

// NewPromotionService creates the service and performs the initial rule load.
// A rule set that fails to load or compile is an error.
func NewPromotionService(ctx context.Context, opts Options) (*PromotionService, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("rule source cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &PromotionService{
		source:       opts.Source,
		store:        opts.Store,
		metrics:      opts.Metrics,
		logger:       logger,
		engine:       rules.NewEngine(logger),
		vars:         promo.Variables(),
		actions:      promo.NewActions(promo.Options{Strict: opts.StrictActions, Logger: logger}),
		jsonlMutexes: make(map[string]*sync.Mutex),
	}

	if opts.DataDir != "" {
		s.journalDir = filepath.Join(opts.DataDir, "evaluations")
		if err := os.MkdirAll(s.journalDir, 0755); err != nil {
			return nil, err
		}
	}

	if _, err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload loads and compiles the rule set from the source. On failure the
// previous rule set stays in effect.
func (s *PromotionService) Reload(ctx context.Context) (int, error) {
	compiled, err := s.compile(ctx)
	if s.metrics != nil {
		s.metrics.RecordReload(len(compiled), err)
	}
	if err != nil {
		s.logger.Error("rule reload failed", "source", s.source.String(), "error", err)
		return 0, err
	}

	s.mu.Lock()
	s.compiled = compiled
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("rules loaded", "source", s.source.String(), "count", len(compiled))
	return len(compiled), nil
}

func (s *PromotionService) compile(ctx context.Context) ([]*rules.CompiledRule, error) {
	defs, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", s.source, err)
	}
	return rules.CompileAll(defs, s.vars, s.actions)
}

// RuleCount returns the number of rules in effect and when they were loaded.
func (s *PromotionService) RuleCount() (int, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.compiled), s.loadedAt
}

// Evaluate runs the rule set against a copy of subject. Per-rule errors do
// not fail the call; they are listed in the result. The returned error is
// non-nil only when ctx is already done.
func (s *PromotionService) Evaluate(ctx context.Context, subject types.Subject, stopOnFirstTrigger bool) (EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return EvaluationResult{}, err
	}

	s.mu.RLock()
	compiled := s.compiled
	s.mu.RUnlock()

	input := subject.Clone()
	session := subject.Clone()

	start := time.Now()
	report, _ := s.engine.Run(compiled, s.vars.Bind(session), s.actions.Bind(session), stopOnFirstTrigger)
	duration := time.Since(start)

	result := EvaluationResult{
		ID:        types.NewEvaluationID(),
		Triggered: report.Triggered,
		Subject:   session,
		Summary:   promo.Summarize(session),
	}

	stats := metrics.EvaluationStats{Triggered: report.Triggered, Duration: duration}
	for _, err := range report.Errors() {
		result.Errors = append(result.Errors, err.Error())
		if types.IsConfigurationError(err) {
			stats.ConfigErrors++
		} else {
			stats.DataErrors++
		}
	}
	if s.metrics != nil {
		s.metrics.RecordEvaluation(stats)
	}

	s.journal(ctx, input, result)
	return result, nil
}

// journalEntry is one line of the daily JSONL journal.
type journalEntry struct {
	EvaluationID types.EvaluationID `json:"evaluation_id"`
	APIKeyID     string             `json:"api_key_id,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Input        types.Subject      `json:"input"`
	Result       EvaluationResult   `json:"result"`
}

// journal writes the evaluation to the JSONL file and the store.
// Both are best-effort; failures are logged and never fail the evaluation.
func (s *PromotionService) journal(ctx context.Context, input types.Subject, result EvaluationResult) {
	now := time.Now().UTC()
	apiKeyID := auth.APIKeyIDFromContext(ctx)

	if s.journalDir != "" {
		entry := journalEntry{
			EvaluationID: result.ID,
			APIKeyID:     apiKeyID,
			Timestamp:    now,
			Input:        input,
			Result:       result,
		}
		if err := s.appendJSONL(now, entry); err != nil {
			s.logger.Warn("failed to write evaluation journal", "evaluation_id", result.ID, "error", err)
		}
	}

	if s.store != nil {
		rec, err := newEvaluationRecord(apiKeyID, now, input, result)
		if err == nil {
			err = s.store.RecordEvaluation(ctx, rec)
		}
		if err != nil {
			s.logger.Warn("failed to record evaluation", "evaluation_id", result.ID, "error", err)
		}
	}
}

func (s *PromotionService) appendJSONL(now time.Time, entry journalEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	filename := filepath.Join(s.journalDir, now.Format("2006-01-02.jsonl"))
	mu := s.getJSONLMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, werr := f.Write(append(line, '\n'))
	return errors.Join(werr, f.Close())
}

// getJSONLMutex returns the mutex guarding filename, creating it if needed.
// The map grows by one entry per day.
func (s *PromotionService) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}

func newEvaluationRecord(apiKeyID string, now time.Time, input types.Subject, result EvaluationResult) (db.EvaluationRecord, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return db.EvaluationRecord{}, err
	}
	out, err := json.Marshal(result.Subject)
	if err != nil {
		return db.EvaluationRecord{}, err
	}
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return db.EvaluationRecord{}, err
	}

	rec := db.EvaluationRecord{
		ID:        result.ID,
		Input:     string(in),
		Result:    string(out),
		Triggered: result.Triggered,
		Errors:    string(errJSON),
		CreatedAt: now,
	}
	rec.APIKeyID.String = apiKeyID
	rec.APIKeyID.Valid = apiKeyID != ""
	return rec, nil
}
