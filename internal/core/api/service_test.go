package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/solatis/tradepromo/internal/core/auth"
	"github.com/solatis/tradepromo/internal/core/db"
	"github.com/solatis/tradepromo/internal/metrics"
	"github.com/solatis/tradepromo/internal/promo"
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const flatRuleDoc = `{
  "conditions": {"all": [{"name": "purchase_value", "operator": "greater_than_or_equal_to", "value": 500}]},
  "actions": [{"name": "apply_discount", "params": {"percentage": 10, "qualifying_value": 500, "basis": "value", "operator": ">="}}]
}`

const slabRuleDoc = `{
  "conditions": {"all": [{"name": "purchase_value", "operator": "greater_than", "value": 0}]},
  "actions": [{"name": "apply_slab_discount", "params": {"slabs": "[{\"from\":0,\"to\":10000,\"value\":50,\"type\":\"flat\"}]"}}]
}`

const unknownVariableDoc = `{
  "conditions": {"all": [{"name": "loyalty_tier", "operator": "equal_to", "value": "gold"}]},
  "actions": []
}`

func parse(t *testing.T, doc string) []types.RuleDefinition {
	t.Helper()
	defs, err := rules.ParseDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v, want nil", err)
	}
	return defs
}

func ruleSet(t *testing.T, docs ...string) StaticSource {
	t.Helper()
	var defs StaticSource
	for _, doc := range docs {
		defs = append(defs, parse(t, doc)...)
	}
	return defs
}

func newService(t *testing.T, opts Options) *PromotionService {
	t.Helper()
	svc, err := NewPromotionService(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewPromotionService() error = %v, want nil", err)
	}
	return svc
}

func customer(value float64) types.Subject {
	return promo.Customer{Region: "North", PurchaseValue: value, PurchaseQuantity: 1}.Subject()
}

func TestNewPromotionService_RequiresSource(t *testing.T) {
	if _, err := NewPromotionService(context.Background(), Options{}); err == nil {
		t.Fatal("NewPromotionService() error = nil, want error")
	}
}

func TestNewPromotionService_RejectsBrokenRules(t *testing.T) {
	_, err := NewPromotionService(context.Background(), Options{Source: ruleSet(t, unknownVariableDoc)})
	if !errors.Is(err, types.ErrUnknownVariable) {
		t.Fatalf("NewPromotionService() error = %v, want ErrUnknownVariable", err)
	}
}

func TestEvaluate_AppliesRules(t *testing.T) {
	svc := newService(t, Options{Source: ruleSet(t, flatRuleDoc)})

	input := customer(1000)
	result, err := svc.Evaluate(context.Background(), input, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if result.Triggered != 1 {
		t.Errorf("Triggered = %d, want 1", result.Triggered)
	}
	want := promo.FlatDiscount{Percentage: 10, DiscountAmount: 100, DiscountedPrice: 900}
	if got := result.Subject[promo.FlatDiscountKey]; got != want {
		t.Errorf("flat_discount = %+v, want %+v", got, want)
	}
	if len(result.Summary) == 0 || result.Summary[0] != "Discount Applied: 10%" {
		t.Errorf("Summary = %q, want flat discount summary", result.Summary)
	}
	if _, ok := input[promo.FlatDiscountKey]; ok {
		t.Error("Evaluate() mutated the caller's subject")
	}
	if _, err := types.ParseEvaluationID(string(result.ID)); err != nil {
		t.Errorf("ID = %q, want UUID", result.ID)
	}
}

func TestEvaluate_StopOnFirstTrigger(t *testing.T) {
	svc := newService(t, Options{Source: ruleSet(t, flatRuleDoc, slabRuleDoc)})

	all, err := svc.Evaluate(context.Background(), customer(1000), false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	first, err := svc.Evaluate(context.Background(), customer(1000), true)
	if err != nil {
		t.Fatalf("Evaluate(stop) error = %v, want nil", err)
	}
	if all.Triggered != 2 || first.Triggered != 1 {
		t.Errorf("Triggered = %d/%d, want 2/1", all.Triggered, first.Triggered)
	}
	if _, ok := first.Subject[promo.SlabDiscountKey]; ok {
		t.Error("stop-on-first evaluated the second rule")
	}
}

func TestEvaluate_ReportsRuleErrors(t *testing.T) {
	m := metrics.New()
	svc := newService(t, Options{Source: ruleSet(t, flatRuleDoc), Metrics: m})

	subject := customer(0)
	subject[promo.FieldPurchaseValue] = "lots"
	result, err := svc.Evaluate(context.Background(), subject, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "type mismatch") {
		t.Errorf("Errors = %q, want one type mismatch", result.Errors)
	}
	if got := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.OutcomeError)); got != 1 {
		t.Errorf("error evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RuleErrorsTotal.WithLabelValues("data")); got != 1 {
		t.Errorf("data rule errors = %v, want 1", got)
	}
}

func TestEvaluate_CanceledContext(t *testing.T) {
	svc := newService(t, Options{Source: ruleSet(t, flatRuleDoc)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Evaluate(ctx, customer(1000), false); !errors.Is(err, context.Canceled) {
		t.Errorf("Evaluate() error = %v, want context.Canceled", err)
	}
}

func TestReload_KeepsPreviousRulesOnFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "10-flat.json"), []byte(flatRuleDoc), 0644); err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	svc := newService(t, Options{Source: DirSource{Dir: dir}, Metrics: m})

	if n, _ := svc.RuleCount(); n != 1 {
		t.Fatalf("RuleCount() = %d, want 1", n)
	}

	if err := os.WriteFile(filepath.Join(dir, "20-broken.json"), []byte(unknownVariableDoc), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reload(context.Background()); err == nil {
		t.Fatal("Reload() error = nil, want error")
	}
	if n, _ := svc.RuleCount(); n != 1 {
		t.Errorf("RuleCount() after failed reload = %d, want 1", n)
	}

	if err := os.WriteFile(filepath.Join(dir, "20-broken.json"), []byte(slabRuleDoc), 0644); err != nil {
		t.Fatal(err)
	}
	n, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error = %v, want nil", err)
	}
	if n != 2 {
		t.Errorf("Reload() = %d, want 2", n)
	}
	if got := testutil.ToFloat64(m.RuleReloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RulesLoaded); got != 2 {
		t.Errorf("rules loaded = %v, want 2", got)
	}
}

func TestEvaluate_Journal(t *testing.T) {
	conn, err := db.Open("sqlite://" + t.TempDir() + "/journal.db")
	if err != nil {
		t.Fatalf("db.Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := db.MigrateUp(context.Background(), conn); err != nil {
		t.Fatalf("db.MigrateUp() error = %v, want nil", err)
	}
	store, err := db.NewStore(conn)
	if err != nil {
		t.Fatalf("db.NewStore() error = %v, want nil", err)
	}
	if _, err := store.SaveRules(context.Background(), parse(t, slabRuleDoc), false); err != nil {
		t.Fatalf("SaveRules() error = %v, want nil", err)
	}

	dataDir := t.TempDir()
	svc := newService(t, Options{Source: StoreSource{Store: store}, Store: store, DataDir: dataDir})

	ctx := auth.WithAPIKeyID(context.Background(), "key-1")
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Evaluate(ctx, customer(800), false); err != nil {
				t.Errorf("Evaluate() error = %v, want nil", err)
			}
		}()
	}
	wg.Wait()

	files, err := filepath.Glob(filepath.Join(dataDir, "evaluations", "*.jsonl"))
	if err != nil || len(files) == 0 {
		t.Fatalf("journal files = %v (err %v), want at least one", files, err)
	}
	lines := 0
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			t.Fatal(err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var entry map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				t.Errorf("journal line is not JSON: %v", err)
			}
			if entry["api_key_id"] != "key-1" {
				t.Errorf("api_key_id = %v, want key-1", entry["api_key_id"])
			}
			lines++
		}
		f.Close()
	}
	if lines != n {
		t.Errorf("journal lines = %d, want %d", lines, n)
	}

	recs, err := store.ListEvaluations(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListEvaluations() error = %v, want nil", err)
	}
	if len(recs) != n {
		t.Fatalf("stored evaluations = %d, want %d", len(recs), n)
	}
	if !strings.Contains(recs[0].Result, `"final_amount":750`) {
		t.Errorf("stored result = %s, want slab final_amount 750", recs[0].Result)
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"configuration", types.ErrUnknownAction, codes.InvalidArgument},
		{"data", types.ErrTypeMismatch, codes.InvalidArgument},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"canceled", context.Canceled, codes.Canceled},
		{"database", errors.New("connection refused"), codes.Unavailable},
		{"status passthrough", status.Error(codes.NotFound, "x"), codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(StatusError(tt.err)); got != tt.want {
				t.Errorf("StatusError() code = %v, want %v", got, tt.want)
			}
		})
	}
	if StatusError(nil) != nil {
		t.Error("StatusError(nil) != nil")
	}
}
