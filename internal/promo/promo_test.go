package promo

import (
	"errors"
	"testing"

	"github.com/solatis/tradepromo/internal/types"
)

func TestEndToEnd_FlatDiscount(t *testing.T) {
	doc := `{
	  "conditions": {"all": [{"name": "purchase_value", "operator": "greater_than_or_equal_to", "value": 500}]},
	  "actions": [{"name": "apply_discount", "params": {"percentage": 10, "qualifying_value": 500, "basis": "value", "operator": ">="}}]
	}`
	subject := types.Subject{FieldPurchaseValue: 1000.0, FieldPurchaseQuantity: 0}

	report, err := run(t, doc, subject, false, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if report.Triggered != 1 {
		t.Errorf("Triggered = %d, want 1", report.Triggered)
	}
	want := FlatDiscount{Percentage: 10, DiscountAmount: 100, DiscountedPrice: 900}
	if got := subject[FlatDiscountKey]; got != want {
		t.Errorf("flat_discount = %+v, want %+v", got, want)
	}
}

func TestEndToEnd_FreeProduct(t *testing.T) {
	doc := `[{
	  "conditions": {"all": [{"name": "purchase_quantity", "operator": "greater_than", "value": 0}]},
	  "actions": [{"name": "apply_free_product", "params": {"product_code": "FP-1", "product_name": "Bonus Pack", "qualifying_value": 10, "free_quantity": 2}}]
	}]`
	subject := types.Subject{FieldPurchaseQuantity: 25}

	if _, err := run(t, doc, subject, false, Options{}); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	got, _ := subject[FreeProductKey].(FreeProduct)
	if got.Quantity != 4 {
		t.Errorf("free_product.quantity = %d, want 4", got.Quantity)
	}
}

func TestEndToEnd_SlabDiscount(t *testing.T) {
	doc := `{
	  "conditions": {"any": [{"name": "region", "operator": "equal_to", "value": "North"}, {"name": "purchase_value", "operator": "greater_than", "value": 0}]},
	  "actions": [{"name": "apply_slab_discount", "params": {"slabs": "[{\"from\":0,\"to\":500,\"value\":10,\"type\":\"flat\"},{\"from\":501,\"to\":1000,\"value\":50,\"type\":\"flat\"}]"}}]
	}`
	subject := types.Subject{FieldPurchaseValue: 750.0}

	if _, err := run(t, doc, subject, false, Options{}); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	got, _ := subject[SlabDiscountKey].(SlabOutcome)
	if !got.Valid() || got.Discount.FinalAmount != 700 || got.Discount.Slab != "501 - 1000" {
		t.Errorf("slab_discount = %+v, want second slab with final_amount 700", got.Discount)
	}
}

func TestEndToEnd_MalformedSlabDoesNotBlockLaterRules(t *testing.T) {
	doc := `[
	  {"conditions": {"all": []}, "actions": [{"name": "apply_slab_discount", "params": {"slabs": "[{oops"}}]},
	  {"conditions": {"all": []}, "actions": [{"name": "apply_free_product", "params": {"product_code": "A", "product_name": "B", "qualifying_value": 5, "free_quantity": 1}}]}
	]`
	subject := types.Subject{FieldPurchaseQuantity: 10}

	report, err := run(t, doc, subject, false, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if report.Triggered != 2 {
		t.Errorf("Triggered = %d, want 2", report.Triggered)
	}
	if o, _ := subject[SlabDiscountKey].(SlabOutcome); o.Valid() {
		t.Error("slab_discount is valid, want invalid outcome")
	}
	if f, _ := subject[FreeProductKey].(FreeProduct); f.Quantity != 2 {
		t.Errorf("free_product.quantity = %d, want 2", f.Quantity)
	}
}

func TestEndToEnd_StopOnFirstTrigger(t *testing.T) {
	doc := `[
	  {"id": "east", "conditions": {"all": [{"name": "region", "operator": "equal_to", "value": "East"}]},
	   "actions": [{"name": "apply_discount", "params": {"percentage": 5, "qualifying_value": 0, "basis": "value", "operator": ">="}}]},
	  {"id": "north", "conditions": {"all": [{"name": "region", "operator": "equal_to_case_insensitive", "value": "north"}]},
	   "actions": [{"name": "apply_discount", "params": {"percentage": 10, "qualifying_value": 0, "basis": "value", "operator": ">="}}]},
	  {"id": "all", "conditions": {"all": []},
	   "actions": [{"name": "apply_free_product", "params": {"product_code": "A", "product_name": "B", "qualifying_value": 1, "free_quantity": 1}}]}
	]`

	subject := Customer{Region: "North", PurchaseValue: 200, PurchaseQuantity: 3}.Subject()
	report, err := run(t, doc, subject, true, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if report.Triggered != 1 || len(report.Outcomes) != 2 {
		t.Errorf("Triggered = %d, Outcomes = %d, want 1 and 2", report.Triggered, len(report.Outcomes))
	}
	if d, _ := subject[FlatDiscountKey].(FlatDiscount); d.Percentage != 10 {
		t.Errorf("flat_discount = %+v, want 10%% from rule north", d)
	}
	if _, ok := subject[FreeProductKey]; ok {
		t.Error("third rule ran, want halted after first trigger")
	}

	subject = Customer{Region: "North", PurchaseValue: 200, PurchaseQuantity: 3}.Subject()
	report, err = run(t, doc, subject, false, Options{})
	if err != nil || report.Triggered != 2 {
		t.Errorf("Run() = (%d triggered, %v), want (2, nil)", report.Triggered, err)
	}
}

func TestEndToEnd_StrictReportsPerRule(t *testing.T) {
	doc := `[
	  {"id": "qty-basis", "conditions": {"all": []}, "actions": [{"name": "apply_discount", "params": {"percentage": 5, "qualifying_value": 1, "basis": "quantity", "operator": ">="}}]},
	  {"id": "slab", "conditions": {"all": []}, "actions": [{"name": "apply_slab_discount", "params": {"slabs": "[{\"value\": 20}]"}}]}
	]`
	subject := types.Subject{FieldPurchaseValue: 100.0}

	report, err := run(t, doc, subject, false, Options{Strict: true})
	if !errors.Is(err, types.ErrUnsupportedConfiguration) {
		t.Fatalf("Run() error = %v, want ErrUnsupportedConfiguration", err)
	}
	var ruleErr *types.RuleError
	if !errors.As(err, &ruleErr) || ruleErr.RuleID != "qty-basis" {
		t.Errorf("Run() error = %v, want RuleError for qty-basis", err)
	}
	if report.Triggered != 2 {
		t.Errorf("Triggered = %d, want 2", report.Triggered)
	}
	if o, _ := subject[SlabDiscountKey].(SlabOutcome); !o.Valid() || o.Discount.FinalAmount != 80 {
		t.Errorf("slab_discount = %+v, want final_amount 80", o.Discount)
	}
}
