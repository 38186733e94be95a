package promo

import (
	"errors"
	"reflect"
	"testing"

	"github.com/solatis/tradepromo/internal/types"
)

func TestSummarize(t *testing.T) {
	flat := FlatDiscount{Percentage: 10, DiscountAmount: 100, DiscountedPrice: 900}
	slab := SlabOutcome{Discount: &SlabDiscount{Type: "flat", Value: 50, Slab: "501 - 1000", FinalAmount: 700}}
	free := FreeProduct{Code: "SKU-7", Name: "Sample Pack", Quantity: 4}

	tests := []struct {
		name    string
		subject types.Subject
		want    []string
	}{
		{
			name:    "flat discount",
			subject: types.Subject{FlatDiscountKey: flat},
			want:    []string{"Discount Applied: 10%", "Discount Amount: ₹100", "Final Price: ₹900"},
		},
		{
			name:    "slab discount",
			subject: types.Subject{SlabDiscountKey: slab},
			want:    []string{"Slab Discount Applied: flat of ₹50", "Final Price: ₹700"},
		},
		{
			name:    "invalid slab list",
			subject: types.Subject{SlabDiscountKey: SlabOutcome{Err: types.ErrSlabParse}},
			want:    []string{"Slab Discount: Invalid slab format"},
		},
		{
			name:    "free product",
			subject: types.Subject{FreeProductKey: free},
			want:    []string{"Free Product Applied: Sample Pack (Code: SKU-7) x 4"},
		},
		{
			name:    "flat takes precedence",
			subject: types.Subject{FreeProductKey: free, SlabDiscountKey: slab, FlatDiscountKey: flat},
			want:    []string{"Discount Applied: 10%", "Discount Amount: ₹100", "Final Price: ₹900"},
		},
		{
			name:    "slab before free product",
			subject: types.Subject{FreeProductKey: free, SlabDiscountKey: slab},
			want:    []string{"Slab Discount Applied: flat of ₹50", "Final Price: ₹700"},
		},
		{
			name:    "nothing applied",
			subject: types.Subject{FieldPurchaseValue: 420.5},
			want:    []string{"No discount applied.", "Original Purchase Value: ₹420.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.subject); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(SlabOutcome{Err: types.ErrSlabParse}.Err, types.ErrSlabParse) {
		t.Fatal("SlabOutcome lost its error")
	}
}
