package promo

import (
	"fmt"

	"github.com/solatis/tradepromo/internal/types"
)

const currency = "₹"

// Summarize renders the outcome of a promotion pass for display. When
// several results are present only the first in the order flat discount,
// slab discount, free product is shown.
func Summarize(subject types.Subject) []string {
	if d, ok := subject[FlatDiscountKey].(FlatDiscount); ok {
		return []string{
			fmt.Sprintf("Discount Applied: %s%%", formatAmount(d.Percentage)),
			fmt.Sprintf("Discount Amount: %s%s", currency, formatAmount(d.DiscountAmount)),
			fmt.Sprintf("Final Price: %s%s", currency, formatAmount(d.DiscountedPrice)),
		}
	}
	if o, ok := subject[SlabDiscountKey].(SlabOutcome); ok {
		if !o.Valid() {
			return []string{"Slab Discount: " + InvalidSlabFormat}
		}
		return []string{
			fmt.Sprintf("Slab Discount Applied: %s of %s%s", o.Discount.Type, currency, formatAmount(o.Discount.Value)),
			fmt.Sprintf("Final Price: %s%s", currency, formatAmount(o.Discount.FinalAmount)),
		}
	}
	if f, ok := subject[FreeProductKey].(FreeProduct); ok {
		return []string{
			fmt.Sprintf("Free Product Applied: %s (Code: %s) x %d", f.Name, f.Code, f.Quantity),
		}
	}

	value, _ := subject.Number(FieldPurchaseValue)
	return []string{
		"No discount applied.",
		fmt.Sprintf("Original Purchase Value: %s%s", currency, formatAmount(value)),
	}
}
