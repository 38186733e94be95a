package promo

import (
	"math"

	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// applyFreeProduct always writes a FreeProduct, with quantity 0 when the
// purchase does not qualify. qualifying_value is non-zero by declaration.
func (d *discounts) applyFreeProduct(subject types.Subject, p rules.Params) error {
	qty, err := subject.Number(FieldPurchaseQuantity)
	if err != nil {
		return err
	}

	subject[FreeProductKey] = FreeProduct{
		Code:     p.Text("product_code"),
		Name:     p.Text("product_name"),
		Quantity: FreeQuantity(qty, p.Number("qualifying_value"), p.Number("free_quantity")),
	}
	return nil
}

// FreeQuantity returns floor(qty / qualifying) * free, truncated toward zero.
func FreeQuantity(qty, qualifying, free float64) int64 {
	multiplier := math.Floor(qty / qualifying)
	return int64(multiplier * free)
}
