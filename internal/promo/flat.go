package promo

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// The only flat-discount configuration with a computation.
const (
	BasisValue      = "value"
	OperatorAtLeast = ">="
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// applyDiscount writes a FlatDiscount when purchase_value reaches
// qualifying_value. discounted_price is rounded to two places half away from
// zero; discount_amount is not rounded.
func (d *discounts) applyDiscount(subject types.Subject, p rules.Params) error {
	basis, op := p.Text("basis"), p.Text("operator")
	if basis != BasisValue || op != OperatorAtLeast {
		if d.strict {
			return fmt.Errorf("%w: basis %q with operator %q", types.ErrUnsupportedConfiguration, basis, op)
		}
		d.logger.Debug("flat discount configuration ignored", "basis", basis, "operator", op)
		return nil
	}

	value, err := subject.Number(FieldPurchaseValue)
	if err != nil {
		return err
	}
	if value < p.Number("qualifying_value") {
		return nil
	}

	subject[FlatDiscountKey] = ComputeFlatDiscount(value, p.Number("percentage"))
	return nil
}

// ComputeFlatDiscount applies percentage to value.
func ComputeFlatDiscount(value, percentage float64) FlatDiscount {
	pv := decimal.NewFromFloat(value)
	amount := pv.Mul(decimal.NewFromFloat(percentage)).Div(hundred)
	return FlatDiscount{
		Percentage:      percentage,
		DiscountAmount:  amount.InexactFloat64(),
		DiscountedPrice: pv.Sub(amount).Round(moneyPlaces).InexactFloat64(),
	}
}
