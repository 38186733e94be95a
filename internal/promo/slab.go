package promo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// SlabTypeFlat subtracts the slab value from the purchase value. Other slab
// types are accepted and leave the amount unchanged.
const SlabTypeFlat = "flat"

// Slab is one tier of a serialized slab list. Absent or null fields take
// their defaults: from 0, to +Inf, value 0, type "flat".
type Slab struct {
	From  *float64 `json:"from"`
	To    *float64 `json:"to"`
	Value *float64 `json:"value"`
	Type  *string  `json:"type"`
}

func (s Slab) bounds() (from, to float64) {
	from, to = 0, math.Inf(1)
	if s.From != nil {
		from = *s.From
	}
	if s.To != nil {
		to = *s.To
	}
	return from, to
}

func (s Slab) value() float64 {
	if s.Value == nil {
		return 0
	}
	return *s.Value
}

func (s Slab) kind() string {
	if s.Type == nil {
		return SlabTypeFlat
	}
	return *s.Type
}

// ParseSlabs decodes a serialized slab list. Anything but a JSON array of
// objects with numeric bounds and values is types.ErrSlabParse.
func ParseSlabs(text string) ([]Slab, error) {
	var raw []*Slab
	if err := types.DecodeJSON([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSlabParse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: slab list is null", types.ErrSlabParse)
	}
	if len(raw) > types.MaxSlabs {
		return nil, fmt.Errorf("%w: %d slabs exceeds limit %d", types.ErrSlabParse, len(raw), types.MaxSlabs)
	}
	slabs := make([]Slab, len(raw))
	for i, s := range raw {
		if s == nil {
			return nil, fmt.Errorf("%w: slab %d is null", types.ErrSlabParse, i)
		}
		slabs[i] = *s
	}
	return slabs, nil
}

// SelectSlab returns the first slab whose inclusive range contains value.
func SelectSlab(slabs []Slab, value float64) (Slab, bool) {
	for _, s := range slabs {
		from, to := s.bounds()
		if from <= value && value <= to {
			return s, true
		}
	}
	return Slab{}, false
}

// applySlabDiscount writes a SlabOutcome for the first matching slab, or an
// invalid outcome when the list does not parse. No match writes nothing.
func (d *discounts) applySlabDiscount(subject types.Subject, p rules.Params) error {
	slabs, err := ParseSlabs(p.Text("slabs"))
	if err != nil {
		d.logger.Warn("slab list rejected", "error", err)
		subject[SlabDiscountKey] = SlabOutcome{Err: err}
		return nil
	}

	value, err := subject.Number(FieldPurchaseValue)
	if err != nil {
		return err
	}
	slab, ok := SelectSlab(slabs, value)
	if !ok {
		return nil
	}

	kind := slab.kind()
	final := value
	switch {
	case kind == SlabTypeFlat:
		final = decimal.NewFromFloat(value).Sub(decimal.NewFromFloat(slab.value())).InexactFloat64()
	case d.strict:
		return fmt.Errorf("%w: slab type %q", types.ErrUnsupportedConfiguration, kind)
	default:
		d.logger.Debug("slab type passed through", "type", kind)
	}

	from, to := slab.bounds()
	subject[SlabDiscountKey] = SlabOutcome{Discount: &SlabDiscount{
		Type:        kind,
		Value:       slab.value(),
		Slab:        formatAmount(from) + " - " + formatAmount(to),
		FinalAmount: final,
	}}
	return nil
}

// formatAmount renders a number in its shortest form, +Inf as "inf".
func formatAmount(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
