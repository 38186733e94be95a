package promo

import (
	"errors"
	"log/slog"

	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// Action names usable in rule documents.
const (
	ActionApplyDiscount     = "apply_discount"
	ActionApplyFreeProduct  = "apply_free_product"
	ActionApplySlabDiscount = "apply_slab_discount"
)

// Options controls how the discount actions treat configurations they have
// no computation for (a basis other than "value", an operator other than
// ">=", a slab type other than "flat").
type Options struct {
	// Strict makes unsupported configurations fail with
	// types.ErrUnsupportedConfiguration. Otherwise they are logged at debug
	// and skipped (flat discount) or passed through (slab discount).
	Strict bool

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

var errZeroQualifyingValue = errors.New("must be non-zero")

// NewActions returns the discount action schema.
func NewActions(opts Options) *rules.ActionSet {
	p := &discounts{strict: opts.Strict, logger: opts.logger()}
	return rules.MustActionSet(
		rules.Action{
			Name: ActionApplyDiscount,
			Params: []rules.Param{
				{Name: "percentage", Kind: rules.FieldNumeric},
				{Name: "qualifying_value", Kind: rules.FieldNumeric},
				{Name: "basis", Kind: rules.FieldText},
				{Name: "operator", Kind: rules.FieldText},
			},
			Run: p.applyDiscount,
		},
		rules.Action{
			Name: ActionApplyFreeProduct,
			Params: []rules.Param{
				{Name: "product_code", Kind: rules.FieldText},
				{Name: "product_name", Kind: rules.FieldText},
				{Name: "qualifying_value", Kind: rules.FieldNumeric, Check: nonZero},
				{Name: "free_quantity", Kind: rules.FieldNumeric},
			},
			Run: p.applyFreeProduct,
		},
		rules.Action{
			Name:   ActionApplySlabDiscount,
			Params: []rules.Param{{Name: "slabs", Kind: rules.FieldText}},
			Run:    p.applySlabDiscount,
		},
	)
}

func nonZero(v types.Value) error {
	if v.Num == 0 {
		return errZeroQualifyingValue
	}
	return nil
}

// discounts implements the action bodies.
type discounts struct {
	strict bool
	logger *slog.Logger
}
