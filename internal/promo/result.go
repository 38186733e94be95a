package promo

import (
	"encoding/json"
)

// Subject keys written by the discount actions.
const (
	FlatDiscountKey = "flat_discount"
	FreeProductKey  = "free_product"
	SlabDiscountKey = "slab_discount"
)

// InvalidSlabFormat is the serialized form of a slab outcome whose slab
// list could not be parsed.
const InvalidSlabFormat = "Invalid slab format"

// FlatDiscount is written by apply_discount.
type FlatDiscount struct {
	Percentage      float64 `json:"percentage"`
	DiscountAmount  float64 `json:"discount_amount"`
	DiscountedPrice float64 `json:"discounted_price"`
}

// FreeProduct is written by apply_free_product, including zero quantities.
type FreeProduct struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// SlabDiscount describes the slab selected for the purchase value.
type SlabDiscount struct {
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
	Slab        string  `json:"slab"`
	FinalAmount float64 `json:"final_amount"`
}

// SlabOutcome is written by apply_slab_discount: either a selected slab or
// a parse failure. Exactly one of Discount and Err is set.
type SlabOutcome struct {
	Discount *SlabDiscount
	Err      error
}

// Valid reports whether the outcome carries a selected slab.
func (o SlabOutcome) Valid() bool {
	return o.Err == nil && o.Discount != nil
}

// MarshalJSON renders a failed outcome as the InvalidSlabFormat string and
// a valid one as the slab object.
func (o SlabOutcome) MarshalJSON() ([]byte, error) {
	if !o.Valid() {
		return json.Marshal(InvalidSlabFormat)
	}
	return json.Marshal(o.Discount)
}
