// Package promo registers the customer variables and the discount actions
// trade promotion rules are written against.
package promo

import (
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
)

// Subject fields read by the customer variables and the discount actions.
const (
	FieldCustomerCategory       = "customer_category"
	FieldRegion                 = "region"
	FieldCustomerClassification = "customer_classification"
	FieldBrand                  = "brand"
	FieldCategory               = "category"
	FieldPurchaseValue          = "purchase_value"
	FieldPurchaseQuantity       = "purchase_quantity"
	FieldPTRBased               = "ptr_based"
)

// Customer is the typed form of the subject record a promotion pass runs
// against.
type Customer struct {
	CustomerCategory       string  `json:"customer_category"`
	Region                 string  `json:"region"`
	CustomerClassification string  `json:"customer_classification"`
	Brand                  string  `json:"brand"`
	Category               string  `json:"category"`
	PurchaseValue          float64 `json:"purchase_value"`
	PurchaseQuantity       int64   `json:"purchase_quantity"`
	PTRBased               bool    `json:"ptr_based"`
}

// Subject converts c into a fresh subject record.
func (c Customer) Subject() types.Subject {
	return types.Subject{
		FieldCustomerCategory:       c.CustomerCategory,
		FieldRegion:                 c.Region,
		FieldCustomerClassification: c.CustomerClassification,
		FieldBrand:                  c.Brand,
		FieldCategory:               c.Category,
		FieldPurchaseValue:          c.PurchaseValue,
		FieldPurchaseQuantity:       c.PurchaseQuantity,
		FieldPTRBased:               c.PTRBased,
	}
}

var customerVariables = rules.MustVariableSet(
	field(FieldCustomerCategory, "Customer Category", rules.TypeString, ""),
	field(FieldRegion, "Region", rules.TypeString, ""),
	field(FieldCustomerClassification, "Customer Classification", rules.TypeString, ""),
	field(FieldBrand, "Brand", rules.TypeString, ""),
	field(FieldCategory, "Category", rules.TypeString, ""),
	field(FieldPurchaseValue, "Purchase Value", rules.TypeNumeric, 0),
	field(FieldPurchaseQuantity, "Purchase Quantity", rules.TypeNumeric, 0),
	field(FieldPTRBased, "PTR Based", rules.TypeBoolean, false),
)

func field(name, label string, vt rules.ValueType, def any) rules.Variable {
	v, err := rules.FieldVariable(name, label, vt, name, def)
	if err != nil {
		panic(err)
	}
	return v
}

// Variables returns the customer variable schema. Absent fields read as
// their defaults: "" for strings, 0 for numbers, false for ptr_based.
func Variables() *rules.VariableSet {
	return customerVariables
}
