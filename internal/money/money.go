// Package money holds the rounding and discount arithmetic shared by the
// costing ledger and the purchasing documents. Values cross the package
// boundary as float64 but every composition step is computed on decimals.
package money

import "github.com/shopspring/decimal"

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	// DiscountPercent interprets the value as a percentage of the total.
	DiscountPercent DiscountType = "PERCENT"
	// DiscountAmount interprets the value as an absolute amount.
	DiscountAmount DiscountType = "AMOUNT"
)

// Discount is a typed discount declaration on a line or a document header.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value float64      `json:"value"`
}

// IsPercent reports whether the discount is percent based.
func (d Discount) IsPercent() bool {
	return d.Type == DiscountPercent
}

// Valid reports whether the type is known. The zero value counts as an
// amount discount of zero.
func (d Discount) Valid() bool {
	return d.Type == "" || d.Type == DiscountPercent || d.Type == DiscountAmount
}

// Round2 rounds a money value to 2 decimals, half away from zero.
func Round2(v float64) float64 {
	return round(v, 2)
}

// Round3 rounds a quantity to 3 decimals, half away from zero.
func Round3(v float64) float64 {
	return round(v, 3)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// FactorPlaces is the scale unit conversion factors are stored at.
const FactorPlaces = 12

// RoundFactor rounds a conversion factor to FactorPlaces, so a factor used
// in memory is the same value a reloaded document carries.
func RoundFactor(v float64) float64 {
	return round(v, FactorPlaces)
}

// MulRound multiplies a and b on decimals and rounds the product.
func MulRound(a, b float64, places int32) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(places).InexactFloat64()
}

// SubRound subtracts b from a on decimals and rounds to 2 places.
func SubRound(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Max0 floors v at zero.
func Max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Sum adds the values on decimals and rounds the result to 2 places.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// ResolveDiscount converts a discount declaration into an amount against
// total. Percent discounts are taken of total; amount discounts are used as
// given. Callers reject discounts exceeding total before allocating them.
func ResolveDiscount(d Discount, total float64) float64 {
	if d.IsPercent() {
		return decimal.NewFromFloat(d.Value).
			Div(decimal.NewFromInt(100)).
			Mul(decimal.NewFromFloat(total)).
			Round(2).
			InexactFloat64()
	}
	return Round2(d.Value)
}
