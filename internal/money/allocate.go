package money

import "github.com/shopspring/decimal"

// Allocate spreads discount across lineTotals in proportion to each line.
// Shares are rounded to 2 decimals and the rounding remainder is added to
// the last entry, so the allocations always sum to discount. The result
// depends on line order; callers must pass lines in document order.
func Allocate(lineTotals []float64, discount float64) []float64 {
	alloc := make([]float64, len(lineTotals))
	if len(lineTotals) == 0 {
		return alloc
	}
	total := decimal.Zero
	for _, v := range lineTotals {
		total = total.Add(decimal.NewFromFloat(v))
	}
	d := decimal.NewFromFloat(discount)
	if !total.IsPositive() || d.IsZero() {
		return alloc
	}

	shares := make([]decimal.Decimal, len(lineTotals))
	allocated := decimal.Zero
	for i, v := range lineTotals {
		shares[i] = decimal.NewFromFloat(v).Div(total).Mul(d).Round(2)
		allocated = allocated.Add(shares[i])
	}
	if diff := d.Sub(allocated).Round(2); !diff.IsZero() {
		last := len(shares) - 1
		shares[last] = shares[last].Add(diff)
	}
	for i, share := range shares {
		alloc[i] = share.InexactFloat64()
	}
	return alloc
}

// AfterDiscount returns lineTotals[i] - alloc[i] for every line.
func AfterDiscount(lineTotals, alloc []float64) []float64 {
	out := make([]float64, len(lineTotals))
	for i, v := range lineTotals {
		var a float64
		if i < len(alloc) {
			a = alloc[i]
		}
		out[i] = SubRound(v, a)
	}
	return out
}
