package purchasing

import (
	"math"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// receiptTotals holds the header figures derived from a receipt's lines.
type receiptTotals struct {
	SubTotal    float64
	Discount    float64
	GrandTotal  float64
	LineTotals  []float64
	Allocations []float64
}

// returnTotals holds the header figures derived from a return's lines.
type returnTotals struct {
	TotalGoods         float64
	Discount           float64
	TotalAfterDiscount float64
	LineTotals         []float64
	Allocations        []float64
	AfterDiscount      []float64
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateDiscount checks a discount declaration. Percent values must lie
// in [0,100]; amounts must not be negative.
func validateDiscount(d money.Discount, percentCode, amountCode string) error {
	if !d.Valid() || !finite(d.Value) {
		return shared.Validation(amountCode, "unknown discount type "+string(d.Type))
	}
	if d.IsPercent() {
		if d.Value < 0 || d.Value > 100 {
			return shared.Validation(percentCode, "discount percent must be between 0 and 100")
		}
		return nil
	}
	if d.Value < 0 {
		return shared.Validation(amountCode, "discount amount must be >= 0")
	}
	return nil
}

func validateQtyPrice(i int, qty, price float64) error {
	if !(qty > 0) || !finite(qty) {
		return shared.Validationf(CodeInvalidQtyAt, "quantity must be > 0", i)
	}
	if !(price >= 0) || !finite(price) {
		return shared.Validationf(CodeInvalidPriceAt, "unit price must be >= 0", i)
	}
	return nil
}

// validateReceiptInput runs every check that needs no storage.
func validateReceiptInput(in ReceiptInput) error {
	if in.SupplierID <= 0 {
		return shared.NotFound(CodeSupplierNotFound, "supplier required")
	}
	if len(in.Lines) == 0 {
		return shared.Validation(CodeEmptyLines, "receipt needs at least one line")
	}
	if err := validateDiscount(in.GlobalDiscount, CodeGlobalPercentOutOfRange, CodeInvalidDiscount); err != nil {
		return err
	}
	if !(in.ShippingFee >= 0) || !finite(in.ShippingFee) {
		return shared.Validation(CodeInvalidShippingFee, "shipping fee must be >= 0")
	}
	if !(in.AmountPaid >= 0) || !finite(in.AmountPaid) {
		return shared.Validation(CodeInvalidPaidAmount, "amount paid must be >= 0")
	}
	switch in.Status {
	case "", ReceiptDraft, ReceiptPosted:
	default:
		return shared.Validation(CodeInvalidStatus, "receipt can only be saved as DRAFT or POSTED")
	}
	for i, line := range in.Lines {
		if err := validateQtyPrice(i, line.Quantity, line.UnitPrice); err != nil {
			return err
		}
		if line.Discount.IsPercent() && (line.Discount.Value < 0 || line.Discount.Value > 100) {
			return shared.Validationf(CodeLinePercentOutOfRangeAt, "line discount percent must be between 0 and 100", i)
		}
		if !line.Discount.Valid() || !finite(line.Discount.Value) || line.Discount.Value < 0 {
			return shared.Validationf(CodeInvalidDiscountAt, "invalid line discount", i)
		}
		if line.ConversionToBase < 0 || !finite(line.ConversionToBase) {
			return shared.Validationf(CodeInvalidQtyAt, "conversion factor must be >= 0", i)
		}
	}
	return nil
}

// validateReturnInput runs every check that needs no storage.
func validateReturnInput(in ReturnInput) error {
	if in.SupplierID <= 0 {
		return shared.NotFound(CodeSupplierNotFound, "supplier required")
	}
	if len(in.Lines) == 0 {
		return shared.Validation(CodeEmptyLines, "return needs at least one line")
	}
	if err := validateDiscount(in.Discount, CodeGlobalPercentOutOfRange, CodeInvalidDiscount); err != nil {
		return err
	}
	if !(in.PaidAmount >= 0) || !finite(in.PaidAmount) {
		return shared.Validation(CodeInvalidPaidAmount, "paid amount must be >= 0")
	}
	switch in.Status {
	case "", ReturnDraft, ReturnPosted:
	default:
		return shared.Validation(CodeInvalidStatus, "return can only be saved as DRAFT or POSTED")
	}
	for i, line := range in.Lines {
		if err := validateQtyPrice(i, line.Quantity, line.UnitPrice); err != nil {
			return err
		}
		if line.ConversionToBase < 0 || !finite(line.ConversionToBase) {
			return shared.Validationf(CodeInvalidQtyAt, "conversion factor must be >= 0", i)
		}
	}
	return nil
}

// receiptLineTotal is the line amount after the line's own discount,
// floored at zero.
func receiptLineTotal(qty, price float64, d money.Discount) float64 {
	gross := money.MulRound(qty, price, 2)
	discount := money.ResolveDiscount(d, gross)
	return money.Max0(money.SubRound(gross, discount))
}

// computeReceiptTotals derives subtotal, header discount and grand total
// from lines. Each step is rounded before it feeds the next.
func computeReceiptTotals(lines []ReceiptLine, global money.Discount, shippingFee float64) (receiptTotals, error) {
	t := receiptTotals{LineTotals: make([]float64, len(lines))}
	for i, line := range lines {
		t.LineTotals[i] = receiptLineTotal(line.Quantity, line.UnitPrice, line.Discount)
	}
	t.SubTotal = money.Sum(t.LineTotals...)
	t.Discount = money.ResolveDiscount(global, t.SubTotal)
	if t.Discount > t.SubTotal {
		return receiptTotals{}, shared.Validation(CodeDiscountExceedsTotal, "discount exceeds receipt subtotal")
	}
	t.Allocations = money.Allocate(t.LineTotals, t.Discount)
	afterDiscount := money.Max0(money.SubRound(t.SubTotal, t.Discount))
	t.GrandTotal = money.Sum(afterDiscount, money.Round2(shippingFee))
	return t, nil
}

// computeReturnTotals derives goods total, discount and refund from lines.
func computeReturnTotals(lines []ReturnLine, discount money.Discount) (returnTotals, error) {
	t := returnTotals{LineTotals: make([]float64, len(lines))}
	for i, line := range lines {
		t.LineTotals[i] = money.MulRound(line.Quantity, line.UnitPrice, 2)
	}
	t.TotalGoods = money.Sum(t.LineTotals...)
	t.Discount = money.ResolveDiscount(discount, t.TotalGoods)
	if t.Discount > t.TotalGoods {
		return returnTotals{}, shared.Validation(CodeDiscountExceedsTotal, "discount exceeds return total")
	}
	t.Allocations = money.Allocate(t.LineTotals, t.Discount)
	t.AfterDiscount = money.AfterDiscount(t.LineTotals, t.Allocations)
	t.TotalAfterDiscount = money.Max0(money.SubRound(t.TotalGoods, t.Discount))
	return t, nil
}

// applyReceiptTotals copies computed figures onto the header and lines.
func applyReceiptTotals(r *Receipt, t receiptTotals) {
	r.SubTotal = t.SubTotal
	r.DiscountAmount = t.Discount
	r.GrandTotal = t.GrandTotal
	r.Debt = debt(t.GrandTotal, r.AmountPaid)
	for i := range r.Lines {
		r.Lines[i].LineTotal = t.LineTotals[i]
		r.Lines[i].AllocatedDiscount = t.Allocations[i]
	}
}

// applyReturnTotals copies computed figures onto the header and lines.
func applyReturnTotals(r *Return, t returnTotals) {
	r.TotalGoods = t.TotalGoods
	r.DiscountAmount = t.Discount
	r.TotalAfterDiscount = t.TotalAfterDiscount
	r.RefundAmount = t.TotalAfterDiscount
	r.Debt = debt(r.RefundAmount, r.PaidAmount)
	for i := range r.Lines {
		r.Lines[i].LineTotalBeforeDiscount = t.LineTotals[i]
		r.Lines[i].AllocatedDiscount = t.Allocations[i]
		r.Lines[i].LineTotalAfterDiscount = t.AfterDiscount[i]
		r.Lines[i].RefundAmount = t.AfterDiscount[i]
	}
}

func debt(total, paid float64) float64 {
	return money.Max0(money.SubRound(total, paid))
}
