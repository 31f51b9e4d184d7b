package inventory

import (
	"fmt"
	"math"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// ApplyImport adds baseQty at unitCostBase to item and returns the movement
// row. The average cost is re-weighted over the combined quantity.
func ApplyImport(item *Item, baseQty, unitCostBase float64) (Transaction, error) {
	if !(baseQty > 0) || math.IsInf(baseQty, 0) {
		return Transaction{}, shared.Validation(CodeInvalidQty, "import quantity must be > 0")
	}
	if !(unitCostBase >= 0) || math.IsInf(unitCostBase, 0) {
		return Transaction{}, shared.Validation(CodeInvalidUnitCost, "unit cost must be >= 0")
	}
	before := item.Quantity
	after := before + baseQty
	newAvg := unitCostBase
	if after > 0 {
		newAvg = (before*item.AvgCost + baseQty*unitCostBase) / after
	}
	item.Quantity = money.Round3(after)
	item.AvgCost = money.Round2(newAvg)
	return Transaction{
		ItemID:    item.ID,
		Quantity:  baseQty,
		Action:    ActionImport,
		UnitCost:  unitCostBase,
		LineCost:  money.MulRound(unitCostBase, baseQty, 2),
		BeforeQty: before,
		AfterQty:  item.Quantity,
	}, nil
}

// ApplyOut removes baseQty from item. The average cost does not move.
func ApplyOut(item *Item, baseQty float64) (Transaction, error) {
	if !(baseQty > 0) || math.IsInf(baseQty, 0) {
		return Transaction{}, shared.Validation(CodeInvalidQty, "out quantity must be > 0")
	}
	if err := checkAvailable(*item, baseQty); err != nil {
		return Transaction{}, err
	}
	before := item.Quantity
	item.Quantity = money.Max0(money.Round3(before - baseQty))
	return Transaction{
		ItemID:    item.ID,
		Quantity:  baseQty,
		Action:    ActionOut,
		UnitCost:  item.AvgCost,
		LineCost:  money.MulRound(item.AvgCost, baseQty, 2),
		BeforeQty: before,
		AfterQty:  item.Quantity,
	}, nil
}

func checkAvailable(item Item, baseQty float64) error {
	if item.Quantity+StockEpsilon >= baseQty {
		return nil
	}
	return shared.Validation(CodeInsufficientStock,
		fmt.Sprintf("item %d holds %g, requested %g", item.ID, item.Quantity, baseQty))
}

// Reconcile compares one item's stored quantity with its movement history.
func Reconcile(row ReconcileRow) (Discrepancy, bool) {
	d := Discrepancy{ItemID: row.ItemID, Quantity: row.Quantity, LastAfterQty: row.LastAfterQty, NetQty: row.NetQty}
	if !row.HasHistory {
		if math.Abs(row.Quantity) > StockEpsilon {
			d.Reason = "quantity without movements"
			return d, true
		}
		return Discrepancy{}, false
	}
	if math.Abs(row.Quantity-row.LastAfterQty) > StockEpsilon {
		d.Reason = "quantity differs from last movement"
		return d, true
	}
	// per-row rounding to 3 decimals bounds the drift of the running sum
	if math.Abs(row.Quantity-money.Round3(row.NetQty)) > 0.001 {
		d.Reason = "quantity differs from movement sum"
		return d, true
	}
	return Discrepancy{}, false
}
