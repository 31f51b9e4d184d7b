package inventory

import "time"

// Action enumerates stock movements.
type Action string

const (
	// ActionImport increases stock and re-weights the average cost.
	ActionImport Action = "IMPORT"
	// ActionOut decreases stock at the current average cost.
	ActionOut Action = "OUT"
)

// StockEpsilon absorbs float error accumulated through unit factors when
// comparing on-hand quantity against an outflow.
const StockEpsilon = 1e-6

// Error codes.
const (
	CodeInvalidQty        = "INVALID_QTY"
	CodeInvalidUnitCost   = "INVALID_UNIT_COST"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeItemNotFound      = "ITEM_NOT_FOUND"
	CodeInvalidItem       = "INVALID_ITEM"
	CodeBaseUOMNotFound   = "BASE_UOM_NOT_FOUND"
)

// Item is a stocked ingredient or good. Quantity is in the base unit.
type Item struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BaseUOM   string    `json:"baseUom"`
	Quantity  float64   `json:"quantity"`
	AvgCost   float64   `json:"avgCost"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is one immutable stock movement row.
type Transaction struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"itemId"`
	Quantity  float64   `json:"quantity"`
	Action    Action    `json:"action"`
	UnitCost  float64   `json:"unitCost"`
	LineCost  float64   `json:"lineCost"`
	BeforeQty float64   `json:"beforeQty"`
	AfterQty  float64   `json:"afterQty"`
	RefType   string    `json:"refType"`
	RefID     int64     `json:"refId"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Movement asks the ledger to move BaseQty of an item.
type Movement struct {
	ItemID       int64
	BaseQty      float64
	UnitCostBase float64
	RefType      string
	RefID        int64
	Note         string
}

// CreateItemInput describes a new item. Stock starts at zero.
type CreateItemInput struct {
	Name    string
	BaseUOM string
}

// TransactionFilter narrows the stock card.
type TransactionFilter struct {
	ItemID  int64
	RefType string
	RefID   int64
	From    time.Time
	To      time.Time
	Limit   int
}

// Discrepancy is an item whose stored quantity disagrees with its history.
type Discrepancy struct {
	ItemID       int64
	Quantity     float64
	LastAfterQty float64
	NetQty       float64
	Reason       string
}

// ReconcileRow is the per-item aggregate read by the reconciliation scan.
type ReconcileRow struct {
	ItemID       int64
	Quantity     float64
	HasHistory   bool
	LastAfterQty float64
	NetQty       float64
}
