package purchasing

import (
	"time"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
)

// ReceiptStatus is the purchase receipt lifecycle.
type ReceiptStatus string

const (
	ReceiptDraft     ReceiptStatus = "DRAFT"
	ReceiptPosted    ReceiptStatus = "POSTED"
	ReceiptOwing     ReceiptStatus = "OWING"
	ReceiptPaid      ReceiptStatus = "PAID"
	ReceiptCancelled ReceiptStatus = "CANCELLED"
)

// ReturnStatus is the purchase return lifecycle.
type ReturnStatus string

const (
	ReturnDraft     ReturnStatus = "DRAFT"
	ReturnPosted    ReturnStatus = "POSTED"
	ReturnRefunded  ReturnStatus = "REFUNDED"
	ReturnCancelled ReturnStatus = "CANCELLED"
)

// Reference types written on stock movements and cashbook vouchers.
const (
	RefTypeReceipt = "PURCHASE_RECEIPT"
	RefTypeReturn  = "PURCHASE_RETURN"
)

// Error codes. Positional codes are formatted with the 0-based line index.
const (
	CodeSupplierNotFound        = "SUPPLIER_NOT_FOUND"
	CodeReceiptNotFound         = "RECEIPT_NOT_FOUND"
	CodeReturnNotFound          = "PURCHASE_RETURN_NOT_FOUND"
	CodeItemNotFound            = "ITEM_NOT_FOUND"
	CodeEmptyLines              = "EMPTY_LINES"
	CodeInvalidQtyAt            = "INVALID_QTY_AT_%d"
	CodeInvalidPriceAt          = "INVALID_PRICE_AT_%d"
	CodeInvalidDiscountAt       = "INVALID_DISCOUNT_AT_%d"
	CodeLinePercentOutOfRangeAt = "LINE_PERCENT_OUT_OF_RANGE_AT_%d"
	CodeDuplicateLotAt          = "DUPLICATE_LOT_AT_%d"
	CodeGlobalPercentOutOfRange = "GLOBAL_PERCENT_OUT_OF_RANGE"
	CodeInvalidDiscount         = "INVALID_DISCOUNT"
	CodeDiscountExceedsTotal    = "DISCOUNT_EXCEEDS_TOTAL"
	CodeInvalidShippingFee      = "INVALID_SHIPPING_FEE"
	CodeInvalidPaidAmount       = "INVALID_PAID_AMOUNT"
	CodeInvalidPayAmount        = "INVALID_PAY_AMOUNT"
	CodeInvalidStatus           = "INVALID_STATUS"
	CodeOverpay                 = "OVERPAY_NOT_ALLOWED"
	CodeNoRemaining             = "NO_REMAINING_AMOUNT_TO_PAY"
	CodeInsufficientStockPrefix = "INSUFFICIENT_STOCK_FOR_RETURN:"
	CodePaidExceedsRefund       = "PAID_AMOUNT_EXCEEDS_REFUND"
	CodeOnlyDraftCancel         = "ONLY_DRAFT_CAN_BE_CANCELLED"
	CodeOnlyDraftUpdate         = "ONLY_DRAFT_CAN_BE_UPDATED"
	CodeOnlyDraftPost           = "ONLY_DRAFT_CAN_BE_POSTED"
	CodeOnlyOwingOrPostedPay    = "ONLY_OWING_OR_POSTED_CAN_BE_PAID"
	CodeOnlyPostedRefund        = "ONLY_POSTED_CAN_BE_REFUNDED"
	CodePostedRefundOnly        = "CANNOT_UPDATE_POSTED_OTHER_THAN_REFUND_AMOUNT"
	CodeDocumentLocked          = "DOCUMENT_LOCKED"
)

// Receipt is a purchase receipt header. Money fields are rounded to 2
// decimals.
type Receipt struct {
	ID             int64          `json:"id"`
	Number         string         `json:"number"`
	SupplierID     int64          `json:"supplierId"`
	ReceiptDate    time.Time      `json:"receiptDate"`
	GlobalDiscount money.Discount `json:"globalDiscount"`
	ShippingFee    float64        `json:"shippingFee"`
	SubTotal       float64        `json:"subTotal"`
	DiscountAmount float64        `json:"discountAmount"`
	GrandTotal     float64        `json:"grandTotal"`
	AmountPaid     float64        `json:"amountPaid"`
	Debt           float64        `json:"debt"`
	Status         ReceiptStatus  `json:"status"`
	Note           string         `json:"note,omitempty"`
	PostedAt       *time.Time     `json:"postedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Lines          []ReceiptLine  `json:"lines,omitempty"`
}

// ReceiptLine is one received item. ReceivedUOM and ConversionToBase hold
// the resolved unit and factor; BaseQty is Quantity in the item's base unit.
type ReceiptLine struct {
	ID                int64          `json:"id"`
	ReceiptID         int64          `json:"receiptId"`
	LineNo            int            `json:"lineNo"`
	ItemID            int64          `json:"itemId"`
	Quantity          float64        `json:"quantity"`
	ReceivedUOM       string         `json:"receivedUom"`
	ConversionToBase  float64        `json:"conversionToBase"`
	BaseQty           float64        `json:"baseQty"`
	UnitPrice         float64        `json:"unitPrice"`
	Discount          money.Discount `json:"discount"`
	LineTotal         float64        `json:"lineTotal"`
	AllocatedDiscount float64        `json:"allocatedDiscount"`
	Lot               string         `json:"lot,omitempty"`
	ExpiryDate        *time.Time     `json:"expiryDate,omitempty"`
}

// Return is a purchase return header. Invariant: PaidAmount <= RefundAmount.
type Return struct {
	ID                 int64          `json:"id"`
	Number             string         `json:"number"`
	SupplierID         int64          `json:"supplierId"`
	Discount           money.Discount `json:"discount"`
	TotalGoods         float64        `json:"totalGoods"`
	DiscountAmount     float64        `json:"discountAmount"`
	TotalAfterDiscount float64        `json:"totalAfterDiscount"`
	RefundAmount       float64        `json:"refundAmount"`
	PaidAmount         float64        `json:"paidAmount"`
	Debt               float64        `json:"debt"`
	Status             ReturnStatus   `json:"status"`
	Note               string         `json:"note,omitempty"`
	PostedAt           *time.Time     `json:"postedAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Lines              []ReturnLine   `json:"lines,omitempty"`
}

// ReturnLine is one returned item with its share of the header discount.
type ReturnLine struct {
	ID                      int64   `json:"id"`
	ReturnID                int64   `json:"returnId"`
	LineNo                  int     `json:"lineNo"`
	ItemID                  int64   `json:"itemId"`
	Quantity                float64 `json:"quantity"`
	ReceivedUOM             string  `json:"receivedUom"`
	ConversionToBase        float64 `json:"conversionToBase"`
	BaseQty                 float64 `json:"baseQty"`
	UnitPrice               float64 `json:"unitPrice"`
	LineTotalBeforeDiscount float64 `json:"lineTotalBeforeDiscount"`
	AllocatedDiscount       float64 `json:"allocatedDiscount"`
	LineTotalAfterDiscount  float64 `json:"lineTotalAfterDiscount"`
	RefundAmount            float64 `json:"refundAmount"`
}

// ReceiptLineInput describes a line as submitted. ConversionToBase > 0
// overrides the unit graph.
type ReceiptLineInput struct {
	ItemID           int64
	Quantity         float64
	ReceivedUOM      string
	ConversionToBase float64
	UnitPrice        float64
	Discount         money.Discount
	Lot              string
	ExpiryDate       *time.Time
}

// ReceiptInput is the payload for creating or replacing a receipt. Status
// may be DRAFT (default) or POSTED; POSTED applies stock immediately.
type ReceiptInput struct {
	Number         string
	SupplierID     int64
	ReceiptDate    time.Time
	GlobalDiscount money.Discount
	ShippingFee    float64
	AmountPaid     float64
	Note           string
	Status         ReceiptStatus
	IdempotencyKey string
	Lines          []ReceiptLineInput
}

// ReturnLineInput describes a returned line as submitted.
type ReturnLineInput struct {
	ItemID           int64
	Quantity         float64
	ReceivedUOM      string
	ConversionToBase float64
	UnitPrice        float64
}

// ReturnInput is the payload for creating or replacing a return.
type ReturnInput struct {
	Number         string
	SupplierID     int64
	Discount       money.Discount
	PaidAmount     float64
	Note           string
	Status         ReturnStatus
	IdempotencyKey string
	Lines          []ReturnLineInput
}

// ListFilter narrows document listings.
type ListFilter struct {
	Status     string
	SupplierID int64
	Page       int
	PerPage    int
}
