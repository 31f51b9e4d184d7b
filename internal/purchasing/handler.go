package purchasing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/httpx"
)

// Handler exposes receipts and returns over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", h.listReceipts)
		r.Post("/", h.createReceipt)
		r.Get("/{id}", h.getReceipt)
		r.Put("/{id}", h.updateReceipt)
		r.Post("/{id}/post", h.postReceipt)
		r.Post("/{id}/pay", h.payReceipt)
		r.Post("/{id}/cancel", h.cancelReceipt)
	})
	r.Route("/returns", func(r chi.Router) {
		r.Get("/", h.listReturns)
		r.Post("/", h.createReturn)
		r.Get("/{id}", h.getReturn)
		r.Put("/{id}", h.updateReturn)
		r.Post("/{id}/post", h.postReturn)
		r.Post("/{id}/refund", h.markRefunded)
		r.Post("/{id}/cancel", h.cancelReturn)
	})
}

type discountRequest struct {
	Type  string  `json:"type" validate:"omitempty,oneof=PERCENT AMOUNT"`
	Value float64 `json:"value" validate:"gte=0"`
}

func (d discountRequest) toDiscount() money.Discount {
	return money.Discount{Type: money.DiscountType(d.Type), Value: d.Value}
}

type receiptLineRequest struct {
	ItemID           int64           `json:"itemId" validate:"required,gt=0"`
	Quantity         float64         `json:"quantity"`
	ReceivedUOM      string          `json:"receivedUom" validate:"max=16"`
	ConversionToBase float64         `json:"conversionToBase"`
	UnitPrice        float64         `json:"unitPrice"`
	Discount         discountRequest `json:"discount"`
	Lot              string          `json:"lot" validate:"max=64"`
	ExpiryDate       string          `json:"expiryDate" validate:"omitempty,datetime=2006-01-02"`
}

type receiptRequest struct {
	Number         string               `json:"number" validate:"max=32"`
	SupplierID     int64                `json:"supplierId"`
	ReceiptDate    string               `json:"receiptDate" validate:"omitempty,datetime=2006-01-02"`
	GlobalDiscount discountRequest      `json:"globalDiscount"`
	ShippingFee    float64              `json:"shippingFee"`
	AmountPaid     float64              `json:"amountPaid"`
	Note           string               `json:"note" validate:"max=500"`
	Status         string               `json:"status" validate:"omitempty,oneof=DRAFT POSTED"`
	IdempotencyKey string               `json:"idempotencyKey" validate:"max=64"`
	Lines          []receiptLineRequest `json:"lines" validate:"dive"`
}

func (req receiptRequest) toInput() ReceiptInput {
	in := ReceiptInput{
		Number:         req.Number,
		SupplierID:     req.SupplierID,
		GlobalDiscount: req.GlobalDiscount.toDiscount(),
		ShippingFee:    req.ShippingFee,
		AmountPaid:     req.AmountPaid,
		Note:           req.Note,
		Status:         ReceiptStatus(req.Status),
		IdempotencyKey: req.IdempotencyKey,
		Lines:          make([]ReceiptLineInput, 0, len(req.Lines)),
	}
	in.ReceiptDate = parseDate(req.ReceiptDate)
	for _, l := range req.Lines {
		line := ReceiptLineInput{
			ItemID:           l.ItemID,
			Quantity:         l.Quantity,
			ReceivedUOM:      l.ReceivedUOM,
			ConversionToBase: l.ConversionToBase,
			UnitPrice:        l.UnitPrice,
			Discount:         l.Discount.toDiscount(),
			Lot:              l.Lot,
		}
		if d := parseDate(l.ExpiryDate); !d.IsZero() {
			line.ExpiryDate = &d
		}
		in.Lines = append(in.Lines, line)
	}
	return in
}

type returnLineRequest struct {
	ItemID           int64   `json:"itemId" validate:"required,gt=0"`
	Quantity         float64 `json:"quantity"`
	ReceivedUOM      string  `json:"receivedUom" validate:"max=16"`
	ConversionToBase float64 `json:"conversionToBase"`
	UnitPrice        float64 `json:"unitPrice"`
}

type returnRequest struct {
	Number         string              `json:"number" validate:"max=32"`
	SupplierID     int64               `json:"supplierId"`
	Discount       discountRequest     `json:"discount"`
	PaidAmount     float64             `json:"paidAmount"`
	Note           string              `json:"note" validate:"max=500"`
	Status         string              `json:"status" validate:"omitempty,oneof=DRAFT POSTED"`
	IdempotencyKey string              `json:"idempotencyKey" validate:"max=64"`
	Lines          []returnLineRequest `json:"lines" validate:"dive"`
}

func (req returnRequest) toInput() ReturnInput {
	in := ReturnInput{
		Number:         req.Number,
		SupplierID:     req.SupplierID,
		Discount:       req.Discount.toDiscount(),
		PaidAmount:     req.PaidAmount,
		Note:           req.Note,
		Status:         ReturnStatus(req.Status),
		IdempotencyKey: req.IdempotencyKey,
		Lines:          make([]ReturnLineInput, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, ReturnLineInput(l))
	}
	return in
}

type payRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.CreateReceipt(r.Context(), req.toInput())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) updateReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateReceipt(r.Context(), id, req.toInput())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.service.ListReceipts(r.Context(), parseListFilter(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": page})
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	h.receiptAction(w, r, h.service.PostReceipt)
}

func (h *Handler) cancelReceipt(w http.ResponseWriter, r *http.Request) {
	h.receiptAction(w, r, h.service.CancelReceipt)
}

func (h *Handler) payReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req payRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.PayReceipt(r.Context(), id, req.Amount)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) receiptAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (Receipt, error)) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := fn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), req.toInput())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) updateReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	ret, err := h.service.UpdateReturn(r.Context(), id, req.toInput())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.service.ListReturns(r.Context(), parseListFilter(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": page})
}

func (h *Handler) postReturn(w http.ResponseWriter, r *http.Request) {
	h.returnAction(w, r, h.service.PostReturn)
}

func (h *Handler) markRefunded(w http.ResponseWriter, r *http.Request) {
	h.returnAction(w, r, h.service.MarkRefunded)
}

func (h *Handler) cancelReturn(w http.ResponseWriter, r *http.Request) {
	h.returnAction(w, r, h.service.CancelReturn)
}

func (h *Handler) returnAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (Return, error)) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ret, err := fn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	if err := httpx.Validate(h.validate, target); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func parseListFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	return ListFilter{Status: q.Get("status"), SupplierID: supplierID, Page: page, PerPage: perPage}
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
