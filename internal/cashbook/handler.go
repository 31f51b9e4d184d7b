package cashbook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/httpx"
)

// Lister reads vouchers for a document.
type Lister interface {
	ListByRef(ctx context.Context, refType string, refID int64) ([]Voucher, error)
}

// Handler exposes vouchers read-only.
type Handler struct {
	logger *slog.Logger
	repo   Lister
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, repo Lister) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vouchers", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	refType := r.URL.Query().Get("ref_type")
	refID, err := strconv.ParseInt(r.URL.Query().Get("ref_id"), 10, 64)
	if refType == "" || err != nil || refID <= 0 {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: ref_type and a positive ref_id are required", httpx.ErrBadRequest))
		return
	}
	vouchers, err := h.repo.ListByRef(r.Context(), refType, refID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": vouchers})
}
