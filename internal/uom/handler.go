package uom

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/httpx"
)

// Handler exposes the unit registry over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/units", h.listUnits)
	r.Post("/units", h.createUnit)
	r.Patch("/units/{code}", h.updateUnit)
	r.Get("/conversions", h.listConversions)
	r.Post("/conversions", h.createConversion)
	r.Get("/convert", h.convert)
}

type unitRequest struct {
	Code      string `json:"code" validate:"required,max=16"`
	Name      string `json:"name" validate:"max=64"`
	Dimension string `json:"dimension" validate:"required"`
}

type unitUpdateRequest struct {
	Name      string `json:"name" validate:"max=64"`
	Dimension string `json:"dimension"`
}

type conversionRequest struct {
	From   string  `json:"from" validate:"required"`
	To     string  `json:"to" validate:"required"`
	Factor float64 `json:"factor" validate:"gt=0"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListUnits(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": units})
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	unit, err := h.service.CreateUnit(r.Context(), Unit{Code: req.Code, Name: req.Name, Dimension: Dimension(req.Dimension)})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	var req unitUpdateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	unit, err := h.service.UpdateUnit(r.Context(), chi.URLParam(r, "code"), UnitUpdate{Name: req.Name, Dimension: Dimension(req.Dimension)})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) listConversions(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.ListConversions(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": convs})
}

func (h *Handler) createConversion(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	conv, err := h.service.CreateConversion(r.Context(), Conversion(req))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, conv)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty := 1.0
	if raw := q.Get("qty"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "qty must be a number")
			return
		}
		qty = v
	}
	res, err := h.service.Convert(r.Context(), q.Get("from"), q.Get("to"), qty)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
