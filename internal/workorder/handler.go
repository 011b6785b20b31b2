package workorder

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
	"github.com/gearbox-erp/gearbox-erp/internal/pricing"
)

// Handler wires HTTP endpoints for work orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs workorder handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/totals", h.totals)
	r.Post("/{id}/status", h.transition)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/invoice", h.generateInvoice)
	r.Post("/{id}/service-lines", h.addServiceLine)
	r.Post("/{id}/product-lines", h.addProductLine)
	r.Delete("/{id}/lines/{kind}/{lineID}", h.removeLine)
}

type createRequest struct {
	ClientID  int64  `json:"client_id" validate:"required,gt=0"`
	VehicleID int64  `json:"vehicle_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes     string `json:"notes"`
}

type transitionRequest struct {
	Status Status `json:"status" validate:"required"`
}

type serviceLineRequest struct {
	ServiceID int64           `json:"service_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type productLineRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        decimal.Decimal `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type generateInvoiceRequest struct {
	PayerType ledger.PayerType `json:"payer_type"`
	PayerID   int64            `json:"payer_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}
	wo, err := h.service.Create(r.Context(), req.ClientID, req.VehicleID, date, req.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wo)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	totals, err := h.service.Totals(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	wo, err := h.service.Transition(r.Context(), id, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req generateInvoiceRequest
	if r.ContentLength > 0 {
		if !h.decodeValid(w, r, &req) {
			return
		}
	}
	invoice, err := h.service.GenerateInvoice(r.Context(), id, req.PayerType, req.PayerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) addServiceLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req serviceLineRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	line, err := h.service.AddServiceLine(r.Context(), id, req.ServiceID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) addProductLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req productLineRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	line, err := h.service.AddProductLine(r.Context(), id, req.ProductID, req.Quantity, req.DiscountPercent)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	if err := h.service.RemoveLine(r.Context(), id, LineKind(chi.URLParam(r, "kind")), lineID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("workorder request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		return http.StatusNotFound, "Not Found", true
	case errors.Is(err, ErrInvalidLineKind):
		return http.StatusBadRequest, "Validation Failed", true
	case errors.Is(err, ErrWorkOrderClosed), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrWorkOrderNotCompleted), errors.Is(err, ErrAlreadyInvoiced):
		return http.StatusConflict, "State Conflict", true
	case errors.Is(err, pricing.ErrNoActivePrice):
		return http.StatusConflict, "State Conflict", true
	}
	return 0, "", false
}
