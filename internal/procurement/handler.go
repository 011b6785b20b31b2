package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for suppliers and supplier orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.createSupplier)
	r.Get("/suppliers", h.listSuppliers)
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/lines", h.addLine)
	r.Post("/orders/{id}/place", h.place)
	r.Post("/orders/{id}/receive", h.receive)
	r.Post("/orders/{id}/cancel", h.cancel)
}

type supplierRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

type createOrderRequest struct {
	SupplierID int64  `json:"supplier_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type orderLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), Supplier{Name: req.Name, Phone: req.Phone, Email: req.Email})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}
	order, err := h.service.CreateOrder(r.Context(), req.SupplierID, date)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req orderLineRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	line, err := h.service.AddLine(r.Context(), id, req.ProductID, OrderLine{Quantity: req.Quantity, UnitCost: req.UnitCost})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	order, err := h.service.Place(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	order, err := h.service.Receive(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
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
	h.logger.Error("procurement request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrSupplierNotFound):
		return http.StatusNotFound, "Not Found", true
	case errors.Is(err, ErrInvalidLine), errors.Is(err, ErrEmptyOrder):
		return http.StatusBadRequest, "Validation Failed", true
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotOrdered), errors.Is(err, ErrAlreadyReceived):
		return http.StatusConflict, "State Conflict", true
	}
	return 0, "", false
}
