package ledger

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
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// Handler wires HTTP endpoints for invoices and payments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountInvoiceRoutes registers invoice routes.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Get("/unpaid", h.listUnpaid)
	r.Get("/{id}", h.getInvoice)
	r.Post("/{id}/lines", h.addLine)
	r.Post("/{id}/issue", h.issue)
	r.Post("/{id}/cancel", h.cancel)
	r.Get("/{id}/allocations", h.listAllocations)
}

// MountPaymentRoutes registers payment routes.
func (h *Handler) MountPaymentRoutes(r chi.Router) {
	r.Post("/", h.recordPayment)
	r.Get("/", h.listPayments)
	r.Get("/outstanding", h.outstanding)
}

type addLineRequest struct {
	RefID           int64           `json:"ref_id" validate:"required,gt=0"`
	Description     string          `json:"description" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	StandardPrice   decimal.Decimal `json:"standard_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type allocationRequest struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type recordPaymentRequest struct {
	PayerType   PayerType           `json:"payer_type" validate:"required"`
	PayerID     int64               `json:"payer_id" validate:"required,gt=0"`
	Amount      decimal.Decimal     `json:"amount"`
	Date        string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Method      string              `json:"method"`
	Notes       string              `json:"notes"`
	Allocations []allocationRequest `json:"allocations" validate:"dive"`
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listUnpaid(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListUnpaid(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req addLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.AddLine(r.Context(), id, req.RefID, req.Description, req.Quantity, req.StandardPrice, req.DiscountPercent)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Issue(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
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

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	allocations, err := h.service.ListAllocationsByInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocations)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := PaymentInput{
		PayerType: req.PayerType,
		PayerID:   req.PayerID,
		Amount:    req.Amount,
		Method:    req.Method,
		Notes:     req.Notes,
	}
	if req.Date != "" {
		in.Date, _ = time.Parse("2006-01-02", req.Date)
	}
	for _, alloc := range req.Allocations {
		in.Allocations = append(in.Allocations, AllocationRequest{InvoiceID: alloc.InvoiceID, Amount: alloc.Amount})
	}

	result, err := h.service.RecordPayment(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payerType, payerID, ok := h.payerQuery(w, r)
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(r.Context(), payerType, payerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) outstanding(w http.ResponseWriter, r *http.Request) {
	payerType, payerID, ok := h.payerQuery(w, r)
	if !ok {
		return
	}
	invoices, err := h.service.ListOutstandingByPayer(r.Context(), payerType, payerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	total, err := h.service.OutstandingTotal(r.Context(), payerType, payerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"total":    total,
	})
}

func (h *Handler) payerQuery(w http.ResponseWriter, r *http.Request) (PayerType, int64, bool) {
	payerType := PayerType(r.URL.Query().Get("payer_type"))
	payerID, err := strconv.ParseInt(r.URL.Query().Get("payer_id"), 10, 64)
	if err != nil || !ValidPayerType(payerType) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payer_type and payer_id required")
		return "", 0, false
	}
	return payerType, payerID, true
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
	h.logger.Error("ledger request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	var overAlloc *OverAllocationError
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		return http.StatusNotFound, "Not Found", true
	case errors.Is(err, ErrInvalidPayer), errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest, "Validation Failed", true
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrInvoiceNotIssued),
		errors.Is(err, ErrCancelNotAllowed), errors.Is(err, ErrPayerMismatch),
		errors.Is(err, ErrAllocationExceedsPayment):
		return http.StatusConflict, "State Conflict", true
	case errors.As(err, &overAlloc):
		return http.StatusConflict, "State Conflict", true
	case errors.Is(err, shared.ErrLockBusy):
		return http.StatusConflict, "Resource Busy", true
	}
	return 0, "", false
}
