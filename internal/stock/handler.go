package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{productID}/level", h.currentStock)
	r.Get("/movements", h.history)
	r.Post("/movements", h.recordMovement)
	r.Get("/low", h.lowStock)
}

type recordMovementRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	Kind       MovementKind    `json:"kind" validate:"required"`
	Delta      decimal.Decimal `json:"delta"`
	SourceType string          `json:"source_type"`
	SourceRef  string          `json:"source_ref"`
	Note       string          `json:"note"`
	OccurredAt *time.Time      `json:"occurred_at"`
}

func (h *Handler) currentStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id required")
		return
	}
	qty, err := h.service.CurrentStock(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, Level{ProductID: productID, Quantity: qty, Negative: qty.IsNegative()})
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req recordMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := MovementInput{
		ProductID:  req.ProductID,
		Kind:       req.Kind,
		Delta:      req.Delta,
		SourceType: req.SourceType,
		SourceRef:  req.SourceRef,
		Note:       req.Note,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}
	movement, err := h.service.RecordMovement(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	var f Filter
	q := r.URL.Query()
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be an integer")
			return
		}
		f.ProductID = id
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category_id must be an integer")
			return
		}
		f.CategoryID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		f.To = t
	}

	movements, err := h.service.History(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("stock request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	switch err {
	case ErrZeroDelta, ErrInvalidKind, ErrInvalidProduct:
		return http.StatusBadRequest, "Validation Failed", true
	case ErrProductNotFound:
		return http.StatusNotFound, "Not Found", true
	case ErrInsufficientStock:
		return http.StatusConflict, "State Conflict", true
	}
	if IsBusy(err) {
		return http.StatusConflict, "Resource Busy", true
	}
	return 0, "", false
}
