package pricing

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

// Handler wires HTTP endpoints for the pricing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs pricing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers pricing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{entityType}/{entityID}/{kind}/current", h.currentPrice)
	r.Get("/{entityType}/{entityID}/{kind}/at", h.priceAt)
	r.Get("/{entityType}/{entityID}/{kind}/history", h.history)
	r.Post("/{entityType}/{entityID}/{kind}", h.addPrice)
}

type addPriceRequest struct {
	Price     decimal.Decimal `json:"price"`
	StartDate string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) currentPrice(w http.ResponseWriter, r *http.Request) {
	ref, kind, ok := h.refFromURL(w, r)
	if !ok {
		return
	}
	price, err := h.service.CurrentPrice(r.Context(), ref, kind)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, priceResponse{Price: price})
}

func (h *Handler) priceAt(w http.ResponseWriter, r *http.Request) {
	ref, kind, ok := h.refFromURL(w, r)
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	price, err := h.service.PriceAt(r.Context(), ref, kind, date)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, priceResponse{Price: price})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	ref, kind, ok := h.refFromURL(w, r)
	if !ok {
		return
	}
	versions, err := h.service.History(r.Context(), ref, kind)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, versions)
}

func (h *Handler) addPrice(w http.ResponseWriter, r *http.Request) {
	ref, kind, ok := h.refFromURL(w, r)
	if !ok {
		return
	}
	var req addPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var startDate time.Time
	if req.StartDate != "" {
		startDate, _ = time.Parse("2006-01-02", req.StartDate)
	}
	version, err := h.service.AddPrice(r.Context(), ref, kind, req.Price, startDate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, version)
}

func (h *Handler) refFromURL(w http.ResponseWriter, r *http.Request) (EntityRef, PriceKind, bool) {
	entityType := EntityType(chi.URLParam(r, "entityType"))
	kind := PriceKind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil || !ValidEntityType(entityType) || !ValidKind(kind) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entity type, id and kind required")
		return EntityRef{}, "", false
	}
	return EntityRef{Type: entityType, ID: id}, kind, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("pricing request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	switch err {
	case ErrInvalidPrice, ErrInvalidEntity, ErrInvalidKind:
		return http.StatusBadRequest, "Validation Failed", true
	case ErrNonMonotonicDate:
		return http.StatusConflict, "State Conflict", true
	case ErrNoActivePrice, ErrNoPriceForDate:
		return http.StatusNotFound, "Not Found", true
	}
	return 0, "", false
}
