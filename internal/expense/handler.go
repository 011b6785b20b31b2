package expense

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

// Handler wires HTTP endpoints for expenses and their categories.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs expense handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/current-month", h.currentMonth)
	r.Get("/total", h.total)
	r.Get("/{expenseID}", h.get)
	r.Put("/{expenseID}", h.update)
	r.Delete("/{expenseID}", h.remove)

	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deactivateCategory)
}

type expenseRequest struct {
	Date       string          `json:"date"`
	CategoryID *int64          `json:"category_id"`
	Label      string          `json:"label" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Notes      string          `json:"notes"`
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) decodeExpense(w http.ResponseWriter, r *http.Request) (ExpenseInput, bool) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return ExpenseInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return ExpenseInput{}, false
	}
	in := ExpenseInput{
		CategoryID: req.CategoryID,
		Label:      req.Label,
		Amount:     req.Amount,
		Method:     req.Method,
		Notes:      req.Notes,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return ExpenseInput{}, false
		}
		in.Date = date
	}
	return in, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeExpense(w, r)
	if !ok {
		return
	}
	created, err := h.service.Record(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "expenseID")
	if !ok {
		return
	}
	in, ok := h.decodeExpense(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "expenseID")
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "expenseID")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	expenses, err := h.service.List(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, expenses)
}

func (h *Handler) currentMonth(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.service.CurrentMonth(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, expenses)
}

type totalResponse struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Total decimal.Decimal `json:"total"`
}

func (h *Handler) total(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok := parseDate(w, q.Get("from"), "from")
	if !ok {
		return
	}
	to, ok := parseDate(w, q.Get("to"), "to")
	if !ok {
		return
	}
	sum, err := h.service.Total(r.Context(), from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totalResponse{
		From:  from.Format("2006-01-02"),
		To:    to.Format("2006-01-02"),
		Total: sum,
	})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCategory(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID")
	if !ok {
		return
	}
	req, ok := h.decodeCategory(w, r)
	if !ok {
		return
	}
	updated, err := h.service.RenameCategory(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deactivateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID")
	if !ok {
		return
	}
	if err := h.service.DeactivateCategory(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeCategory(w http.ResponseWriter, r *http.Request) (categoryRequest, bool) {
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return categoryRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return categoryRequest{}, false
	}
	return req, true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	var f Filter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, ok := parseDate(w, v, "from")
		if !ok {
			return Filter{}, false
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, ok := parseDate(w, v, "to")
		if !ok {
			return Filter{}, false
		}
		f.To = t
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category_id must be an integer")
			return Filter{}, false
		}
		f.CategoryID = id
	}
	if v := q.Get("min_amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "min_amount must be a number")
			return Filter{}, false
		}
		f.MinAmount = amount
	}
	if v := q.Get("max_amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "max_amount must be a number")
			return Filter{}, false
		}
		f.MaxAmount = amount
	}
	return f, true
}

func parseDate(w http.ResponseWriter, value, name string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("expense request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	switch err {
	case ErrLabelRequired, ErrInvalidAmount, ErrRangeRequired:
		return http.StatusBadRequest, "Validation Failed", true
	case ErrNotFound, ErrCategoryNotFound:
		return http.StatusNotFound, "Not Found", true
	}
	return 0, "", false
}
