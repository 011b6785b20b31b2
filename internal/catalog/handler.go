package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for catalog maintenance.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Get("/services", h.listServices)
	r.Post("/services", h.createService)
	r.Get("/services/{id}", h.getService)
	r.Post("/clients", h.createClient)
	r.Get("/clients/{id}", h.getClient)
	r.Get("/clients/{id}/vehicles", h.listVehicles)
	r.Post("/vehicles", h.createVehicle)
	r.Get("/vehicles/{id}", h.getVehicle)
}

type productRequest struct {
	Name       string          `json:"name" validate:"required"`
	CategoryID int64           `json:"category_id" validate:"required,gt=0"`
	Unit       string          `json:"unit" validate:"required"`
	MinStock   decimal.Decimal `json:"min_stock"`
	Active     *bool           `json:"active"`
}

type serviceRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

type clientRequest struct {
	Name    string `json:"name" validate:"required"`
	TaxID   string `json:"tax_id"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Company bool   `json:"company"`
}

type vehicleRequest struct {
	ClientID int64  `json:"client_id" validate:"required,gt=0"`
	Plate    string `json:"plate" validate:"required"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Year     int    `json:"year" validate:"omitempty,gte=1900"`
}

type categoryRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.ListCategories(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValid[categoryRequest](h, w, r)
	if !ok {
		return
	}
	c := Category{Name: req.Name}
	id, err := h.repo.CreateCategory(r.Context(), c)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	c.ID = id
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValid[productRequest](h, w, r)
	if !ok {
		return
	}
	p := Product{
		Name:       req.Name,
		CategoryID: req.CategoryID,
		Unit:       req.Unit,
		MinStock:   req.MinStock,
		Active:     req.Active == nil || *req.Active,
	}
	id, err := h.repo.CreateProduct(r.Context(), p)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	p.ID = id
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeValid[productRequest](h, w, r)
	if !ok {
		return
	}
	p := Product{
		ID:         id,
		Name:       req.Name,
		CategoryID: req.CategoryID,
		Unit:       req.Unit,
		MinStock:   req.MinStock,
		Active:     req.Active == nil || *req.Active,
	}
	if err := h.repo.UpdateProduct(r.Context(), p); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.repo.ListServices(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, services)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	svc, err := h.repo.GetService(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, svc)
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValid[serviceRequest](h, w, r)
	if !ok {
		return
	}
	s := Service{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active == nil || *req.Active,
	}
	id, err := h.repo.CreateService(r.Context(), s)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	s.ID = id
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	client, err := h.repo.GetClient(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValid[clientRequest](h, w, r)
	if !ok {
		return
	}
	c := Client{Name: req.Name, TaxID: req.TaxID, Phone: req.Phone, Email: req.Email, Company: req.Company}
	id, err := h.repo.CreateClient(r.Context(), c)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	c.ID = id
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	vehicles, err := h.repo.ListVehiclesByClient(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vehicles)
}

func (h *Handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	vehicle, err := h.repo.GetVehicle(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vehicle)
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValid[vehicleRequest](h, w, r)
	if !ok {
		return
	}
	v := Vehicle{ClientID: req.ClientID, Plate: req.Plate, Brand: req.Brand, Model: req.Model, Year: req.Year}
	id, err := h.repo.CreateVehicle(r.Context(), v)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	v.ID = id
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeValid[T any](h *Handler, w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("catalog request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err, classify)
}

func classify(err error) (int, string, bool) {
	switch err {
	case ErrNotFound:
		return http.StatusNotFound, "Not Found", true
	case ErrDuplicatePlate:
		return http.StatusConflict, "State Conflict", true
	}
	return 0, "", false
}
