package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
)

// Handler serves the dashboard summary.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs dashboard handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.Error("dashboard summary failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "dashboard summary failed")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
