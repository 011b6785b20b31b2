package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gearbox-erp/gearbox-erp/internal/catalog"
	"github.com/gearbox-erp/gearbox-erp/internal/dashboard"
	"github.com/gearbox-erp/gearbox-erp/internal/expense"
	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/observability"
	"github.com/gearbox-erp/gearbox-erp/internal/pricing"
	"github.com/gearbox-erp/gearbox-erp/internal/procurement"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
	"github.com/gearbox-erp/gearbox-erp/internal/workorder"
	"github.com/gearbox-erp/gearbox-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CatalogHandler     *catalog.Handler
	DashboardHandler   *dashboard.Handler
	ExpenseHandler     *expense.Handler
	PricingHandler     *pricing.Handler
	StockHandler       *stock.Handler
	WorkOrderHandler   *workorder.Handler
	LedgerHandler      *ledger.Handler
	ProcurementHandler *procurement.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router for the API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/catalog", params.CatalogHandler.MountRoutes)
		api.Route("/prices", params.PricingHandler.MountRoutes)
		api.Route("/stock", params.StockHandler.MountRoutes)
		api.Route("/work-orders", params.WorkOrderHandler.MountRoutes)
		api.Route("/invoices", params.LedgerHandler.MountInvoiceRoutes)
		api.Route("/payments", params.LedgerHandler.MountPaymentRoutes)
		api.Route("/procurement", params.ProcurementHandler.MountRoutes)
		api.Route("/expenses", params.ExpenseHandler.MountRoutes)
		api.Route("/dashboard", params.DashboardHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
