package dashboard

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gearbox-erp/gearbox-erp/internal/catalog"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

// WorkOrdersPort counts active work orders.
type WorkOrdersPort interface {
	CountOpen(ctx context.Context) (int64, error)
}

// InvoicesPort reports the receivable position.
type InvoicesPort interface {
	OutstandingTotal(ctx context.Context) (decimal.Decimal, error)
}

// StockPort surfaces the low-stock advisory report.
type StockPort interface {
	LowStock(ctx context.Context) ([]stock.LowStockItem, error)
}

// ExpensesPort sums the current month's operating costs.
type ExpensesPort interface {
	CurrentMonthTotal(ctx context.Context) (decimal.Decimal, error)
}

// CountsPort tallies master-data records.
type CountsPort interface {
	EntityCounts(ctx context.Context) (catalog.EntityCounts, error)
}

// SuppliersPort counts supplier records.
type SuppliersPort interface {
	CountSuppliers(ctx context.Context) (int64, error)
}

// Stats is the landing-page summary of the whole shop.
type Stats struct {
	OpenWorkOrders    int64                `json:"open_work_orders"`
	OutstandingAmount decimal.Decimal      `json:"outstanding_amount"`
	LowStockProducts  int                  `json:"low_stock_products"`
	MonthlyExpenses   decimal.Decimal      `json:"monthly_expenses"`
	Counts            catalog.EntityCounts `json:"counts"`
	Suppliers         int64                `json:"suppliers"`
}

// Service assembles the dashboard summary from each module's reporting
// surface.
type Service struct {
	logger     *slog.Logger
	workOrders WorkOrdersPort
	invoices   InvoicesPort
	stock      StockPort
	expenses   ExpensesPort
	counts     CountsPort
	suppliers  SuppliersPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, workOrders WorkOrdersPort, invoices InvoicesPort, stockPort StockPort, expenses ExpensesPort, counts CountsPort, suppliers SuppliersPort) *Service {
	return &Service{
		logger:     logger,
		workOrders: workOrders,
		invoices:   invoices,
		stock:      stockPort,
		expenses:   expenses,
		counts:     counts,
		suppliers:  suppliers,
	}
}

// Summary gathers every figure concurrently. Any failing source fails the
// whole summary rather than reporting partial numbers as zeros.
func (s *Service) Summary(ctx context.Context) (Stats, error) {
	var stats Stats

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.workOrders.CountOpen(ctx)
		stats.OpenWorkOrders = n
		return err
	})
	g.Go(func() error {
		total, err := s.invoices.OutstandingTotal(ctx)
		stats.OutstandingAmount = total
		return err
	})
	g.Go(func() error {
		items, err := s.stock.LowStock(ctx)
		stats.LowStockProducts = len(items)
		return err
	})
	g.Go(func() error {
		total, err := s.expenses.CurrentMonthTotal(ctx)
		stats.MonthlyExpenses = total
		return err
	})
	g.Go(func() error {
		counts, err := s.counts.EntityCounts(ctx)
		stats.Counts = counts
		return err
	})
	g.Go(func() error {
		n, err := s.suppliers.CountSuppliers(ctx)
		stats.Suppliers = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
