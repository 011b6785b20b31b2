package workorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/pricing"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

// RepositoryPort defines data access methods for work orders.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (WorkOrder, error)
	List(ctx context.Context, status Status) ([]WorkOrder, error)
	Create(ctx context.Context, wo WorkOrder) (WorkOrder, error)
}

// TxRepository exposes the transactional operations the status machine and
// line mutations need.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (WorkOrder, error)
	InsertLine(ctx context.Context, workOrderID int64, kind LineKind, line billing.LineItem) (billing.LineItem, error)
	DeleteLine(ctx context.Context, workOrderID int64, kind LineKind, lineID int64) error
	// UpdateStatusFrom flips the status only when the current value still
	// matches from, reporting whether a row changed.
	UpdateStatusFrom(ctx context.Context, id int64, from, to Status) (bool, error)
}

// PricePort is the slice of the pricing module work orders read.
type PricePort interface {
	CurrentPrice(ctx context.Context, ref pricing.EntityRef, kind pricing.PriceKind) (decimal.Decimal, error)
}

// StockPort posts consumption movements when an order completes.
type StockPort interface {
	RecordMovement(ctx context.Context, in stock.MovementInput) (stock.Movement, error)
}

// CatalogPort supplies line descriptions.
type CatalogPort interface {
	ServiceName(ctx context.Context, serviceID int64) (string, error)
	ProductName(ctx context.Context, productID int64) (string, error)
}

// InvoiceCreator turns a completed order's lines into a draft invoice.
type InvoiceCreator interface {
	CreateFromWorkOrder(ctx context.Context, seed ledger.InvoiceSeed) (ledger.Invoice, error)
	InvoiceByWorkOrder(ctx context.Context, workOrderID int64) (ledger.Invoice, error)
}

// Service owns the work order aggregate.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	prices   PricePort
	stock    StockPort
	catalog  CatalogPort
	invoices InvoiceCreator
	now      func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, prices PricePort, stockPort StockPort, catalog CatalogPort, invoices InvoiceCreator) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		prices:   prices,
		stock:    stockPort,
		catalog:  catalog,
		invoices: invoices,
		now:      time.Now,
	}
}

// WithClock overrides the default clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens a new draft work order.
func (s *Service) Create(ctx context.Context, clientID, vehicleID int64, date time.Time, notes string) (WorkOrder, error) {
	if date.IsZero() {
		date = s.now()
	}
	return s.repo.Create(ctx, WorkOrder{
		ClientID:  clientID,
		VehicleID: vehicleID,
		Date:      date,
		Status:    StatusDraft,
		Notes:     notes,
		CreatedAt: s.now(),
	})
}

// Get returns one work order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (WorkOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns work orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]WorkOrder, error) {
	return s.repo.List(ctx, status)
}

// Transition moves the order along the state machine. COMPLETED and INVOICED
// have side effects and go through Complete and GenerateInvoice instead.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (WorkOrder, error) {
	if to == StatusCompleted || to == StatusInvoiced {
		return WorkOrder{}, ErrInvalidTransition
	}
	var updated WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(wo.Status, to) {
			return ErrInvalidTransition
		}
		changed, err := tx.UpdateStatusFrom(ctx, id, wo.Status, to)
		if err != nil {
			return err
		}
		if !changed {
			return ErrInvalidTransition
		}
		wo.Status = to
		updated = wo
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	return updated, nil
}

// AddServiceLine snapshots the current selling price of a labor service and
// appends a line. Service lines carry no discount.
func (s *Service) AddServiceLine(ctx context.Context, workOrderID, serviceID int64, quantity decimal.Decimal) (billing.LineItem, error) {
	name, err := s.catalog.ServiceName(ctx, serviceID)
	if err != nil {
		return billing.LineItem{}, err
	}
	price, err := s.prices.CurrentPrice(ctx, pricing.EntityRef{Type: pricing.EntityService, ID: serviceID}, pricing.KindSelling)
	if err != nil {
		return billing.LineItem{}, err
	}
	line, err := billing.NewLineItem(serviceID, name, quantity, price, decimal.Zero)
	if err != nil {
		return billing.LineItem{}, err
	}
	return s.appendLine(ctx, workOrderID, LineService, line)
}

// AddProductLine snapshots the current selling price of a product and
// appends a line. Stock is not touched here; consumption is posted when the
// order completes.
func (s *Service) AddProductLine(ctx context.Context, workOrderID, productID int64, quantity, discountPercent decimal.Decimal) (billing.LineItem, error) {
	name, err := s.catalog.ProductName(ctx, productID)
	if err != nil {
		return billing.LineItem{}, err
	}
	price, err := s.prices.CurrentPrice(ctx, pricing.EntityRef{Type: pricing.EntityProduct, ID: productID}, pricing.KindSelling)
	if err != nil {
		return billing.LineItem{}, err
	}
	line, err := billing.NewLineItem(productID, name, quantity, price, discountPercent)
	if err != nil {
		return billing.LineItem{}, err
	}
	return s.appendLine(ctx, workOrderID, LineProduct, line)
}

func (s *Service) appendLine(ctx context.Context, workOrderID int64, kind LineKind, line billing.LineItem) (billing.LineItem, error) {
	var inserted billing.LineItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if wo.Closed() {
			return ErrWorkOrderClosed
		}
		inserted, err = tx.InsertLine(ctx, workOrderID, kind, line)
		return err
	})
	if err != nil {
		return billing.LineItem{}, err
	}
	return inserted, nil
}

// RemoveLine deletes one line from an open order.
func (s *Service) RemoveLine(ctx context.Context, workOrderID int64, kind LineKind, lineID int64) error {
	if kind != LineService && kind != LineProduct {
		return ErrInvalidLineKind
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if wo.Closed() {
			return ErrWorkOrderClosed
		}
		return tx.DeleteLine(ctx, workOrderID, kind, lineID)
	})
}

// Totals returns the order's money breakdown.
func (s *Service) Totals(ctx context.Context, workOrderID int64) (Totals, error) {
	wo, err := s.repo.Get(ctx, workOrderID)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(wo), nil
}

// Complete moves an in-progress order to COMPLETED and posts one CONSUMPTION
// movement per product line. The movements go through the stock ledger's own
// locking, so a status update failure afterwards is compensated with
// reversing adjustments rather than rolled back.
func (s *Service) Complete(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	wo, err := s.repo.Get(ctx, workOrderID)
	if err != nil {
		return WorkOrder{}, err
	}
	if !CanTransition(wo.Status, StatusCompleted) {
		return WorkOrder{}, ErrInvalidTransition
	}

	sourceRef := strconv.FormatInt(wo.ID, 10)
	var posted []stock.Movement
	for _, line := range wo.ProductLines {
		m, err := s.stock.RecordMovement(ctx, stock.MovementInput{
			ProductID:  line.RefID,
			Kind:       stock.KindConsumption,
			Delta:      line.Quantity.Neg(),
			SourceType: "WORK_ORDER",
			SourceRef:  sourceRef,
			Note:       fmt.Sprintf("Work order #%d completed", wo.ID),
		})
		if err != nil {
			s.reverseMovements(ctx, posted, sourceRef)
			return WorkOrder{}, err
		}
		posted = append(posted, m)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		changed, err := tx.UpdateStatusFrom(ctx, workOrderID, StatusInProgress, StatusCompleted)
		if err != nil {
			return err
		}
		if !changed {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		s.reverseMovements(ctx, posted, sourceRef)
		return WorkOrder{}, err
	}

	wo.Status = StatusCompleted
	return wo, nil
}

// reverseMovements posts compensating adjustments for consumption that was
// recorded before a completion failure. The ledger is append-only, so the
// correction is a new movement, not a delete.
func (s *Service) reverseMovements(ctx context.Context, posted []stock.Movement, sourceRef string) {
	for _, m := range posted {
		_, err := s.stock.RecordMovement(ctx, stock.MovementInput{
			ProductID:  m.ProductID,
			Kind:       stock.KindAdjustment,
			Delta:      m.Delta.Neg(),
			SourceType: "WORK_ORDER",
			SourceRef:  sourceRef,
			Note:       "Reversal of failed work order completion",
		})
		if err != nil {
			s.logger.Error("failed to reverse stock movement",
				slog.Int64("product_id", m.ProductID),
				slog.Any("error", err),
			)
		}
	}
}

// GenerateInvoice converts a completed order into a draft invoice and marks
// the order INVOICED. The guarded status update runs first, so a failed
// invoice insert rolls the transition back and the order can be retried. At
// most one invoice per order.
func (s *Service) GenerateInvoice(ctx context.Context, workOrderID int64, payerType ledger.PayerType, payerID int64) (ledger.Invoice, error) {
	var invoice ledger.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		switch wo.Status {
		case StatusCompleted:
		case StatusInvoiced:
			return ErrAlreadyInvoiced
		default:
			return ErrWorkOrderNotCompleted
		}

		changed, err := tx.UpdateStatusFrom(ctx, workOrderID, StatusCompleted, StatusInvoiced)
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyInvoiced
		}

		seed := ledger.InvoiceSeed{
			PayerType:   ledger.PayerClient,
			PayerID:     wo.ClientID,
			WorkOrderID: &wo.ID,
			Date:        s.now(),
			Lines:       append(append([]billing.LineItem(nil), wo.ServiceLines...), wo.ProductLines...),
		}
		if payerID > 0 {
			seed.PayerType = payerType
			seed.PayerID = payerID
		}

		invoice, err = s.invoices.CreateFromWorkOrder(ctx, seed)
		if errors.Is(err, ledger.ErrWorkOrderAlreadyInvoiced) {
			// A previous run minted the invoice but died before this
			// transition committed. Adopt the existing invoice and let the
			// transition stand.
			invoice, err = s.invoices.InvoiceByWorkOrder(ctx, wo.ID)
		}
		return err
	})
	if err != nil {
		return ledger.Invoice{}, err
	}

	s.logger.Info("work order invoiced",
		slog.Int64("work_order_id", workOrderID),
		slog.Int64("invoice_id", invoice.ID),
		slog.String("total", invoice.TotalAmount.String()),
	)
	return invoice, nil
}
