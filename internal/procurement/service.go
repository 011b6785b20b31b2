package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

// RepositoryPort defines data access methods for supplier orders.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SupplierOrder, error)
	ListOrders(ctx context.Context, status OrderStatus) ([]SupplierOrder, error)
	CreateOrder(ctx context.Context, o SupplierOrder) (SupplierOrder, error)
	InsertLine(ctx context.Context, orderID int64, line OrderLine) (OrderLine, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
}

// TxRepository exposes the transactional operations Receive needs.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (SupplierOrder, error)
	// UpdateOrderStatusFrom flips the status only when the current value
	// still matches from, reporting whether a row changed.
	UpdateOrderStatusFrom(ctx context.Context, id int64, from, to OrderStatus) (bool, error)
}

// StockPort posts purchase movements on receipt.
type StockPort interface {
	RecordMovement(ctx context.Context, in stock.MovementInput) (stock.Movement, error)
}

// Service owns supplier orders and the purchase feed into the stock ledger.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	stock  StockPort
	now    func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, stockPort StockPort) *Service {
	return &Service{logger: logger, repo: repo, stock: stockPort, now: time.Now}
}

// WithClock overrides the default clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateSupplier registers a parts vendor.
func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	return s.repo.CreateSupplier(ctx, supplier)
}

// ListSuppliers returns all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreateOrder opens a draft supplier order.
func (s *Service) CreateOrder(ctx context.Context, supplierID int64, date time.Time) (SupplierOrder, error) {
	if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
		return SupplierOrder{}, err
	}
	if date.IsZero() {
		date = s.now()
	}
	return s.repo.CreateOrder(ctx, SupplierOrder{
		SupplierID: supplierID,
		Date:       date,
		Status:     OrderDraft,
		CreatedAt:  s.now(),
	})
}

// GetOrder returns one supplier order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (SupplierOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns supplier orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status OrderStatus) ([]SupplierOrder, error) {
	return s.repo.ListOrders(ctx, status)
}

// AddLine appends a product position to a draft order.
func (s *Service) AddLine(ctx context.Context, orderID, productID int64, line OrderLine) (OrderLine, error) {
	if !line.Quantity.IsPositive() || line.UnitCost.IsNegative() {
		return OrderLine{}, ErrInvalidLine
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderLine{}, err
	}
	if order.Status != OrderDraft {
		return OrderLine{}, ErrNotDraft
	}
	line.ProductID = productID
	return s.repo.InsertLine(ctx, orderID, line)
}

// Place moves a draft order with at least one line to ORDERED.
func (s *Service) Place(ctx context.Context, orderID int64) (SupplierOrder, error) {
	var placed SupplierOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderDraft {
			return ErrNotDraft
		}
		if len(order.Lines) == 0 {
			return ErrEmptyOrder
		}
		changed, err := tx.UpdateOrderStatusFrom(ctx, orderID, OrderDraft, OrderOrdered)
		if err != nil {
			return err
		}
		if !changed {
			return ErrNotDraft
		}
		order.Status = OrderOrdered
		placed = order
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	return placed, nil
}

// Cancel voids a draft or placed order. Received orders already moved stock
// and stay on the books.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case OrderDraft, OrderOrdered:
		case OrderReceived:
			return ErrAlreadyReceived
		default:
			return ErrNotOrdered
		}
		changed, err := tx.UpdateOrderStatusFrom(ctx, orderID, order.Status, OrderCancelled)
		if err != nil {
			return err
		}
		if !changed {
			return ErrNotOrdered
		}
		return nil
	})
}

// Receive books the order into stock: one PURCHASE movement per line, then
// the guarded ORDERED→RECEIVED transition. The movements go through the
// stock ledger's own locking, so any failure after some lines were booked is
// compensated with reversing adjustments rather than rolled back. A second
// receipt fails on the guard instead of double-booking.
func (s *Service) Receive(ctx context.Context, orderID int64) (SupplierOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SupplierOrder{}, err
	}
	switch order.Status {
	case OrderOrdered:
	case OrderReceived:
		return SupplierOrder{}, ErrAlreadyReceived
	default:
		return SupplierOrder{}, ErrNotOrdered
	}

	sourceRef := strconv.FormatInt(order.ID, 10)
	var posted []stock.Movement
	for _, line := range order.Lines {
		m, err := s.stock.RecordMovement(ctx, stock.MovementInput{
			ProductID:  line.ProductID,
			Kind:       stock.KindPurchase,
			Delta:      line.Quantity,
			SourceType: "SUPPLIER_ORDER",
			SourceRef:  sourceRef,
			Note:       fmt.Sprintf("Supplier order #%d received", order.ID),
		})
		if err != nil {
			s.reverseMovements(ctx, posted, sourceRef)
			return SupplierOrder{}, err
		}
		posted = append(posted, m)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		changed, err := tx.UpdateOrderStatusFrom(ctx, orderID, OrderOrdered, OrderReceived)
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyReceived
		}
		return nil
	})
	if err != nil {
		s.reverseMovements(ctx, posted, sourceRef)
		return SupplierOrder{}, err
	}

	order.Status = OrderReceived
	s.logger.Info("supplier order received",
		slog.Int64("order_id", order.ID),
		slog.Int("lines", len(order.Lines)),
	)
	return order, nil
}

// reverseMovements posts compensating adjustments for purchases booked
// before a receipt failure. The ledger is append-only, so the correction is
// a new movement, not a delete.
func (s *Service) reverseMovements(ctx context.Context, posted []stock.Movement, sourceRef string) {
	for _, m := range posted {
		_, err := s.stock.RecordMovement(ctx, stock.MovementInput{
			ProductID:  m.ProductID,
			Kind:       stock.KindAdjustment,
			Delta:      m.Delta.Neg(),
			SourceType: "SUPPLIER_ORDER",
			SourceRef:  sourceRef,
			Note:       "Reversal of failed supplier order receipt",
		})
		if err != nil {
			s.logger.Error("failed to reverse stock movement",
				slog.Int64("product_id", m.ProductID),
				slog.Any("error", err),
			)
		}
	}
}
