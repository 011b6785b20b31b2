package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the supplier order lifecycle.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderOrdered   OrderStatus = "ORDERED"
	OrderReceived  OrderStatus = "RECEIVED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Supplier is a parts vendor.
type Supplier struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// OrderLine is one product position on a supplier order.
type OrderLine struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// SupplierOrder is a purchase from a supplier. Receiving it feeds the stock
// ledger.
type SupplierOrder struct {
	ID         int64       `json:"id"`
	SupplierID int64       `json:"supplier_id"`
	Date       time.Time   `json:"date"`
	Status     OrderStatus `json:"status"`
	Lines      []OrderLine `json:"lines,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

var (
	// ErrOrderNotFound indicates a missing supplier order.
	ErrOrderNotFound = errors.New("procurement: order not found")
	// ErrSupplierNotFound indicates a missing supplier.
	ErrSupplierNotFound = errors.New("procurement: supplier not found")
	// ErrNotDraft indicates line changes on a non-draft order.
	ErrNotDraft = errors.New("procurement: order is not a draft")
	// ErrNotOrdered indicates receiving an order that was never placed.
	ErrNotOrdered = errors.New("procurement: order is not in ORDERED state")
	// ErrAlreadyReceived indicates a second receipt of the same order.
	ErrAlreadyReceived = errors.New("procurement: order already received")
	// ErrEmptyOrder indicates placing an order without lines.
	ErrEmptyOrder = errors.New("procurement: order has no lines")
	// ErrInvalidLine indicates a non-positive quantity or negative cost.
	ErrInvalidLine = errors.New("procurement: quantity must be positive and cost non-negative")
)
