package workorder

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
)

// Status tracks the work order lifecycle.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusInvoiced   Status = "INVOICED"
	StatusCancelled  Status = "CANCELLED"
)

// allowedTransitions is the caller-driven state machine. INVOICED is only
// reachable through GenerateInvoice and COMPLETED through Complete.
var allowedTransitions = map[Status][]Status{
	StatusDraft:      {StatusOpen, StatusCancelled},
	StatusOpen:       {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusInvoiced, StatusCancelled},
}

// CanTransition reports whether the move from one status to another is
// allowed.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineKind distinguishes labor lines from part lines.
type LineKind string

const (
	LineService LineKind = "SERVICE"
	LineProduct LineKind = "PRODUCT"
)

// WorkOrder composes service and product lines for one vehicle visit. Lines
// are frozen snapshots priced at add time.
type WorkOrder struct {
	ID           int64              `json:"id"`
	ClientID     int64              `json:"client_id"`
	VehicleID    int64              `json:"vehicle_id"`
	Date         time.Time          `json:"date"`
	Status       Status             `json:"status"`
	Notes        string             `json:"notes,omitempty"`
	ServiceLines []billing.LineItem `json:"service_lines,omitempty"`
	ProductLines []billing.LineItem `json:"product_lines,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Closed reports whether the work order no longer accepts line changes.
func (wo WorkOrder) Closed() bool {
	return wo.Status == StatusInvoiced || wo.Status == StatusCancelled
}

// Totals is the work order's money breakdown. Discounts apply to product
// lines only; service lines have none.
type Totals struct {
	ServicesSubtotal       decimal.Decimal `json:"services_subtotal"`
	ProductsBeforeDiscount decimal.Decimal `json:"products_before_discount"`
	ProductsDiscountTotal  decimal.Decimal `json:"products_discount_total"`
	ProductsAfterDiscount  decimal.Decimal `json:"products_after_discount"`
	GrandTotal             decimal.Decimal `json:"grand_total"`
}

// ComputeTotals derives the breakdown from the order's line snapshots. The
// grand total is the sum of rounded line totals, so it always matches what
// the individual lines show.
func ComputeTotals(wo WorkOrder) Totals {
	t := Totals{
		ServicesSubtotal:       decimal.Zero,
		ProductsBeforeDiscount: decimal.Zero,
		ProductsDiscountTotal:  decimal.Zero,
		ProductsAfterDiscount:  decimal.Zero,
	}
	for _, line := range wo.ServiceLines {
		t.ServicesSubtotal = t.ServicesSubtotal.Add(line.LineTotal)
	}
	for _, line := range wo.ProductLines {
		t.ProductsBeforeDiscount = t.ProductsBeforeDiscount.Add(line.StandardPrice.Mul(line.Quantity).Round(2))
		t.ProductsAfterDiscount = t.ProductsAfterDiscount.Add(line.LineTotal)
	}
	t.ProductsDiscountTotal = t.ProductsBeforeDiscount.Sub(t.ProductsAfterDiscount)
	t.GrandTotal = t.ServicesSubtotal.Add(t.ProductsAfterDiscount)
	return t
}

var (
	// ErrNotFound indicates a missing work order.
	ErrNotFound = errors.New("workorder: not found")
	// ErrWorkOrderClosed indicates line changes on an invoiced or cancelled
	// order.
	ErrWorkOrderClosed = errors.New("workorder: order is closed")
	// ErrInvalidTransition indicates a status move outside the state machine.
	ErrInvalidTransition = errors.New("workorder: invalid status transition")
	// ErrWorkOrderNotCompleted indicates invoicing before completion.
	ErrWorkOrderNotCompleted = errors.New("workorder: order is not completed")
	// ErrAlreadyInvoiced indicates a second invoice attempt.
	ErrAlreadyInvoiced = errors.New("workorder: order already invoiced")
	// ErrLineNotFound indicates a missing line.
	ErrLineNotFound = errors.New("workorder: line not found")
	// ErrInvalidLineKind indicates an unknown line kind.
	ErrInvalidLineKind = errors.New("workorder: unknown line kind")
)
