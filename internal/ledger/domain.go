package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
)

// PayerType distinguishes individual clients from company accounts.
type PayerType string

const (
	PayerClient  PayerType = "CLIENT"
	PayerCompany PayerType = "COMPANY"
)

// InvoiceStatus tracks the invoice lifecycle. Once issued, PARTIAL and PAID
// are derived from the remaining balance and never set directly.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceIssued    InvoiceStatus = "ISSUED"
	InvoicePartial   InvoiceStatus = "PARTIAL"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is a bill against a payer, optionally derived from a work order.
type Invoice struct {
	ID               int64              `json:"id"`
	PayerType        PayerType          `json:"payer_type"`
	PayerID          int64              `json:"payer_id"`
	WorkOrderID      *int64             `json:"work_order_id,omitempty"`
	Date             time.Time          `json:"date"`
	Status           InvoiceStatus      `json:"status"`
	Lines            []billing.LineItem `json:"lines,omitempty"`
	TotalAmount      decimal.Decimal    `json:"total_amount"`
	RemainingBalance decimal.Decimal    `json:"remaining_balance"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Outstanding reports whether the invoice can still absorb allocations.
func (i Invoice) Outstanding() bool {
	return (i.Status == InvoiceIssued || i.Status == InvoicePartial) && i.RemainingBalance.IsPositive()
}

// InvoiceSeed is the payload for creating a draft invoice from a work order.
type InvoiceSeed struct {
	PayerType   PayerType
	PayerID     int64
	WorkOrderID *int64
	Date        time.Time
	Lines       []billing.LineItem
}

// Payment is money received from a payer, split across invoices by
// allocations.
type Payment struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	PayerType PayerType       `json:"payer_type"`
	PayerID   int64           `json:"payer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Method    string          `json:"method,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentAllocation applies part of a payment against one invoice.
type PaymentAllocation struct {
	ID        int64           `json:"id"`
	PaymentID int64           `json:"payment_id"`
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// AllocationRequest is a caller-requested split of a payment.
type AllocationRequest struct {
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentInput is everything RecordPayment needs. Empty Allocations trigger
// oldest-invoice-first auto-allocation.
type PaymentInput struct {
	PayerType   PayerType
	PayerID     int64
	Amount      decimal.Decimal
	Date        time.Time
	Method      string
	Notes       string
	Allocations []AllocationRequest
}

// PaymentResult reports what RecordPayment persisted.
type PaymentResult struct {
	Payment           Payment             `json:"payment"`
	Allocations       []PaymentAllocation `json:"allocations"`
	UnallocatedAmount decimal.Decimal     `json:"unallocated_amount"`
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("ledger: invoice not found")
	// ErrNotDraft indicates a mutation only allowed on draft invoices.
	ErrNotDraft = errors.New("ledger: invoice is not a draft")
	// ErrInvoiceNotIssued indicates an allocation against an invoice that is
	// not accepting payments.
	ErrInvoiceNotIssued = errors.New("ledger: invoice is not issued")
	// ErrCancelNotAllowed indicates cancelling outside DRAFT or ISSUED.
	ErrCancelNotAllowed = errors.New("ledger: only draft or issued invoices can be cancelled")
	// ErrInvalidPayer indicates an unknown payer type or zero id.
	ErrInvalidPayer = errors.New("ledger: payer type and id required")
	// ErrInvalidAmount indicates a non-positive payment or allocation amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrPayerMismatch indicates an allocation against another payer's
	// invoice.
	ErrPayerMismatch = errors.New("ledger: invoice belongs to a different payer")
	// ErrAllocationExceedsPayment indicates requested allocations summing
	// above the payment amount.
	ErrAllocationExceedsPayment = errors.New("ledger: allocations exceed payment amount")
	// ErrWorkOrderAlreadyInvoiced indicates a second invoice insert for the
	// same work order.
	ErrWorkOrderAlreadyInvoiced = errors.New("ledger: work order already has an invoice")
)

// OverAllocationError reports an allocation above an invoice's remaining
// balance.
type OverAllocationError struct {
	InvoiceID int64
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("ledger: allocation %s exceeds remaining balance %s on invoice %d",
		e.Requested, e.Remaining, e.InvoiceID)
}

// ValidPayerType reports whether t is a known payer type.
func ValidPayerType(t PayerType) bool {
	return t == PayerClient || t == PayerCompany
}

// statusFor derives the post-issuance status from the remaining balance.
func statusFor(total, remaining decimal.Decimal) InvoiceStatus {
	switch {
	case remaining.IsZero():
		return InvoicePaid
	case remaining.LessThan(total):
		return InvoicePartial
	default:
		return InvoiceIssued
	}
}
