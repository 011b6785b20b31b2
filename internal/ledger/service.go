package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// RepositoryPort defines data access methods for invoices, payments and
// allocations.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceByWorkOrder(ctx context.Context, workOrderID int64) (Invoice, error)
	ListUnpaid(ctx context.Context) ([]Invoice, error)
	ListOutstandingByPayer(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error)
	ListPayments(ctx context.Context, payerType PayerType, payerID int64) ([]Payment, error)
	ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]PaymentAllocation, error)
}

// TxRepository exposes the transactional operations the ledger mutations
// need.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	ListOutstandingByPayerForUpdate(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertInvoiceLine(ctx context.Context, invoiceID int64, line billing.LineItem) (billing.LineItem, error)
	UpdateInvoiceTotals(ctx context.Context, id int64, total, remaining decimal.Decimal) error
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	ApplyAllocationToInvoice(ctx context.Context, id int64, remaining decimal.Decimal, status InvoiceStatus) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	InsertAllocation(ctx context.Context, a PaymentAllocation) (PaymentAllocation, error)
}

// Service owns the invoice ledger and the payment allocation engine.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	locker *shared.Locker
	now    func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, locker *shared.Locker) *Service {
	return &Service{logger: logger, repo: repo, locker: locker, now: time.Now}
}

// WithClock overrides the default clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns one invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// InvoiceByWorkOrder returns the invoice minted for a work order.
func (s *Service) InvoiceByWorkOrder(ctx context.Context, workOrderID int64) (Invoice, error) {
	return s.repo.GetInvoiceByWorkOrder(ctx, workOrderID)
}

// CreateFromWorkOrder persists a draft invoice seeded from work order lines.
// The invoice starts DRAFT with the full total still owed.
func (s *Service) CreateFromWorkOrder(ctx context.Context, seed InvoiceSeed) (Invoice, error) {
	if !ValidPayerType(seed.PayerType) || seed.PayerID <= 0 {
		return Invoice{}, ErrInvalidPayer
	}

	date := seed.Date
	if date.IsZero() {
		date = s.now()
	}
	total := billing.SumLineTotals(seed.Lines)

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.InsertInvoice(ctx, Invoice{
			PayerType:        seed.PayerType,
			PayerID:          seed.PayerID,
			WorkOrderID:      seed.WorkOrderID,
			Date:             date,
			Status:           InvoiceDraft,
			TotalAmount:      total,
			RemainingBalance: total,
			CreatedAt:        s.now(),
		})
		if err != nil {
			return err
		}
		for _, line := range seed.Lines {
			inserted, err := tx.InsertInvoiceLine(ctx, inv.ID, line)
			if err != nil {
				return err
			}
			inv.Lines = append(inv.Lines, inserted)
		}
		created = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// AddLine appends a line to a draft invoice and recomputes its totals.
func (s *Service) AddLine(ctx context.Context, invoiceID, refID int64, description string, quantity, standardPrice, discountPercent decimal.Decimal) (Invoice, error) {
	line, err := billing.NewLineItem(refID, description, quantity, standardPrice, discountPercent)
	if err != nil {
		return Invoice{}, err
	}

	var updated Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceDraft {
			return ErrNotDraft
		}
		inserted, err := tx.InsertInvoiceLine(ctx, inv.ID, line)
		if err != nil {
			return err
		}
		inv.Lines = append(inv.Lines, inserted)
		inv.TotalAmount = billing.SumLineTotals(inv.Lines)
		inv.RemainingBalance = inv.TotalAmount
		if err := tx.UpdateInvoiceTotals(ctx, inv.ID, inv.TotalAmount, inv.RemainingBalance); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// Issue freezes a draft invoice's lines and opens it for payment.
func (s *Service) Issue(ctx context.Context, invoiceID int64) (Invoice, error) {
	var issued Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceDraft {
			return ErrNotDraft
		}
		inv.Status = InvoiceIssued
		inv.RemainingBalance = inv.TotalAmount
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, InvoiceIssued); err != nil {
			return err
		}
		issued = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return issued, nil
}

// Cancel voids a draft or issued invoice. Invoices with recorded payments
// are PARTIAL or PAID and cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, invoiceID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceDraft && inv.Status != InvoiceIssued {
			return ErrCancelNotAllowed
		}
		return tx.UpdateInvoiceStatus(ctx, inv.ID, InvoiceCancelled)
	})
}

// ListUnpaid returns every invoice still carrying a balance.
func (s *Service) ListUnpaid(ctx context.Context) ([]Invoice, error) {
	return s.repo.ListUnpaid(ctx)
}

// ListOutstandingByPayer returns a payer's open invoices, oldest first.
func (s *Service) ListOutstandingByPayer(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error) {
	if !ValidPayerType(payerType) || payerID <= 0 {
		return nil, ErrInvalidPayer
	}
	return s.repo.ListOutstandingByPayer(ctx, payerType, payerID)
}

// OutstandingTotal sums a payer's remaining balances.
func (s *Service) OutstandingTotal(ctx context.Context, payerType PayerType, payerID int64) (decimal.Decimal, error) {
	invoices, err := s.ListOutstandingByPayer(ctx, payerType, payerID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.RemainingBalance)
	}
	return total, nil
}

// ListPayments returns a payer's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, payerType PayerType, payerID int64) ([]Payment, error) {
	if !ValidPayerType(payerType) || payerID <= 0 {
		return nil, ErrInvalidPayer
	}
	return s.repo.ListPayments(ctx, payerType, payerID)
}

// ListAllocationsByInvoice returns the allocations applied to one invoice.
func (s *Service) ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]PaymentAllocation, error) {
	return s.repo.ListAllocationsByInvoice(ctx, invoiceID)
}

// RecordPayment persists a payment and its allocations all-or-nothing. When
// the caller supplies no allocations, the amount is spread across the
// payer's outstanding invoices oldest first until it runs out. The
// payer-scoped lock serializes concurrent payments for the same payer.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	if !ValidPayerType(in.PayerType) || in.PayerID <= 0 {
		return PaymentResult{}, ErrInvalidPayer
	}
	if !in.Amount.IsPositive() {
		return PaymentResult{}, ErrInvalidAmount
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}

	var result PaymentResult
	err := s.locker.WithLock(ctx, shared.PayerLockKey(string(in.PayerType), in.PayerID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			allocations, err := s.resolveAllocations(ctx, tx, in)
			if err != nil {
				return err
			}

			payment, err := tx.InsertPayment(ctx, Payment{
				Reference: uuid.NewString(),
				PayerType: in.PayerType,
				PayerID:   in.PayerID,
				Amount:    in.Amount,
				Date:      date,
				Method:    in.Method,
				Notes:     in.Notes,
				CreatedAt: s.now(),
			})
			if err != nil {
				return err
			}

			allocated := decimal.Zero
			var persisted []PaymentAllocation
			for _, alloc := range allocations {
				inv, err := tx.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
				if err != nil {
					return err
				}
				remaining, status, err := applyAllocation(inv, alloc.Amount)
				if err != nil {
					return err
				}
				if err := tx.ApplyAllocationToInvoice(ctx, inv.ID, remaining, status); err != nil {
					return err
				}
				row, err := tx.InsertAllocation(ctx, PaymentAllocation{
					PaymentID: payment.ID,
					InvoiceID: inv.ID,
					Amount:    alloc.Amount,
					CreatedAt: s.now(),
				})
				if err != nil {
					return err
				}
				persisted = append(persisted, row)
				allocated = allocated.Add(alloc.Amount)
			}

			result = PaymentResult{
				Payment:           payment,
				Allocations:       persisted,
				UnallocatedAmount: in.Amount.Sub(allocated),
			}
			return nil
		})
	})
	if err != nil {
		return PaymentResult{}, err
	}

	s.logger.Info("payment recorded",
		slog.Int64("payment_id", result.Payment.ID),
		slog.String("payer_type", string(in.PayerType)),
		slog.Int64("payer_id", in.PayerID),
		slog.String("amount", in.Amount.String()),
		slog.String("unallocated", result.UnallocatedAmount.String()),
	)
	return result, nil
}

// resolveAllocations validates requested allocations or builds the
// oldest-first auto-allocation plan.
func (s *Service) resolveAllocations(ctx context.Context, tx TxRepository, in PaymentInput) ([]AllocationRequest, error) {
	if len(in.Allocations) > 0 {
		requested := decimal.Zero
		for _, alloc := range in.Allocations {
			if !alloc.Amount.IsPositive() {
				return nil, ErrInvalidAmount
			}
			inv, err := tx.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
			if err != nil {
				return nil, err
			}
			if inv.PayerType != in.PayerType || inv.PayerID != in.PayerID {
				return nil, ErrPayerMismatch
			}
			requested = requested.Add(alloc.Amount)
		}
		if requested.GreaterThan(in.Amount) {
			return nil, ErrAllocationExceedsPayment
		}
		return in.Allocations, nil
	}

	outstanding, err := tx.ListOutstandingByPayerForUpdate(ctx, in.PayerType, in.PayerID)
	if err != nil {
		return nil, err
	}

	var plan []AllocationRequest
	left := in.Amount
	for _, inv := range outstanding {
		if !left.IsPositive() {
			break
		}
		take := decimal.Min(left, inv.RemainingBalance)
		plan = append(plan, AllocationRequest{InvoiceID: inv.ID, Amount: take})
		left = left.Sub(take)
	}
	return plan, nil
}

// applyAllocation reduces an invoice's balance and derives its new status.
func applyAllocation(inv Invoice, amount decimal.Decimal) (decimal.Decimal, InvoiceStatus, error) {
	if inv.Status != InvoiceIssued && inv.Status != InvoicePartial {
		if inv.Status == InvoicePaid {
			return decimal.Zero, "", &OverAllocationError{InvoiceID: inv.ID, Requested: amount, Remaining: inv.RemainingBalance}
		}
		return decimal.Zero, "", ErrInvoiceNotIssued
	}
	if amount.GreaterThan(inv.RemainingBalance) {
		return decimal.Zero, "", &OverAllocationError{InvoiceID: inv.ID, Requested: amount, Remaining: inv.RemainingBalance}
	}
	remaining := inv.RemainingBalance.Sub(amount)
	return remaining, statusFor(inv.TotalAmount, remaining), nil
}
