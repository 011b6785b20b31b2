package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists invoices, payments and allocations in Postgres.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

const invoiceColumns = `id, payer_type, payer_id, work_order_id, date, status, total_amount, remaining_balance, created_at`

func (r *Repository) scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.PayerType, &inv.PayerID, &inv.WorkOrderID, &inv.Date,
		&inv.Status, &inv.TotalAmount, &inv.RemainingBalance, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, fmt.Errorf("ledger: scan invoice: %w", err)
	}
	return inv, nil
}

// GetInvoice returns one invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns)

	inv, err := r.scanInvoice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines, err = r.listLines(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetInvoiceForUpdate locks and returns one invoice without its lines.
func (r *Repository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1 FOR UPDATE`, invoiceColumns)
	return r.scanInvoice(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]billing.LineItem, error) {
	const query = `
		SELECT id, ref_id, description, quantity, standard_price, discount_percent, final_unit_price, line_total
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list lines: %w", err)
	}
	defer rows.Close()

	var lines []billing.LineItem
	for rows.Next() {
		var l billing.LineItem
		err := rows.Scan(&l.ID, &l.RefID, &l.Description, &l.Quantity,
			&l.StandardPrice, &l.DiscountPercent, &l.FinalUnitPrice, &l.LineTotal)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) listInvoices(ctx context.Context, query string, args ...interface{}) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListUnpaid returns issued and partially paid invoices, oldest first.
func (r *Repository) ListUnpaid(ctx context.Context) ([]Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices
		WHERE status IN ('ISSUED', 'PARTIAL')
		ORDER BY date, id`, invoiceColumns)
	return r.listInvoices(ctx, query)
}

// ListOutstandingByPayer returns a payer's open invoices, oldest first.
func (r *Repository) ListOutstandingByPayer(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices
		WHERE payer_type = $1 AND payer_id = $2 AND status IN ('ISSUED', 'PARTIAL')
		ORDER BY date, id`, invoiceColumns)
	return r.listInvoices(ctx, query, payerType, payerID)
}

// ListOutstandingByPayerForUpdate locks a payer's open invoices for
// allocation, oldest first.
func (r *Repository) ListOutstandingByPayerForUpdate(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices
		WHERE payer_type = $1 AND payer_id = $2 AND status IN ('ISSUED', 'PARTIAL')
		ORDER BY date, id
		FOR UPDATE`, invoiceColumns)
	return r.listInvoices(ctx, query, payerType, payerID)
}

// InsertInvoice persists a new invoice header.
func (r *Repository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	const query = `
		INSERT INTO invoices (payer_type, payer_id, work_order_id, date, status, total_amount, remaining_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, inv.PayerType, inv.PayerID, inv.WorkOrderID, inv.Date,
		inv.Status, inv.TotalAmount, inv.RemainingBalance, inv.CreatedAt).Scan(&inv.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && inv.WorkOrderID != nil {
			return Invoice{}, ErrWorkOrderAlreadyInvoiced
		}
		return Invoice{}, fmt.Errorf("ledger: insert invoice: %w", err)
	}
	return inv, nil
}

// GetInvoiceByWorkOrder returns the invoice minted for a work order.
func (r *Repository) GetInvoiceByWorkOrder(ctx context.Context, workOrderID int64) (Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE work_order_id = $1`, invoiceColumns)
	inv, err := r.scanInvoice(r.db.QueryRow(ctx, query, workOrderID))
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines, err = r.listLines(ctx, inv.ID)
	return inv, err
}

// InsertInvoiceLine persists one invoice line.
func (r *Repository) InsertInvoiceLine(ctx context.Context, invoiceID int64, line billing.LineItem) (billing.LineItem, error) {
	const query = `
		INSERT INTO invoice_lines (invoice_id, ref_id, description, quantity, standard_price, discount_percent, final_unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, invoiceID, line.RefID, line.Description, line.Quantity,
		line.StandardPrice, line.DiscountPercent, line.FinalUnitPrice, line.LineTotal).Scan(&line.ID)
	if err != nil {
		return billing.LineItem{}, fmt.Errorf("ledger: insert line: %w", err)
	}
	return line, nil
}

// UpdateInvoiceTotals rewrites a draft invoice's amounts.
func (r *Repository) UpdateInvoiceTotals(ctx context.Context, id int64, total, remaining decimal.Decimal) error {
	const query = `UPDATE invoices SET total_amount = $2, remaining_balance = $3 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, total, remaining)
	if err != nil {
		return fmt.Errorf("ledger: update totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// UpdateInvoiceStatus sets an invoice's status.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	const query = `UPDATE invoices SET status = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("ledger: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// ApplyAllocationToInvoice writes the post-allocation balance and status.
func (r *Repository) ApplyAllocationToInvoice(ctx context.Context, id int64, remaining decimal.Decimal, status InvoiceStatus) error {
	const query = `UPDATE invoices SET remaining_balance = $2, status = $3 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, remaining, status)
	if err != nil {
		return fmt.Errorf("ledger: apply allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// InsertPayment persists one payment.
func (r *Repository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	const query = `
		INSERT INTO payments (reference, payer_type, payer_id, amount, date, method, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, p.Reference, p.PayerType, p.PayerID, p.Amount,
		p.Date, p.Method, p.Notes, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("ledger: insert payment: %w", err)
	}
	return p, nil
}

// InsertAllocation persists one payment allocation.
func (r *Repository) InsertAllocation(ctx context.Context, a PaymentAllocation) (PaymentAllocation, error) {
	const query = `
		INSERT INTO payment_allocations (payment_id, invoice_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, a.PaymentID, a.InvoiceID, a.Amount, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return PaymentAllocation{}, fmt.Errorf("ledger: insert allocation: %w", err)
	}
	return a, nil
}

// ListPayments returns a payer's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, payerType PayerType, payerID int64) ([]Payment, error) {
	const query = `
		SELECT id, reference, payer_type, payer_id, amount, date, method, notes, created_at
		FROM payments
		WHERE payer_type = $1 AND payer_id = $2
		ORDER BY date DESC, id DESC`

	rows, err := r.db.Query(ctx, query, payerType, payerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		err := rows.Scan(&p.ID, &p.Reference, &p.PayerType, &p.PayerID, &p.Amount,
			&p.Date, &p.Method, &p.Notes, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListAllocationsByInvoice returns the allocations applied to one invoice.
func (r *Repository) ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]PaymentAllocation, error) {
	const query = `
		SELECT id, payment_id, invoice_id, amount, created_at
		FROM payment_allocations
		WHERE invoice_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list allocations: %w", err)
	}
	defer rows.Close()

	var allocations []PaymentAllocation
	for rows.Next() {
		var a PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// OutstandingTotal sums the remaining balance across every invoice that can
// still absorb payments.
func (r *Repository) OutstandingTotal(ctx context.Context) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(remaining_balance), 0) FROM invoices WHERE status IN ($1, $2)`

	var total decimal.Decimal
	if err := r.db.QueryRow(ctx, query, InvoiceIssued, InvoicePartial).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: outstanding total: %w", err)
	}
	return total, nil
}
