package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists suppliers and supplier orders in Postgres.
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

func (r *Repository) scanOrder(row pgx.Row) (SupplierOrder, error) {
	var o SupplierOrder
	err := row.Scan(&o.ID, &o.SupplierID, &o.Date, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierOrder{}, ErrOrderNotFound
		}
		return SupplierOrder{}, fmt.Errorf("procurement: scan order: %w", err)
	}
	return o, nil
}

// GetOrder returns one supplier order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SupplierOrder, error) {
	const query = `SELECT id, supplier_id, date, status, created_at FROM supplier_orders WHERE id = $1`

	order, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return SupplierOrder{}, err
	}
	order.Lines, err = r.listLines(ctx, id)
	if err != nil {
		return SupplierOrder{}, err
	}
	return order, nil
}

// GetOrderForUpdate locks and returns one supplier order with its lines.
func (r *Repository) GetOrderForUpdate(ctx context.Context, id int64) (SupplierOrder, error) {
	const query = `SELECT id, supplier_id, date, status, created_at FROM supplier_orders WHERE id = $1 FOR UPDATE`

	order, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return SupplierOrder{}, err
	}
	order.Lines, err = r.listLines(ctx, id)
	if err != nil {
		return SupplierOrder{}, err
	}
	return order, nil
}

func (r *Repository) listLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	const query = `SELECT id, product_id, quantity, unit_cost FROM supplier_order_lines WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("procurement: list lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListOrders returns orders newest first, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, status OrderStatus) ([]SupplierOrder, error) {
	query := `SELECT id, supplier_id, date, status, created_at FROM supplier_orders ORDER BY date DESC, id DESC`
	args := []interface{}{}
	if status != "" {
		query = `SELECT id, supplier_id, date, status, created_at FROM supplier_orders WHERE status = $1 ORDER BY date DESC, id DESC`
		args = append(args, status)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("procurement: list orders: %w", err)
	}
	defer rows.Close()

	var orders []SupplierOrder
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CreateOrder persists a new draft order.
func (r *Repository) CreateOrder(ctx context.Context, o SupplierOrder) (SupplierOrder, error) {
	const query = `
		INSERT INTO supplier_orders (supplier_id, date, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, o.SupplierID, o.Date, o.Status, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return SupplierOrder{}, fmt.Errorf("procurement: create order: %w", err)
	}
	return o, nil
}

// InsertLine persists one order line.
func (r *Repository) InsertLine(ctx context.Context, orderID int64, line OrderLine) (OrderLine, error) {
	const query = `
		INSERT INTO supplier_order_lines (order_id, product_id, quantity, unit_cost)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, orderID, line.ProductID, line.Quantity, line.UnitCost).Scan(&line.ID)
	if err != nil {
		return OrderLine{}, fmt.Errorf("procurement: insert line: %w", err)
	}
	return line, nil
}

// UpdateOrderStatusFrom flips the status only when the stored value still
// matches from.
func (r *Repository) UpdateOrderStatusFrom(ctx context.Context, id int64, from, to OrderStatus) (bool, error) {
	const query = `UPDATE supplier_orders SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("procurement: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSupplier returns one supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	const query = `SELECT id, name, phone, email FROM suppliers WHERE id = $1`

	var s Supplier
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Phone, &s.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrSupplierNotFound
		}
		return Supplier{}, fmt.Errorf("procurement: get supplier: %w", err)
	}
	return s, nil
}

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	const query = `INSERT INTO suppliers (name, phone, email) VALUES ($1, $2, $3) RETURNING id`

	if err := r.db.QueryRow(ctx, query, s.Name, s.Phone, s.Email).Scan(&s.ID); err != nil {
		return Supplier{}, fmt.Errorf("procurement: create supplier: %w", err)
	}
	return s, nil
}

// ListSuppliers returns all suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	const query = `SELECT id, name, phone, email FROM suppliers ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("procurement: list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.Email); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// CountSuppliers counts supplier records.
func (r *Repository) CountSuppliers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("procurement: count suppliers: %w", err)
	}
	return count, nil
}
