package workorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists work orders and their lines in Postgres.
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

const orderColumns = `id, client_id, vehicle_id, date, status, notes, created_at`

func (r *Repository) scanOrder(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	err := row.Scan(&wo.ID, &wo.ClientID, &wo.VehicleID, &wo.Date, &wo.Status, &wo.Notes, &wo.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, ErrNotFound
		}
		return WorkOrder{}, fmt.Errorf("workorder: scan: %w", err)
	}
	return wo, nil
}

// Get returns one work order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (WorkOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_orders WHERE id = $1`, orderColumns)

	wo, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return WorkOrder{}, err
	}
	if err := r.loadLines(ctx, &wo); err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// GetForUpdate locks and returns one work order with its lines.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_orders WHERE id = $1 FOR UPDATE`, orderColumns)

	wo, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return WorkOrder{}, err
	}
	if err := r.loadLines(ctx, &wo); err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

func (r *Repository) loadLines(ctx context.Context, wo *WorkOrder) error {
	const query = `
		SELECT id, kind, ref_id, description, quantity, standard_price, discount_percent, final_unit_price, line_total
		FROM work_order_lines WHERE work_order_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, wo.ID)
	if err != nil {
		return fmt.Errorf("workorder: load lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind LineKind
		var l billing.LineItem
		err := rows.Scan(&l.ID, &kind, &l.RefID, &l.Description, &l.Quantity,
			&l.StandardPrice, &l.DiscountPercent, &l.FinalUnitPrice, &l.LineTotal)
		if err != nil {
			return err
		}
		switch kind {
		case LineService:
			wo.ServiceLines = append(wo.ServiceLines, l)
		case LineProduct:
			wo.ProductLines = append(wo.ProductLines, l)
		}
	}
	return rows.Err()
}

// List returns work orders newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status) ([]WorkOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_orders ORDER BY date DESC, id DESC`, orderColumns)
	args := []interface{}{}
	if status != "" {
		query = fmt.Sprintf(`SELECT %s FROM work_orders WHERE status = $1 ORDER BY date DESC, id DESC`, orderColumns)
		args = append(args, status)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("workorder: list: %w", err)
	}
	defer rows.Close()

	var orders []WorkOrder
	for rows.Next() {
		wo, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

// Create persists a new work order header.
func (r *Repository) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	const query = `
		INSERT INTO work_orders (client_id, vehicle_id, date, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, wo.ClientID, wo.VehicleID, wo.Date, wo.Status, wo.Notes, wo.CreatedAt).Scan(&wo.ID)
	if err != nil {
		return WorkOrder{}, fmt.Errorf("workorder: create: %w", err)
	}
	return wo, nil
}

// InsertLine persists one line snapshot.
func (r *Repository) InsertLine(ctx context.Context, workOrderID int64, kind LineKind, line billing.LineItem) (billing.LineItem, error) {
	const query = `
		INSERT INTO work_order_lines (work_order_id, kind, ref_id, description, quantity, standard_price, discount_percent, final_unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, workOrderID, kind, line.RefID, line.Description, line.Quantity,
		line.StandardPrice, line.DiscountPercent, line.FinalUnitPrice, line.LineTotal).Scan(&line.ID)
	if err != nil {
		return billing.LineItem{}, fmt.Errorf("workorder: insert line: %w", err)
	}
	return line, nil
}

// DeleteLine removes one line.
func (r *Repository) DeleteLine(ctx context.Context, workOrderID int64, kind LineKind, lineID int64) error {
	const query = `DELETE FROM work_order_lines WHERE id = $1 AND work_order_id = $2 AND kind = $3`

	tag, err := r.db.Exec(ctx, query, lineID, workOrderID, kind)
	if err != nil {
		return fmt.Errorf("workorder: delete line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// UpdateStatusFrom flips the status only when the stored value still matches
// from.
func (r *Repository) UpdateStatusFrom(ctx context.Context, id int64, from, to Status) (bool, error) {
	const query = `UPDATE work_orders SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("workorder: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountOpen counts work orders still on the shop floor.
func (r *Repository) CountOpen(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM work_orders WHERE status IN ($1, $2)`

	var count int64
	if err := r.db.QueryRow(ctx, query, StatusOpen, StatusInProgress).Scan(&count); err != nil {
		return 0, fmt.Errorf("workorder: count open: %w", err)
	}
	return count, nil
}
