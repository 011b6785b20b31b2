package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists stock movements and cached levels in Postgres.
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

// SumDeltas returns the movement sum for one product, zero when none exist.
func (r *Repository) SumDeltas(ctx context.Context, productID int64) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(delta), 0) FROM stock_movements WHERE product_id = $1`

	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, productID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("stock: sum deltas: %w", err)
	}
	return sum, nil
}

// InsertMovement appends one movement row.
func (r *Repository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	const query = `
		INSERT INTO stock_movements (product_id, kind, delta, source_type, source_ref, note, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		m.ProductID, m.Kind, m.Delta, m.SourceType, m.SourceRef, m.Note, m.OccurredAt, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return Movement{}, fmt.Errorf("stock: insert movement: %w", err)
	}
	return m, nil
}

// ListMovements returns movements matching the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, f Filter) ([]Movement, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if f.ProductID > 0 {
		conditions = append(conditions, fmt.Sprintf("sm.product_id = $%d", argPos))
		args = append(args, f.ProductID)
		argPos++
	}
	if f.CategoryID > 0 {
		conditions = append(conditions, fmt.Sprintf("p.category_id = $%d", argPos))
		args = append(args, f.CategoryID)
		argPos++
	}
	if !f.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("sm.occurred_at >= $%d", argPos))
		args = append(args, f.From)
		argPos++
	}
	if !f.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("sm.occurred_at <= $%d", argPos))
		args = append(args, f.To)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT sm.id, sm.product_id, sm.kind, sm.delta, sm.source_type, sm.source_ref, sm.note, sm.occurred_at, sm.created_at
		FROM stock_movements sm
		JOIN products p ON p.id = sm.product_id
		%s
		ORDER BY sm.occurred_at DESC, sm.id DESC`, whereClause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: list movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Delta, &m.SourceType, &m.SourceRef, &m.Note, &m.OccurredAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("stock: scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// MovedProductIDs returns every product id with at least one movement.
func (r *Repository) MovedProductIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT DISTINCT product_id FROM stock_movements ORDER BY product_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stock: moved product ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertLevel writes one cached stock level.
func (r *Repository) UpsertLevel(ctx context.Context, productID int64, quantity decimal.Decimal) error {
	const query = `
		INSERT INTO stock_levels (product_id, quantity, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, productID, quantity); err != nil {
		return fmt.Errorf("stock: upsert level: %w", err)
	}
	return nil
}
