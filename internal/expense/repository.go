package expense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists expenses and their categories in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const expenseColumns = `id, date, category_id, label, amount, method, notes, created_at`

// InsertExpense appends one expense row.
func (r *Repository) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	const query = `
		INSERT INTO expenses (date, category_id, label, amount, method, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		e.Date, e.CategoryID, e.Label, e.Amount, e.Method, e.Notes, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return Expense{}, fmt.Errorf("expense: insert: %w", err)
	}
	return e, nil
}

// UpdateExpense rewrites the mutable fields of one expense.
func (r *Repository) UpdateExpense(ctx context.Context, e Expense) (Expense, error) {
	const query = `
		UPDATE expenses
		SET date = $2, category_id = $3, label = $4, amount = $5, method = $6, notes = $7
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, e.ID, e.Date, e.CategoryID, e.Label, e.Amount, e.Method, e.Notes)
	if err != nil {
		return Expense{}, fmt.Errorf("expense: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

// DeleteExpense removes one expense row.
func (r *Repository) DeleteExpense(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("expense: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExpense loads one expense by id.
func (r *Repository) GetExpense(ctx context.Context, id int64) (Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE id = $1`, expenseColumns)

	var e Expense
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Date, &e.CategoryID, &e.Label, &e.Amount, &e.Method, &e.Notes, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("expense: get: %w", err)
	}
	return e, nil
}

// ListExpenses returns expenses matching the filter, newest first.
func (r *Repository) ListExpenses(ctx context.Context, f Filter) ([]Expense, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if !f.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", argPos))
		args = append(args, f.From)
		argPos++
	}
	if !f.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", argPos))
		args = append(args, f.To)
		argPos++
	}
	if f.CategoryID > 0 {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argPos))
		args = append(args, f.CategoryID)
		argPos++
	}
	if f.MinAmount.IsPositive() {
		conditions = append(conditions, fmt.Sprintf("amount >= $%d", argPos))
		args = append(args, f.MinAmount)
		argPos++
	}
	if f.MaxAmount.IsPositive() {
		conditions = append(conditions, fmt.Sprintf("amount <= $%d", argPos))
		args = append(args, f.MaxAmount)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM expenses
		%s
		ORDER BY date DESC, id DESC`, expenseColumns, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expense: list: %w", err)
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Date, &e.CategoryID, &e.Label, &e.Amount, &e.Method, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("expense: scan: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// SumExpenses totals expenses between the two dates, zero when none match.
func (r *Repository) SumExpenses(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE date >= $1 AND date <= $2`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, from, to).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("expense: sum: %w", err)
	}
	return sum, nil
}

// CategoryExists reports whether a category row exists.
func (r *Repository) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM expense_categories WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("expense: category exists: %w", err)
	}
	return exists, nil
}

// GetCategory loads one category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	const query = `SELECT id, name, description, active FROM expense_categories WHERE id = $1`

	var c Category
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Description, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrCategoryNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("expense: get category: %w", err)
	}
	return c, nil
}

// InsertCategory adds one category row.
func (r *Repository) InsertCategory(ctx context.Context, c Category) (Category, error) {
	const query = `INSERT INTO expense_categories (name, description, active) VALUES ($1, $2, $3) RETURNING id`

	if err := r.pool.QueryRow(ctx, query, c.Name, c.Description, c.Active).Scan(&c.ID); err != nil {
		return Category{}, fmt.Errorf("expense: insert category: %w", err)
	}
	return c, nil
}

// UpdateCategory rewrites one category row.
func (r *Repository) UpdateCategory(ctx context.Context, c Category) (Category, error) {
	const query = `UPDATE expense_categories SET name = $2, description = $3, active = $4 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.Description, c.Active)
	if err != nil {
		return Category{}, fmt.Errorf("expense: update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Category{}, ErrCategoryNotFound
	}
	return c, nil
}

// ListCategories returns every category, active first, then by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	const query = `SELECT id, name, description, active FROM expense_categories ORDER BY active DESC, name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("expense: list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Active); err != nil {
			return nil, fmt.Errorf("expense: scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
