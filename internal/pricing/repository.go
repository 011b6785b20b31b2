package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/db"
)

// Repository persists price versions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const versionColumns = `id, entity_type, entity_id, kind, price, start_date, end_date, created_at`

// ActiveVersion returns the open version for the given series.
func (r *Repository) ActiveVersion(ctx context.Context, ref EntityRef, kind PriceKind) (PriceVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM price_versions
		WHERE entity_type = $1 AND entity_id = $2 AND kind = $3 AND end_date IS NULL
		ORDER BY id DESC
		LIMIT 1`
	return scanVersion(r.pool.QueryRow(ctx, query, ref.Type, ref.ID, kind))
}

// VersionAt returns the version whose interval contains the given date.
func (r *Repository) VersionAt(ctx context.Context, ref EntityRef, kind PriceKind, date time.Time) (PriceVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM price_versions
		WHERE entity_type = $1 AND entity_id = $2 AND kind = $3
		  AND start_date <= $4 AND (end_date IS NULL OR end_date > $4)
		ORDER BY id DESC
		LIMIT 1`
	return scanVersion(r.pool.QueryRow(ctx, query, ref.Type, ref.ID, kind, date))
}

// ListVersions returns the full history for the series, newest first.
func (r *Repository) ListVersions(ctx context.Context, ref EntityRef, kind PriceKind) ([]PriceVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM price_versions
		WHERE entity_type = $1 AND entity_id = $2 AND kind = $3
		ORDER BY start_date DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, ref.Type, ref.ID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []PriceVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) ActiveVersionForUpdate(ctx context.Context, ref EntityRef, kind PriceKind) (PriceVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM price_versions
		WHERE entity_type = $1 AND entity_id = $2 AND kind = $3 AND end_date IS NULL
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE`
	return scanVersion(t.tx.QueryRow(ctx, query, ref.Type, ref.ID, kind))
}

func (t *txRepo) CloseVersion(ctx context.Context, versionID int64, endDate time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE price_versions SET end_date = $2 WHERE id = $1 AND end_date IS NULL`,
		versionID, endDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

func (t *txRepo) InsertVersion(ctx context.Context, v PriceVersion) (PriceVersion, error) {
	query := `
		INSERT INTO price_versions (entity_type, entity_id, kind, price, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
		RETURNING id, created_at`
	err := t.tx.QueryRow(ctx, query,
		v.EntityType, v.EntityID, v.Kind, v.Price, v.StartDate, v.CreatedAt,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return PriceVersion{}, err
	}
	return v, nil
}

func scanVersion(row pgx.Row) (PriceVersion, error) {
	var v PriceVersion
	var endDate pgtype.Date
	err := row.Scan(&v.ID, &v.EntityType, &v.EntityID, &v.Kind, &v.Price, &v.StartDate, &endDate, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceVersion{}, ErrVersionNotFound
	}
	if err != nil {
		return PriceVersion{}, err
	}
	if endDate.Valid {
		v.EndDate = &endDate.Time
	}
	return v, nil
}
