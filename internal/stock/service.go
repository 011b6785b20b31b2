package stock

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// RepositoryPort defines data access methods for stock movements.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	SumDeltas(ctx context.Context, productID int64) (decimal.Decimal, error)
	ListMovements(ctx context.Context, f Filter) ([]Movement, error)
	MovedProductIDs(ctx context.Context) ([]int64, error)
	UpsertLevel(ctx context.Context, productID int64, quantity decimal.Decimal) error
}

// TxRepository exposes the transactional operations RecordMovement needs.
type TxRepository interface {
	SumDeltas(ctx context.Context, productID int64) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// CatalogPort is the slice of the product catalog stock needs.
type CatalogPort interface {
	ProductExists(ctx context.Context, productID int64) (bool, error)
	MinStocks(ctx context.Context) (map[int64]ProductInfo, error)
}

// ProductInfo carries the catalog fields low-stock checks read.
type ProductInfo struct {
	Name     string
	MinStock decimal.Decimal
}

// MovementInput is the caller-provided part of a movement.
type MovementInput struct {
	ProductID  int64
	Kind       MovementKind
	Delta      decimal.Decimal
	SourceType string
	SourceRef  string
	Note       string
	OccurredAt time.Time
}

// Service owns the append-only stock ledger.
type Service struct {
	logger        *slog.Logger
	repo          RepositoryPort
	catalog       CatalogPort
	locker        *shared.Locker
	allowNegative bool
	now           func() time.Time
}

// NewService builds Service. allowNegative controls whether deductions may
// take a product below zero.
func NewService(logger *slog.Logger, repo RepositoryPort, catalog CatalogPort, locker *shared.Locker, allowNegative bool) *Service {
	return &Service{
		logger:        logger,
		repo:          repo,
		catalog:       catalog,
		locker:        locker,
		allowNegative: allowNegative,
		now:           time.Now,
	}
}

// WithClock overrides the default clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CurrentStock returns the sum of all deltas for the product. Products with
// no movements report zero.
func (s *Service) CurrentStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	if productID <= 0 {
		return decimal.Zero, ErrInvalidProduct
	}
	return s.repo.SumDeltas(ctx, productID)
}

// RecordMovement appends one movement. The product-scoped lock keeps the
// balance check and the insert from racing concurrent writers.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (Movement, error) {
	if in.ProductID <= 0 {
		return Movement{}, ErrInvalidProduct
	}
	if !ValidKind(in.Kind) {
		return Movement{}, ErrInvalidKind
	}
	if in.Delta.IsZero() {
		return Movement{}, ErrZeroDelta
	}
	exists, err := s.catalog.ProductExists(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	if !exists {
		return Movement{}, ErrProductNotFound
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	var created Movement
	err = s.locker.WithLock(ctx, shared.ProductLockKey(in.ProductID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			balance, err := tx.SumDeltas(ctx, in.ProductID)
			if err != nil {
				return err
			}
			after := balance.Add(in.Delta)
			if after.IsNegative() {
				if !s.allowNegative {
					return ErrInsufficientStock
				}
				s.logger.Warn("stock went negative",
					slog.Int64("product_id", in.ProductID),
					slog.String("kind", string(in.Kind)),
					slog.String("balance", after.String()),
				)
			}

			created, err = tx.InsertMovement(ctx, Movement{
				ProductID:  in.ProductID,
				Kind:       in.Kind,
				Delta:      in.Delta,
				SourceType: in.SourceType,
				SourceRef:  in.SourceRef,
				Note:       in.Note,
				OccurredAt: occurredAt,
				CreatedAt:  s.now(),
			})
			return err
		})
	})
	if err != nil {
		return Movement{}, err
	}
	return created, nil
}

// History lists movements matching the filter, newest first.
func (s *Service) History(ctx context.Context, f Filter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, f)
}

// LowStock reports products at or below their minimum threshold. Products
// with a zero threshold never appear.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	products, err := s.catalog.MinStocks(ctx)
	if err != nil {
		return nil, err
	}

	var items []LowStockItem
	for id, info := range products {
		if !info.MinStock.IsPositive() {
			continue
		}
		qty, err := s.repo.SumDeltas(ctx, id)
		if err != nil {
			return nil, err
		}
		if qty.LessThanOrEqual(info.MinStock) {
			items = append(items, LowStockItem{
				ProductID: id,
				Name:      info.Name,
				Quantity:  qty,
				MinStock:  info.MinStock,
			})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

// SnapshotAll recomputes the cached stock level for every product that has
// ever moved. Levels are a convenience cache only; movements stay the source
// of truth.
func (s *Service) SnapshotAll(ctx context.Context) error {
	ids, err := s.repo.MovedProductIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			qty, err := s.repo.SumDeltas(ctx, id)
			if err != nil {
				return err
			}
			return s.repo.UpsertLevel(ctx, id, qty)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("stock snapshot complete", slog.Int("products", len(ids)))
	return nil
}

// IsBusy reports whether err means the product lock was contended.
func IsBusy(err error) bool {
	return errors.Is(err, shared.ErrLockBusy)
}
