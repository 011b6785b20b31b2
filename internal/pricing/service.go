package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort defines data access methods for price history.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ActiveVersion(ctx context.Context, ref EntityRef, kind PriceKind) (PriceVersion, error)
	VersionAt(ctx context.Context, ref EntityRef, kind PriceKind, date time.Time) (PriceVersion, error)
	ListVersions(ctx context.Context, ref EntityRef, kind PriceKind) ([]PriceVersion, error)
}

// TxRepository exposes the transactional operations AddPrice needs.
type TxRepository interface {
	ActiveVersionForUpdate(ctx context.Context, ref EntityRef, kind PriceKind) (PriceVersion, error)
	CloseVersion(ctx context.Context, versionID int64, endDate time.Time) error
	InsertVersion(ctx context.Context, v PriceVersion) (PriceVersion, error)
}

// ErrVersionNotFound indicates a missing price version row.
var ErrVersionNotFound = errors.New("pricing: version not found")

// Service answers price-at-date questions and appends new price versions.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the default clock, used for date defaults.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CurrentPrice returns the open version's price for the entity and kind.
func (s *Service) CurrentPrice(ctx context.Context, ref EntityRef, kind PriceKind) (decimal.Decimal, error) {
	if err := validateRef(ref, kind); err != nil {
		return decimal.Zero, err
	}
	v, err := s.repo.ActiveVersion(ctx, ref, kind)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return decimal.Zero, ErrNoActivePrice
		}
		return decimal.Zero, err
	}
	return v.Price, nil
}

// PriceAt returns the price effective at the given date.
func (s *Service) PriceAt(ctx context.Context, ref EntityRef, kind PriceKind, date time.Time) (decimal.Decimal, error) {
	if err := validateRef(ref, kind); err != nil {
		return decimal.Zero, err
	}
	v, err := s.repo.VersionAt(ctx, ref, kind, date)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return decimal.Zero, ErrNoPriceForDate
		}
		return decimal.Zero, err
	}
	return v.Price, nil
}

// History lists all versions for the entity and kind, newest first.
func (s *Service) History(ctx context.Context, ref EntityRef, kind PriceKind) ([]PriceVersion, error) {
	if err := validateRef(ref, kind); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, ref, kind)
}

// AddPrice appends a new price version starting at startDate (defaults to
// today) and closes the previously open version at that same date. The open
// version's start date must precede the new one so stored intervals never
// overlap.
func (s *Service) AddPrice(ctx context.Context, ref EntityRef, kind PriceKind, price decimal.Decimal, startDate time.Time) (PriceVersion, error) {
	if err := validateRef(ref, kind); err != nil {
		return PriceVersion{}, err
	}
	if price.IsNegative() {
		return PriceVersion{}, ErrInvalidPrice
	}
	if startDate.IsZero() {
		startDate = s.now()
	}
	startDate = truncateToDay(startDate)

	var created PriceVersion
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.ActiveVersionForUpdate(ctx, ref, kind)
		switch {
		case err == nil:
			if !startDate.After(active.StartDate) {
				return ErrNonMonotonicDate
			}
			if err := tx.CloseVersion(ctx, active.ID, startDate); err != nil {
				return err
			}
		case errors.Is(err, ErrVersionNotFound):
			// First price for this entity.
		default:
			return err
		}

		created, err = tx.InsertVersion(ctx, PriceVersion{
			EntityType: ref.Type,
			EntityID:   ref.ID,
			Kind:       kind,
			Price:      price,
			StartDate:  startDate,
			CreatedAt:  s.now(),
		})
		return err
	})
	if err != nil {
		return PriceVersion{}, err
	}
	return created, nil
}

func validateRef(ref EntityRef, kind PriceKind) error {
	if !ValidEntityType(ref.Type) || ref.ID <= 0 {
		return ErrInvalidEntity
	}
	if !ValidKind(kind) {
		return ErrInvalidKind
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
