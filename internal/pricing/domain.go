package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PriceKind distinguishes selling from buying prices.
type PriceKind string

const (
	KindSelling PriceKind = "SELLING"
	KindBuying  PriceKind = "BUYING"
)

// EntityType identifies which catalog entity a price belongs to.
type EntityType string

const (
	EntityProduct EntityType = "PRODUCT"
	EntityService EntityType = "SERVICE"
)

// PriceVersion is one effective-dated price. Versions are append-only: a new
// price closes the open version by setting its EndDate to the new StartDate,
// leaving a half-open [StartDate, EndDate) interval behind.
type PriceVersion struct {
	ID         int64           `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Kind       PriceKind       `json:"kind"`
	Price      decimal.Decimal `json:"price"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Active reports whether this version is the open one.
func (v PriceVersion) Active() bool {
	return v.EndDate == nil
}

// Contains reports whether date falls inside the version's interval.
func (v PriceVersion) Contains(date time.Time) bool {
	if date.Before(v.StartDate) {
		return false
	}
	return v.EndDate == nil || date.Before(*v.EndDate)
}

// EntityRef addresses one price series.
type EntityRef struct {
	Type EntityType
	ID   int64
}

var (
	// ErrInvalidPrice indicates a negative price.
	ErrInvalidPrice = errors.New("pricing: price must not be negative")
	// ErrInvalidEntity indicates an unknown entity type or zero id.
	ErrInvalidEntity = errors.New("pricing: entity type and id required")
	// ErrInvalidKind indicates an unknown price kind.
	ErrInvalidKind = errors.New("pricing: unknown price kind")
	// ErrNonMonotonicDate indicates a start date not strictly after the
	// active version's start date.
	ErrNonMonotonicDate = errors.New("pricing: start date must be after the active version's start date")
	// ErrNoActivePrice indicates the entity has no open price version.
	ErrNoActivePrice = errors.New("pricing: no active price")
	// ErrNoPriceForDate indicates the date precedes the first version.
	ErrNoPriceForDate = errors.New("pricing: no price for date")
)

// ValidKind reports whether k is a known price kind.
func ValidKind(k PriceKind) bool {
	return k == KindSelling || k == KindBuying
}

// ValidEntityType reports whether t is a known entity type.
func ValidEntityType(t EntityType) bool {
	return t == EntityProduct || t == EntityService
}
