package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind classifies why stock changed.
type MovementKind string

const (
	KindPurchase    MovementKind = "PURCHASE"
	KindConsumption MovementKind = "CONSUMPTION"
	KindAdjustment  MovementKind = "ADJUSTMENT"
)

// Movement is one append-only quantity change for a product. Corrections are
// recorded as new ADJUSTMENT movements, never by editing history.
type Movement struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Kind       MovementKind    `json:"kind"`
	Delta      decimal.Decimal `json:"delta"`
	SourceType string          `json:"source_type,omitempty"`
	SourceRef  string          `json:"source_ref,omitempty"`
	Note       string          `json:"note,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Level is a product's derived stock position.
type Level struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Negative  bool            `json:"negative"`
}

// LowStockItem is a product whose quantity fell to or below its threshold.
type LowStockItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	MinStock  decimal.Decimal `json:"min_stock"`
}

// Filter narrows movement history queries. Zero fields match everything.
type Filter struct {
	ProductID  int64
	CategoryID int64
	From       time.Time
	To         time.Time
}

var (
	// ErrZeroDelta indicates a movement that would not change stock.
	ErrZeroDelta = errors.New("stock: delta must not be zero")
	// ErrInvalidKind indicates an unknown movement kind.
	ErrInvalidKind = errors.New("stock: unknown movement kind")
	// ErrInvalidProduct indicates a missing product id.
	ErrInvalidProduct = errors.New("stock: product id required")
	// ErrProductNotFound indicates the product does not exist in the catalog.
	ErrProductNotFound = errors.New("stock: product not found")
	// ErrInsufficientStock indicates a deduction below zero while negative
	// stock is disabled.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
)

// ValidKind reports whether k is a known movement kind.
func ValidKind(k MovementKind) bool {
	switch k {
	case KindPurchase, KindConsumption, KindAdjustment:
		return true
	}
	return false
}
