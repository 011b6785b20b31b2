package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Category groups products for reporting and stock filters.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a physical part the shop stocks and sells.
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	CategoryID int64           `json:"category_id"`
	Unit       string          `json:"unit"`
	MinStock   decimal.Decimal `json:"min_stock"`
	Active     bool            `json:"active"`
}

// Service is a unit of labor the shop performs.
type Service struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// Client is a person or company the shop bills.
type Client struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Company bool   `json:"company"`
}

// Vehicle belongs to a client and is the subject of work orders.
type Vehicle struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Plate    string `json:"plate"`
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`
	Year     int    `json:"year,omitempty"`
}

var (
	// ErrNotFound indicates a missing catalog record.
	ErrNotFound = errors.New("catalog: record not found")
	// ErrDuplicatePlate indicates a vehicle plate already registered.
	ErrDuplicatePlate = errors.New("catalog: plate already registered")
)

// EntityCounts summarizes how many master-data records exist.
type EntityCounts struct {
	Clients   int64 `json:"clients"`
	Companies int64 `json:"companies"`
	Vehicles  int64 `json:"vehicles"`
	Products  int64 `json:"products"`
	Services  int64 `json:"services"`
}
