package expense

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups expenses for reporting. Categories are deactivated
// rather than deleted so historical expenses keep their grouping.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// Expense is one operating cost of the shop, outside the invoice ledger.
type Expense struct {
	ID         int64           `json:"id"`
	Date       time.Time       `json:"date"`
	CategoryID *int64          `json:"category_id,omitempty"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ExpenseInput is the caller-provided part of an expense.
type ExpenseInput struct {
	Date       time.Time
	CategoryID *int64
	Label      string
	Amount     decimal.Decimal
	Method     string
	Notes      string
}

// Filter narrows expense listings. Zero fields match everything.
type Filter struct {
	From       time.Time
	To         time.Time
	CategoryID int64
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
}

var (
	// ErrNotFound indicates the expense does not exist.
	ErrNotFound = errors.New("expense: not found")
	// ErrCategoryNotFound indicates the referenced category does not exist.
	ErrCategoryNotFound = errors.New("expense: category not found")
	// ErrLabelRequired indicates a missing label.
	ErrLabelRequired = errors.New("expense: label required")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("expense: amount must be positive")
	// ErrRangeRequired indicates a total query without both dates.
	ErrRangeRequired = errors.New("expense: from and to dates required")
)
