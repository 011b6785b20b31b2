// Package billing holds the line-item math shared by work orders and
// invoices. All amounts are exact decimals; per-line totals are rounded to
// two fraction digits half-up, and every downstream sum adds the rounded
// totals so displayed grand totals always equal the sum of displayed lines.
package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDiscount indicates a discount percent outside [0, 100].
	ErrInvalidDiscount = errors.New("billing: discount percent must be between 0 and 100")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("billing: quantity must be positive")
	// ErrInvalidPrice indicates a negative standard price.
	ErrInvalidPrice = errors.New("billing: price must not be negative")
)

var hundred = decimal.NewFromInt(100)

// FinalUnitPrice applies a percentage discount to a standard price and
// rounds to two fraction digits.
func FinalUnitPrice(standardPrice, discountPercent decimal.Decimal) (decimal.Decimal, error) {
	if standardPrice.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidDiscount
	}
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return standardPrice.Mul(factor).Round(2), nil
}

// LineTotal multiplies a unit price by a quantity and rounds to two
// fraction digits.
func LineTotal(finalUnitPrice, quantity decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsNegative() || quantity.IsZero() {
		return decimal.Zero, ErrInvalidQuantity
	}
	return finalUnitPrice.Mul(quantity).Round(2), nil
}

// LineItem is the frozen snapshot shared by work-order and invoice lines.
// StandardPrice and DiscountPercent are captured when the line is created
// and never track later price-history changes.
type LineItem struct {
	ID              int64           `json:"id"`
	RefID           int64           `json:"ref_id"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	StandardPrice   decimal.Decimal `json:"standard_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	FinalUnitPrice  decimal.Decimal `json:"final_unit_price"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// NewLineItem prices a snapshot line from a standard price, quantity and
// discount percent.
func NewLineItem(refID int64, description string, quantity, standardPrice, discountPercent decimal.Decimal) (LineItem, error) {
	unit, err := FinalUnitPrice(standardPrice, discountPercent)
	if err != nil {
		return LineItem{}, err
	}
	total, err := LineTotal(unit, quantity)
	if err != nil {
		return LineItem{}, err
	}
	return LineItem{
		RefID:           refID,
		Description:     description,
		Quantity:        quantity,
		StandardPrice:   standardPrice,
		DiscountPercent: discountPercent,
		FinalUnitPrice:  unit,
		LineTotal:       total,
	}, nil
}

// SumLineTotals adds the already-rounded totals of the given lines.
func SumLineTotals(lines []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.LineTotal)
	}
	return sum
}
