package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFinalUnitPrice(t *testing.T) {
	price, err := FinalUnitPrice(d("200.00"), d("10"))
	require.NoError(t, err)
	require.True(t, d("180.00").Equal(price), "got %s", price)

	price, err = FinalUnitPrice(d("99.99"), d("0"))
	require.NoError(t, err)
	require.True(t, d("99.99").Equal(price))

	price, err = FinalUnitPrice(d("50.00"), d("100"))
	require.NoError(t, err)
	require.True(t, price.IsZero())

	// Half-up rounding: 33.335 rounds to 33.34.
	price, err = FinalUnitPrice(d("66.67"), d("50"))
	require.NoError(t, err)
	require.True(t, d("33.34").Equal(price), "got %s", price)
}

func TestFinalUnitPriceRejectsBadInput(t *testing.T) {
	_, err := FinalUnitPrice(d("10.00"), d("-1"))
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = FinalUnitPrice(d("10.00"), d("100.01"))
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = FinalUnitPrice(d("-0.01"), d("0"))
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestLineTotal(t *testing.T) {
	total, err := LineTotal(d("180.00"), d("3"))
	require.NoError(t, err)
	require.True(t, d("540.00").Equal(total))

	_, err = LineTotal(d("180.00"), d("0"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = LineTotal(d("180.00"), d("-2"))
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNewLineItemSnapshot(t *testing.T) {
	line, err := NewLineItem(7, "Brake pads", d("3"), d("200.00"), d("10"))
	require.NoError(t, err)
	require.True(t, d("180.00").Equal(line.FinalUnitPrice))
	require.True(t, d("540.00").Equal(line.LineTotal))
	require.True(t, d("200.00").Equal(line.StandardPrice))
}

func TestSumLineTotalsMatchesDisplayedLines(t *testing.T) {
	var lines []LineItem
	for i := 0; i < 3; i++ {
		line, err := NewLineItem(int64(i+1), "part", d("1"), d("33.335"), d("0"))
		require.NoError(t, err)
		lines = append(lines, line)
	}
	// Each line rounds individually; the sum is over rounded totals.
	require.True(t, d("100.02").Equal(SumLineTotals(lines)), "got %s", SumLineTotals(lines))
}
