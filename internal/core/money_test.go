package core_test

import (
	"testing"

	"freelance-office/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewLineItem_Subtotal(t *testing.T) {
	item, err := core.NewLineItem("  Design work ", 3, d("40.50"))
	require.NoError(t, err)
	assert.Equal(t, "Design work", item.Description)
	assert.True(t, item.Subtotal.Equal(d("121.50")), "got %s", item.Subtotal)
}

func TestNewLineItem_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		desc      string
		qty       int
		price     string
		wantError error
	}{
		{"blank description", "   ", 1, "10.00", core.ErrValidation},
		{"zero quantity", "x", 0, "10.00", core.ErrInvalidAmount},
		{"negative quantity", "x", -2, "10.00", core.ErrInvalidAmount},
		{"negative price", "x", 1, "-1.00", core.ErrInvalidAmount},
		{"three decimals", "x", 1, "1.005", core.ErrInvalidAmount},
		{"subtotal over max", "x", 2, "9999999999.99", core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.NewLineItem(tt.desc, tt.qty, d(tt.price))
			assert.ErrorIs(t, err, tt.wantError)
		})
	}
}

func TestBuildLineItems_PositionsAndEmpty(t *testing.T) {
	_, err := core.BuildLineItems(nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	items, err := core.BuildLineItems([]core.ItemInput{
		{Description: "a", Quantity: 1, UnitPrice: d("1.00")},
		{Description: "b", Quantity: 2, UnitPrice: d("2.00")},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Position)
	assert.Equal(t, 2, items[1].Position)

	_, err = core.BuildLineItems([]core.ItemInput{
		{Description: "a", Quantity: 1, UnitPrice: d("1.00")},
		{Description: "b", Quantity: 0, UnitPrice: d("2.00")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestComputeTotals_QuoteScenario(t *testing.T) {
	// 2 × 100.00 + 1 × 50.00 at 15% tax, no discount.
	items, err := core.BuildLineItems([]core.ItemInput{
		{Description: "Development", Quantity: 2, UnitPrice: d("100.00")},
		{Description: "Hosting setup", Quantity: 1, UnitPrice: d("50.00")},
	})
	require.NoError(t, err)

	totals, err := core.ComputeTotals(items, d("15"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, totals.Subtotal.Equal(d("250.00")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.TaxAmount.Equal(d("37.50")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.Total.Equal(d("277.50")), "total %s", totals.Total)
}

func TestComputeTotals_RoundsTaxAndAppliesDiscount(t *testing.T) {
	items, err := core.BuildLineItems([]core.ItemInput{
		{Description: "Consulting", Quantity: 1, UnitPrice: d("33.33")},
	})
	require.NoError(t, err)

	totals, err := core.ComputeTotals(items, d("7.5"), d("3.33"))
	require.NoError(t, err)
	// 33.33 × 7.5% = 2.49975 → 2.50
	assert.True(t, totals.TaxAmount.Equal(d("2.50")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.Total.Equal(d("32.50")), "total %s", totals.Total)
}

func TestComputeTotals_Rejects(t *testing.T) {
	items, err := core.BuildLineItems([]core.ItemInput{{Description: "x", Quantity: 1, UnitPrice: d("10.00")}})
	require.NoError(t, err)

	_, err = core.ComputeTotals(items, d("-1"), decimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = core.ComputeTotals(items, d("100.01"), decimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = core.ComputeTotals(items, decimal.Zero, d("10.01"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount, "discount above subtotal")

	totals, err := core.ComputeTotals(items, decimal.Zero, d("10.00"))
	require.NoError(t, err)
	assert.True(t, totals.Total.IsZero())
}

func TestDueAndOverpaid(t *testing.T) {
	assert.True(t, core.Due(d("100.00"), d("40.00")).Equal(d("60.00")))
	assert.True(t, core.Due(d("100.00"), d("120.00")).IsZero())

	over, ok := core.Overpaid(d("100.00"), d("120.00"))
	assert.True(t, ok)
	assert.True(t, over.Equal(d("20.00")))

	_, ok = core.Overpaid(d("100.00"), d("100.00"))
	assert.False(t, ok)
}
