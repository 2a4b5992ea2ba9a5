package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest value a numeric(12,2) money column can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

var hundred = decimal.NewFromInt(100)

// LineItem is one priced line on a quote or an invoice.
// Subtotal is always Quantity × UnitPrice; construct items with NewLineItem.
type LineItem struct {
	ID          int             `json:"id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Position    int             `json:"position"`
}

// ItemInput is the caller-supplied part of a line item.
type ItemInput struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// NewLineItem validates the input and computes the subtotal.
func NewLineItem(description string, quantity int, unitPrice decimal.Decimal) (LineItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return LineItem{}, validationError("line item description is required")
	}
	if quantity < 1 {
		return LineItem{}, invalidAmount("quantity must be a positive integer, got %d", quantity)
	}
	if err := checkMoney("unit price", unitPrice); err != nil {
		return LineItem{}, err
	}
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if subtotal.GreaterThan(MaxAmount) {
		return LineItem{}, invalidAmount("line subtotal %s exceeds %s", subtotal.StringFixed(2), MaxAmount.StringFixed(2))
	}
	return LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    subtotal,
	}, nil
}

// BuildLineItems converts inputs into positioned line items. At least one item is required.
func BuildLineItems(inputs []ItemInput) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, validationError("at least one line item is required")
	}
	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := NewLineItem(in.Description, in.Quantity, in.UnitPrice)
		if err != nil {
			return nil, fmtLine(i, err)
		}
		item.Position = i + 1
		items = append(items, item)
	}
	return items, nil
}

// Totals is the monetary summary of a document.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

// ComputeTotals sums the items and applies tax then discount:
//
//	tax   = round2(subtotal × taxRate / 100)
//	total = subtotal + tax − discount
func ComputeTotals(items []LineItem, taxRate, discount decimal.Decimal) (Totals, error) {
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) || !taxRate.Equal(taxRate.Round(2)) {
		return Totals{}, invalidAmount("tax rate must be between 0 and 100 with at most two decimals, got %s", taxRate)
	}
	if err := checkMoney("discount", discount); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for i, item := range items {
		if item.Quantity < 1 {
			return Totals{}, fmtLine(i, invalidAmount("quantity must be a positive integer, got %d", item.Quantity))
		}
		if err := checkMoney("unit price", item.UnitPrice); err != nil {
			return Totals{}, fmtLine(i, err)
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tax := subtotal.Mul(taxRate).Div(hundred).Round(2)
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		return Totals{}, invalidAmount("discount %s exceeds subtotal plus tax %s", discount.StringFixed(2), subtotal.Add(tax).StringFixed(2))
	}
	if total.GreaterThan(MaxAmount) || subtotal.GreaterThan(MaxAmount) {
		return Totals{}, invalidAmount("document total exceeds %s", MaxAmount.StringFixed(2))
	}
	return Totals{Subtotal: subtotal, TaxAmount: tax, Total: total}, nil
}

// preparedDocument is validated input ready to be written.
type preparedDocument struct {
	items  []LineItem
	totals Totals
}

func prepareDocument(inputs []ItemInput, taxRate, discount decimal.Decimal) (*preparedDocument, error) {
	items, err := BuildLineItems(inputs)
	if err != nil {
		return nil, err
	}
	totals, err := ComputeTotals(items, taxRate, discount)
	if err != nil {
		return nil, err
	}
	return &preparedDocument{items: items, totals: totals}, nil
}

// Due is the outstanding balance, never negative.
func Due(total, paid decimal.Decimal) decimal.Decimal {
	due := total.Sub(paid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// Overpaid reports whether paid exceeds total, and by how much.
func Overpaid(total, paid decimal.Decimal) (decimal.Decimal, bool) {
	over := paid.Sub(total)
	return over, over.IsPositive()
}

// checkMoney rejects negative values, values beyond MaxAmount and values with
// more than two fractional digits.
func checkMoney(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return invalidAmount("%s must not be negative, got %s", field, v)
	}
	if v.GreaterThan(MaxAmount) {
		return invalidAmount("%s exceeds %s", field, MaxAmount.StringFixed(2))
	}
	if !v.Equal(v.Round(2)) {
		return invalidAmount("%s has more than two decimal places: %s", field, v)
	}
	return nil
}

func checkPositiveMoney(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return invalidAmount("%s must be greater than zero, got %s", field, v)
	}
	return checkMoney(field, v)
}

func fmtLine(i int, err error) error {
	return fmt.Errorf("line %d: %w", i+1, err)
}
