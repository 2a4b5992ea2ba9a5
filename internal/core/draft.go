package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// QuoteDraft is a machine-suggested set of line items for a client brief.
// Amounts are strings so model output can be checked before it becomes money.
type QuoteDraft struct {
	Summary    string           `json:"summary" jsonschema_description:"One sentence describing the proposed work"`
	Items      []QuoteDraftItem `json:"items" jsonschema_description:"Priced line items, at least one"`
	Notes      string           `json:"notes" jsonschema_description:"Assumptions and exclusions for the client"`
	Confidence float64          `json:"confidence" jsonschema_description:"0.0 to 1.0"`
	Reasoning  string           `json:"reasoning" jsonschema_description:"How the estimate was derived"`
}

// QuoteDraftItem is one suggested line.
type QuoteDraftItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity" jsonschema_description:"Whole units, at least 1"`
	UnitPrice   string `json:"unit_price" jsonschema_description:"Exact decimal string such as \"120.00\""`
}

// Normalize cleans up model output dealing with common formatting issues.
func (d *QuoteDraft) Normalize() {
	d.Summary = strings.TrimSpace(d.Summary)
	d.Notes = strings.TrimSpace(d.Notes)
	for i := range d.Items {
		item := &d.Items[i]
		item.Description = strings.TrimSpace(item.Description)
		price := strings.TrimSpace(item.UnitPrice)
		price = strings.TrimLeft(price, "$€£")
		price = strings.ReplaceAll(price, ",", "")
		if price == "" || strings.EqualFold(price, "null") {
			price = "0.00"
		}
		item.UnitPrice = price
		if item.Quantity == 0 {
			item.Quantity = 1
		}
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
}

// Validate applies the same line item rules as a stored quote.
func (d *QuoteDraft) Validate() error {
	if len(d.Items) == 0 {
		return errors.New("draft must contain at least one item")
	}
	inputs, err := d.ItemInputs()
	if err != nil {
		return err
	}
	_, err = BuildLineItems(inputs)
	return err
}

// ItemInputs converts the draft lines into quote input.
func (d *QuoteDraft) ItemInputs() ([]ItemInput, error) {
	inputs := make([]ItemInput, 0, len(d.Items))
	for i, item := range d.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, fmtLine(i, fmt.Errorf("%w: invalid unit price %q", ErrInvalidAmount, item.UnitPrice))
		}
		inputs = append(inputs, ItemInput{Description: item.Description, Quantity: item.Quantity, UnitPrice: price})
	}
	return inputs, nil
}
