package export_test

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"freelance-office/internal/core"
	"freelance-office/internal/export"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func items() []core.LineItem {
	return []core.LineItem{
		{Position: 1, Description: "Development", Quantity: 2, UnitPrice: dec("100.00"), Subtotal: dec("200.00")},
		{Position: 2, Description: "Hosting setup", Quantity: 1, UnitPrice: dec("50.00"), Subtotal: dec("50.00")},
	}
}

// labelled returns column E of the first row whose column D equals label.
func labelled(t *testing.T, rows [][]string, label string) float64 {
	t.Helper()
	for _, r := range rows {
		if len(r) >= 5 && r[3] == label {
			v, err := strconv.ParseFloat(r[4], 64)
			require.NoError(t, err)
			return v
		}
	}
	t.Fatalf("row %q not found", label)
	return 0
}

func open(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteQuote(t *testing.T) {
	q := &core.Quote{
		QuoteNumber: "Q2026-00001",
		Status:      core.QuoteStatusSent,
		Subtotal:    dec("250.00"),
		TaxRate:     dec("15"),
		TaxAmount:   dec("37.50"),
		Total:       dec("277.50"),
		Notes:       "Two rounds of revisions included.",
		ValidUntil:  time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC),
		Items:       items(),
	}
	client := &core.Client{Name: "Ada Client", Email: "ada@example.com"}

	var buf bytes.Buffer
	require.NoError(t, export.WriteQuote(&buf, q, client))

	f := open(t, &buf)
	title, err := f.GetCellValue("Document", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Quote Q2026-00001", title)
	status, err := f.GetCellValue("Document", "B2")
	require.NoError(t, err)
	assert.Equal(t, "sent", status)

	rows, err := f.GetRows("Document", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, 250.0, labelled(t, rows, "Subtotal"))
	assert.Equal(t, 37.5, labelled(t, rows, "Tax (15%)"))
	assert.Equal(t, 277.5, labelled(t, rows, "Total"))

	var descriptions []string
	for _, r := range rows {
		if len(r) >= 2 && (r[1] == "Development" || r[1] == "Hosting setup") {
			descriptions = append(descriptions, r[1])
		}
	}
	assert.Equal(t, []string{"Development", "Hosting setup"}, descriptions)
}

func TestWriteInvoice_IncludesPaymentProgress(t *testing.T) {
	inv := &core.Invoice{
		InvoiceNumber: "INV2026-00004",
		Status:        core.InvoiceStatusPartial,
		Subtotal:      dec("250.00"),
		TaxRate:       dec("15"),
		TaxAmount:     dec("37.50"),
		Total:         dec("277.50"),
		PaidAmount:    dec("100.00"),
		DueAmount:     dec("177.50"),
		IssueDate:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Items:         items(),
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteInvoice(&buf, inv, &core.Client{Name: "Ada", Company: "Ada Ltd", Email: "ada@example.com"}))

	f := open(t, &buf)
	rows, err := f.GetRows("Document", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, 100.0, labelled(t, rows, "Paid"))
	assert.Equal(t, 177.5, labelled(t, rows, "Amount due"))

	title, err := f.GetCellValue("Document", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV2026-00004", title)
}
