// Package export renders quotes and invoices as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"freelance-office/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Document"

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// document is the part of a quote or invoice that ends up in the sheet.
type document struct {
	title  string
	number string
	status string
	dates  [][2]string
	items  []core.LineItem
	totals [][2]any
	notes  string
	terms  string
	client *core.Client
}

// WriteQuote writes the quote as a single-sheet workbook.
func WriteQuote(w io.Writer, q *core.Quote, client *core.Client) error {
	return write(w, document{
		title:  "Quote",
		number: q.QuoteNumber,
		status: string(q.Status),
		dates: [][2]string{
			{"Created", q.CreatedAt.Format(time.DateOnly)},
			{"Valid until", q.ValidUntil.Format(time.DateOnly)},
		},
		items: q.Items,
		totals: [][2]any{
			{"Subtotal", q.Subtotal},
			{fmt.Sprintf("Tax (%s%%)", q.TaxRate.String()), q.TaxAmount},
			{"Discount", q.Discount.Neg()},
			{"Total", q.Total},
		},
		notes:  q.Notes,
		terms:  q.Terms,
		client: client,
	})
}

// WriteInvoice writes the invoice, including payment progress, as a single-sheet workbook.
func WriteInvoice(w io.Writer, inv *core.Invoice, client *core.Client) error {
	return write(w, document{
		title:  "Invoice",
		number: inv.InvoiceNumber,
		status: string(inv.Status),
		dates: [][2]string{
			{"Issue date", inv.IssueDate.Format(time.DateOnly)},
			{"Due date", inv.DueDate.Format(time.DateOnly)},
		},
		items: inv.Items,
		totals: [][2]any{
			{"Subtotal", inv.Subtotal},
			{fmt.Sprintf("Tax (%s%%)", inv.TaxRate.String()), inv.TaxAmount},
			{"Discount", inv.Discount.Neg()},
			{"Total", inv.Total},
			{"Paid", inv.PaidAmount},
			{"Amount due", inv.DueAmount},
		},
		notes:  inv.Notes,
		terms:  inv.Terms,
		client: client,
	})
}

func write(w io.Writer, doc document) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	sw := &sheetWriter{f: f, sheet: sheetName}
	sw.set(1, 1, doc.title+" "+doc.number)
	sw.style(1, 1, bold)
	sw.set(2, 1, "Status")
	sw.set(2, 2, doc.status)

	row := 3
	for _, d := range doc.dates {
		sw.set(row, 1, d[0])
		sw.set(row, 2, d[1])
		row++
	}
	if doc.client != nil {
		sw.set(row, 1, "Client")
		sw.set(row, 2, doc.client.Name)
		row++
		if doc.client.Company != "" {
			sw.set(row, 2, doc.client.Company)
			row++
		}
		sw.set(row, 2, doc.client.Email)
		row++
	}

	row++
	headerRow := row
	for col, h := range []string{"#", "Description", "Quantity", "Unit price", "Subtotal"} {
		sw.set(row, col+1, h)
		sw.style(row, col+1, bold)
	}
	row++
	for _, it := range doc.items {
		sw.set(row, 1, it.Position)
		sw.set(row, 2, it.Description)
		sw.set(row, 3, it.Quantity)
		sw.money(row, 4, it.UnitPrice, money)
		sw.money(row, 5, it.Subtotal, money)
		row++
	}

	row++
	for _, t := range doc.totals {
		sw.set(row, 4, t[0])
		sw.style(row, 4, bold)
		sw.money(row, 5, t[1].(decimal.Decimal), money)
		row++
	}

	if doc.notes != "" {
		row++
		sw.set(row, 1, "Notes")
		sw.set(row, 2, doc.notes)
		row++
	}
	if doc.terms != "" {
		sw.set(row, 1, "Terms")
		sw.set(row, 2, doc.terms)
	}
	if sw.err != nil {
		return sw.err
	}

	for col, width := range map[string]float64{"A": 12, "B": 40, "C": 10, "D": 14, "E": 14} {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, YSplit: headerRow, TopLeftCell: fmt.Sprintf("A%d", headerRow+1), ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so cell writes read as a flat list.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (s *sheetWriter) cell(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil && s.err == nil {
		s.err = err
	}
	return name
}

func (s *sheetWriter) set(row, col int, v any) {
	if s.err != nil {
		return
	}
	if err := s.f.SetCellValue(s.sheet, s.cell(row, col), v); err != nil {
		s.err = err
	}
}

func (s *sheetWriter) money(row, col int, v decimal.Decimal, style int) {
	if s.err != nil {
		return
	}
	cell := s.cell(row, col)
	if err := s.f.SetCellFloat(s.sheet, cell, v.InexactFloat64(), 2, 64); err != nil {
		s.err = err
		return
	}
	s.style(row, col, style)
}

func (s *sheetWriter) style(row, col, style int) {
	if s.err != nil {
		return
	}
	cell := s.cell(row, col)
	if err := s.f.SetCellStyle(s.sheet, cell, cell, style); err != nil {
		s.err = err
	}
}
