package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Convert turns an accepted quote into a draft invoice. The quote row lock
// serializes concurrent conversions; the second caller finds the invoice the
// first one created and returns it with Created == false.
func (s *invoiceService) Convert(ctx context.Context, actor Actor, quoteID int) (*ConversionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}

	existing, err := lockInvoiceByQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit conversion lookup: %w", err)
		}
		inv, err := s.Get(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &ConversionResult{Invoice: inv, Created: false}, nil
	}

	if q.Status != QuoteStatusAccepted {
		return nil, stateError("quote", q.ID, string(q.Status), "be converted")
	}

	inv, err := invoiceFromQuoteTx(ctx, tx, q, actor, time.Now(), false)
	if err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceCreated, inv, actor, map[string]any{
		"quote_number": q.QuoteNumber,
		"total":        inv.Total.StringFixed(2),
	})); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteConverted, q, actor, map[string]any{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote conversion: %w", err)
	}
	created, err := s.Get(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return &ConversionResult{Invoice: created, Created: true}, nil
}

// invoiceFromQuoteTx inserts an invoice copying the quote's parties, notes,
// items and totals verbatim. With paid set, the invoice is created settled
// (the quote payment flow); otherwise it is a draft with the full amount due.
func invoiceFromQuoteTx(ctx context.Context, tx pgx.Tx, q *Quote, actor Actor, now time.Time, paid bool) (*Invoice, error) {
	items, err := fetchItemsQ(ctx, tx, quoteItems, q.ID)
	if err != nil {
		return nil, err
	}
	items = lo.Map(items, func(it LineItem, _ int) LineItem {
		it.ID = 0
		return it
	})

	issueDate := dateOnly(now)
	quoteID := q.ID
	inv := &Invoice{
		ClientID:   q.ClientID,
		ProjectID:  q.ProjectID,
		QuoteID:    &quoteID,
		Status:     InvoiceStatusDraft,
		Subtotal:   q.Subtotal,
		TaxRate:    q.TaxRate,
		TaxAmount:  q.TaxAmount,
		Discount:   q.Discount,
		Total:      q.Total,
		PaidAmount: decimal.Zero,
		DueAmount:  q.Total,
		IssueDate:  issueDate,
		DueDate:    issueDate.Add(DefaultPaymentTerm),
		Notes:      q.Notes,
		Terms:      q.Terms,
		CreatedBy:  actor.userID(),
	}
	if paid {
		settleInvoice(inv, now)
		inv.DueDate = issueDate
	}
	if err := insertInvoiceTx(ctx, tx, inv, items); err != nil {
		return nil, err
	}
	return inv, nil
}
