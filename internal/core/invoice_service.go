package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type invoiceService struct {
	pool     *pgxpool.Pool
	notifier Notifier
	logger   *zap.Logger
}

func NewInvoiceService(pool *pgxpool.Pool, notifier Notifier, logger *zap.Logger) InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &invoiceService{pool: pool, notifier: notifier, logger: logger.Named("invoices")}
}

const invoiceColumns = `id, client_id, project_id, quote_id, invoice_number, status, subtotal, tax_rate,
	tax_amount, discount, total, paid_amount, due_amount, issue_date, due_date, notes, terms,
	sent_at, viewed_at, paid_at, cancelled_at, created_by, created_at`

func scanInvoice(row pgx.Row, inv *Invoice) error {
	return row.Scan(
		&inv.ID, &inv.ClientID, &inv.ProjectID, &inv.QuoteID, &inv.InvoiceNumber, &inv.Status,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Discount, &inv.Total,
		&inv.PaidAmount, &inv.DueAmount, &inv.IssueDate, &inv.DueDate, &inv.Notes, &inv.Terms,
		&inv.SentAt, &inv.ViewedAt, &inv.PaidAt, &inv.CancelledAt, &inv.CreatedBy, &inv.CreatedAt,
	)
}

func lockInvoiceTx(ctx context.Context, tx pgx.Tx, invoiceID int) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invoice", invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", invoiceID, err)
	}
	return &inv, nil
}

// lockInvoiceByQuoteTx returns the quote's invoice with a row lock, or nil if none exists.
func lockInvoiceByQuoteTx(ctx context.Context, tx pgx.Tx, quoteID int) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE quote_id = $1 FOR UPDATE`, quoteID), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch invoice for quote %d: %w", quoteID, err)
	}
	return &inv, nil
}

func getInvoiceQ(ctx context.Context, q pgxQuerier, where string, arg any) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where+` = $1`, arg), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invoice", fmt.Sprintf("%s=%v", where, arg))
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	if inv.Items, err = fetchItemsQ(ctx, q, invoiceItems, inv.ID); err != nil {
		return nil, err
	}
	return &inv, nil
}

// insertInvoiceTx numbers and stores a fully populated invoice with its items.
// It is shared by manual creation, conversion and payment synthesis so that
// every invoice number comes from the same counter.
func insertInvoiceTx(ctx context.Context, tx pgx.Tx, inv *Invoice, items []LineItem) error {
	number, err := nextNumberTx(ctx, tx, KindInvoice, inv.IssueDate.Year())
	if err != nil {
		return err
	}
	inv.InvoiceNumber = number

	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (client_id, project_id, quote_id, invoice_number, status, subtotal, tax_rate,
		                      tax_amount, discount, total, paid_amount, due_amount, issue_date, due_date,
		                      notes, terms, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at
	`, inv.ClientID, inv.ProjectID, inv.QuoteID, inv.InvoiceNumber, inv.Status, inv.Subtotal, inv.TaxRate,
		inv.TaxAmount, inv.Discount, inv.Total, inv.PaidAmount, inv.DueAmount, inv.IssueDate, inv.DueDate,
		inv.Notes, inv.Terms, inv.PaidAt, inv.CreatedBy).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "invoices_quote_id_key") {
			return fmt.Errorf("%w: quote %d already has an invoice", ErrDuplicateOperation, *inv.QuoteID)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	if err := insertItemsQ(ctx, tx, invoiceItems, inv.ID, items); err != nil {
		return err
	}
	inv.Items = items
	return nil
}

func invoiceDates(issue, due *time.Time, now time.Time) (time.Time, time.Time, error) {
	issueDate := dateOnly(now)
	if issue != nil {
		issueDate = dateOnly(*issue)
	}
	dueDate := issueDate.Add(DefaultPaymentTerm)
	if due != nil {
		dueDate = dateOnly(*due)
	}
	if dueDate.Before(issueDate) {
		return time.Time{}, time.Time{}, validationError("due date %s precedes issue date %s",
			dueDate.Format(time.DateOnly), issueDate.Format(time.DateOnly))
	}
	return issueDate, dueDate, nil
}

func (s *invoiceService) Create(ctx context.Context, actor Actor, input InvoiceInput) (*Invoice, error) {
	doc, err := prepareDocument(input.Items, input.TaxRate, input.Discount)
	if err != nil {
		return nil, err
	}
	issueDate, dueDate, err := invoiceDates(input.IssueDate, input.DueDate, time.Now())
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := checkDocumentOwnerQ(ctx, tx, input.ClientID, input.ProjectID); err != nil {
		return nil, err
	}

	inv := Invoice{
		ClientID:   input.ClientID,
		ProjectID:  input.ProjectID,
		Status:     InvoiceStatusDraft,
		Subtotal:   doc.totals.Subtotal,
		TaxRate:    input.TaxRate,
		TaxAmount:  doc.totals.TaxAmount,
		Discount:   input.Discount,
		Total:      doc.totals.Total,
		PaidAmount: decimal.Zero,
		DueAmount:  doc.totals.Total,
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Notes:      input.Notes,
		Terms:      input.Terms,
		CreatedBy:  actor.userID(),
	}
	if err := insertInvoiceTx(ctx, tx, &inv, doc.items); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceCreated, &inv, actor, map[string]any{
		"total": inv.Total.StringFixed(2),
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice creation: %w", err)
	}
	return s.Get(ctx, inv.ID)
}

func (s *invoiceService) Update(ctx context.Context, actor Actor, invoiceID int, input InvoiceInput) (*Invoice, error) {
	doc, err := prepareDocument(input.Items, input.TaxRate, input.Discount)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.CanEdit() {
		return nil, stateError("invoice", inv.ID, string(inv.Status), "be edited")
	}
	if err := checkDocumentOwnerQ(ctx, tx, input.ClientID, input.ProjectID); err != nil {
		return nil, err
	}
	issue, due := &inv.IssueDate, &inv.DueDate
	if input.IssueDate != nil {
		issue = input.IssueDate
	}
	if input.DueDate != nil {
		due = input.DueDate
	}
	issueDate, dueDate, err := invoiceDates(issue, due, time.Now())
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET client_id = $1, project_id = $2, subtotal = $3, tax_rate = $4, tax_amount = $5, discount = $6,
		    total = $7, paid_amount = 0, due_amount = $7, issue_date = $8, due_date = $9, notes = $10, terms = $11
		WHERE id = $12
	`, input.ClientID, input.ProjectID, doc.totals.Subtotal, input.TaxRate, doc.totals.TaxAmount, input.Discount,
		doc.totals.Total, issueDate, dueDate, input.Notes, input.Terms, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d: %w", invoiceID, err)
	}
	if err := replaceItemsQ(ctx, tx, invoiceItems, invoiceID, doc.items); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceUpdated, inv, actor, map[string]any{
		"total": doc.totals.Total.StringFixed(2),
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return s.Get(ctx, invoiceID)
}

func (s *invoiceService) Send(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceStatusDraft {
		return nil, stateError("invoice", inv.ID, string(inv.Status), "be sent")
	}
	if _, err := tx.Exec(ctx, `UPDATE invoices SET status = 'sent', sent_at = NOW() WHERE id = $1`, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to send invoice %d: %w", invoiceID, err)
	}
	inv.Status = InvoiceStatusSent
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceSent, inv, actor, nil)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice send: %w", err)
	}

	sent, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.notifyInvoice(ctx, sent)
	return sent, nil
}

func (s *invoiceService) notifyInvoice(ctx context.Context, inv *Invoice) {
	if s.notifier == nil {
		return
	}
	client, err := getClientQ(ctx, s.pool, inv.ClientID)
	if err == nil {
		err = s.notifier.SendInvoice(ctx, client, inv)
	}
	if err != nil {
		s.logger.Warn("invoice notification failed",
			zap.Int("invoice_id", inv.ID), zap.String("invoice_number", inv.InvoiceNumber), zap.Error(err))
	}
}

// MarkViewed is a no-op for invoices the client already opened or that moved on.
func (s *invoiceService) MarkViewed(ctx context.Context, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case InvoiceStatusDraft, InvoiceStatusCancelled:
		return nil, stateError("invoice", inv.ID, string(inv.Status), "be viewed")
	case InvoiceStatusSent:
		if _, err := tx.Exec(ctx, `
			UPDATE invoices SET status = 'viewed', viewed_at = COALESCE(viewed_at, NOW()) WHERE id = $1
		`, invoiceID); err != nil {
			return nil, fmt.Errorf("failed to mark invoice %d viewed: %w", invoiceID, err)
		}
		inv.Status = InvoiceStatusViewed
		if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceViewed, inv, Actor{}, nil)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice view: %w", err)
	}
	return s.Get(ctx, invoiceID)
}

func (s *invoiceService) RecordPayment(ctx context.Context, actor Actor, invoiceID int, amount decimal.Decimal) (*Invoice, error) {
	if err := checkPositiveMoney("payment amount", amount); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := ApplyPayment(inv, amount, time.Now()); err != nil {
		return nil, err
	}
	if err := updatePaymentProgressTx(ctx, tx, inv); err != nil {
		return nil, err
	}

	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoicePayment, inv, actor, map[string]any{
		"amount":      amount.StringFixed(2),
		"paid_amount": inv.PaidAmount.StringFixed(2),
		"due_amount":  inv.DueAmount.StringFixed(2),
	})); err != nil {
		return nil, err
	}
	if inv.IsSettled() {
		if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoicePaid, inv, actor, nil)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice payment: %w", err)
	}
	return s.Get(ctx, invoiceID)
}

func updatePaymentProgressTx(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoices SET paid_amount = $1, due_amount = $2, status = $3, paid_at = $4 WHERE id = $5
	`, inv.PaidAmount, inv.DueAmount, inv.Status, inv.PaidAt, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invoice %d payment progress: %w", inv.ID, err)
	}
	return nil
}

func (s *invoiceService) Cancel(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.CanCancel() {
		return nil, stateError("invoice", inv.ID, string(inv.Status), "be cancelled")
	}
	if _, err := tx.Exec(ctx, `UPDATE invoices SET status = 'cancelled', cancelled_at = NOW() WHERE id = $1`, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to cancel invoice %d: %w", invoiceID, err)
	}
	inv.Status = InvoiceStatusCancelled
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceCancelled, inv, actor, nil)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice cancellation: %w", err)
	}
	return s.Get(ctx, invoiceID)
}

func (s *invoiceService) Destroy(ctx context.Context, actor Actor, invoiceID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	if !inv.CanEdit() {
		return stateError("invoice", inv.ID, string(inv.Status), "be deleted")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", invoiceID, err)
	}
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceDeleted, inv, actor, nil)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice deletion: %w", err)
	}
	return nil
}

func (s *invoiceService) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE invoices
		SET status = 'overdue'
		WHERE status IN ('sent', 'viewed', 'partial') AND due_date < $1
		RETURNING id, project_id, invoice_number, due_amount
	`, dateOnly(today))
	if err != nil {
		return 0, fmt.Errorf("failed to mark invoices overdue: %w", err)
	}
	var overdue []Invoice
	for rows.Next() {
		inv := Invoice{Status: InvoiceStatusOverdue}
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.InvoiceNumber, &inv.DueAmount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan overdue invoice: %w", err)
		}
		overdue = append(overdue, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to mark invoices overdue: %w", err)
	}

	for i := range overdue {
		if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceOverdue, &overdue[i], Actor{}, map[string]any{
			"due_amount": overdue[i].DueAmount.StringFixed(2),
		})); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit overdue marking: %w", err)
	}
	if len(overdue) > 0 {
		s.logger.Info("marked invoices overdue", zap.Int("count", len(overdue)))
	}
	return len(overdue), nil
}

func (s *invoiceService) Get(ctx context.Context, invoiceID int) (*Invoice, error) {
	inv, err := getInvoiceQ(ctx, s.pool, "id", invoiceID)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("invoice", invoiceID)
	}
	return inv, err
}

func (s *invoiceService) GetByQuote(ctx context.Context, quoteID int) (*Invoice, error) {
	return getInvoiceQ(ctx, s.pool, "quote_id", quoteID)
}

func (s *invoiceService) List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	var f filterQuery
	if filter.ClientID != nil {
		f.add("client_id = $%d", *filter.ClientID)
	}
	if filter.Status != nil {
		f.add("status = $%d", string(*filter.Status))
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + f.where() + ` ORDER BY created_at DESC, id DESC` + f.limit(filter.Limit)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
