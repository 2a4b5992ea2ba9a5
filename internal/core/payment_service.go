package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// PaymentConfig holds the engine's settings.
type PaymentConfig struct {
	BaseURL  string
	Currency string
	// Timeout bounds every processor call.
	Timeout time.Duration
}

type paymentService struct {
	pool      *pgxpool.Pool
	processor Processor
	cfg       PaymentConfig
	logger    *zap.Logger
}

func NewPaymentService(pool *pgxpool.Pool, processor Processor, cfg PaymentConfig, logger *zap.Logger) PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &paymentService{pool: pool, processor: processor, cfg: cfg, logger: logger.Named("payments")}
}

const paymentColumns = `id, client_id, project_id, invoice_id, quote_id, processor, processor_payment_id,
	processor_payer_id, amount, currency, status, description, failure_reason, paid_at, created_at`

func scanPayment(row pgx.Row, p *Payment) error {
	return row.Scan(
		&p.ID, &p.ClientID, &p.ProjectID, &p.InvoiceID, &p.QuoteID, &p.Processor, &p.ProcessorPaymentID,
		&p.ProcessorPayerID, &p.Amount, &p.Currency, &p.Status, &p.Description, &p.FailureReason,
		&p.PaidAt, &p.CreatedAt,
	)
}

func lockPaymentTx(ctx context.Context, tx pgx.Tx, processorPaymentID string) (*Payment, error) {
	var p Payment
	err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE processor_payment_id = $1 FOR UPDATE`, processorPaymentID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("payment", processorPaymentID)
		}
		return nil, fmt.Errorf("failed to fetch payment %s: %w", processorPaymentID, err)
	}
	return &p, nil
}

func (s *paymentService) Initiate(ctx context.Context, actor Actor, input InitiatePaymentInput) (*InitiateResult, error) {
	if err := checkPositiveMoney("payment amount", input.Amount); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = "Payment"
	}
	if input.ClientID != nil {
		if _, err := getClientQ(ctx, s.pool, *input.ClientID); err != nil {
			return nil, err
		}
	}

	created, err := s.createAtProcessor(ctx, CreatePaymentRequest{
		Amount:      input.Amount,
		Currency:    currency,
		Description: description,
		Items:       []ProcessorItem{{Name: description, Quantity: 1, UnitPrice: input.Amount}},
		ReturnURL:   s.cfg.BaseURL + "/payments/return",
		CancelURL:   s.cfg.BaseURL + "/payments/cancel",
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p := &Payment{
		ClientID:           input.ClientID,
		Processor:          s.processor.Name(),
		ProcessorPaymentID: created.ID,
		Amount:             input.Amount,
		Currency:           currency,
		Status:             PaymentStatusPending,
		Description:        description,
	}
	if err := insertPaymentTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, paymentActivity(ActivityPaymentInitiated, p, actor, nil)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment initiation: %w", err)
	}
	s.logger.Info("payment initiated",
		zap.Int("payment_id", p.ID), zap.String("processor_payment_id", p.ProcessorPaymentID),
		zap.String("amount", p.Amount.StringFixed(2)), zap.String("currency", p.Currency))
	return &InitiateResult{Payment: p, ApprovalURL: created.ApprovalURL}, nil
}

func insertPaymentTx(ctx context.Context, tx pgx.Tx, p *Payment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (client_id, project_id, quote_id, processor, processor_payment_id,
		                      amount, currency, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, p.ClientID, p.ProjectID, p.QuoteID, p.Processor, p.ProcessorPaymentID,
		p.Amount, p.Currency, p.Status, p.Description).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: processor payment %s already recorded", ErrDuplicateOperation, p.ProcessorPaymentID)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *paymentService) createAtProcessor(ctx context.Context, req CreatePaymentRequest) (*CreatedPayment, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	created, err := s.processor.CreatePayment(cctx, req)
	if err != nil {
		var declined *DeclinedError
		if errors.As(err, &declined) {
			return nil, &ProcessorError{Op: "create", Message: declined.Reason}
		}
		return nil, &ProcessorError{Op: "create", Message: "could not create payment", Err: err}
	}
	if created.ID == "" || created.ApprovalURL == "" {
		return nil, &ProcessorError{Op: "create", Message: "processor returned no payment id or approval url"}
	}
	return created, nil
}

// captureOutcome is the result of a capture attempt on a locked pending payment.
type captureOutcome struct {
	payerID  string
	declined *DeclinedError
}

// capture calls the processor while the caller holds the payment row lock, so
// at most one capture is in flight per payment. Transport failures return an
// error and leave the payment pending.
func (s *paymentService) capture(ctx context.Context, p *Payment, payerID string) (*captureOutcome, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.processor.Capture(cctx, p.ProcessorPaymentID, payerID)
	if err != nil {
		var declined *DeclinedError
		if errors.As(err, &declined) {
			return &captureOutcome{declined: declined}, nil
		}
		s.logger.Warn("payment capture failed, payment stays pending",
			zap.String("processor_payment_id", p.ProcessorPaymentID), zap.Error(err))
		return nil, &ProcessorError{Op: "capture", Message: "capture did not complete", Err: err}
	}
	if res != nil && res.PayerID != "" {
		payerID = res.PayerID
	}
	return &captureOutcome{payerID: payerID}, nil
}

func markPaymentCompletedTx(ctx context.Context, tx pgx.Tx, p *Payment, payerID string, now time.Time) error {
	p.Status = PaymentStatusCompleted
	p.PaidAt = &now
	if payerID != "" {
		p.ProcessorPayerID = &payerID
	}
	_, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'completed', paid_at = $1, processor_payer_id = $2 WHERE id = $3
	`, now, p.ProcessorPayerID, p.ID)
	if err != nil {
		return fmt.Errorf("failed to complete payment %d: %w", p.ID, err)
	}
	return recordActivity(ctx, tx, paymentActivity(ActivityPaymentCompleted, p, Actor{}, nil))
}

func markPaymentFailedTx(ctx context.Context, tx pgx.Tx, p *Payment, reason, description string) error {
	p.Status = PaymentStatusFailed
	p.FailureReason = &reason
	_, err := tx.Exec(ctx, `UPDATE payments SET status = 'failed', failure_reason = $1 WHERE id = $2`, reason, p.ID)
	if err != nil {
		return fmt.Errorf("failed to mark payment %d failed: %w", p.ID, err)
	}
	return recordActivity(ctx, tx, paymentActivity(description, p, Actor{}, map[string]any{"reason": reason}))
}

func (s *paymentService) Confirm(ctx context.Context, processorPaymentID, payerID string) (*Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPaymentTx(ctx, tx, processorPaymentID)
	if err != nil {
		return nil, err
	}
	// Quote payments settle an invoice on capture; only ConfirmForQuote may take them.
	if p.QuoteID != nil {
		return nil, validationError("payment %s belongs to quote %d and must be confirmed through the quote", processorPaymentID, *p.QuoteID)
	}
	switch p.Status {
	case PaymentStatusCompleted:
		return p, nil
	case PaymentStatusPending:
	default:
		return nil, stateError("payment", p.ID, string(p.Status), "be confirmed")
	}

	outcome, err := s.capture(ctx, p, payerID)
	if err != nil {
		return nil, err
	}
	if outcome.declined != nil {
		if err := markPaymentFailedTx(ctx, tx, p, outcome.declined.Reason, ActivityPaymentFailed); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit declined payment: %w", err)
		}
		return nil, &ProcessorError{Op: "capture", Message: outcome.declined.Reason}
	}

	if err := markPaymentCompletedTx(ctx, tx, p, outcome.payerID, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment confirmation: %w", err)
	}
	s.logger.Info("payment captured", zap.Int("payment_id", p.ID), zap.String("processor_payment_id", processorPaymentID))
	return p, nil
}

func (s *paymentService) InitiateForQuote(ctx context.Context, actor Actor, quoteID int) (*InitiateResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if !q.CanPay() {
		return nil, stateError("quote", q.ID, string(q.Status), "be paid")
	}
	existing, err := lockInvoiceByQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: quote %s is already invoiced as %s", ErrDuplicateOperation, q.QuoteNumber, existing.InvoiceNumber)
	}
	var captured bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE quote_id = $1 AND status = 'completed')`, quoteID).Scan(&captured)
	if err != nil {
		return nil, fmt.Errorf("failed to check payments for quote %d: %w", quoteID, err)
	}
	if captured {
		return nil, fmt.Errorf("%w: quote %s already has a captured payment", ErrDuplicateOperation, q.QuoteNumber)
	}
	if !q.Total.IsPositive() {
		return nil, invalidAmount("quote %s has nothing to pay", q.QuoteNumber)
	}

	items, err := fetchItemsQ(ctx, tx, quoteItems, quoteID)
	if err != nil {
		return nil, err
	}
	description := "Quote " + q.QuoteNumber
	created, err := s.createAtProcessor(ctx, CreatePaymentRequest{
		Amount:      q.Total,
		Currency:    s.cfg.Currency,
		Description: description,
		Items: lo.Map(items, func(it LineItem, _ int) ProcessorItem {
			return ProcessorItem{Name: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		}),
		ReturnURL: fmt.Sprintf("%s/quotes/%d/payment/return", s.cfg.BaseURL, quoteID),
		CancelURL: s.cfg.BaseURL + "/payments/cancel",
	})
	if err != nil {
		return nil, err
	}

	if q.Status != QuoteStatusPaidPending {
		if _, err := tx.Exec(ctx, `UPDATE quotes SET status = 'paid_pending' WHERE id = $1`, quoteID); err != nil {
			return nil, fmt.Errorf("failed to mark quote %d payment pending: %w", quoteID, err)
		}
		q.Status = QuoteStatusPaidPending
	}

	clientID := q.ClientID
	p := &Payment{
		ClientID:           &clientID,
		ProjectID:          q.ProjectID,
		QuoteID:            &quoteID,
		Processor:          s.processor.Name(),
		ProcessorPaymentID: created.ID,
		Amount:             q.Total,
		Currency:           s.cfg.Currency,
		Status:             PaymentStatusPending,
		Description:        description,
	}
	if err := insertPaymentTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, paymentActivity(ActivityPaymentInitiated, p, actor, map[string]any{
		"quote_id": quoteID,
	})); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuotePayPending, q, actor, map[string]any{
		"payment_id": p.ID,
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote payment initiation: %w", err)
	}
	return &InitiateResult{Payment: p, ApprovalURL: created.ApprovalURL}, nil
}

// ConfirmForQuote runs capture, invoice synthesis and the quote transition in
// one transaction. Replays of a completed confirmation return the first result.
func (s *paymentService) ConfirmForQuote(ctx context.Context, processorPaymentID, payerID string) (*QuotePaymentResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPaymentTx(ctx, tx, processorPaymentID)
	if err != nil {
		return nil, err
	}
	if p.QuoteID == nil {
		return nil, validationError("payment %s does not belong to a quote", processorPaymentID)
	}
	if p.Status == PaymentStatusCompleted && p.InvoiceID != nil {
		inv, err := getInvoiceQ(ctx, tx, "id", *p.InvoiceID)
		if err != nil {
			return nil, err
		}
		return &QuotePaymentResult{Payment: p, Invoice: inv}, nil
	}
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusCompleted {
		return nil, stateError("payment", p.ID, string(p.Status), "be confirmed")
	}

	q, err := lockQuoteTx(ctx, tx, *p.QuoteID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	if p.Status == PaymentStatusPending && q.Status != QuoteStatusPaidPending {
		// Another payment already settled the quote; this one must not be captured.
		if err := markPaymentFailedTx(ctx, tx, p, "superseded", ActivityPaymentFailed); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit superseded payment: %w", err)
		}
		return nil, fmt.Errorf("%w: quote %s is %s", ErrDuplicateOperation, q.QuoteNumber, q.Status)
	}

	if p.Status == PaymentStatusPending {
		outcome, err := s.capture(ctx, p, payerID)
		if err != nil {
			return nil, err
		}
		if outcome.declined != nil {
			if err := markPaymentFailedTx(ctx, tx, p, outcome.declined.Reason, ActivityPaymentFailed); err != nil {
				return nil, err
			}
			if err := revertQuotePaymentTx(ctx, tx, q); err != nil {
				return nil, err
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit declined payment: %w", err)
			}
			return nil, &ProcessorError{Op: "capture", Message: outcome.declined.Reason}
		}
		if err := markPaymentCompletedTx(ctx, tx, p, outcome.payerID, now); err != nil {
			return nil, err
		}
	}

	inv, err := lockInvoiceByQuoteTx(ctx, tx, q.ID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		if inv, err = invoiceFromQuoteTx(ctx, tx, q, Actor{}, now, true); err != nil {
			return nil, err
		}
		if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoiceCreated, inv, Actor{}, map[string]any{
			"quote_number": q.QuoteNumber,
			"payment_id":   p.ID,
			"total":        inv.Total.StringFixed(2),
		})); err != nil {
			return nil, err
		}
	} else if !inv.IsSettled() {
		settleInvoice(inv, now)
		if err := updatePaymentProgressTx(ctx, tx, inv); err != nil {
			return nil, err
		}
	}
	if err := recordActivity(ctx, tx, invoiceActivity(ActivityInvoicePaid, inv, Actor{}, map[string]any{
		"payment_id": p.ID,
	})); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE payments SET invoice_id = $1 WHERE id = $2`, inv.ID, p.ID); err != nil {
		return nil, fmt.Errorf("failed to link payment %d to invoice %d: %w", p.ID, inv.ID, err)
	}
	p.InvoiceID = &inv.ID

	if _, err := tx.Exec(ctx, `UPDATE quotes SET status = 'paid' WHERE id = $1`, q.ID); err != nil {
		return nil, fmt.Errorf("failed to mark quote %d paid: %w", q.ID, err)
	}
	q.Status = QuoteStatusPaid
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuotePaid, q, Actor{}, map[string]any{
		"payment_id":     p.ID,
		"invoice_number": inv.InvoiceNumber,
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote payment: %w", err)
	}
	s.logger.Info("quote paid",
		zap.String("quote_number", q.QuoteNumber), zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("processor_payment_id", processorPaymentID))

	paid, err := getInvoiceQ(ctx, s.pool, "id", inv.ID)
	if err != nil {
		return nil, err
	}
	return &QuotePaymentResult{Payment: p, Invoice: paid}, nil
}

// revertQuotePaymentTx returns a paid_pending quote to accepted unless another
// pending payment for it is still open.
func revertQuotePaymentTx(ctx context.Context, tx pgx.Tx, q *Quote) error {
	tag, err := tx.Exec(ctx, `
		UPDATE quotes SET status = 'accepted'
		WHERE id = $1 AND status = 'paid_pending'
		  AND NOT EXISTS (SELECT 1 FROM payments WHERE quote_id = $1 AND status = 'pending')
	`, q.ID)
	if err != nil {
		return fmt.Errorf("failed to revert quote %d: %w", q.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	q.Status = QuoteStatusAccepted
	return recordActivity(ctx, tx, quoteActivity(ActivityQuotePayReverted, q, Actor{}, nil))
}

func (s *paymentService) AbandonStale(ctx context.Context, createdBefore time.Time) (*SweepResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE payments SET status = 'failed', failure_reason = 'abandoned'
		WHERE status = 'pending' AND created_at < $1
		RETURNING `+paymentColumns, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to abandon stale payments: %w", err)
	}
	var abandoned []Payment
	for rows.Next() {
		var p Payment
		if err := scanPayment(rows, &p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan abandoned payment: %w", err)
		}
		abandoned = append(abandoned, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to abandon stale payments: %w", err)
	}

	result := &SweepResult{Payments: len(abandoned)}
	for i := range abandoned {
		p := &abandoned[i]
		if err := recordActivity(ctx, tx, paymentActivity(ActivityPaymentAbandoned, p, Actor{}, nil)); err != nil {
			return nil, err
		}
	}

	quoteIDs := lo.Uniq(lo.FilterMap(abandoned, func(p Payment, _ int) (int, bool) {
		if p.QuoteID == nil {
			return 0, false
		}
		return *p.QuoteID, true
	}))
	for _, id := range quoteIDs {
		q, err := lockQuoteTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		before := q.Status
		if err := revertQuotePaymentTx(ctx, tx, q); err != nil {
			return nil, err
		}
		if before != q.Status {
			result.Quotes++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment sweep: %w", err)
	}
	if result.Payments > 0 {
		s.logger.Info("abandoned stale payments", zap.Int("payments", result.Payments), zap.Int("quotes", result.Quotes))
	}
	return result, nil
}

func (s *paymentService) Get(ctx context.Context, paymentID int) (*Payment, error) {
	var p Payment
	err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("payment", paymentID)
		}
		return nil, fmt.Errorf("failed to fetch payment %d: %w", paymentID, err)
	}
	return &p, nil
}

func (s *paymentService) GetByProcessorID(ctx context.Context, processorPaymentID string) (*Payment, error) {
	var p Payment
	err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE processor_payment_id = $1`, processorPaymentID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("payment", processorPaymentID)
		}
		return nil, fmt.Errorf("failed to fetch payment %s: %w", processorPaymentID, err)
	}
	return &p, nil
}
