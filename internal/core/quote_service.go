package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type quoteService struct {
	pool     *pgxpool.Pool
	notifier Notifier
	baseURL  string
	logger   *zap.Logger
}

// NewQuoteService wires the quote lifecycle. baseURL is used to build the
// client approval link, e.g. https://example.com/quotes/7/review?token=...
func NewQuoteService(pool *pgxpool.Pool, notifier Notifier, baseURL string, logger *zap.Logger) QuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &quoteService{
		pool:     pool,
		notifier: notifier,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.Named("quotes"),
	}
}

const quoteColumns = `id, client_id, project_id, quote_number, status, subtotal, tax_rate, tax_amount,
	discount, total, notes, terms, valid_until, sent_at, viewed_at, accepted_at, rejected_at,
	approval_token, approval_token_expires_at, created_by, created_at`

func scanQuote(row pgx.Row, q *Quote) error {
	return row.Scan(
		&q.ID, &q.ClientID, &q.ProjectID, &q.QuoteNumber, &q.Status,
		&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.Discount, &q.Total,
		&q.Notes, &q.Terms, &q.ValidUntil, &q.SentAt, &q.ViewedAt, &q.AcceptedAt, &q.RejectedAt,
		&q.ApprovalToken, &q.ApprovalTokenExpiresAt, &q.CreatedBy, &q.CreatedAt,
	)
}

// lockQuoteTx loads a quote and holds its row lock until the transaction ends.
func lockQuoteTx(ctx context.Context, tx pgx.Tx, quoteID int) (*Quote, error) {
	var q Quote
	err := scanQuote(tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, quoteID), &q)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("quote", quoteID)
		}
		return nil, fmt.Errorf("failed to fetch quote %d: %w", quoteID, err)
	}
	return &q, nil
}

func getQuoteQ(ctx context.Context, q pgxQuerier, quoteID int) (*Quote, error) {
	var quote Quote
	err := scanQuote(q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, quoteID), &quote)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("quote", quoteID)
		}
		return nil, fmt.Errorf("failed to fetch quote %d: %w", quoteID, err)
	}
	if quote.Items, err = fetchItemsQ(ctx, q, quoteItems, quoteID); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *quoteService) Create(ctx context.Context, actor Actor, input QuoteInput) (*Quote, error) {
	doc, err := prepareDocument(input.Items, input.TaxRate, input.Discount)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	validUntil := dateOnly(now.Add(DefaultQuoteValidity))
	if input.ValidUntil != nil {
		if validUntil, err = futureValidUntil(*input.ValidUntil, now); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := checkDocumentOwnerQ(ctx, tx, input.ClientID, input.ProjectID); err != nil {
		return nil, err
	}

	number, err := nextNumberTx(ctx, tx, KindQuote, now.Year())
	if err != nil {
		return nil, err
	}

	q := Quote{
		ClientID:    input.ClientID,
		ProjectID:   input.ProjectID,
		QuoteNumber: number,
		Status:      QuoteStatusDraft,
		Subtotal:    doc.totals.Subtotal,
		TaxRate:     input.TaxRate,
		TaxAmount:   doc.totals.TaxAmount,
		Discount:    input.Discount,
		Total:       doc.totals.Total,
		Notes:       input.Notes,
		Terms:       input.Terms,
		ValidUntil:  validUntil,
		CreatedBy:   actor.userID(),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO quotes (client_id, project_id, quote_number, status, subtotal, tax_rate, tax_amount,
		                    discount, total, notes, terms, valid_until, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, q.ClientID, q.ProjectID, q.QuoteNumber, q.Status, q.Subtotal, q.TaxRate, q.TaxAmount,
		q.Discount, q.Total, q.Notes, q.Terms, q.ValidUntil, q.CreatedBy).Scan(&q.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert quote: %w", err)
	}

	if err := insertItemsQ(ctx, tx, quoteItems, q.ID, doc.items); err != nil {
		return nil, err
	}
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteCreated, &q, actor, map[string]any{
		"total": q.Total.StringFixed(2),
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote creation: %w", err)
	}
	return s.Get(ctx, q.ID)
}

// futureValidUntil truncates v to a date and rejects dates before today.
func futureValidUntil(v, now time.Time) (time.Time, error) {
	d := dateOnly(v)
	if d.Before(dateOnly(now)) {
		return time.Time{}, validationError("valid_until %s is in the past", d.Format(time.DateOnly))
	}
	return d, nil
}

func (s *quoteService) Update(ctx context.Context, actor Actor, quoteID int, input QuoteInput) (*Quote, error) {
	doc, err := prepareDocument(input.Items, input.TaxRate, input.Discount)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if !q.CanEdit() {
		return nil, stateError("quote", q.ID, string(q.Status), "be edited")
	}
	if err := checkDocumentOwnerQ(ctx, tx, input.ClientID, input.ProjectID); err != nil {
		return nil, err
	}
	validUntil := q.ValidUntil
	if input.ValidUntil != nil {
		if validUntil, err = futureValidUntil(*input.ValidUntil, time.Now()); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE quotes
		SET client_id = $1, project_id = $2, subtotal = $3, tax_rate = $4, tax_amount = $5,
		    discount = $6, total = $7, notes = $8, terms = $9, valid_until = $10
		WHERE id = $11
	`, input.ClientID, input.ProjectID, doc.totals.Subtotal, input.TaxRate, doc.totals.TaxAmount,
		input.Discount, doc.totals.Total, input.Notes, input.Terms, validUntil, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to update quote %d: %w", quoteID, err)
	}
	if err := replaceItemsQ(ctx, tx, quoteItems, quoteID, doc.items); err != nil {
		return nil, err
	}
	q.Total = doc.totals.Total
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteUpdated, q, actor, map[string]any{
		"total": q.Total.StringFixed(2),
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote update: %w", err)
	}
	return s.Get(ctx, quoteID)
}

func (s *quoteService) Send(ctx context.Context, actor Actor, quoteID int) (*SendResult, error) {
	token, err := GenerateApprovalToken()
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if !q.CanSend() {
		return nil, stateError("quote", q.ID, string(q.Status), "be sent")
	}

	now := time.Now()
	expires := now.Add(ApprovalTokenTTL)
	resend := q.Status != QuoteStatusDraft
	_, err = tx.Exec(ctx, `
		UPDATE quotes
		SET status = 'sent', sent_at = $1, approval_token = $2, approval_token_expires_at = $3
		WHERE id = $4
	`, now, token, expires, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to send quote %d: %w", quoteID, err)
	}
	q.Status = QuoteStatusSent
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteSent, q, actor, map[string]any{
		"resend":     resend,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote send: %w", err)
	}

	sent, err := s.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	url := s.ApprovalURL(quoteID, token)
	s.notifyApproval(ctx, sent, url)
	return &SendResult{Quote: sent, ApprovalURL: url}, nil
}

// ApprovalURL is the client-facing review link for a sent quote.
func (s *quoteService) ApprovalURL(quoteID int, token string) string {
	return fmt.Sprintf("%s/quotes/%d/review?token=%s", s.baseURL, quoteID, token)
}

func (s *quoteService) notifyApproval(ctx context.Context, q *Quote, url string) {
	if s.notifier == nil {
		return
	}
	client, err := getClientQ(ctx, s.pool, q.ClientID)
	if err == nil {
		err = s.notifier.SendQuoteApproval(ctx, client, q, url)
	}
	if err != nil {
		s.logger.Warn("quote approval notification failed",
			zap.Int("quote_id", q.ID), zap.String("quote_number", q.QuoteNumber), zap.Error(err))
	}
}

func (s *quoteService) MarkViewed(ctx context.Context, quoteID int, token string) (*Quote, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if err := ValidateToken(q, token, time.Now()); err != nil {
		return nil, err
	}

	if q.Status == QuoteStatusSent {
		_, err = tx.Exec(ctx, `
			UPDATE quotes SET status = 'viewed', viewed_at = COALESCE(viewed_at, NOW()) WHERE id = $1
		`, quoteID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark quote %d viewed: %w", quoteID, err)
		}
		q.Status = QuoteStatusViewed
		if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteViewed, q, Actor{}, nil)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote view: %w", err)
	}
	return s.Get(ctx, quoteID)
}

// Resolve holds the quote row lock across validate-and-clear, so a token is
// consumed by at most one request. An expired token leaves the quote untouched.
func (s *quoteService) Resolve(ctx context.Context, quoteID int, token string, action ResolveAction) (*Quote, error) {
	if action != ResolveApprove && action != ResolveReject {
		return nil, validationError("unknown approval action %q", action)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := ValidateToken(q, token, now); err != nil {
		return nil, err
	}
	if err := s.resolveTx(ctx, tx, q, action, Actor{}, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote resolution: %w", err)
	}
	return s.Get(ctx, quoteID)
}

func (s *quoteService) Accept(ctx context.Context, actor Actor, quoteID int) (*Quote, error) {
	return s.resolveAsAdmin(ctx, actor, quoteID, ResolveApprove)
}

func (s *quoteService) Reject(ctx context.Context, actor Actor, quoteID int) (*Quote, error) {
	return s.resolveAsAdmin(ctx, actor, quoteID, ResolveReject)
}

func (s *quoteService) resolveAsAdmin(ctx context.Context, actor Actor, quoteID int, action ResolveAction) (*Quote, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return nil, err
	}
	if err := s.resolveTx(ctx, tx, q, action, actor, time.Now()); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quote resolution: %w", err)
	}
	return s.Get(ctx, quoteID)
}

func (s *quoteService) resolveTx(ctx context.Context, tx pgx.Tx, q *Quote, action ResolveAction, actor Actor, now time.Time) error {
	if err := applyResolution(q, action, now); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE quotes
		SET status = $1, accepted_at = $2, rejected_at = $3,
		    approval_token = NULL, approval_token_expires_at = NULL
		WHERE id = $4
	`, q.Status, q.AcceptedAt, q.RejectedAt, q.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve quote %d: %w", q.ID, err)
	}

	description := ActivityQuoteAccepted
	if action == ResolveReject {
		description = ActivityQuoteRejected
	}
	via := "link"
	if actor.UserID != 0 {
		via = "admin"
	}
	return recordActivity(ctx, tx, quoteActivity(description, q, actor, map[string]any{"via": via}))
}

func (s *quoteService) Destroy(ctx context.Context, actor Actor, quoteID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := lockQuoteTx(ctx, tx, quoteID)
	if err != nil {
		return err
	}
	if !q.CanEdit() {
		return stateError("quote", q.ID, string(q.Status), "be deleted")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, quoteID); err != nil {
		return fmt.Errorf("failed to delete quote %d: %w", quoteID, err)
	}
	if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteDeleted, q, actor, nil)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit quote deletion: %w", err)
	}
	return nil
}

func (s *quoteService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE quotes
		SET status = 'expired', approval_token = NULL, approval_token_expires_at = NULL
		WHERE status IN ('sent', 'viewed')
		  AND (approval_token_expires_at < $1 OR valid_until < $2)
		RETURNING id, project_id, quote_number
	`, now, dateOnly(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire quotes: %w", err)
	}
	var expired []Quote
	for rows.Next() {
		q := Quote{Status: QuoteStatusExpired}
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.QuoteNumber); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired quote: %w", err)
		}
		expired = append(expired, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to expire quotes: %w", err)
	}

	for i := range expired {
		if err := recordActivity(ctx, tx, quoteActivity(ActivityQuoteExpired, &expired[i], Actor{}, nil)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit quote expiry: %w", err)
	}
	if len(expired) > 0 {
		s.logger.Info("expired quotes", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (s *quoteService) Get(ctx context.Context, quoteID int) (*Quote, error) {
	return getQuoteQ(ctx, s.pool, quoteID)
}

func (s *quoteService) List(ctx context.Context, filter QuoteFilter) ([]Quote, error) {
	var f filterQuery
	if filter.ClientID != nil {
		f.add("client_id = $%d", *filter.ClientID)
	}
	if filter.Status != nil {
		f.add("status = $%d", string(*filter.Status))
	}
	query := `SELECT ` + quoteColumns + ` FROM quotes` + f.where() + ` ORDER BY created_at DESC, id DESC` + f.limit(filter.Limit)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		var q Quote
		if err := scanQuote(rows, &q); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
