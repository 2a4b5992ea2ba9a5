package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Activity descriptions. Each names the transition that produced the row.
const (
	ActivityQuoteCreated     = "quote.created"
	ActivityQuoteUpdated     = "quote.updated"
	ActivityQuoteSent        = "quote.sent"
	ActivityQuoteViewed      = "quote.viewed"
	ActivityQuoteAccepted    = "quote.accepted"
	ActivityQuoteRejected    = "quote.rejected"
	ActivityQuoteExpired     = "quote.expired"
	ActivityQuoteDeleted     = "quote.deleted"
	ActivityQuoteConverted   = "quote.converted"
	ActivityQuotePayPending  = "quote.payment_pending"
	ActivityQuotePaid        = "quote.paid"
	ActivityQuotePayReverted = "quote.payment_reverted"

	ActivityInvoiceCreated   = "invoice.created"
	ActivityInvoiceUpdated   = "invoice.updated"
	ActivityInvoiceSent      = "invoice.sent"
	ActivityInvoiceViewed    = "invoice.viewed"
	ActivityInvoicePayment   = "invoice.payment_recorded"
	ActivityInvoicePaid      = "invoice.paid"
	ActivityInvoiceOverdue   = "invoice.overdue"
	ActivityInvoiceCancelled = "invoice.cancelled"
	ActivityInvoiceDeleted   = "invoice.deleted"

	ActivityPaymentInitiated = "payment.initiated"
	ActivityPaymentCompleted = "payment.completed"
	ActivityPaymentFailed    = "payment.failed"
	ActivityPaymentAbandoned = "payment.abandoned"

	ActivityClientCreated  = "client.created"
	ActivityClientContact  = "client.contact"
	ActivityProjectCreated = "project.created"
)

// ActivityFilter narrows List. Zero values mean no restriction.
type ActivityFilter struct {
	SubjectType string
	SubjectID   int
	ProjectID   int
	Limit       int
}

// ActivityLog is the read side of the append-only audit trail.
// Rows are written by the services inside their own transactions.
type ActivityLog interface {
	List(ctx context.Context, filter ActivityFilter) ([]Activity, error)
}

type activityLog struct {
	pool *pgxpool.Pool
}

func NewActivityLog(pool *pgxpool.Pool) ActivityLog {
	return &activityLog{pool: pool}
}

// RecordActivity appends an activity inside the caller's transaction.
func RecordActivity(ctx context.Context, tx pgx.Tx, a Activity) error {
	return recordActivity(ctx, tx, a)
}

func recordActivity(ctx context.Context, q pgxQuerier, a Activity) error {
	if a.Properties == nil {
		a.Properties = map[string]any{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO activities (description, subject_type, subject_id, project_id, user_id, properties)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.Description, a.SubjectType, a.SubjectID, a.ProjectID, a.UserID, a.Properties)
	if err != nil {
		return fmt.Errorf("failed to record activity %s: %w", a.Description, err)
	}
	return nil
}

func (l *activityLog) List(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SubjectType != "" {
		args = append(args, filter.SubjectType)
		conds = append(conds, fmt.Sprintf("subject_type = $%d", len(args)))
	}
	if filter.SubjectID != 0 {
		args = append(args, filter.SubjectID)
		conds = append(conds, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.ProjectID != 0 {
		args = append(args, filter.ProjectID)
		conds = append(conds, fmt.Sprintf("project_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT id, description, subject_type, subject_id, project_id, user_id, properties, created_at FROM activities`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Description, &a.SubjectType, &a.SubjectID,
			&a.ProjectID, &a.UserID, &a.Properties, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func quoteActivity(description string, q *Quote, actor Actor, props map[string]any) Activity {
	if props == nil {
		props = map[string]any{}
	}
	props["quote_number"] = q.QuoteNumber
	props["status"] = string(q.Status)
	return Activity{
		Description: description,
		SubjectType: "quote",
		SubjectID:   q.ID,
		ProjectID:   q.ProjectID,
		UserID:      actor.userID(),
		Properties:  props,
	}
}

func invoiceActivity(description string, inv *Invoice, actor Actor, props map[string]any) Activity {
	if props == nil {
		props = map[string]any{}
	}
	props["invoice_number"] = inv.InvoiceNumber
	props["status"] = string(inv.Status)
	return Activity{
		Description: description,
		SubjectType: "invoice",
		SubjectID:   inv.ID,
		ProjectID:   inv.ProjectID,
		UserID:      actor.userID(),
		Properties:  props,
	}
}

func paymentActivity(description string, p *Payment, actor Actor, props map[string]any) Activity {
	if props == nil {
		props = map[string]any{}
	}
	props["processor_payment_id"] = p.ProcessorPaymentID
	props["amount"] = p.Amount.StringFixed(2)
	props["currency"] = p.Currency
	props["status"] = string(p.Status)
	return Activity{
		Description: description,
		SubjectType: "payment",
		SubjectID:   p.ID,
		ProjectID:   p.ProjectID,
		UserID:      actor.userID(),
		Properties:  props,
	}
}
