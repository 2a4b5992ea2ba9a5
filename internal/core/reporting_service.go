package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// RevenueSummary is the dashboard view of money in and money owed.
type RevenueSummary struct {
	Currency          string          `json:"currency"`
	PaidTotal         decimal.Decimal `json:"paid_total"`         // sum of paid_amount over non-cancelled invoices
	OutstandingTotal  decimal.Decimal `json:"outstanding_total"`  // sum of due_amount over sent/viewed/partial/overdue
	OverdueTotal      decimal.Decimal `json:"overdue_total"`      // due_amount of overdue invoices only
	CapturedPayments  decimal.Decimal `json:"captured_payments"`  // completed processor payments
	OpenQuotesTotal   decimal.Decimal `json:"open_quotes_total"`  // sent and viewed quotes
	AcceptedNotBilled decimal.Decimal `json:"accepted_not_billed"` // accepted quotes without an invoice
	InvoiceCounts     map[string]int  `json:"invoice_counts"`
	QuoteCounts       map[string]int  `json:"quote_counts"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// AuditFinding is one row that breaks a stored money or status invariant.
type AuditFinding struct {
	Entity  string `json:"entity"`
	ID      int    `json:"id"`
	Number  string `json:"number"`
	Problem string `json:"problem"`
}

// ReportingService provides read-only aggregate views.
type ReportingService interface {
	Summary(ctx context.Context) (*RevenueSummary, error)
	// Audit re-checks stored documents against the totals and status rules
	// and reports every violation found. An empty result means a clean database.
	Audit(ctx context.Context) ([]AuditFinding, error)
}

type reportingService struct {
	pool     *pgxpool.Pool
	currency string
}

func NewReportingService(pool *pgxpool.Pool, currency string) ReportingService {
	return &reportingService{pool: pool, currency: currency}
}

// ── Summary ───────────────────────────────────────────────────────────────────

func (s *reportingService) Summary(ctx context.Context) (*RevenueSummary, error) {
	sum := &RevenueSummary{
		Currency:      s.currency,
		InvoiceCounts: map[string]int{},
		QuoteCounts:   map[string]int{},
		GeneratedAt:   time.Now().UTC(),
	}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(paid_amount) FILTER (WHERE status <> 'cancelled'), 0),
			COALESCE(SUM(due_amount) FILTER (WHERE status IN ('sent', 'viewed', 'partial', 'overdue')), 0),
			COALESCE(SUM(due_amount) FILTER (WHERE status = 'overdue'), 0)
		FROM invoices
	`).Scan(&sum.PaidTotal, &sum.OutstandingTotal, &sum.OverdueTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate invoices: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'completed'
	`).Scan(&sum.CapturedPayments)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payments: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(q.total) FILTER (WHERE q.status IN ('sent', 'viewed')), 0),
			COALESCE(SUM(q.total) FILTER (WHERE q.status = 'accepted' AND i.id IS NULL), 0)
		FROM quotes q
		LEFT JOIN invoices i ON i.quote_id = q.id
	`).Scan(&sum.OpenQuotesTotal, &sum.AcceptedNotBilled)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate quotes: %w", err)
	}

	if err := s.countByStatus(ctx, "invoices", sum.InvoiceCounts); err != nil {
		return nil, err
	}
	if err := s.countByStatus(ctx, "quotes", sum.QuoteCounts); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *reportingService) countByStatus(ctx context.Context, table string, out map[string]int) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, table))
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", table, err)
		}
		out[status] = n
	}
	return rows.Err()
}

// ── Audit ─────────────────────────────────────────────────────────────────────

// auditChecks pairs a problem description with a query returning (id, number)
// of every offending row.
var auditChecks = []struct {
	entity  string
	problem string
	query   string
}{
	{"quote", "total differs from subtotal + tax - discount", `
		SELECT id, quote_number FROM quotes
		WHERE total <> subtotal + tax_amount - discount`},
	{"quote", "tax_amount differs from round(subtotal * tax_rate / 100, 2)", `
		SELECT id, quote_number FROM quotes
		WHERE tax_amount <> ROUND(subtotal * tax_rate / 100, 2)`},
	{"quote", "subtotal differs from the sum of its items", `
		SELECT q.id, q.quote_number FROM quotes q
		LEFT JOIN quote_items qi ON qi.quote_id = q.id
		GROUP BY q.id HAVING q.subtotal <> COALESCE(SUM(qi.subtotal), 0)`},
	{"quote", "approval token present outside sent/viewed", `
		SELECT id, quote_number FROM quotes
		WHERE approval_token IS NOT NULL AND status NOT IN ('sent', 'viewed')`},
	{"quote", "sent/viewed quote without approval token", `
		SELECT id, quote_number FROM quotes
		WHERE approval_token IS NULL AND status IN ('sent', 'viewed')`},
	{"quote_item", "subtotal differs from quantity * unit_price", `
		SELECT qi.id, q.quote_number FROM quote_items qi JOIN quotes q ON q.id = qi.quote_id
		WHERE qi.subtotal <> qi.quantity * qi.unit_price`},
	{"invoice", "total differs from subtotal + tax - discount", `
		SELECT id, invoice_number FROM invoices
		WHERE total <> subtotal + tax_amount - discount`},
	{"invoice", "due_amount differs from total - paid_amount", `
		SELECT id, invoice_number FROM invoices
		WHERE due_amount <> total - paid_amount`},
	{"invoice", "paid invoice with an outstanding balance", `
		SELECT id, invoice_number FROM invoices
		WHERE status = 'paid' AND due_amount <> 0`},
	{"invoice", "subtotal differs from the sum of its items", `
		SELECT i.id, i.invoice_number FROM invoices i
		LEFT JOIN invoice_items ii ON ii.invoice_id = i.id
		GROUP BY i.id HAVING i.subtotal <> COALESCE(SUM(ii.subtotal), 0)`},
	{"invoice_item", "subtotal differs from quantity * unit_price", `
		SELECT ii.id, i.invoice_number FROM invoice_items ii JOIN invoices i ON i.id = ii.invoice_id
		WHERE ii.subtotal <> ii.quantity * ii.unit_price`},
	{"payment", "completed quote payment without a linked invoice", `
		SELECT id, processor_payment_id FROM payments
		WHERE status = 'completed' AND quote_id IS NOT NULL AND invoice_id IS NULL`},
	{"quote", "paid quote without an invoice", `
		SELECT q.id, q.quote_number FROM quotes q
		WHERE q.status = 'paid' AND NOT EXISTS (SELECT 1 FROM invoices i WHERE i.quote_id = q.id)`},
}

func (s *reportingService) Audit(ctx context.Context) ([]AuditFinding, error) {
	findings := []AuditFinding{}
	for _, check := range auditChecks {
		rows, err := s.pool.Query(ctx, check.query)
		if err != nil {
			return nil, fmt.Errorf("audit %s (%s): %w", check.entity, check.problem, err)
		}
		for rows.Next() {
			f := AuditFinding{Entity: check.entity, Problem: check.problem}
			if err := rows.Scan(&f.ID, &f.Number); err != nil {
				rows.Close()
				return nil, fmt.Errorf("audit %s: failed to scan: %w", check.entity, err)
			}
			findings = append(findings, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("audit %s: %w", check.entity, err)
		}
	}
	return findings, nil
}
