package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
//
//	draft → sent → viewed | partial | paid | overdue | cancelled
//	partial/overdue → partial | paid
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// DefaultPaymentTerm applies when an invoice is created without a due date.
const DefaultPaymentTerm = 30 * 24 * time.Hour

// Invoice is a billing obligation with tracked payment progress.
type Invoice struct {
	ID            int             `json:"id"`
	ClientID      int             `json:"client_id"`
	ProjectID     *int            `json:"project_id,omitempty"`
	QuoteID       *int            `json:"quote_id,omitempty"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        InvoiceStatus   `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Notes         string          `json:"notes"`
	Terms         string          `json:"terms"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	ViewedAt      *time.Time      `json:"viewed_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedBy     *int            `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []LineItem      `json:"items"`
}

// IsDraft returns true if the invoice is in draft status.
func (i *Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft
}

// IsSettled returns true once nothing remains to be paid.
func (i *Invoice) IsSettled() bool {
	return i.Status == InvoiceStatusPaid
}

// InvoiceInput is used to create or replace the editable part of an invoice.
type InvoiceInput struct {
	ClientID  int
	ProjectID *int
	Items     []ItemInput
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
	Notes     string
	Terms     string
	IssueDate *time.Time
	DueDate   *time.Time
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	ClientID *int
	Status   *InvoiceStatus
	Limit    int
}

// ConversionResult is returned by Convert. Created is false when an invoice
// for the quote already existed and was returned instead.
type ConversionResult struct {
	Invoice *Invoice
	Created bool
}

// InvoiceService drives the invoice lifecycle.
type InvoiceService interface {
	Create(ctx context.Context, actor Actor, input InvoiceInput) (*Invoice, error)
	Update(ctx context.Context, actor Actor, invoiceID int, input InvoiceInput) (*Invoice, error)
	Send(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error)
	MarkViewed(ctx context.Context, invoiceID int) (*Invoice, error)
	// RecordPayment applies a manual payment; the amount may not exceed the due amount.
	RecordPayment(ctx context.Context, actor Actor, invoiceID int, amount decimal.Decimal) (*Invoice, error)
	Cancel(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error)
	Destroy(ctx context.Context, actor Actor, invoiceID int) error
	// MarkOverdue flags unpaid sent invoices whose due date is before today.
	MarkOverdue(ctx context.Context, today time.Time) (int, error)

	// Convert turns an accepted quote into a draft invoice, at most once.
	Convert(ctx context.Context, actor Actor, quoteID int) (*ConversionResult, error)

	Get(ctx context.Context, invoiceID int) (*Invoice, error)
	GetByQuote(ctx context.Context, quoteID int) (*Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
}
