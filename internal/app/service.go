package app

import (
	"context"
	"io"
	"time"

	"freelance-office/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// Clients and projects
	CreateClient(ctx context.Context, actor core.Actor, req CreateClientRequest) (*ClientResult, error)
	GetClient(ctx context.Context, clientID int) (*ClientResult, error)
	ListClients(ctx context.Context) (*ClientListResult, error)
	CreateProject(ctx context.Context, actor core.Actor, req CreateProjectRequest) (*ProjectResult, error)
	ListProjects(ctx context.Context, clientID int) (*ProjectListResult, error)
	// SubmitContact finds or creates the client by email and sends a confirmation.
	SubmitContact(ctx context.Context, req ContactRequest) (*ContactResult, error)

	// Quotes (admin)
	CreateQuote(ctx context.Context, actor core.Actor, req QuoteRequest) (*QuoteResult, error)
	UpdateQuote(ctx context.Context, actor core.Actor, quoteID int, req QuoteRequest) (*QuoteResult, error)
	GetQuote(ctx context.Context, quoteID int) (*QuoteResult, error)
	ListQuotes(ctx context.Context, filter core.QuoteFilter) (*QuoteListResult, error)
	SendQuote(ctx context.Context, actor core.Actor, quoteID int) (*SendQuoteResult, error)
	AcceptQuote(ctx context.Context, actor core.Actor, quoteID int) (*QuoteResult, error)
	RejectQuote(ctx context.Context, actor core.Actor, quoteID int) (*QuoteResult, error)
	DeleteQuote(ctx context.Context, actor core.Actor, quoteID int) error
	// ConvertQuote creates the draft invoice for an accepted quote, or returns the existing one.
	ConvertQuote(ctx context.Context, actor core.Actor, quoteID int) (*ConversionResult, error)

	// Quotes (client link)
	// ReviewQuote validates the link token and records that the client opened the quote.
	ReviewQuote(ctx context.Context, quoteID int, token string) (*QuoteResult, error)
	// ResolveQuote consumes the link token; action is "approve", "accept" or "reject".
	ResolveQuote(ctx context.Context, quoteID int, token, action string) (*QuoteResult, error)

	// Quote payments
	StartQuotePayment(ctx context.Context, actor core.Actor, quoteID int) (*PaymentStartResult, error)
	// StartClientQuotePayment lets the client pay an accepted quote; email must match the quote's client.
	StartClientQuotePayment(ctx context.Context, quoteID int, email string) (*PaymentStartResult, error)
	ConfirmQuotePayment(ctx context.Context, processorPaymentID, payerID string) (*QuotePaymentResult, error)

	// Invoices
	CreateInvoice(ctx context.Context, actor core.Actor, req InvoiceRequest) (*InvoiceResult, error)
	UpdateInvoice(ctx context.Context, actor core.Actor, invoiceID int, req InvoiceRequest) (*InvoiceResult, error)
	GetInvoice(ctx context.Context, invoiceID int) (*InvoiceResult, error)
	ListInvoices(ctx context.Context, filter core.InvoiceFilter) (*InvoiceListResult, error)
	SendInvoice(ctx context.Context, actor core.Actor, invoiceID int) (*InvoiceResult, error)
	MarkInvoiceViewed(ctx context.Context, invoiceID int) (*InvoiceResult, error)
	RecordInvoicePayment(ctx context.Context, actor core.Actor, invoiceID int, amount decimal.Decimal) (*InvoiceResult, error)
	CancelInvoice(ctx context.Context, actor core.Actor, invoiceID int) (*InvoiceResult, error)
	DeleteInvoice(ctx context.Context, actor core.Actor, invoiceID int) error

	// Generic payments
	InitiatePayment(ctx context.Context, actor core.Actor, req InitiatePaymentRequest) (*PaymentStartResult, error)
	ConfirmPayment(ctx context.Context, processorPaymentID, payerID string) (*PaymentResult, error)
	GetPayment(ctx context.Context, paymentID int) (*PaymentResult, error)

	// Activity, reporting and maintenance
	ListActivities(ctx context.Context, filter core.ActivityFilter) (*ActivityListResult, error)
	GetSummary(ctx context.Context) (*core.RevenueSummary, error)
	RunAudit(ctx context.Context) (*AuditResult, error)
	// RunSweep expires quotes, flags overdue invoices and abandons stale payments.
	RunSweep(ctx context.Context, now time.Time) (*SweepResult, error)

	// Exports write an XLSX workbook to w.
	ExportQuote(ctx context.Context, quoteID int, w io.Writer) error
	ExportInvoice(ctx context.Context, invoiceID int, w io.Writer) error

	// DraftQuote asks the AI agent for line items matching a brief. Nothing is stored.
	DraftQuote(ctx context.Context, brief string) (*DraftResult, error)
}
