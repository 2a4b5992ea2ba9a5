package app

import "freelance-office/internal/core"

// ClientResult is returned by client operations.
type ClientResult struct {
	Client *core.Client `json:"client"`
}

// ClientListResult is returned by ListClients.
type ClientListResult struct {
	Clients []core.Client `json:"clients"`
}

// ProjectResult is returned by CreateProject.
type ProjectResult struct {
	Project *core.Project `json:"project"`
}

// ProjectListResult is returned by ListProjects.
type ProjectListResult struct {
	Projects []core.Project `json:"projects"`
}

// ContactResult is returned by SubmitContact.
type ContactResult struct {
	Client  *core.Client `json:"client"`
	Created bool         `json:"created"`
}

// QuoteResult is returned by quote lifecycle operations.
type QuoteResult struct {
	Quote *core.Quote `json:"quote"`
}

// QuoteListResult is returned by ListQuotes.
type QuoteListResult struct {
	Quotes []core.Quote `json:"quotes"`
}

// SendQuoteResult carries the approval link mailed to the client.
type SendQuoteResult struct {
	Quote       *core.Quote `json:"quote"`
	ApprovalURL string      `json:"approval_url"`
}

// ConversionResult is returned by ConvertQuote. Created is false when the
// quote had already been converted.
type ConversionResult struct {
	Invoice *core.Invoice `json:"invoice"`
	Created bool          `json:"created"`
}

// InvoiceResult is returned by invoice lifecycle operations.
type InvoiceResult struct {
	Invoice *core.Invoice `json:"invoice"`
}

// InvoiceListResult is returned by ListInvoices.
type InvoiceListResult struct {
	Invoices []core.Invoice `json:"invoices"`
}

// PaymentStartResult tells the caller where to send the payer.
type PaymentStartResult struct {
	Payment     *core.Payment `json:"payment"`
	ApprovalURL string        `json:"approval_url"`
}

// PaymentResult is returned by ConfirmPayment and GetPayment.
type PaymentResult struct {
	Payment *core.Payment `json:"payment"`
}

// QuotePaymentResult is returned by ConfirmQuotePayment.
type QuotePaymentResult struct {
	Payment *core.Payment `json:"payment"`
	Invoice *core.Invoice `json:"invoice"`
}

// ActivityListResult is returned by ListActivities.
type ActivityListResult struct {
	Activities []core.Activity `json:"activities"`
}

// AuditResult lists invariant violations. Clean is true when none were found.
type AuditResult struct {
	Findings []core.AuditFinding `json:"findings"`
	Clean    bool                `json:"clean"`
}

// SweepResult counts what RunSweep changed.
type SweepResult struct {
	ExpiredQuotes     int `json:"expired_quotes"`
	OverdueInvoices   int `json:"overdue_invoices"`
	AbandonedPayments int `json:"abandoned_payments"`
	RevertedQuotes    int `json:"reverted_quotes"`
}

// DraftResult is the AI-proposed content for a new quote.
type DraftResult struct {
	Draft *core.QuoteDraft `json:"draft"`
	Items []core.ItemInput `json:"items"`
}
