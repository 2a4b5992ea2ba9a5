package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the reconciliation state of a processor payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment mirrors one payment at the external processor.
// It is created pending before the payer is redirected and becomes completed
// only after a successful capture.
type Payment struct {
	ID                 int             `json:"id"`
	ClientID           *int            `json:"client_id,omitempty"`
	ProjectID          *int            `json:"project_id,omitempty"`
	InvoiceID          *int            `json:"invoice_id,omitempty"`
	QuoteID            *int            `json:"quote_id,omitempty"`
	Processor          string          `json:"processor"`
	ProcessorPaymentID string          `json:"processor_payment_id"`
	ProcessorPayerID   *string         `json:"processor_payer_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             PaymentStatus   `json:"status"`
	Description        string          `json:"description"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// InitiatePaymentInput starts a generic payment.
type InitiatePaymentInput struct {
	Amount      decimal.Decimal
	Currency    string // empty means the configured default
	Description string
	ClientID    *int
}

// InitiateResult is what the caller needs to redirect the payer.
type InitiateResult struct {
	Payment     *Payment
	ApprovalURL string
}

// QuotePaymentResult is returned by ConfirmForQuote.
type QuotePaymentResult struct {
	Payment *Payment
	Invoice *Invoice
}

// SweepResult counts rows touched by AbandonStale.
type SweepResult struct {
	Payments int
	Quotes   int
}

// PaymentService is the only component that talks to the payment processor.
type PaymentService interface {
	Initiate(ctx context.Context, actor Actor, input InitiatePaymentInput) (*InitiateResult, error)
	// Confirm captures a pending payment. A completed payment is returned without a second capture.
	Confirm(ctx context.Context, processorPaymentID, payerID string) (*Payment, error)

	InitiateForQuote(ctx context.Context, actor Actor, quoteID int) (*InitiateResult, error)
	// ConfirmForQuote captures the payment and synthesizes exactly one paid invoice for the quote.
	ConfirmForQuote(ctx context.Context, processorPaymentID, payerID string) (*QuotePaymentResult, error)

	// AbandonStale fails pending payments created before the cutoff.
	AbandonStale(ctx context.Context, createdBefore time.Time) (*SweepResult, error)

	Get(ctx context.Context, paymentID int) (*Payment, error)
	GetByProcessorID(ctx context.Context, processorPaymentID string) (*Payment, error)
}
