package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// Processor is the narrow boundary to the external payment processor.
// The engine persists only the opaque identifiers it returns.
type Processor interface {
	// Name identifies the processor in stored payments, e.g. "stripe".
	Name() string
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatedPayment, error)
	// Capture finalizes a payment the payer approved. It returns a *DeclinedError
	// when the processor refuses; any other error is treated as retryable.
	Capture(ctx context.Context, processorPaymentID, payerID string) (*CaptureResult, error)
}

// ProcessorItem is an informational line sent along with a payment.
type ProcessorItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreatePaymentRequest describes the payment the payer is asked to approve.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Items       []ProcessorItem
	// ReturnURL receives the payer after approval. Implementations append
	// payment_id (and payer_id when known) as query parameters.
	ReturnURL string
	CancelURL string
}

// CreatedPayment is the processor's session for a payment awaiting approval.
type CreatedPayment struct {
	ID          string
	ApprovalURL string
}

// CaptureResult confirms that funds were captured.
type CaptureResult struct {
	PayerID string
}

// Notifier delivers client-facing messages. Calls are fire-and-forget:
// errors are logged by the caller and never undo a state transition.
type Notifier interface {
	SendQuoteApproval(ctx context.Context, client *Client, quote *Quote, approvalURL string) error
	SendInvoice(ctx context.Context, client *Client, invoice *Invoice) error
	SendContactConfirmation(ctx context.Context, client *Client, message string) error
}
