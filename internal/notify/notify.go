// Package notify delivers client notifications. Outbound email is handled
// elsewhere; LogNotifier records each message as a structured log line so the
// delivery pipeline can pick it up.
package notify

import (
	"context"

	"freelance-office/internal/core"

	"go.uber.org/zap"
)

// LogNotifier implements core.Notifier by logging.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) SendQuoteApproval(ctx context.Context, client *core.Client, quote *core.Quote, approvalURL string) error {
	n.logger.Info("quote approval request",
		zap.String("to", client.Email),
		zap.String("client", client.Name),
		zap.String("quote_number", quote.QuoteNumber),
		zap.String("total", quote.Total.StringFixed(2)),
		zap.Time("valid_until", quote.ValidUntil),
		zap.String("approval_url", approvalURL),
	)
	return nil
}

func (n *LogNotifier) SendInvoice(ctx context.Context, client *core.Client, invoice *core.Invoice) error {
	n.logger.Info("invoice issued",
		zap.String("to", client.Email),
		zap.String("client", client.Name),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("due_amount", invoice.DueAmount.StringFixed(2)),
		zap.Time("due_date", invoice.DueDate),
	)
	return nil
}

func (n *LogNotifier) SendContactConfirmation(ctx context.Context, client *core.Client, message string) error {
	n.logger.Info("contact confirmation",
		zap.String("to", client.Email),
		zap.String("client", client.Name),
		zap.Int("message_length", len(message)),
	)
	return nil
}

var _ core.Notifier = (*LogNotifier)(nil)
