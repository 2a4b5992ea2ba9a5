package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"freelance-office/internal/core"
	"freelance-office/internal/processor/sandbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPayment_InitiateAndConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.payments.Initiate(ctx, f.actor, core.InitiatePaymentInput{
		Amount:      d("45.00"),
		Description: "Retainer",
		ClientID:    &f.client.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusPending, res.Payment.Status)
	assert.Equal(t, "USD", res.Payment.Currency)
	assert.Contains(t, res.ApprovalURL, "http://office.test/payments/return")

	done, err := f.payments.Confirm(ctx, res.Payment.ProcessorPaymentID, sandbox.PayerID)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusCompleted, done.Status)
	require.NotNil(t, done.PaidAt)

	again, err := f.payments.Confirm(ctx, res.Payment.ProcessorPaymentID, sandbox.PayerID)
	require.NoError(t, err)
	assert.Equal(t, done.ID, again.ID)
	assert.Equal(t, 1, f.processor.Captures(res.Payment.ProcessorPaymentID))
}

func TestPayment_InitiateRejectsBadAmount(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.Initiate(context.Background(), f.actor, core.InitiatePaymentInput{Amount: d("0")})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestPayment_ProcessorCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.processor.FailNextCreate(errors.New("gateway timeout"))
	_, err := f.payments.Initiate(context.Background(), f.actor, core.InitiatePaymentInput{Amount: d("10.00")})
	assert.ErrorIs(t, err, core.ErrExternalProcessor)
}

func TestQuotePayment_ConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	assert.True(t, start.Payment.Amount.Equal(d("277.50")))
	pending, err := f.quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, core.QuoteStatusPaidPending, pending.Status)

	id := start.Payment.ProcessorPaymentID
	first, err := f.payments.ConfirmForQuote(ctx, id, sandbox.PayerID)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusCompleted, first.Payment.Status)
	assert.Equal(t, core.InvoiceStatusPaid, first.Invoice.Status)
	assert.True(t, first.Invoice.DueAmount.IsZero())
	assert.True(t, first.Invoice.PaidAmount.Equal(d("277.50")))

	second, err := f.payments.ConfirmForQuote(ctx, id, sandbox.PayerID)
	require.NoError(t, err)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Equal(t, 1, f.processor.Captures(id), "a repeated return must not capture again")

	paid, err := f.quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, core.QuoteStatusPaid, paid.Status)

	var invoices int
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE quote_id = $1`, q.ID).Scan(&invoices))
	assert.Equal(t, 1, invoices)

	conv, err := f.invoices.Convert(ctx, f.actor, q.ID)
	require.NoError(t, err)
	assert.False(t, conv.Created)
	assert.Equal(t, first.Invoice.ID, conv.Invoice.ID)
}

func TestQuotePayment_PendingQuoteCannotBeConverted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	_, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	conv, err := f.invoices.Convert(ctx, f.actor, q.ID)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Nil(t, conv)
}

func TestQuotePayment_DeclineRevertsQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	require.NoError(t, f.processor.Decline(start.Payment.ProcessorPaymentID, "card declined"))

	_, err = f.payments.ConfirmForQuote(ctx, start.Payment.ProcessorPaymentID, sandbox.PayerID)
	require.ErrorIs(t, err, core.ErrExternalProcessor)

	p, err := f.payments.GetByProcessorID(ctx, start.Payment.ProcessorPaymentID)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusFailed, p.Status)

	reverted, err := f.quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, core.QuoteStatusAccepted, reverted.Status)

	_, err = f.invoices.GetByQuote(ctx, q.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestQuotePayment_TransportFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	f.processor.FailNextCapture(nil)

	_, err = f.payments.ConfirmForQuote(ctx, start.Payment.ProcessorPaymentID, sandbox.PayerID)
	require.ErrorIs(t, err, core.ErrExternalProcessor)

	p, err := f.payments.GetByProcessorID(ctx, start.Payment.ProcessorPaymentID)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusPending, p.Status)

	// The retry succeeds.
	res, err := f.payments.ConfirmForQuote(ctx, start.Payment.ProcessorPaymentID, sandbox.PayerID)
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceStatusPaid, res.Invoice.Status)
}

func TestQuotePayment_RequiresAcceptedQuote(t *testing.T) {
	f := newFixture(t)
	q, _ := f.sentQuote(t)
	_, err := f.payments.InitiateForQuote(context.Background(), f.actor, q.ID)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestPayment_AbandonStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `UPDATE payments SET created_at = NOW() - INTERVAL '2 days' WHERE id = $1`, start.Payment.ID)
	require.NoError(t, err)

	res, err := f.payments.AbandonStale(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Payments)
	assert.Equal(t, 1, res.Quotes)

	p, err := f.payments.Get(ctx, start.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "abandoned", *p.FailureReason)

	reverted, err := f.quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, core.QuoteStatusAccepted, reverted.Status)

	// A late return for the abandoned payment is refused.
	_, err = f.payments.ConfirmForQuote(ctx, start.Payment.ProcessorPaymentID, sandbox.PayerID)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Zero(t, f.processor.Captures(start.Payment.ProcessorPaymentID))
}

func TestQuotePayment_GenericConfirmIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	id := start.Payment.ProcessorPaymentID

	_, err = f.payments.Confirm(ctx, id, sandbox.PayerID)
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Zero(t, f.processor.Captures(id))

	p, err := f.payments.GetByProcessorID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusPending, p.Status)

	// The quote flow still settles it normally.
	res, err := f.payments.ConfirmForQuote(ctx, id, sandbox.PayerID)
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, 1, f.processor.Captures(id))
}

func TestQuotePayment_NoSecondPaymentAfterCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)

	// A captured payment whose invoice was never linked.
	_, err = f.pool.Exec(ctx, `UPDATE payments SET status = 'completed', paid_at = NOW() WHERE id = $1`, start.Payment.ID)
	require.NoError(t, err)

	_, err = f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	assert.ErrorIs(t, err, core.ErrDuplicateOperation)

	var payments int
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE quote_id = $1`, q.ID).Scan(&payments))
	assert.Equal(t, 1, payments)
}

func TestQuotePayment_ConcurrentConfirmCapturesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.acceptedQuote(t)

	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	id := start.Payment.ProcessorPaymentID

	results := make([]*core.QuotePaymentResult, 8)
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		i := i
		g.Go(func() error {
			res, err := f.payments.ConfirmForQuote(gctx, id, sandbox.PayerID)
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, f.processor.Captures(id))
	for _, r := range results {
		assert.Equal(t, results[0].Invoice.ID, r.Invoice.ID)
		assert.Equal(t, core.PaymentStatusCompleted, r.Payment.Status)
	}

	var invoices int
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE quote_id = $1`, q.ID).Scan(&invoices))
	assert.Equal(t, 1, invoices)
}
