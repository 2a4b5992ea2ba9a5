package core_test

import (
	"context"
	"testing"

	"freelance-office/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporting_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.sentInvoice(t)
	_, err := f.invoices.RecordPayment(ctx, f.actor, inv.ID, d("100.00"))
	require.NoError(t, err)
	f.sentQuote(t)
	accepted := f.acceptedQuote(t)

	sum, err := f.reporting.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USD", sum.Currency)
	assert.True(t, sum.PaidTotal.Equal(d("100.00")), "paid %s", sum.PaidTotal)
	assert.True(t, sum.OutstandingTotal.Equal(d("177.50")), "outstanding %s", sum.OutstandingTotal)
	assert.True(t, sum.OverdueTotal.IsZero())
	assert.True(t, sum.OpenQuotesTotal.Equal(d("277.50")), "open %s", sum.OpenQuotesTotal)
	assert.True(t, sum.AcceptedNotBilled.Equal(accepted.Total))
	assert.Equal(t, 1, sum.InvoiceCounts["partial"])
	assert.Equal(t, 1, sum.QuoteCounts["sent"])
	assert.Equal(t, 1, sum.QuoteCounts["accepted"])
}

func TestReporting_AuditFindsBrokenTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q := f.acceptedQuote(t)
	start, err := f.payments.InitiateForQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)
	_, err = f.payments.ConfirmForQuote(ctx, start.Payment.ProcessorPaymentID, "")
	require.NoError(t, err)
	f.sentInvoice(t)

	findings, err := f.reporting.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings, "services must keep every invariant")

	broken := f.draftQuote(t)
	_, err = f.pool.Exec(ctx, `UPDATE quotes SET discount = discount + 1 WHERE id = $1`, broken.ID)
	require.NoError(t, err)

	findings, err = f.reporting.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, core.AuditFinding{
		Entity:  "quote",
		ID:      broken.ID,
		Number:  broken.QuoteNumber,
		Problem: "total differs from subtotal + tax - discount",
	}, findings[0])
}
