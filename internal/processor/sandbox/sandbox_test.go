package sandbox_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"freelance-office/internal/core"
	"freelance-office/internal/processor/sandbox"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func create(t *testing.T, p *sandbox.Processor) *core.CreatedPayment {
	t.Helper()
	created, err := p.CreatePayment(context.Background(), core.CreatePaymentRequest{
		Amount:    decimal.RequireFromString("277.50"),
		Currency:  "USD",
		ReturnURL: "http://office.test/quotes/4/payment/return",
	})
	require.NoError(t, err)
	return created
}

func TestSandbox_ApprovalURLPointsAtReturn(t *testing.T) {
	p := sandbox.New()
	created := create(t, p)

	u, err := url.Parse(created.ApprovalURL)
	require.NoError(t, err)
	assert.Equal(t, "/quotes/4/payment/return", u.Path)
	assert.Equal(t, created.ID, u.Query().Get("payment_id"))
	assert.Equal(t, sandbox.PayerID, u.Query().Get("payer_id"))
	assert.Equal(t, "sandbox", p.Name())
}

func TestSandbox_CaptureCountsCalls(t *testing.T) {
	p := sandbox.New()
	created := create(t, p)

	res, err := p.Capture(context.Background(), created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, sandbox.PayerID, res.PayerID)
	_, err = p.Capture(context.Background(), created.ID, "P-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Captures(created.ID))
}

func TestSandbox_DeclineAndFailures(t *testing.T) {
	p := sandbox.New()
	created := create(t, p)
	ctx := context.Background()

	var declined *core.DeclinedError
	_, err := p.Capture(ctx, "SBX-unknown", "")
	require.ErrorAs(t, err, &declined)

	p.FailNextCapture(nil)
	_, err = p.Capture(ctx, created.ID, "")
	require.Error(t, err)
	assert.False(t, errors.As(err, &declined), "transport failures are not declines")

	require.NoError(t, p.Decline(created.ID, "insufficient funds"))
	_, err = p.Capture(ctx, created.ID, "")
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "insufficient funds", declined.Reason)
	assert.Zero(t, p.Captures(created.ID))

	p.FailNextCreate(errors.New("down"))
	_, err = p.CreatePayment(ctx, core.CreatePaymentRequest{Amount: decimal.NewFromInt(1), ReturnURL: "http://x"})
	assert.EqualError(t, err, "down")
}
