package core_test

import (
	"testing"
	"time"

	"freelance-office/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentInvoice(total string) *core.Invoice {
	return &core.Invoice{
		ID:         3,
		Status:     core.InvoiceStatusSent,
		Total:      d(total),
		PaidAmount: decimal.Zero,
		DueAmount:  d(total),
		DueDate:    time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestApplyPayment_PartialThenFull(t *testing.T) {
	now := time.Now()
	inv := sentInvoice("277.50")

	require.NoError(t, core.ApplyPayment(inv, d("100.00"), now))
	assert.Equal(t, core.InvoiceStatusPartial, inv.Status)
	assert.True(t, inv.PaidAmount.Equal(d("100.00")))
	assert.True(t, inv.DueAmount.Equal(d("177.50")), "due %s", inv.DueAmount)
	assert.Nil(t, inv.PaidAt)

	require.NoError(t, core.ApplyPayment(inv, d("177.50"), now))
	assert.Equal(t, core.InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.DueAmount.IsZero())
	require.NotNil(t, inv.PaidAt)
}

func TestApplyPayment_RejectsOverpayment(t *testing.T) {
	inv := sentInvoice("277.50")
	require.NoError(t, core.ApplyPayment(inv, d("100.00"), time.Now()))

	err := core.ApplyPayment(inv, d("177.51"), time.Now())
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.True(t, inv.PaidAmount.Equal(d("100.00")), "paid amount must be unchanged")
	assert.Equal(t, core.InvoiceStatusPartial, inv.Status)
}

func TestApplyPayment_RejectsNonPositive(t *testing.T) {
	inv := sentInvoice("50.00")
	assert.ErrorIs(t, core.ApplyPayment(inv, decimal.Zero, time.Now()), core.ErrInvalidAmount)
	assert.ErrorIs(t, core.ApplyPayment(inv, d("-5.00"), time.Now()), core.ErrInvalidAmount)
}

func TestApplyPayment_RejectsWrongState(t *testing.T) {
	for _, status := range []core.InvoiceStatus{core.InvoiceStatusDraft, core.InvoiceStatusPaid, core.InvoiceStatusCancelled} {
		inv := sentInvoice("50.00")
		inv.Status = status
		assert.ErrorIs(t, core.ApplyPayment(inv, d("10.00"), time.Now()), core.ErrInvalidState, string(status))
	}
}

func TestInvoice_IsOverdue(t *testing.T) {
	inv := sentInvoice("10.00")
	assert.False(t, inv.IsOverdue(time.Date(2026, 4, 30, 23, 0, 0, 0, time.UTC)))
	assert.True(t, inv.IsOverdue(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))

	inv.Status = core.InvoiceStatusDraft
	assert.False(t, inv.IsOverdue(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestInvoice_CanCancel(t *testing.T) {
	assert.True(t, (&core.Invoice{Status: core.InvoiceStatusPartial}).CanCancel())
	assert.False(t, (&core.Invoice{Status: core.InvoiceStatusPaid}).CanCancel())
	assert.False(t, (&core.Invoice{Status: core.InvoiceStatusCancelled}).CanCancel())
}
