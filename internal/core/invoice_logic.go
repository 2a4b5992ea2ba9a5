package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanEdit reports whether items may be replaced or the invoice deleted.
func (i *Invoice) CanEdit() bool {
	return i.Status == InvoiceStatusDraft
}

// AcceptsPayment reports whether a manual payment may be recorded.
func (i *Invoice) AcceptsPayment() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartial, InvoiceStatusOverdue:
		return true
	}
	return false
}

// CanCancel is false for paid and already cancelled invoices.
func (i *Invoice) CanCancel() bool {
	return i.Status != InvoiceStatusPaid && i.Status != InvoiceStatusCancelled
}

// IsOverdue reports whether an unpaid sent invoice has passed its due date.
func (i *Invoice) IsOverdue(today time.Time) bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartial:
	default:
		return false
	}
	return dateOnly(i.DueDate).Before(dateOnly(today))
}

// ApplyPayment adds amount to the paid total and recomputes due and status.
// The amount must be positive and may not exceed the outstanding balance.
func ApplyPayment(inv *Invoice, amount decimal.Decimal, now time.Time) error {
	if !inv.AcceptsPayment() {
		return stateError("invoice", inv.ID, string(inv.Status), "record payment")
	}
	if err := checkPositiveMoney("payment amount", amount); err != nil {
		return err
	}
	due := Due(inv.Total, inv.PaidAmount)
	if amount.GreaterThan(due) {
		return invalidAmount("payment %s exceeds amount due %s", amount.StringFixed(2), due.StringFixed(2))
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.DueAmount = Due(inv.Total, inv.PaidAmount)
	if inv.DueAmount.IsZero() {
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
	} else {
		inv.Status = InvoiceStatusPartial
	}
	return nil
}

// settleInvoice marks an invoice fully paid regardless of prior progress.
func settleInvoice(inv *Invoice, now time.Time) {
	inv.PaidAmount = inv.Total
	inv.DueAmount = decimal.Zero
	inv.Status = InvoiceStatusPaid
	inv.PaidAt = &now
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
