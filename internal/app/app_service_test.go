package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"freelance-office/internal/app"
	"freelance-office/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fakes embed the service interfaces; only the methods under test are implemented.

type fakeQuotes struct {
	core.QuoteService
	quote      *core.Quote
	expired    int
	expireErr  error
	expireSeen time.Time
}

func (f *fakeQuotes) Get(_ context.Context, id int) (*core.Quote, error) {
	if f.quote == nil || f.quote.ID != id {
		return nil, core.ErrNotFound
	}
	return f.quote, nil
}

func (f *fakeQuotes) ExpireOverdue(_ context.Context, now time.Time) (int, error) {
	f.expireSeen = now
	return f.expired, f.expireErr
}

type fakeClients struct {
	core.ClientService
	client *core.Client
}

func (f *fakeClients) GetClient(_ context.Context, id int) (*core.Client, error) {
	if f.client == nil || f.client.ID != id {
		return nil, core.ErrNotFound
	}
	return f.client, nil
}

type fakeInvoices struct {
	core.InvoiceService
	overdue    int
	overdueErr error
}

func (f *fakeInvoices) MarkOverdue(context.Context, time.Time) (int, error) {
	return f.overdue, f.overdueErr
}

type fakePayments struct {
	core.PaymentService
	started    []int
	cutoff     time.Time
	abandoned  *core.SweepResult
	abandonErr error
}

func (f *fakePayments) InitiateForQuote(_ context.Context, _ core.Actor, quoteID int) (*core.InitiateResult, error) {
	f.started = append(f.started, quoteID)
	return &core.InitiateResult{Payment: &core.Payment{ID: 1}, ApprovalURL: "http://pay.test/1"}, nil
}

func (f *fakePayments) AbandonStale(_ context.Context, createdBefore time.Time) (*core.SweepResult, error) {
	f.cutoff = createdBefore
	return f.abandoned, f.abandonErr
}

type fakeDrafts struct {
	draft *core.QuoteDraft
}

func (f *fakeDrafts) DraftQuote(context.Context, string, string) (*core.QuoteDraft, error) {
	return f.draft, nil
}

func newFacade(svc app.Services) app.ApplicationService {
	return app.NewAppService(nil, svc, app.Options{Currency: "USD", PaymentAbandonAfter: 2 * time.Hour}, nil)
}

func TestStartClientQuotePayment_EmailIsTheCredential(t *testing.T) {
	payments := &fakePayments{}
	svc := newFacade(app.Services{
		Quotes:   &fakeQuotes{quote: &core.Quote{ID: 4, ClientID: 2}},
		Clients:  &fakeClients{client: &core.Client{ID: 2, Email: "Ada@Example.com"}},
		Payments: payments,
	})
	ctx := context.Background()

	res, err := svc.StartClientQuotePayment(ctx, 4, " ada@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "http://pay.test/1", res.ApprovalURL)
	assert.Equal(t, []int{4}, payments.started)

	for _, tc := range []struct {
		name    string
		quoteID int
		email   string
	}{
		{"empty email", 4, ""},
		{"other client", 4, "eve@example.com"},
		{"unknown quote", 99, "ada@example.com"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.StartClientQuotePayment(ctx, tc.quoteID, tc.email)
			assert.ErrorIs(t, err, core.ErrInvalidToken)
		})
	}
	assert.Len(t, payments.started, 1)
}

func TestRunSweep_JoinsStepErrors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	quotes := &fakeQuotes{expired: 3}
	payments := &fakePayments{abandonErr: errors.New("deadlock detected")}
	svc := newFacade(app.Services{
		Quotes:   quotes,
		Invoices: &fakeInvoices{overdue: 2},
		Payments: payments,
	})

	res, err := svc.RunSweep(context.Background(), now)
	require.Error(t, err)
	assert.ErrorContains(t, err, "abandon stale payments: deadlock detected")
	assert.Equal(t, 3, res.ExpiredQuotes)
	assert.Equal(t, 2, res.OverdueInvoices)
	assert.Zero(t, res.AbandonedPayments)
	assert.Equal(t, now, quotes.expireSeen)
	assert.Equal(t, now.Add(-2*time.Hour), payments.cutoff)
}

func TestRunSweep_Clean(t *testing.T) {
	svc := newFacade(app.Services{
		Quotes:   &fakeQuotes{},
		Invoices: &fakeInvoices{},
		Payments: &fakePayments{abandoned: &core.SweepResult{Payments: 2, Quotes: 1}},
	})

	res, err := svc.RunSweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, res.AbandonedPayments)
	assert.Equal(t, 1, res.RevertedQuotes)
}

func TestDraftQuote(t *testing.T) {
	_, err := newFacade(app.Services{}).DraftQuote(context.Background(), "a landing page")
	assert.ErrorIs(t, err, app.ErrUnavailable)

	svc := newFacade(app.Services{Drafts: &fakeDrafts{draft: &core.QuoteDraft{
		Summary: "Landing page",
		Items:   []core.QuoteDraftItem{{Description: "Build", Quantity: 10, UnitPrice: "85.00"}},
	}}})
	res, err := svc.DraftQuote(context.Background(), "a landing page")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Build", res.Items[0].Description)
	assert.Equal(t, "85", res.Items[0].UnitPrice.String())
}
