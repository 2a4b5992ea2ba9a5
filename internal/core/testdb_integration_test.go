package core_test

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"freelance-office/internal/core"
	"freelance-office/internal/db"
	"freelance-office/internal/processor/sandbox"
	"freelance-office/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err, "connect to test database")
	t.Cleanup(pool.Close)

	_, err = db.Migrate(ctx, pool, migrations.FS, nil)
	require.NoError(t, err, "migrate test database")

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE activities, payments, invoice_items, invoices, quote_items, quotes,
			document_sequences, projects, clients RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err, "clean test database")
	return pool
}

// fixture bundles the services under test with a sandbox processor.
type fixture struct {
	pool      *pgxpool.Pool
	processor *sandbox.Processor
	clients   core.ClientService
	quotes    core.QuoteService
	invoices  core.InvoiceService
	payments  core.PaymentService
	reporting core.ReportingService
	activity  core.ActivityLog
	client    *core.Client
	actor     core.Actor
}

func newFixture(t *testing.T) *fixture {
	pool := setupTestDB(t)
	proc := sandbox.New()
	f := &fixture{
		pool:      pool,
		processor: proc,
		clients:   core.NewClientService(pool),
		quotes:    core.NewQuoteService(pool, nil, "http://office.test", nil),
		invoices:  core.NewInvoiceService(pool, nil, nil),
		payments: core.NewPaymentService(pool, proc, core.PaymentConfig{
			BaseURL:  "http://office.test",
			Currency: "USD",
			Timeout:  5 * time.Second,
		}, nil),
		reporting: core.NewReportingService(pool, "USD"),
		activity:  core.NewActivityLog(pool),
		actor:     core.Actor{UserID: 1},
	}
	c, err := f.clients.CreateClient(context.Background(), f.actor, core.ClientInput{
		Name:  "Ada Client",
		Email: "Ada@Example.com",
	})
	require.NoError(t, err)
	f.client = c
	return f
}

// scenarioItems is 2 × 100.00 + 1 × 50.00; with 15% tax the total is 277.50.
func scenarioItems() []core.ItemInput {
	return []core.ItemInput{
		{Description: "Development", Quantity: 2, UnitPrice: d("100.00")},
		{Description: "Hosting setup", Quantity: 1, UnitPrice: d("50.00")},
	}
}

func (f *fixture) draftQuote(t *testing.T) *core.Quote {
	t.Helper()
	q, err := f.quotes.Create(context.Background(), f.actor, core.QuoteInput{
		ClientID: f.client.ID,
		Items:    scenarioItems(),
		TaxRate:  d("15"),
	})
	require.NoError(t, err)
	return q
}

// sentQuote creates and sends a quote, returning it with the raw approval token.
func (f *fixture) sentQuote(t *testing.T) (*core.Quote, string) {
	t.Helper()
	q := f.draftQuote(t)
	res, err := f.quotes.Send(context.Background(), f.actor, q.ID)
	require.NoError(t, err)
	u, err := url.Parse(res.ApprovalURL)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return res.Quote, token
}

func (f *fixture) acceptedQuote(t *testing.T) *core.Quote {
	t.Helper()
	q, token := f.sentQuote(t)
	accepted, err := f.quotes.Resolve(context.Background(), q.ID, token, core.ResolveApprove)
	require.NoError(t, err)
	return accepted
}
