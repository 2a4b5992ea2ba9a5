package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"freelance-office/internal/ai"
	"freelance-office/internal/core"
	"freelance-office/internal/export"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when an optional collaborator (the AI agent) is not configured.
var ErrUnavailable = errors.New("feature unavailable")

// Services bundles the domain services the facade delegates to.
type Services struct {
	Clients    core.ClientService
	Quotes     core.QuoteService
	Invoices   core.InvoiceService
	Payments   core.PaymentService
	Reporting  core.ReportingService
	Activities core.ActivityLog
	Notifier   core.Notifier
	// Drafts may be nil when no AI key is configured.
	Drafts ai.DraftService
}

// Options carries the facade's configuration.
type Options struct {
	Currency            string
	PaymentAbandonAfter time.Duration
}

type appService struct {
	pool   *pgxpool.Pool
	svc    Services
	opts   Options
	logger *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(pool *pgxpool.Pool, svc Services, opts Options, logger *zap.Logger) ApplicationService {
	if opts.PaymentAbandonAfter <= 0 {
		opts.PaymentAbandonAfter = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &appService{pool: pool, svc: svc, opts: opts, logger: logger}
}

// ── Clients ───────────────────────────────────────────────────────────────────

func (s *appService) CreateClient(ctx context.Context, actor core.Actor, req CreateClientRequest) (*ClientResult, error) {
	c, err := s.svc.Clients.CreateClient(ctx, actor, core.ClientInput{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		return nil, err
	}
	return &ClientResult{Client: c}, nil
}

func (s *appService) GetClient(ctx context.Context, clientID int) (*ClientResult, error) {
	c, err := s.svc.Clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &ClientResult{Client: c}, nil
}

func (s *appService) ListClients(ctx context.Context) (*ClientListResult, error) {
	clients, err := s.svc.Clients.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	return &ClientListResult{Clients: clients}, nil
}

func (s *appService) CreateProject(ctx context.Context, actor core.Actor, req CreateProjectRequest) (*ProjectResult, error) {
	p, err := s.svc.Clients.CreateProject(ctx, actor, req.ClientID, req.Name)
	if err != nil {
		return nil, err
	}
	return &ProjectResult{Project: p}, nil
}

func (s *appService) ListProjects(ctx context.Context, clientID int) (*ProjectListResult, error) {
	projects, err := s.svc.Clients.ListProjects(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &ProjectListResult{Projects: projects}, nil
}

// SubmitContact stores the enquiry as a client activity and acknowledges it.
// A failed confirmation email does not fail the submission.
func (s *appService) SubmitContact(ctx context.Context, req ContactRequest) (*ContactResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", core.ErrValidation)
	}
	client, created, err := s.svc.Clients.FindOrCreateByEmail(ctx, core.ClientInput{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := core.RecordActivity(ctx, tx, core.Activity{
		Description: core.ActivityClientContact,
		SubjectType: "client",
		SubjectID:   client.ID,
		Properties:  map[string]any{"message": message, "new_client": created},
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit contact: %w", err)
	}

	if s.svc.Notifier != nil {
		if err := s.svc.Notifier.SendContactConfirmation(ctx, client, message); err != nil {
			s.logger.Warn("contact confirmation not sent",
				zap.Int("client_id", client.ID), zap.Error(err))
		}
	}
	return &ContactResult{Client: client, Created: created}, nil
}

// ── Quotes ────────────────────────────────────────────────────────────────────

func (s *appService) CreateQuote(ctx context.Context, actor core.Actor, req QuoteRequest) (*QuoteResult, error) {
	return quoteResult(s.svc.Quotes.Create(ctx, actor, req.input()))
}

func (s *appService) UpdateQuote(ctx context.Context, actor core.Actor, quoteID int, req QuoteRequest) (*QuoteResult, error) {
	return quoteResult(s.svc.Quotes.Update(ctx, actor, quoteID, req.input()))
}

func (s *appService) GetQuote(ctx context.Context, quoteID int) (*QuoteResult, error) {
	return quoteResult(s.svc.Quotes.Get(ctx, quoteID))
}

func (s *appService) ListQuotes(ctx context.Context, filter core.QuoteFilter) (*QuoteListResult, error) {
	quotes, err := s.svc.Quotes.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &QuoteListResult{Quotes: quotes}, nil
}

func (s *appService) SendQuote(ctx context.Context, actor core.Actor, quoteID int) (*SendQuoteResult, error) {
	res, err := s.svc.Quotes.Send(ctx, actor, quoteID)
	if err != nil {
		return nil, err
	}
	return &SendQuoteResult{Quote: res.Quote, ApprovalURL: res.ApprovalURL}, nil
}

func (s *appService) AcceptQuote(ctx context.Context, actor core.Actor, quoteID int) (*QuoteResult, error) {
	return quoteResult(s.svc.Quotes.Accept(ctx, actor, quoteID))
}

func (s *appService) RejectQuote(ctx context.Context, actor core.Actor, quoteID int) (*QuoteResult, error) {
	return quoteResult(s.svc.Quotes.Reject(ctx, actor, quoteID))
}

func (s *appService) DeleteQuote(ctx context.Context, actor core.Actor, quoteID int) error {
	return s.svc.Quotes.Destroy(ctx, actor, quoteID)
}

func (s *appService) ConvertQuote(ctx context.Context, actor core.Actor, quoteID int) (*ConversionResult, error) {
	res, err := s.svc.Invoices.Convert(ctx, actor, quoteID)
	if err != nil {
		return nil, err
	}
	return &ConversionResult{Invoice: res.Invoice, Created: res.Created}, nil
}

func (s *appService) ReviewQuote(ctx context.Context, quoteID int, token string) (*QuoteResult, error) {
	return quoteResult(s.svc.Quotes.MarkViewed(ctx, quoteID, token))
}

func (s *appService) ResolveQuote(ctx context.Context, quoteID int, token, action string) (*QuoteResult, error) {
	a, err := core.ParseResolveAction(action)
	if err != nil {
		return nil, err
	}
	return quoteResult(s.svc.Quotes.Resolve(ctx, quoteID, token, a))
}

func quoteResult(q *core.Quote, err error) (*QuoteResult, error) {
	if err != nil {
		return nil, err
	}
	return &QuoteResult{Quote: q}, nil
}

// ── Quote payments ────────────────────────────────────────────────────────────

func (s *appService) StartQuotePayment(ctx context.Context, actor core.Actor, quoteID int) (*PaymentStartResult, error) {
	res, err := s.svc.Payments.InitiateForQuote(ctx, actor, quoteID)
	if err != nil {
		return nil, err
	}
	return &PaymentStartResult{Payment: res.Payment, ApprovalURL: res.ApprovalURL}, nil
}

// StartClientQuotePayment treats the client's email address as the credential.
// A mismatch is reported as an invalid token so the quote's existence is not confirmed.
func (s *appService) StartClientQuotePayment(ctx context.Context, quoteID int, email string) (*PaymentStartResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, core.ErrInvalidToken
	}
	q, err := s.svc.Quotes.Get(ctx, quoteID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrInvalidToken
		}
		return nil, err
	}
	client, err := s.svc.Clients.GetClient(ctx, q.ClientID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(client.Email, email) {
		return nil, core.ErrInvalidToken
	}
	return s.StartQuotePayment(ctx, core.Actor{}, quoteID)
}

func (s *appService) ConfirmQuotePayment(ctx context.Context, processorPaymentID, payerID string) (*QuotePaymentResult, error) {
	res, err := s.svc.Payments.ConfirmForQuote(ctx, processorPaymentID, payerID)
	if err != nil {
		return nil, err
	}
	return &QuotePaymentResult{Payment: res.Payment, Invoice: res.Invoice}, nil
}

// ── Invoices ──────────────────────────────────────────────────────────────────

func (s *appService) CreateInvoice(ctx context.Context, actor core.Actor, req InvoiceRequest) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.Create(ctx, actor, req.input()))
}

func (s *appService) UpdateInvoice(ctx context.Context, actor core.Actor, invoiceID int, req InvoiceRequest) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.Update(ctx, actor, invoiceID, req.input()))
}

func (s *appService) GetInvoice(ctx context.Context, invoiceID int) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.Get(ctx, invoiceID))
}

func (s *appService) ListInvoices(ctx context.Context, filter core.InvoiceFilter) (*InvoiceListResult, error) {
	invoices, err := s.svc.Invoices.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &InvoiceListResult{Invoices: invoices}, nil
}

func (s *appService) SendInvoice(ctx context.Context, actor core.Actor, invoiceID int) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.Send(ctx, actor, invoiceID))
}

func (s *appService) MarkInvoiceViewed(ctx context.Context, invoiceID int) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.MarkViewed(ctx, invoiceID))
}

func (s *appService) RecordInvoicePayment(ctx context.Context, actor core.Actor, invoiceID int, amount decimal.Decimal) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.RecordPayment(ctx, actor, invoiceID, amount))
}

func (s *appService) CancelInvoice(ctx context.Context, actor core.Actor, invoiceID int) (*InvoiceResult, error) {
	return invoiceResult(s.svc.Invoices.Cancel(ctx, actor, invoiceID))
}

func (s *appService) DeleteInvoice(ctx context.Context, actor core.Actor, invoiceID int) error {
	return s.svc.Invoices.Destroy(ctx, actor, invoiceID)
}

func invoiceResult(inv *core.Invoice, err error) (*InvoiceResult, error) {
	if err != nil {
		return nil, err
	}
	return &InvoiceResult{Invoice: inv}, nil
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (s *appService) InitiatePayment(ctx context.Context, actor core.Actor, req InitiatePaymentRequest) (*PaymentStartResult, error) {
	res, err := s.svc.Payments.Initiate(ctx, actor, core.InitiatePaymentInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		ClientID:    req.ClientID,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentStartResult{Payment: res.Payment, ApprovalURL: res.ApprovalURL}, nil
}

func (s *appService) ConfirmPayment(ctx context.Context, processorPaymentID, payerID string) (*PaymentResult, error) {
	p, err := s.svc.Payments.Confirm(ctx, processorPaymentID, payerID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: p}, nil
}

func (s *appService) GetPayment(ctx context.Context, paymentID int) (*PaymentResult, error) {
	p, err := s.svc.Payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: p}, nil
}

// ── Activity, reporting, maintenance ──────────────────────────────────────────

func (s *appService) ListActivities(ctx context.Context, filter core.ActivityFilter) (*ActivityListResult, error) {
	acts, err := s.svc.Activities.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ActivityListResult{Activities: acts}, nil
}

func (s *appService) GetSummary(ctx context.Context) (*core.RevenueSummary, error) {
	return s.svc.Reporting.Summary(ctx)
}

func (s *appService) RunAudit(ctx context.Context) (*AuditResult, error) {
	findings, err := s.svc.Reporting.Audit(ctx)
	if err != nil {
		return nil, err
	}
	return &AuditResult{Findings: findings, Clean: len(findings) == 0}, nil
}

// RunSweep runs each maintenance step independently; a failing step does not
// stop the others and all errors are returned joined.
func (s *appService) RunSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	res := &SweepResult{}
	var errs []error

	expired, err := s.svc.Quotes.ExpireOverdue(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire quotes: %w", err))
	}
	res.ExpiredQuotes = expired

	overdue, err := s.svc.Invoices.MarkOverdue(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("mark overdue invoices: %w", err))
	}
	res.OverdueInvoices = overdue

	abandoned, err := s.svc.Payments.AbandonStale(ctx, now.Add(-s.opts.PaymentAbandonAfter))
	if err != nil {
		errs = append(errs, fmt.Errorf("abandon stale payments: %w", err))
	} else {
		res.AbandonedPayments = abandoned.Payments
		res.RevertedQuotes = abandoned.Quotes
	}

	s.logger.Info("sweep finished",
		zap.Int("expired_quotes", res.ExpiredQuotes),
		zap.Int("overdue_invoices", res.OverdueInvoices),
		zap.Int("abandoned_payments", res.AbandonedPayments),
		zap.Int("reverted_quotes", res.RevertedQuotes),
	)
	return res, errors.Join(errs...)
}

// ── Exports ───────────────────────────────────────────────────────────────────

func (s *appService) ExportQuote(ctx context.Context, quoteID int, w io.Writer) error {
	q, err := s.svc.Quotes.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	client, err := s.svc.Clients.GetClient(ctx, q.ClientID)
	if err != nil {
		return err
	}
	return export.WriteQuote(w, q, client)
}

func (s *appService) ExportInvoice(ctx context.Context, invoiceID int, w io.Writer) error {
	inv, err := s.svc.Invoices.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	client, err := s.svc.Clients.GetClient(ctx, inv.ClientID)
	if err != nil {
		return err
	}
	return export.WriteInvoice(w, inv, client)
}

// ── AI drafting ───────────────────────────────────────────────────────────────

func (s *appService) DraftQuote(ctx context.Context, brief string) (*DraftResult, error) {
	if s.svc.Drafts == nil {
		return nil, fmt.Errorf("%w: AI drafting is not configured", ErrUnavailable)
	}
	draft, err := s.svc.Drafts.DraftQuote(ctx, brief, s.opts.Currency)
	if err != nil {
		return nil, err
	}
	items, err := draft.ItemInputs()
	if err != nil {
		return nil, err
	}
	return &DraftResult{Draft: draft, Items: items}, nil
}
