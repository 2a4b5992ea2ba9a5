// Package sandbox is an in-memory payment processor for development and tests.
// Payers approve instantly: the approval URL points straight back at the
// return URL with payment_id and payer_id filled in.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"freelance-office/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayerID is the payer reported for every sandbox payment.
const PayerID = "SANDBOX-PAYER"

type payment struct {
	amount   decimal.Decimal
	currency string
	captures int
	decline  string
}

// Processor implements core.Processor.
type Processor struct {
	mu        sync.Mutex
	payments  map[string]*payment
	failNext  error
	createErr error
}

func New() *Processor {
	return &Processor{payments: make(map[string]*payment)}
}

func (p *Processor) Name() string { return "sandbox" }

func (p *Processor) CreatePayment(ctx context.Context, req core.CreatePaymentRequest) (*core.CreatedPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		err := p.createErr
		p.createErr = nil
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &core.DeclinedError{Reason: "amount must be positive"}
	}

	id := "SBX-" + uuid.NewString()
	p.payments[id] = &payment{amount: req.Amount, currency: req.Currency}

	approval, err := appendQuery(req.ReturnURL, url.Values{"payment_id": {id}, "payer_id": {PayerID}})
	if err != nil {
		return nil, err
	}
	return &core.CreatedPayment{ID: id, ApprovalURL: approval}, nil
}

// Capture succeeds once per payment and reports success again on repeats,
// like a processor whose capture is idempotent. Captures counts the calls.
func (p *Processor) Capture(ctx context.Context, processorPaymentID, payerID string) (*core.CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return nil, err
	}
	pay, ok := p.payments[processorPaymentID]
	if !ok {
		return nil, &core.DeclinedError{Reason: "unknown payment " + processorPaymentID}
	}
	if pay.decline != "" {
		return nil, &core.DeclinedError{Reason: pay.decline}
	}
	pay.captures++
	if payerID == "" {
		payerID = PayerID
	}
	return &core.CaptureResult{PayerID: payerID}, nil
}

// Decline makes every capture of the payment fail with the given reason.
func (p *Processor) Decline(processorPaymentID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[processorPaymentID]
	if !ok {
		return fmt.Errorf("sandbox: unknown payment %s", processorPaymentID)
	}
	pay.decline = reason
	return nil
}

// FailNextCapture makes the next Capture return err, simulating a transport failure.
func (p *Processor) FailNextCapture(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		err = errors.New("sandbox: connection reset")
	}
	p.failNext = err
}

// FailNextCreate makes the next CreatePayment return err.
func (p *Processor) FailNextCreate(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createErr = err
}

// Captures returns how many times the payment was captured.
func (p *Processor) Captures(processorPaymentID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pay, ok := p.payments[processorPaymentID]; ok {
		return pay.captures
	}
	return 0
}

func appendQuery(raw string, values url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sandbox: invalid return url %q: %w", raw, err)
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
