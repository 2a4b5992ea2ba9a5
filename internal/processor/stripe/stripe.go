// Package stripe adapts Stripe Checkout to core.Processor. Sessions are
// created with manual capture so funds are only taken when the engine
// confirms the payment.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"freelance-office/internal/core"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// sessionPlaceholder is substituted by Stripe in the success URL.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// maxSummaryBytes caps the line item summary sent as the product description.
const maxSummaryBytes = 500

// Processor implements core.Processor on top of the Stripe API.
type Processor struct {
	api    *client.API
	logger *zap.Logger
}

func New(secretKey string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{api: client.New(secretKey, nil), logger: logger.Named("stripe")}
}

// NewWithBackends points the client at custom backends, such as stripe-mock.
func NewWithBackends(secretKey string, backends *stripego.Backends, logger *zap.Logger) *Processor {
	p := New(secretKey, logger)
	p.api = client.New(secretKey, backends)
	return p
}

func (p *Processor) Name() string { return "stripe" }

func (p *Processor) CreatePayment(ctx context.Context, req core.CreatePaymentRequest) (*core.CreatedPayment, error) {
	amount, err := MinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	currency := strings.ToLower(req.Currency)

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(successURL(req.ReturnURL)),
		CancelURL:  stripego.String(req.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency: stripego.String(currency),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripego.String(req.Description),
					Description: stripego.String(itemSummary(req.Items)),
				},
				UnitAmount: stripego.Int64(amount),
			},
			Quantity: stripego.Int64(1),
		}},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripego.String(string(stripego.PaymentIntentCaptureMethodManual)),
			Description:   stripego.String(req.Description),
		},
	}
	params.Context = ctx

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, p.classify("create", err)
	}
	return &core.CreatedPayment{ID: session.ID, ApprovalURL: session.URL}, nil
}

// Capture captures the session's payment intent. An intent that already
// succeeded is reported as captured, so a retry after a lost commit is safe.
func (p *Processor) Capture(ctx context.Context, processorPaymentID, payerID string) (*core.CaptureResult, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	session, err := p.api.CheckoutSessions.Get(processorPaymentID, params)
	if err != nil {
		return nil, p.classify("capture", err)
	}
	if session.Customer != nil && session.Customer.ID != "" {
		payerID = session.Customer.ID
	}

	pi := session.PaymentIntent
	if pi == nil {
		return nil, &core.DeclinedError{Reason: "checkout session has no payment yet"}
	}
	switch pi.Status {
	case stripego.PaymentIntentStatusSucceeded:
		return &core.CaptureResult{PayerID: payerID}, nil
	case stripego.PaymentIntentStatusRequiresCapture:
	default:
		return nil, &core.DeclinedError{Reason: fmt.Sprintf("payment intent status is %s", pi.Status)}
	}

	captureParams := &stripego.PaymentIntentCaptureParams{}
	captureParams.Context = ctx
	if _, err := p.api.PaymentIntents.Capture(pi.ID, captureParams); err != nil {
		return nil, p.classify("capture", err)
	}
	return &core.CaptureResult{PayerID: payerID}, nil
}

// declineCodes are invalid-request codes that mean the payment itself can
// never be captured.
var declineCodes = map[stripego.ErrorCode]bool{
	stripego.ErrorCodePaymentIntentUnexpectedState:       true,
	stripego.ErrorCodePaymentIntentAuthenticationFailure: true,
	stripego.ErrorCodeAmountTooSmall:                     true,
	stripego.ErrorCodeAmountTooLarge:                     true,
	stripego.ErrorCodeExpiredCard:                        true,
}

// classify turns card errors, 402 responses and the codes in declineCodes into
// declines. Auth and configuration failures (401, 403, 404), rate limits,
// network errors and 5xx responses stay retryable so an authorized payment is
// not failed by an operator mistake.
func (p *Processor) classify(op string, err error) error {
	var stripeErr *stripego.Error
	if !errors.As(err, &stripeErr) {
		return err
	}
	p.logger.Warn("stripe API error",
		zap.String("op", op),
		zap.String("code", string(stripeErr.Code)),
		zap.String("type", string(stripeErr.Type)),
		zap.Int("status", stripeErr.HTTPStatusCode),
		zap.String("message", stripeErr.Msg),
	)
	if stripeErr.Type == stripego.ErrorTypeCard {
		return &core.DeclinedError{Reason: stripeErr.Msg}
	}
	if stripeErr.HTTPStatusCode == http.StatusPaymentRequired || declineCodes[stripeErr.Code] {
		return &core.DeclinedError{Reason: stripeErr.Msg}
	}
	return err
}

// MinorUnits converts an amount with at most two decimals to cents.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount)
	}
	if !cents.IsPositive() {
		return 0, fmt.Errorf("amount %s must be positive", amount)
	}
	return cents.IntPart(), nil
}

func successURL(returnURL string) string {
	sep := "?"
	if strings.Contains(returnURL, "?") {
		sep = "&"
	}
	return returnURL + sep + "payment_id=" + sessionPlaceholder
}

func itemSummary(items []core.ProcessorItem) string {
	if len(items) == 0 {
		return ""
	}
	lines := lo.Map(items, func(it core.ProcessorItem, _ int) string {
		return fmt.Sprintf("%d x %s", it.Quantity, it.Name)
	})
	summary := strings.Join(lines, ", ")
	if len(summary) <= maxSummaryBytes {
		return summary
	}
	cut := maxSummaryBytes - len("...")
	for cut > 0 && !utf8.RuneStart(summary[cut]) {
		cut--
	}
	return summary[:cut] + "..."
}
