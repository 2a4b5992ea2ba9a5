package app

import (
	"fmt"

	"freelance-office/internal/ai"
	"freelance-office/internal/config"
	"freelance-office/internal/core"
	"freelance-office/internal/notify"
	"freelance-office/internal/processor/sandbox"
	"freelance-office/internal/processor/stripe"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewProcessor returns the payment processor selected by cfg.Processor.
func NewProcessor(cfg *config.Config, logger *zap.Logger) (core.Processor, error) {
	switch cfg.Processor {
	case config.ProcessorStripe:
		return stripe.New(cfg.StripeSecretKey, logger), nil
	case config.ProcessorSandbox, "":
		logger.Warn("using the sandbox payment processor; payments are simulated")
		return sandbox.New(), nil
	}
	return nil, fmt.Errorf("unknown payment processor %q", cfg.Processor)
}

// Build wires the domain services from configuration.
func Build(pool *pgxpool.Pool, cfg *config.Config, logger *zap.Logger) (ApplicationService, error) {
	processor, err := NewProcessor(cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier := notify.NewLogNotifier(logger)

	svc := Services{
		Clients:  core.NewClientService(pool),
		Quotes:   core.NewQuoteService(pool, notifier, cfg.BaseURL, logger),
		Invoices: core.NewInvoiceService(pool, notifier, logger),
		Payments: core.NewPaymentService(pool, processor, core.PaymentConfig{
			BaseURL:  cfg.BaseURL,
			Currency: cfg.Currency,
			Timeout:  cfg.ProcessorTimeout,
		}, logger),
		Reporting:  core.NewReportingService(pool, cfg.Currency),
		Activities: core.NewActivityLog(pool),
		Notifier:   notifier,
	}
	if cfg.OpenAIAPIKey != "" {
		svc.Drafts = ai.NewAgent(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY is not set; quote drafting is disabled")
	}

	return NewAppService(pool, svc, Options{
		Currency:            cfg.Currency,
		PaymentAbandonAfter: cfg.PaymentAbandonAfter,
	}, logger), nil
}
