package notify_test

import (
	"context"
	"testing"

	"freelance-office/internal/core"
	"freelance-office/internal/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifier_RecordsMessages(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	n := notify.NewLogNotifier(zap.New(obs))
	ctx := context.Background()
	client := &core.Client{Name: "Ada", Email: "ada@example.com"}

	require.NoError(t, n.SendQuoteApproval(ctx, client, &core.Quote{
		QuoteNumber: "Q2026-00001",
		Total:       decimal.RequireFromString("277.5"),
	}, "http://office.test/quotes/1/review?token=abc"))
	require.NoError(t, n.SendContactConfirmation(ctx, client, "hello"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "notify", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ada@example.com", fields["to"])
	assert.Equal(t, "277.50", fields["total"])
	assert.Equal(t, "contact confirmation", entries[1].Message)
	assert.EqualValues(t, 5, entries[1].ContextMap()["message_length"])
}
