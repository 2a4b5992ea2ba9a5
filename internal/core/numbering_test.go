package core_test

import (
	"testing"

	"freelance-office/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "Q2026-00001", core.FormatNumber(core.KindQuote, 2026, 1))
	assert.Equal(t, "INV2026-00042", core.FormatNumber(core.KindInvoice, 2026, 42))
	assert.Equal(t, "INV2026-123456", core.FormatNumber(core.KindInvoice, 2026, 123456))
}

func TestParseNumber(t *testing.T) {
	kind, year, seq, err := core.ParseNumber("INV2025-00017")
	require.NoError(t, err)
	assert.Equal(t, core.KindInvoice, kind)
	assert.Equal(t, 2025, year)
	assert.EqualValues(t, 17, seq)

	kind, year, seq, err = core.ParseNumber(core.FormatNumber(core.KindQuote, 2026, 3))
	require.NoError(t, err)
	assert.Equal(t, core.KindQuote, kind)
	assert.Equal(t, 2026, year)
	assert.EqualValues(t, 3, seq)
}

func TestParseNumber_Malformed(t *testing.T) {
	for _, s := range []string{"", "Q2026", "Q2026-", "X2026-00001", "Q26-00001", "INV2026-abc", "Q2026-00000"} {
		_, _, _, err := core.ParseNumber(s)
		assert.ErrorIs(t, err, core.ErrValidation, s)
	}
}
