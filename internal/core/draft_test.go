package core_test

import (
	"testing"

	"freelance-office/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteDraft_NormalizeAndValidate(t *testing.T) {
	draft := core.QuoteDraft{
		Summary: "  Landing page  ",
		Items: []core.QuoteDraftItem{
			{Description: " Design ", Quantity: 0, UnitPrice: "$1,200.00"},
			{Description: "Copywriting", Quantity: 2, UnitPrice: " 150 "},
		},
		Confidence: 1.7,
	}
	draft.Normalize()

	assert.Equal(t, "Landing page", draft.Summary)
	assert.Equal(t, "Design", draft.Items[0].Description)
	assert.Equal(t, 1, draft.Items[0].Quantity)
	assert.Equal(t, "1200.00", draft.Items[0].UnitPrice)
	assert.Equal(t, "150", draft.Items[1].UnitPrice)
	assert.Equal(t, 1.0, draft.Confidence)
	require.NoError(t, draft.Validate())

	inputs, err := draft.ItemInputs()
	require.NoError(t, err)
	assert.True(t, inputs[0].UnitPrice.Equal(d("1200")))
}

func TestQuoteDraft_ValidateRejects(t *testing.T) {
	empty := core.QuoteDraft{}
	assert.Error(t, empty.Validate())

	badPrice := core.QuoteDraft{Items: []core.QuoteDraftItem{{Description: "x", Quantity: 1, UnitPrice: "ten"}}}
	assert.ErrorIs(t, badPrice.Validate(), core.ErrInvalidAmount)

	fractional := core.QuoteDraft{Items: []core.QuoteDraftItem{{Description: "x", Quantity: 1, UnitPrice: "10.001"}}}
	assert.ErrorIs(t, fractional.Validate(), core.ErrInvalidAmount)
}
