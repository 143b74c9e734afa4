package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItem_Recalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		quantity float64
		rate     float64
		want     float64
	}{
		{"whole", 4, 95, 380},
		{"fractional", 2.5, 87.5, 218.75},
		{"cents", 3, 19.99, 59.97},
		{"zero quantity", 0, 120, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			li := LineItem{Quantity: tt.quantity, Rate: tt.rate, Total: 999999}
			li.Recalculate()
			assert.InDelta(t, tt.want, li.Total, 0.0001)
		})
	}
}

func TestEstimate_Recalculate(t *testing.T) {
	t.Parallel()

	e := &Estimate{
		LineItems: []LineItem{
			{Category: CategoryLabor, Quantity: 4, Rate: 95, Total: 1},
			{Category: CategoryMaterials, Quantity: 10, Rate: 12.49, Total: 1},
		},
		Subtotal: 5, Tax: 5, Total: 5,
	}
	e.Recalculate(0.08)

	assert.InDelta(t, 380, e.LineItems[0].Total, 0.0001)
	assert.InDelta(t, 124.9, e.LineItems[1].Total, 0.0001)
	assert.InDelta(t, 504.9, e.Subtotal, 0.0001)
	assert.InDelta(t, 40.39, e.Tax, 0.0001)
	assert.InDelta(t, 545.29, e.Total, 0.0001)
}

func TestEstimate_RecalculateInvariants(t *testing.T) {
	t.Parallel()

	items := []LineItem{
		{Quantity: 1.5, Rate: 33.33},
		{Quantity: 7, Rate: 0.99},
		{Quantity: 12, Rate: 145},
	}
	for _, rate := range []float64{0, 0.05, 0.0725, 0.08, 0.1, 0.25, 0.5, 0.999} {
		e := &Estimate{LineItems: append([]LineItem(nil), items...)}
		e.Recalculate(rate)

		sum := 0.0
		for _, li := range e.LineItems {
			assert.InDelta(t, RoundCents(li.Quantity*li.Rate), li.Total, 0.0001)
			sum += li.Total
		}
		assert.InDelta(t, sum, e.Subtotal, 0.005, "rate %v", rate)
		assert.InDelta(t, e.Subtotal*rate, e.Tax, 0.005, "rate %v", rate)
		assert.InDelta(t, e.Subtotal+e.Tax, e.Total, 0.0001, "rate %v", rate)
	}
}

func TestEstimate_SetStatus(t *testing.T) {
	t.Parallel()

	e := &Estimate{Status: EstimateStatusDraft}
	require.NoError(t, e.SetStatus(EstimateStatusDraft))
	require.NoError(t, e.SetStatus(EstimateStatusApproved))
	assert.Equal(t, EstimateStatusApproved, e.Status)

	require.NoError(t, e.SetStatus(EstimateStatusApproved))
	assert.ErrorIs(t, e.SetStatus(EstimateStatusDraft), ErrAlreadyApproved)
	assert.Equal(t, EstimateStatusApproved, e.Status)
}

func TestEstimate_ReplaceLineItems(t *testing.T) {
	t.Parallel()

	e := &Estimate{Status: EstimateStatusDraft}
	err := e.ReplaceLineItems([]LineItem{
		{Category: CategoryLabor, Description: "Rough-in", Quantity: 8, Rate: 95, Total: 5, Confidence: ConfidenceHigh},
	}, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 760, e.Subtotal, 0.0001)
	assert.InDelta(t, 836, e.Total, 0.0001)

	err = e.ReplaceLineItems([]LineItem{
		{Category: CategoryLabor, Description: "Bad", Quantity: -1, Rate: 95, Confidence: ConfidenceHigh},
	}, 0.1)
	assert.Error(t, err)
	assert.InDelta(t, 760, e.Subtotal, 0.0001, "failed replace must not touch totals")

	require.NoError(t, e.SetStatus(EstimateStatusApproved))
	assert.ErrorIs(t, e.ReplaceLineItems(nil, 0.1), ErrAlreadyApproved)
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, ok := ParseCategory(" labor ")
	assert.True(t, ok)
	assert.Equal(t, CategoryLabor, c)

	_, ok = ParseCategory("Disposal")
	assert.False(t, ok)
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()

	c, ok := ParseConfidence("HIGH")
	assert.True(t, ok)
	assert.Equal(t, ConfidenceHigh, c)

	_, ok = ParseConfidence("certain")
	assert.False(t, ok)
}
