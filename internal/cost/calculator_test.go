package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCost(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Rates{
		"sonnet": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"flash":  {Input: 0.30, Output: 2.50},
	})

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{"input and output", "sonnet", Usage{InputTokens: 1_000_000, OutputTokens: 100_000}, 3.00 + 1.50},
		{"cache write", "sonnet", Usage{CacheWrite: 1_000_000}, 3.75},
		{"cache read", "sonnet", Usage{CacheRead: 1_000_000}, 0.30},
		{"gemini", "flash", Usage{InputTokens: 2_000_000, OutputTokens: 1_000_000}, 0.60 + 2.50},
		{"unknown model", "gpt", Usage{InputTokens: 1_000_000}, 0},
		{"zero usage", "sonnet", Usage{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Cost(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestUsageAdd(t *testing.T) {
	t.Parallel()
	u := Usage{InputTokens: 10, OutputTokens: 5}
	u.Add(Usage{InputTokens: 1, OutputTokens: 2, CacheRead: 3})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 7, CacheRead: 3}, u)
}

func TestDefaultRates_CoverTierModels(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())
	for _, m := range []string{"gemini-2.5-flash", "claude-sonnet-4-5-20250929", "claude-opus-4-6"} {
		assert.True(t, calc.Known(m), m)
	}
}
