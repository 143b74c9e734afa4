// Package cost prices model usage so every provider call can be logged with
// what it cost.
package cost

// ModelRate is token pricing in USD per million tokens.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model IDs to pricing.
type Rates map[string]ModelRate

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CacheWrite   int64
	CacheRead    int64
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.CacheWrite += u2.CacheWrite
	u.CacheRead += u2.CacheRead
}

// Calculator computes the cost of model calls.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. Models missing from rates cost zero.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Cost returns the USD cost of one call to model.
func (c *Calculator) Cost(model string, u Usage) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	perTok := func(n int64, price float64) float64 { return float64(n) / 1e6 * price }
	return perTok(u.InputTokens, rate.Input) +
		perTok(u.OutputTokens, rate.Output) +
		perTok(u.CacheWrite, rate.Input*rate.CacheWriteMul) +
		perTok(u.CacheRead, rate.Input*rate.CacheReadMul)
}

// Known reports whether model has configured pricing.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates[model]
	return ok
}

// DefaultRates returns list pricing for the models the tiers route to.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"gemini-2.5-flash":           {Input: 0.30, Output: 2.50, CacheReadMul: 0.25},
		"gemini-2.5-pro":             {Input: 1.25, Output: 10.00, CacheReadMul: 0.25},
	}
}
