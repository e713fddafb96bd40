// Package cost tracks oracle spend so each run can report what its
// judgments cost.
package cost

import "sync"

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model IDs to their pricing.
type Rates map[string]ModelRate

// DefaultRates returns the default pricing table for the oracle models.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	}
}

// Tracker accumulates token counts and dollar cost across oracle calls. Safe
// for concurrent use; country runs share one tracker per reconciliation.
type Tracker struct {
	mu    sync.Mutex
	rates Rates

	calls  int
	input  int64
	output int64
	usd    float64
}

// NewTracker creates a Tracker with the given pricing table.
func NewTracker(rates Rates) *Tracker {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Tracker{rates: rates}
}

// Record adds one oracle call's usage. Unknown models contribute tokens but
// zero dollars.
func (t *Tracker) Record(model string, inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.input += inputTokens
	t.output += outputTokens

	if rate, ok := t.rates[model]; ok {
		t.usd += (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
	}
}

// Totals returns the call count, token total and estimated cost so far.
func (t *Tracker) Totals() (calls int, tokens int64, usd float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.input + t.output, t.usd
}
