package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_RecordAndTotals(t *testing.T) {
	tr := NewTracker(Rates{"m": {Input: 1.0, Output: 10.0}})

	tr.Record("m", 1_000_000, 100_000)
	tr.Record("m", 500_000, 0)

	calls, tokens, usd := tr.Totals()
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1_600_000), tokens)
	assert.InDelta(t, 1.0+1.0+0.5, usd, 1e-9)
}

func TestTracker_UnknownModel(t *testing.T) {
	tr := NewTracker(Rates{})
	tr.Record("mystery", 100, 100)

	calls, tokens, usd := tr.Totals()
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(200), tokens)
	assert.Zero(t, usd)
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("claude-haiku-4-5-20251001", 10, 5)
		}()
	}
	wg.Wait()

	calls, tokens, _ := tr.Totals()
	assert.Equal(t, 50, calls)
	assert.Equal(t, int64(750), tokens)
}
