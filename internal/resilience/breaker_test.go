package resilience

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	transient := MarkTransient(eris.New("down"), 503)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.Record(transient)
	}

	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_NonTransientDoesNotTrip(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Allow())
		b.Record(eris.New("malformed payload"))
	}
	assert.NoError(t, b.Allow())
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 10*time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Record(MarkTransient(eris.New("down"), 500))
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// Cooldown elapses: exactly one probe gets through.
	now = now.Add(11 * time.Second)
	assert.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// Successful probe closes the breaker.
	b.Record(nil)
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Record(MarkTransient(eris.New("down"), 500))

	now = now.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	b.Record(MarkTransient(eris.New("still down"), 500))

	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}
