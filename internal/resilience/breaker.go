package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBreakerOpen is returned when a call is rejected without being attempted
// because the breaker has tripped.
var ErrBreakerOpen = eris.New("service breaker is open")

// Breaker is a consecutive-failure circuit breaker guarding a single external
// service. After Threshold consecutive failures it rejects calls for
// Cooldown, then lets one probe through; a successful probe closes it again.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	failures int
	openedAt time.Time
	open     bool
	probing  bool

	now func() time.Time
}

// NewBreaker creates a breaker. threshold <= 0 defaults to 5 failures,
// cooldown <= 0 to 30 seconds.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. When the cooldown has elapsed a
// single probe call is admitted; concurrent callers keep being rejected until
// the probe reports back.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.probing {
		return ErrBreakerOpen
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.probing = true
		return nil
	}
	return ErrBreakerOpen
}

// Record reports a call outcome to the breaker. Only errors that are
// Retryable count toward tripping: a malformed-but-delivered response says
// nothing about service health.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !Retryable(err) {
		b.failures = 0
		b.open = false
		b.probing = false
		return
	}

	b.probing = false
	b.failures++
	if b.failures >= b.threshold {
		b.open = true
		b.openedAt = b.now()
	}
}
