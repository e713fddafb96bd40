// Package resilience provides retry and circuit-breaking for the external
// services the pipeline depends on: holiday providers and judgment oracles.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient wraps an error that is safe to retry: rate limits, 5xx-equivalents
// and network-level failures.
type Transient struct {
	Err    error
	Status int // HTTP status when known, 0 otherwise
}

func (e *Transient) Error() string { return e.Err.Error() }

func (e *Transient) Unwrap() error { return e.Err }

// MarkTransient wraps err as retryable, recording the HTTP status if any.
func MarkTransient(err error, status int) *Transient {
	return &Transient{Err: err, Status: status}
}

// Retryable reports whether err (or anything in its chain) is safe to retry.
// Explicitly marked transients always qualify; otherwise common network
// failure shapes are recognized.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var tr *Transient
	if errors.As(err, &tr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status code indicates a transient
// server-side condition.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
