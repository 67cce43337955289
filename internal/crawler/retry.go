package crawler

import (
	"math"
	"time"
)

// Decision is the outcome of one retry-policy evaluation.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// stop is the zero Decision.
var stop = Decision{}

// RetryPolicy decides, per failed attempt, whether to retry and after how
// long. It is a pure function of (attempt index, failure kind, status code)
// and the configured parameters.
type RetryPolicy struct {
	maxAttempts   int
	baseDelay     time.Duration
	backoffFactor float64
	maxDelay      time.Duration
	sslVerify     bool
}

// NewRetryPolicy builds a policy from the crawler configuration.
func NewRetryPolicy(cfg *Config) *RetryPolicy {
	return &RetryPolicy{
		maxAttempts:   cfg.MaxAttempts,
		baseDelay:     cfg.BaseDelay,
		backoffFactor: cfg.BackoffFactor,
		maxDelay:      cfg.MaxDelay,
		sslVerify:     cfg.SSLVerify,
	}
}

// Decide evaluates the failure of attempt attemptIndex (0-based). The retry
// budget allows maxAttempts total attempts, so the last permitted attempt has
// index maxAttempts-1.
func (p *RetryPolicy) Decide(attemptIndex int, kind FailureKind, status int) Decision {
	if attemptIndex >= p.maxAttempts-1 {
		return stop
	}
	if !p.retryable(kind, status) {
		return stop
	}
	return Decision{Retry: true, Delay: p.Backoff(attemptIndex)}
}

// Backoff returns the exponential delay for the given attempt index, capped
// at maxDelay.
func (p *RetryPolicy) Backoff(attemptIndex int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(p.backoffFactor, float64(attemptIndex))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}

func (p *RetryPolicy) retryable(kind FailureKind, status int) bool {
	switch kind {
	case KindConnection, KindTimeout, KindProxyFailure:
		return true
	case KindHTTPStatus:
		return status >= 500
	case KindSSLVerification:
		// With verification disabled the handshake error cannot be a cert
		// rejection on our side, so treat it as a transient connection fault.
		return !p.sslVerify
	default:
		return false
	}
}
