package server

import (
	"golang.org/x/time/rate"
)

// SubmitLimiter throttles task submissions with a token bucket shared by all
// callers. Each accepted submission cancels the run in flight, so the bucket
// is global rather than per client.
type SubmitLimiter struct {
	limiter *rate.Limiter
}

// NewSubmitLimiter allows perMinute submissions with the given burst.
// If perMinute <= 0 the limiter always allows.
func NewSubmitLimiter(perMinute float64, burst int) *SubmitLimiter {
	if perMinute <= 0 {
		return &SubmitLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &SubmitLimiter{limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), burst)}
}

// Allow reports whether a submission may proceed now.
func (l *SubmitLimiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// Enabled returns true if the limiter is active.
func (l *SubmitLimiter) Enabled() bool {
	return l != nil && l.limiter != nil
}
