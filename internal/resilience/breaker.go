// Package resilience wraps calls to remote collaborators (Sheets, the message
// broker) in a circuit breaker so a dead dependency fails fast.
package resilience

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Settings tunes a breaker. Zero values fall back to the defaults below.
type Settings struct {
	// MinRequests is the number of calls observed before the breaker may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// Interval resets the closed-state counters.
	Interval time.Duration
	// OnStateChange is called in addition to logging.
	OnStateChange func(name string, from, to gobreaker.State)
}

const (
	DefaultMinRequests  = 3
	DefaultFailureRatio = 0.6
	DefaultOpenTimeout  = 30 * time.Second
	DefaultInterval     = time.Minute
)

// NewCircuitBreaker returns a breaker that opens after enough consecutive
// failures and probes with a single request when half-open.
func NewCircuitBreaker(name string, s Settings) *gobreaker.CircuitBreaker {
	if s.MinRequests == 0 {
		s.MinRequests = DefaultMinRequests
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = DefaultFailureRatio
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = DefaultOpenTimeout
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
	})
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
