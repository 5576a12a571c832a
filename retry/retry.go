// Package retry provides exponential backoff retry strategies for outbound
// message delivery. Delays are tuned for in-process realtime delivery, where
// a recipient's transport hiccups for milliseconds, not minutes.
package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines the retry behavior for failed outbound deliveries.
//
// The retry schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (100ms base, 2.0 exponential, 5s max):
//
//	Attempt 1: 200ms
//	Attempt 2: 400ms
//	Attempt 3: 800ms
type Strategy struct {
	MaxAttempts     int           // Maximum delivery attempts before giving up
	BaseDelay       time.Duration // Initial retry delay
	MaxDelay        time.Duration // Maximum retry delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default delivery retry strategy:
// 3 attempts with 100ms→5s exponential backoff.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
	}
}

// Validate checks that the strategy is internally consistent.
func (s Strategy) Validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", s.MaxAttempts)
	}
	if s.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %v", s.BaseDelay)
	}
	if s.MaxDelay < s.BaseDelay {
		return fmt.Errorf("max delay %v cannot be below base delay %v", s.MaxDelay, s.BaseDelay)
	}
	if s.ExponentialBase < 1.0 {
		return fmt.Errorf("exponential base must be at least 1.0, got %v", s.ExponentialBase)
	}
	return nil
}

// CalculateRetryDelay calculates the delay before the next attempt using
// exponential backoff, capped at MaxDelay.
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// IsRetryable reports whether another attempt is allowed after attemptCount
// failed attempts.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}
