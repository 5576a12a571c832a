package realtime

import (
	"context"
	"time"

	"github.com/coregx/realtime/model"
	"github.com/coregx/realtime/retry"
)

// RetryTransport decorates a MessageTransport with exponential backoff
// retries. Delivery errors are retried per the strategy; a context
// cancellation aborts immediately with the context's error.
type RetryTransport struct {
	next     MessageTransport
	strategy retry.Strategy
	logger   Logger
}

// NewRetryTransport wraps next with the given retry strategy.
func NewRetryTransport(next MessageTransport, strategy retry.Strategy, logger Logger) (*RetryTransport, error) {
	if next == nil {
		return nil, NewError(ErrCodeConfiguration, "wrapped transport is required")
	}
	if err := strategy.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid retry strategy", err)
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &RetryTransport{
		next:     next,
		strategy: strategy,
		logger:   logger,
	}, nil
}

// ProcessMessageOut delivers the message, retrying failed attempts with
// exponential backoff until the strategy's attempt budget is exhausted.
func (t *RetryTransport) ProcessMessageOut(ctx context.Context, out model.Outbound) error {
	var lastErr error

	for attempt := 0; t.strategy.IsRetryable(attempt); attempt++ {
		if attempt > 0 {
			delay := t.strategy.CalculateRetryDelay(attempt)
			t.logger.Debugf("retrying delivery in %v (attempt %d of %d): %v",
				delay, attempt+1, t.strategy.MaxAttempts, lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := t.next.ProcessMessageOut(ctx, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return NewErrorWithCause(ErrCodeDelivery, "delivery failed after retries", lastErr)
}
