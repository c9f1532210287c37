package events

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

const (
	initialDelay = 200 * time.Millisecond
	maxDelay     = 5 * time.Second
)

type retryPublisher struct {
	next     Publisher
	attempts uint
	delay    time.Duration
	logger   *zap.Logger
}

// WithRetry wraps next so that a failed Publish is retried with exponential
// backoff, up to attempts tries in total.
func WithRetry(next Publisher, attempts uint, logger *zap.Logger) Publisher {
	if attempts < 1 {
		attempts = 1
	}
	return &retryPublisher{next: next, attempts: attempts, delay: initialDelay, logger: logger}
}

func (p *retryPublisher) Publish(ctx context.Context, e *Event) error {
	return retry.Do(
		func() error {
			return p.next.Publish(ctx, e)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("event publish retry",
				zap.Uint("attempt", n+1),
				zap.String("event_type", e.EventType),
				zap.Error(err),
			)
		}),
	)
}

func (p *retryPublisher) Close() error { return p.next.Close() }
