package events

import "time"

// SetRetryDelay shortens the backoff of a WithRetry publisher in tests.
func SetRetryDelay(p Publisher, d time.Duration) {
	p.(*retryPublisher).delay = d
}
