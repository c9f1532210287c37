package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "opengov-report-events"

// RedisStreamPublisher appends events to a Redis stream with XADD.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher wraps client. maxLen caps the stream length
// approximately; 0 leaves it unbounded.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish implements Publisher.
func (p *RedisStreamPublisher) Publish(ctx context.Context, e *Event) error {
	eventJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: map[string]interface{}{
			"event_id":   e.EventID,
			"event_type": e.EventType,
			"report_id":  e.ReportID,
			"payload":    string(eventJSON),
			"timestamp":  e.Timestamp.Format(time.RFC3339),
		},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", e.EventType, err)
	}
	return nil
}

// Close implements Publisher.
func (p *RedisStreamPublisher) Close() error {
	return p.client.Close()
}
