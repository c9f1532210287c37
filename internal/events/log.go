package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the logger. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e *Event) error {
	p.logger.Info("event",
		zap.String("event_id", e.EventID),
		zap.String("event_type", e.EventType),
		zap.String("report_id", e.ReportID),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error { return nil }
