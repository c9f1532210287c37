package email

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs messages instead of delivering them. It is used when SMTP
// is not configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the message and returns nil.
func (n *NoopSender) Send(_ context.Context, to, subject, _ string) error {
	n.logger.Info("email not sent (smtp disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
