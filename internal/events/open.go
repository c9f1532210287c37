package events

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config selects a publisher.
type Config struct {
	Driver        string // log | rabbitmq | redis | webhook
	RabbitMQURL   string
	Exchange      string
	RedisAddr     string
	Stream        string
	StreamMaxLen  int64
	WebhookURL    string
	WebhookSecret string
	RetryAttempts uint
}

// Open builds the publisher named by cfg.Driver. Broker-backed publishers are
// wrapped with WithRetry.
func Open(cfg Config, logger *zap.Logger) (Publisher, error) {
	var p Publisher
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(logger), nil
	case "rabbitmq":
		rmq, err := NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.Exchange)
		if err != nil {
			return nil, err
		}
		p = rmq
	case "redis":
		p = NewRedisStreamPublisher(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.Stream, cfg.StreamMaxLen)
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("events driver webhook requires a webhook url")
		}
		p = NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret)
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
	logger.Info("event publisher ready", zap.String("driver", cfg.Driver))
	return WithRetry(p, cfg.RetryAttempts, logger), nil
}
