// Package email delivers report notifications to citizens.
package email

import "context"

// Sender delivers a plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
