package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-OpenGov-Signature"

// WebhookPublisher POSTs each event as JSON to a single endpoint. A non-2xx
// answer is an error so WithRetry can try again.
type WebhookPublisher struct {
	url        string
	secret     []byte
	httpClient *http.Client
}

// NewWebhookPublisher creates a WebhookPublisher. When secret is empty the
// signature header is omitted.
func NewWebhookPublisher(url, secret string) *WebhookPublisher {
	return &WebhookPublisher{
		url:        url,
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish implements Publisher.
func (p *WebhookPublisher) Publish(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OpenGov-Event", e.EventType)
	if len(p.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(body, p.secret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", e.EventType, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver %s: HTTP %d", e.EventType, resp.StatusCode)
	}
	return nil
}

// Close implements Publisher.
func (p *WebhookPublisher) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// Sign computes the signature header value for body.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
