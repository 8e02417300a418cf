package webhooks

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

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Header names set on every delivery
const (
	EventHeader     = "X-Httpusers-Event"
	DeliveryHeader  = "X-Httpusers-Delivery"
	SignatureHeader = "X-Httpusers-Signature"
)

// PermanentError marks a delivery failure that must not be retried
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return "invalid webhook request: " + e.Err.Error()
	}
	return fmt.Sprintf("webhook returned non-retryable status: %d", e.StatusCode)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Client posts signed payloads to one URL
type Client struct {
	url    string
	secret string
	client *http.Client
	policy *RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient returns a client with an instrumented transport
func NewClient(url, secret string, timeout time.Duration, retry RetryConfig) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		policy: NewRetryPolicy(retry),
		sleep:  sleepContext,
	}
}

// Post delivers payload as JSON under event, retrying transient failures
func (c *Client) Post(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	delivery := uuid.NewString()

	for attempt := 1; ; attempt++ {
		err = c.send(ctx, event, delivery, body)
		if !c.policy.ShouldRetry(attempt, err) {
			break
		}
		if err := c.sleep(ctx, c.policy.NextRetryDelay(attempt)); err != nil {
			return fmt.Errorf("webhook delivery cancelled: %w", err)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to deliver webhook %s: %w", event, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, event, delivery string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	req.Header.Set(DeliveryHeader, delivery)
	if c.secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, c.secret))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{StatusCode: resp.StatusCode}
	}
	return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
}

// Sign returns the signature header value for payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value in constant time
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
