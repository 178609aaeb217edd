package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultWebhookRetries = 2
)

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookSink posts notifications to a chat webhook endpoint.
type WebhookSink struct {
	url     string
	timeout time.Duration
	retries int
	client  *resty.Client
}

// WebhookOption configures the webhook sink.
type WebhookOption func(*WebhookSink)

// WithWebhookTimeout bounds one delivery attempt.
func WithWebhookTimeout(timeout time.Duration) WebhookOption {
	return func(s *WebhookSink) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithWebhookRetries sets the retry count for a failed delivery.
func WithWebhookRetries(n int) WebhookOption {
	return func(s *WebhookSink) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// NewWebhookSink constructs a webhook sink.
func NewWebhookSink(url string, opts ...WebhookOption) (*WebhookSink, error) {
	if url == "" {
		return nil, errors.New("webhook sink: empty url")
	}
	sink := &WebhookSink{
		url:     url,
		timeout: defaultWebhookTimeout,
		retries: defaultWebhookRetries,
	}
	for _, opt := range opts {
		opt(sink)
	}
	sink.client = resty.New().
		SetTimeout(sink.timeout).
		SetRetryCount(sink.retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")
	return sink, nil
}

// Publish posts the rendered title and body as a DingTalk/WeCom-compatible text message.
func (s *WebhookSink) Publish(ctx context.Context, topic string, payload []byte) error {
	if s == nil || s.client == nil {
		return errors.New("webhook sink: not initialised")
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			MsgType: "text",
			Text:    webhookText{Content: webhookContent(topic, payload)},
		}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook sink: %w", err)
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook sink: non-2xx response %d", resp.StatusCode())
	}
	return nil
}

func webhookContent(topic string, payload []byte) string {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err == nil && msg.Title != "" {
		return "[" + msg.Title + "]\n" + msg.Body
	}
	return topic + "\n" + string(payload)
}
