package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type webhookOptions struct {
	logger  *zap.Logger
	timeout time.Duration
	client  *http.Client
}

var defaultWebhookOptions = webhookOptions{
	logger:  zap.NewNop(),
	timeout: 10 * time.Second,
}

type WebhookOption func(opts *webhookOptions)

func WithWebhookLogger(logger *zap.Logger) WebhookOption {
	return func(opts *webhookOptions) {
		opts.logger = logger
	}
}

func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(opts *webhookOptions) {
		opts.timeout = d
	}
}

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(opts *webhookOptions) {
		opts.client = c
	}
}

// WebhookSink POSTs each event as JSON to a single URL.
type WebhookSink struct {
	url string
	webhookOptions
}

type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	options := defaultWebhookOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.client == nil {
		options.client = &http.Client{Timeout: options.timeout}
	}
	return &WebhookSink{url: url, webhookOptions: options}
}

func (w *WebhookSink) Discovery(ctx context.Context, e Event) error {
	return w.post(ctx, envelope{Type: string(KindDiscovery), Payload: e})
}

func (w *WebhookSink) Enrichment(ctx context.Context, e Event) error {
	return w.post(ctx, envelope{Type: string(KindEnrichment), Payload: e})
}

func (w *WebhookSink) RunFinished(ctx context.Context, s RunSummary) error {
	return w.post(ctx, envelope{Type: "run", Payload: s})
}

func (w *WebhookSink) post(ctx context.Context, env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", env.Type, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook %s: status %d", env.Type, resp.StatusCode)
	}
	w.logger.Debug("webhook delivered", zap.String("type", env.Type), zap.Int("status", resp.StatusCode))
	return nil
}
