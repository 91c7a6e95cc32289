package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
)

// LogSink logs notifications instead of delivering them — used in ENV=local,
// mirroring the teacher's email.LogSender.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink { return &LogSink{logger: logger} }

func (s *LogSink) SendEmail(_ context.Context, to, template string, data map[string]any) error {
	s.logger.Info("notifier email (local dev)", "to", to, "template", template, "data", data)
	return nil
}

func (s *LogSink) PostWebhook(_ context.Context, url string, body []byte, _ string) error {
	s.logger.Info("notifier webhook (local dev)", "url", url, "body", string(body))
	return nil
}

// DefaultSink sends emails through Resend (teacher's email.ResendSender) and
// POSTs webhooks with an HMAC-SHA256 signature over the body, keyed by the
// organization's webhook_secret.
type DefaultSink struct {
	client     *resend.Client
	from       string
	httpClient *http.Client
}

func NewDefaultSink(apiKey, from string) *DefaultSink {
	return &DefaultSink{
		client:     resend.NewClient(apiKey),
		from:       from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *DefaultSink) SendEmail(ctx context.Context, to, template string, data map[string]any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal template data: %w", err)
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: fmt.Sprintf("[alert] %s", template),
		Html:    fmt.Sprintf("<pre>%s</pre>", body),
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *DefaultSink) PostWebhook(ctx context.Context, url string, body []byte, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// NewSink returns a LogSink for ENV=local, DefaultSink otherwise — mirrors
// the teacher's email.NewSender selection.
func NewSink(env, apiKey, from string, logger *slog.Logger) Sink {
	if env == "local" {
		return NewLogSink(logger)
	}
	return NewDefaultSink(apiKey, from)
}
