package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contactrelay/internal/metrics"

	"github.com/go-resty/resty/v2"
)

const (
	FormatSlack   = "slack"
	FormatDiscord = "discord"
)

// Sink posts operational alerts. Callers treat delivery as best effort and
// discard the returned error after logging it.
type Sink interface {
	Notify(ctx context.Context, text string) error
}

// ErrNotConfigured is returned by a webhook sink without a URL.
var ErrNotConfigured = errors.New("alert webhook URL not configured")

type WebhookSink struct {
	url    string
	format string
	http   *resty.Client
}

func NewWebhookSink(url, format string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if format != FormatDiscord {
		format = FormatSlack
	}
	return &WebhookSink{
		url:    url,
		format: format,
		http:   resty.New().SetTimeout(timeout),
	}
}

func (s *WebhookSink) Notify(ctx context.Context, text string) error {
	if s.url == "" {
		metrics.AlertsSent.WithLabelValues("skipped").Inc()
		return ErrNotConfigured
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(s.payload(text)).
		Post(s.url)
	if err != nil {
		metrics.AlertsSent.WithLabelValues("error").Inc()
		return fmt.Errorf("alert webhook request failed: %w", err)
	}
	if !resp.IsSuccess() {
		metrics.AlertsSent.WithLabelValues("error").Inc()
		return fmt.Errorf("alert webhook error: %s: %s", resp.Status(), resp.String())
	}

	metrics.AlertsSent.WithLabelValues("ok").Inc()
	return nil
}

func (s *WebhookSink) payload(text string) map[string]string {
	if s.format == FormatDiscord {
		// Discord rejects content longer than 2000 characters.
		runes := []rune(text)
		if len(runes) > 2000 {
			text = string(runes[:1997]) + "..."
		}
		return map[string]string{"content": text}
	}
	return map[string]string{"text": text}
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
