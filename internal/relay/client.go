package relay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"contactrelay/internal/metrics"
	"contactrelay/internal/utils/logger"

	"github.com/go-resty/resty/v2"
)

var log = logger.New("relay")

const (
	HeaderToken     = "X-Relay-Token"
	HeaderSignature = "X-Signature"

	AccountForm      = "form"
	AccountAutoReply = "autoreply"
)

// Message is the JSON body posted to the relay. Field order is part of the
// signed payload.
type Message struct {
	SMTPAccount string `json:"smtpAccount"`
	To          string `json:"to"`
	From        string `json:"from"`
	ReplyTo     string `json:"replyTo"`
	Subject     string `json:"subject"`
	Text        string `json:"text"`
	HTML        string `json:"html"`
}

// Sender delivers a single message. Implementations make one attempt per call.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	URL        string
	Token      string
	HMACSecret string
	Timeout    time.Duration
}

// Client posts signed messages to the HTTP mail relay.
type Client struct {
	config Config
	http   *resty.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		config: cfg,
		http:   resty.New().SetTimeout(cfg.Timeout).SetRetryCount(0),
	}
}

// Send signs msg and posts it once. Missing settings yield a
// *ConfigurationError without touching the network; transport failures and
// non-2xx responses yield a *RelayError.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if err := c.validate(); err != nil {
		metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "config").Inc()
		return err
	}

	body, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	signature := Sign(c.config.HMACSecret, body)

	log.Debug("sending %s mail through relay", msg.SMTPAccount)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderToken, c.config.Token).
		SetHeader(HeaderSignature, signature).
		SetBody(body).
		Post(c.config.URL)
	if err != nil {
		metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "error").Inc()
		return &RelayError{Err: err}
	}

	if !resp.IsSuccess() {
		metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "error").Inc()
		return &RelayError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       resp.String(),
		}
	}

	metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "ok").Inc()
	log.Debug("relay accepted %s mail with status %d", msg.SMTPAccount, resp.StatusCode())
	return nil
}

func (c *Client) validate() error {
	switch {
	case c.config.URL == "":
		return &ConfigurationError{Missing: "STELLAR_RELAY_URL"}
	case c.config.Token == "":
		return &ConfigurationError{Missing: "STELLAR_RELAY_TOKEN"}
	case c.config.HMACSecret == "":
		return &ConfigurationError{Missing: "STELLAR_HMAC_SECRET"}
	}
	return nil
}

// EncodeMessage serializes msg without HTML escaping so addresses like
// "Jane Doe <jane@example.com>" are sent as written.
func EncodeMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign returns the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
