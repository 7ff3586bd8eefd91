package relay

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"contactrelay/internal/metrics"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages straight to an SMTP server instead of the
// HTTP relay. The envelope sender is always the configured From address;
// the message's From is used as the display name.
type SMTPSender struct {
	config SMTPConfig
	send   func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		config: cfg,
		send: func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error {
			return smtp.SendMail(addr, a, from, to, r)
		},
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.config.Host == "" {
		metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "config").Inc()
		return &ConfigurationError{Missing: "SMTP_HOST"}
	}
	if s.config.From == "" {
		metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "config").Inc()
		return &ConfigurationError{Missing: "SMTP_FROM"}
	}
	if err := ctx.Err(); err != nil {
		return &RelayError{Err: err}
	}

	raw, err := BuildMIME(s.config.From, msg, time.Now())
	if err != nil {
		return err
	}

	var auth sasl.Client
	if s.config.Username != "" {
		auth = sasl.NewPlainClient("", s.config.Username, s.config.Password)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "error").Inc()
		return &RelayError{Err: err}
	}

	metrics.RelaySends.WithLabelValues(msg.SMTPAccount, "ok").Inc()
	return nil
}

// BuildMIME renders msg as a multipart/alternative message with a text and
// an HTML part.
func BuildMIME(envelopeFrom string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	from := envelopeFrom
	if msg.From != "" && !strings.Contains(msg.From, "@") {
		from = (&mail.Address{Name: msg.From, Address: envelopeFrom}).String()
	} else if msg.From != "" {
		from = msg.From
	}

	domain := "localhost"
	if at := strings.LastIndex(envelopeFrom, "@"); at >= 0 {
		domain = envelopeFrom[at+1:]
	}

	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		fmt.Sprintf("Message-ID: <%s@%s>", uuid.NewString(), domain),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", mw.Boundary()),
	}
	if msg.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+msg.ReplyTo)
	}

	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}
