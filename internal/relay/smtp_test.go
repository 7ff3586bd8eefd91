package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMIME(t *testing.T) {
	raw, err := BuildMIME("form@example.com", testMessage(), time.Date(2025, 10, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	out := string(raw)
	assert.Contains(t, out, `From: "Jane Doe" <form@example.com>`)
	assert.Contains(t, out, "To: owner@example.com")
	assert.Contains(t, out, "Reply-To: Jane Doe <jane@example.com>")
	assert.Contains(t, out, "multipart/alternative")
	assert.Contains(t, out, "text/plain; charset=UTF-8")
	assert.Contains(t, out, "<p>hello</p>")
}

func TestSMTPSenderUsesEnvelopeFrom(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Port: 587, Username: "u", Password: "p", From: "form@example.com"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotAuth sasl.Client
	s.send = func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error {
		gotAddr, gotFrom, gotTo, gotAuth = addr, from, to, a
		body, _ := io.ReadAll(r)
		assert.True(t, strings.Contains(string(body), "Subject:"))
		return nil
	}

	require.NoError(t, s.Send(context.Background(), testMessage()))
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "form@example.com", gotFrom)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)
}

func TestSMTPSenderErrors(t *testing.T) {
	var cfgErr *ConfigurationError
	err := NewSMTPSender(SMTPConfig{From: "x@example.com"}).Send(context.Background(), testMessage())
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SMTP_HOST", cfgErr.Missing)

	s := NewSMTPSender(SMTPConfig{Host: "h", Port: 25, From: "x@example.com"})
	s.send = func(string, sasl.Client, string, []string, *bytes.Reader) error {
		return errors.New("421 try later")
	}
	var relayErr *RelayError
	require.ErrorAs(t, s.Send(context.Background(), testMessage()), &relayErr)
	assert.Zero(t, relayErr.StatusCode)
}
