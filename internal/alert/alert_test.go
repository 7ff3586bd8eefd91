package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureServer(t *testing.T, status int, got *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.WriteHeader(status)
	}))
}

func TestSlackPayload(t *testing.T) {
	var got map[string]string
	srv := captureServer(t, http.StatusOK, &got)
	defer srv.Close()

	require.NoError(t, NewWebhookSink(srv.URL, FormatSlack, 0).Notify(context.Background(), "[MAIL-FAIL][DEV] notif: boom"))
	assert.Equal(t, map[string]string{"text": "[MAIL-FAIL][DEV] notif: boom"}, got)
}

func TestDiscordPayloadTruncated(t *testing.T) {
	var got map[string]string
	srv := captureServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	require.NoError(t, NewWebhookSink(srv.URL, FormatDiscord, 0).Notify(context.Background(), strings.Repeat("x", 2500)))
	assert.Len(t, []rune(got["content"]), 2000)
}

func TestNon2xxReturnsError(t *testing.T) {
	var got map[string]string
	srv := captureServer(t, http.StatusForbidden, &got)
	defer srv.Close()

	err := NewWebhookSink(srv.URL, FormatSlack, 0).Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestMissingURL(t *testing.T) {
	assert.ErrorIs(t, NewWebhookSink("", "", 0).Notify(context.Background(), "x"), ErrNotConfigured)
	assert.NoError(t, Nop{}.Notify(context.Background(), "x"))
}
