package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"contactrelay/internal/mail"
	"contactrelay/internal/queue"
	"contactrelay/internal/relay"
	"contactrelay/internal/services"
	"contactrelay/internal/store"
	"contactrelay/internal/templates"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type structValidator struct{ v *validator.Validate }

func (s structValidator) Validate(i interface{}) error { return s.v.Struct(i) }

type fakeSender struct {
	mu   sync.Mutex
	fail bool
	sent []relay.Message
}

func (f *fakeSender) Send(_ context.Context, msg relay.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.fail {
		return &relay.RelayError{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"}
	}
	return nil
}

type fixture struct {
	echo   *echo.Echo
	sender *fakeSender
	queue  *queue.Queue
}

func newFixture() *fixture {
	sender := &fakeSender{}
	q := queue.New(store.NewMemory(), queue.Options{})
	mailer := mail.NewMailer(sender, "owner@example.com", "noreply@example.com")
	contacts := services.NewContactService(services.NewDeliveryService(mailer, q, nil, false), nil, templates.Brand{})

	e := echo.New()
	e.Validator = structValidator{v: validator.New()}
	e.POST("/api/contact", NewContactHandler(contacts).Submit)

	qh := NewQueueHandler(queue.NewRunner(q, mailer, 3, 0))
	e.GET("/api/v1/mail-queue", qh.List)
	e.POST("/api/v1/mail-queue/drain", qh.Drain)

	return &fixture{echo: e, sender: sender, queue: q}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

const validBody = `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","message":"Hello","lang":"en","reason":"speaking"}`

func decode(t *testing.T, rec *httptest.ResponseRecorder) ContactResponse {
	t.Helper()
	var resp ContactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestContactSubmitJSON(t *testing.T) {
	f := newFixture()
	rec := f.do(jsonRequest(validBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContactResponse{OK: true, Queued: false}, decode(t, rec))
	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, relay.AccountForm, f.sender.sent[0].SMTPAccount)
	assert.Equal(t, "Contact Form: Event / Speaking", f.sender.sent[0].Subject)
	assert.Equal(t, relay.AccountAutoReply, f.sender.sent[1].SMTPAccount)
}

func TestContactSubmitForm(t *testing.T) {
	f := newFixture()
	form := url.Values{
		"firstName": {"Jane"},
		"lastName":  {"Doe"},
		"email":     {"jane@example.com"},
		"message":   {"Hallo"},
		"lang":      {"de"},
		"reason":    {"other"},
		"subject":   {"Podcast"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, "Contact Form: Podcast", f.sender.sent[0].Subject)
}

func TestContactSubmitRelayDownStillSucceeds(t *testing.T) {
	f := newFixture()
	f.sender.fail = true

	rec := f.do(jsonRequest(validBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContactResponse{OK: true, Queued: true}, decode(t, rec))

	jobs, err := f.queue.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestContactSubmitRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"missing email":     `{"firstName":"Jane","lastName":"Doe","message":"Hi"}`,
		"bad email":         `{"firstName":"Jane","lastName":"Doe","email":"nope","message":"Hi"}`,
		"other without why": `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","message":"Hi","reason":"other"}`,
		"unknown reason":    `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","message":"Hi","reason":"sales"}`,
		"honeypot":          `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","message":"Hi","middleName":"bot"}`,
		"disposable":        `{"firstName":"Jane","lastName":"Doe","email":"jane@yopmail.com","message":"Hi"}`,
		"broken json":       `{"firstName":`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(jsonRequest(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.OK)
			assert.Equal(t, templates.Strings("en").Form.Invalid, resp.Error)
			assert.Empty(t, f.sender.sent)
		})
	}
}

func TestContactInvalidMessageIsLocalized(t *testing.T) {
	f := newFixture()
	rec := f.do(jsonRequest(`{"firstName":"Jana","lang":"de"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, templates.Strings("de").Form.Invalid, decode(t, rec).Error)
}

func TestRateLimitedUsesAcceptLanguage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	rec := httptest.NewRecorder()

	require.NoError(t, RateLimited(e.NewContext(req, rec), 0))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, templates.Strings("de").Form.RateLimit, decode(t, rec).Error)
}

func TestDrainEndpoint(t *testing.T) {
	f := newFixture()
	f.sender.fail = true
	f.do(jsonRequest(validBody))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/mail-queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listing QueueListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, "queue", listing.Key)
	require.Equal(t, 2, listing.Count)
	assert.Equal(t, mail.TypeNotification, listing.Jobs[0].Type)
	assert.Equal(t, mail.TypeAutoResponder, listing.Jobs[1].Type)
	assert.Equal(t, "jane@example.com", listing.Jobs[1].Recipient)
	assert.NotEmpty(t, listing.Jobs[0].QueuedAt)

	f.sender.fail = false
	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/mail-queue/drain", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mail queue processed successfully.", rec.Body.String())

	jobs, err := f.queue.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, store.Version, error) {
	return nil, "", errors.New("bucket unreachable")
}

func (brokenStore) CompareAndSwap(context.Context, string, store.Version, []byte) error {
	return errors.New("bucket unreachable")
}

func TestDrainEndpointReportsStoreErrors(t *testing.T) {
	q := queue.New(brokenStore{}, queue.Options{})
	h := NewQueueHandler(queue.NewRunner(q, &fakeSenderDeliverer{}, 3, 0))

	e := echo.New()
	rec := httptest.NewRecorder()
	require.NoError(t, h.Drain(e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Error processing mail queue: "))
	assert.Contains(t, rec.Body.String(), "bucket unreachable")
}

type fakeSenderDeliverer struct{}

func (fakeSenderDeliverer) Deliver(context.Context, mail.Job) error { return nil }
