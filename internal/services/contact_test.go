package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"contactrelay/internal/mail"
	"contactrelay/internal/queue"
	"contactrelay/internal/relay"
	"contactrelay/internal/store"
	"contactrelay/internal/templates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func janeDoe() ContactSubmission {
	sub := ContactSubmission{
		FirstName: " Jane ",
		LastName:  "Doe",
		Email:     "Jane@Example.com",
		Message:   "Hello,\r\nI would like to talk.",
		Lang:      "en",
		Reason:    "collaboration",
	}
	sub.Normalize()
	return sub
}

func TestSubmitRelayDownQueuesBothJobs(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := relay.NewClient(relay.Config{URL: srv.URL, Token: "tok", HMACSecret: "secret", Timeout: time.Second})
	mailer := mail.NewMailer(client, "owner@example.com", "noreply@example.com")
	q := queue.New(store.NewMemory(), queue.Options{})
	svc := NewContactService(NewDeliveryService(mailer, q, nil, false), nil, templates.Brand{Name: "Jane Owner"})

	out, err := svc.Submit(context.Background(), janeDoe(), "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.True(t, out.Queued)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	jobs, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	notif, ok := jobs[0].(mail.NotificationJob)
	require.True(t, ok)
	assert.Equal(t, "Jane", notif.FirstName)
	assert.Equal(t, "Doe", notif.LastName)
	assert.Equal(t, "jane@example.com", notif.Email)
	assert.Equal(t, "203.0.113.9", notif.IP)
	assert.Equal(t, "Contact Form: Collaboration", notif.Subject)
	_, stamped := mail.QueuedAt(notif)
	assert.True(t, stamped)

	reply, ok := jobs[1].(mail.AutoReplyJob)
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", reply.ToEmail)
	assert.Contains(t, reply.Subject, "Jane")
	_, stamped = mail.QueuedAt(reply)
	assert.True(t, stamped)
}

func TestSubmitRejectsDisposableDomain(t *testing.T) {
	mailer := &scriptedMailer{}
	svc := NewContactService(NewDeliveryService(mailer, &recordingQueue{}, nil, false), NewDomainPolicy(nil, nil), templates.Brand{})

	sub := janeDoe()
	sub.Email = "jane@mailinator.com"
	_, err := svc.Submit(context.Background(), sub, "")
	assert.ErrorIs(t, err, ErrDisposableEmail)
	assert.Empty(t, mailer.calls)
}

func TestSubmitAllowlistBypassesDomainCheck(t *testing.T) {
	mailer := &scriptedMailer{}
	policy := NewDomainPolicy(nil, []string{"jane@mailinator.com"})
	svc := NewContactService(NewDeliveryService(mailer, &recordingQueue{}, nil, false), policy, templates.Brand{})

	sub := janeDoe()
	sub.Email = "jane@mailinator.com"
	out, err := svc.Submit(context.Background(), sub, "")
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Len(t, mailer.calls, 2)
}

func TestDomainPolicy(t *testing.T) {
	p := NewDomainPolicy([]string{" Spam.Example "}, nil)

	assert.True(t, p.Allowed("jane@example.com"))
	assert.False(t, p.Allowed("x@yopmail.fr"))
	assert.False(t, p.Allowed("x@eu.mailinator.com"))
	assert.False(t, p.Allowed("x@spam.example"))
	assert.False(t, p.Allowed("not-an-address"))
	assert.False(t, p.Allowed("x@"))
}

func TestNormalize(t *testing.T) {
	sub := ContactSubmission{
		FirstName: "  Jane\tMarie ",
		Email:     " JANE@EXAMPLE.COM ",
		Message:   "line one\r\nline two\x00",
		Lang:      "de-DE",
		Reason:    "Other",
		Subject:   "Podcast",
		Phone:     "+49 (0)30 1234-567 ext.",
		Website:   "jane.example",
	}
	sub.Normalize()

	assert.Equal(t, "Jane Marie", sub.FirstName)
	assert.Equal(t, "jane@example.com", sub.Email)
	assert.Equal(t, "line one\nline two", sub.Message)
	assert.Equal(t, "de", sub.Lang)
	assert.Equal(t, "other", sub.Reason)
	assert.Equal(t, "Podcast", sub.SubjectOther)
	assert.Equal(t, "+49 (0)30 1234-567", sub.Phone)
	assert.Equal(t, "https://jane.example", sub.Website)
}

func TestNormalizeDropsSubjectForOtherReasons(t *testing.T) {
	sub := ContactSubmission{Reason: "speaking", SubjectOther: "ignored"}
	sub.Normalize()
	assert.Empty(t, sub.SubjectOther)
}

func TestAlertContext(t *testing.T) {
	sub := janeDoe()
	sub.Reason = ReasonOther
	sub.SubjectOther = "Podcast"
	sub.Message = strings.Repeat("a", 400)

	got := AlertContext("id-1", sub, "")
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "From: Jane Doe <jane@example.com>", lines[0])
	assert.Equal(t, "Reason: other (Podcast)", lines[1])
	assert.Equal(t, "Lang: en | IP: unknown", lines[2])
	assert.Equal(t, "ID: id-1", lines[3])
	assert.Equal(t, "Msg: "+strings.Repeat("a", 300)+"…", lines[4])
}
