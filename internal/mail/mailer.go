package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"contactrelay/internal/relay"
)

// ErrUnknownJob is returned when asked to deliver an UnknownJob.
var ErrUnknownJob = errors.New("unknown job shape")

// Mailer turns jobs into relay messages and sends them.
type Mailer struct {
	sender        relay.Sender
	to            string
	fromAutoReply string
}

func NewMailer(sender relay.Sender, mailTo, fromAutoReply string) *Mailer {
	return &Mailer{
		sender:        sender,
		to:            mailTo,
		fromAutoReply: fromAutoReply,
	}
}

// Deliver makes one send attempt for job.
func (m *Mailer) Deliver(ctx context.Context, job Job) error {
	switch j := job.(type) {
	case NotificationJob:
		return m.sender.Send(ctx, m.NotificationMessage(j))
	case AutoReplyJob:
		return m.sender.Send(ctx, m.AutoReplyMessage(j))
	case UnknownJob:
		return ErrUnknownJob
	default:
		return fmt.Errorf("%w: %T", ErrUnknownJob, job)
	}
}

// NotificationMessage addresses j to the site owner with the submitter as
// reply-to. Missing bodies are replaced by a plain fallback layout.
func (m *Mailer) NotificationMessage(j NotificationJob) relay.Message {
	name := strings.TrimSpace(j.FirstName + " " + j.LastName)
	text, body := j.Text, j.HTML
	if text == "" {
		text = FallbackText(j)
	}
	if body == "" {
		body = FallbackHTML(j)
	}
	return relay.Message{
		SMTPAccount: relay.AccountForm,
		To:          m.to,
		From:        name,
		ReplyTo:     fmt.Sprintf("%s <%s>", name, j.Email),
		Subject:     j.Subject,
		Text:        text,
		HTML:        body,
	}
}

func (m *Mailer) AutoReplyMessage(j AutoReplyJob) relay.Message {
	return relay.Message{
		SMTPAccount: relay.AccountAutoReply,
		To:          j.ToEmail,
		From:        m.fromAutoReply,
		ReplyTo:     m.to,
		Subject:     j.Subject,
		Text:        j.Text,
		HTML:        j.HTML,
	}
}

func FallbackText(j NotificationJob) string {
	return fmt.Sprintf("From: %s %s <%s>\n\n%s", j.FirstName, j.LastName, j.Email, j.Message)
}

func FallbackHTML(j NotificationJob) string {
	return fmt.Sprintf("<p><strong>From:</strong> %s %s &lt;%s&gt;</p><p>%s</p>",
		html.EscapeString(j.FirstName),
		html.EscapeString(j.LastName),
		html.EscapeString(j.Email),
		strings.ReplaceAll(html.EscapeString(j.Message), "\n", "<br>"),
	)
}
