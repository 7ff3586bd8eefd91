package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"contactrelay/internal/mail"
	"contactrelay/internal/metrics"
	"contactrelay/internal/templates"
	"contactrelay/internal/utils/logger"

	"github.com/google/uuid"
)

var log = logger.New("contact")

// ErrDisposableEmail rejects addresses on throwaway mail domains.
var ErrDisposableEmail = errors.New("disposable email domains are not accepted")

const ReasonOther = "other"

// ContactSubmission is the contact form payload, bound from JSON or form data.
type ContactSubmission struct {
	FirstName    string `json:"firstName" form:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" form:"lastName" validate:"required,max=100"`
	Email        string `json:"email" form:"email" validate:"required,email,max=254"`
	Message      string `json:"message" form:"message" validate:"required,max=5000"`
	Lang         string `json:"lang" form:"lang" validate:"omitempty,oneof=en de"`
	Reason       string `json:"reason" form:"reason" validate:"omitempty,oneof=recruitment collaboration speaking interview other"`
	SubjectOther string `json:"subjectOther" form:"subjectOther" validate:"required_if=Reason other,max=200"`
	// Subject is the older name of SubjectOther.
	Subject string `json:"subject" form:"subject" validate:"max=200"`
	Company string `json:"company" form:"company" validate:"max=200"`
	Phone   string `json:"phone" form:"phone" validate:"max=40"`
	Website string `json:"website" form:"website" validate:"omitempty,url,max=300"`
	// Honeypot, left empty by humans.
	MiddleName string `json:"middleName" form:"middleName" validate:"max=0"`
}

// Normalize trims and cleans every field in place. It runs before validation.
func (s *ContactSubmission) Normalize() {
	s.FirstName = sanitize(s.FirstName)
	s.LastName = sanitize(s.LastName)
	s.Email = strings.ToLower(sanitize(s.Email))
	s.Message = sanitizeMultiline(s.Message)
	s.Lang = templates.NormalizeLang(s.Lang)
	s.Reason = strings.ToLower(sanitize(s.Reason))
	s.SubjectOther = sanitize(s.SubjectOther)
	s.Subject = sanitize(s.Subject)
	s.Company = sanitize(s.Company)
	s.Phone = normalizePhone(s.Phone)
	s.Website = normalizeWebsite(s.Website)
	s.MiddleName = strings.TrimSpace(s.MiddleName)

	if s.Reason == ReasonOther && s.SubjectOther == "" {
		s.SubjectOther = s.Subject
	}
	if s.Reason != ReasonOther {
		s.SubjectOther = ""
	}
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeMultiline(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r), r == '+', r == '(', r == ')', r == '-', r == '/':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeWebsite(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}
	return s
}

// ContactService turns a validated submission into mail jobs and hands them
// to the delivery state machine.
type ContactService struct {
	delivery *DeliveryService
	domains  *DomainPolicy
	brand    templates.Brand
	now      func() time.Time
}

func NewContactService(delivery *DeliveryService, domains *DomainPolicy, brand templates.Brand) *ContactService {
	if domains == nil {
		domains = NewDomainPolicy(nil, nil)
	}
	return &ContactService{
		delivery: delivery,
		domains:  domains,
		brand:    brand,
		now:      time.Now,
	}
}

// Submit delivers a normalized and validated submission. The only error
// callers should show the submitter as a bad request is ErrDisposableEmail.
func (s *ContactService) Submit(ctx context.Context, sub ContactSubmission, ip string) (Outcome, error) {
	if !s.domains.Allowed(sub.Email) {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		log.Warn("rejected disposable address %s", sub.Email)
		return Outcome{}, ErrDisposableEmail
	}

	id := uuid.NewString()
	now := s.now()

	notif, reply, err := s.buildJobs(sub, ip, now)
	if err != nil {
		return Outcome{}, log.Error("failed to render mails for submission %s: %v", id, err)
	}

	log.Info("submission %s from %s (%s)", id, sub.Email, sub.Lang)
	out := s.delivery.Deliver(ctx, notif, reply, AlertContext(id, sub, ip))
	log.Debug("submission %s finished in state %s, %d job(s) queued", id, out.State, out.Enqueued)
	return out, nil
}

func (s *ContactService) buildJobs(sub ContactSubmission, ip string, now time.Time) (mail.NotificationJob, mail.AutoReplyJob, error) {
	notifContent, err := templates.RenderNotification(templates.NotificationParams{
		FirstName:    sub.FirstName,
		LastName:     sub.LastName,
		Email:        sub.Email,
		Message:      sub.Message,
		Lang:         sub.Lang,
		Reason:       sub.Reason,
		SubjectOther: sub.SubjectOther,
		Company:      sub.Company,
		Phone:        sub.Phone,
		Website:      sub.Website,
		ReceivedAt:   now,
	})
	if err != nil {
		return mail.NotificationJob{}, mail.AutoReplyJob{}, fmt.Errorf("notification: %w", err)
	}

	replyContent, err := templates.RenderAutoReply(templates.AutoReplyParams{
		Lang:      sub.Lang,
		FirstName: sub.FirstName,
		Message:   sub.Message,
		Brand:     s.brand,
	})
	if err != nil {
		return mail.NotificationJob{}, mail.AutoReplyJob{}, fmt.Errorf("auto-reply: %w", err)
	}

	notif := mail.NotificationJob{
		FirstName: sub.FirstName,
		LastName:  sub.LastName,
		Email:     sub.Email,
		Message:   sub.Message,
		Lang:      sub.Lang,
		IP:        ip,
		Subject:   notifContent.Subject,
		Text:      notifContent.Text,
		HTML:      notifContent.HTML,
	}
	reply := mail.AutoReplyJob{
		ToEmail:   sub.Email,
		Subject:   replyContent.Subject,
		Text:      replyContent.Text,
		HTML:      replyContent.HTML,
		FirstName: sub.FirstName,
		LastName:  sub.LastName,
		Lang:      sub.Lang,
	}
	return notif, reply, nil
}

const previewLength = 300

// AlertContext is the block appended to delivery failure alerts.
func AlertContext(id string, sub ContactSubmission, ip string) string {
	reason := sub.Reason
	if reason == "" {
		reason = "-"
	}
	if sub.SubjectOther != "" {
		reason += " (" + sub.SubjectOther + ")"
	}
	if ip == "" {
		ip = "unknown"
	}

	preview := []rune(sub.Message)
	if len(preview) > previewLength {
		preview = append(preview[:previewLength], '…')
	}

	return fmt.Sprintf("From: %s %s <%s>\nReason: %s\nLang: %s | IP: %s\nID: %s\nMsg: %s",
		sub.FirstName, sub.LastName, sub.Email, reason, sub.Lang, ip, id, string(preview))
}
