package mail

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

const (
	TypeNotification  = "notification"
	TypeAutoResponder = "autoresponder"
)

// timeLayout matches the millisecond ISO timestamps already present in
// stored queues.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrNotArray is returned by UnmarshalQueue when the blob is not a JSON array.
var ErrNotArray = errors.New("queue blob is not a JSON array")

// Job is a queued mail. It is implemented only by NotificationJob,
// AutoReplyJob and UnknownJob.
type Job interface {
	// Type returns the wire tag, or "" for an UnknownJob.
	Type() string
	isJob()
}

// NotificationJob is the owner notification for a contact submission.
type NotificationJob struct {
	FirstName string
	LastName  string
	Email     string
	Message   string
	Lang      string
	IP        string
	Subject   string
	// Optional prerendered bodies; the mailer falls back to a plain layout.
	Text     string
	HTML     string
	QueuedAt time.Time
}

// AutoReplyJob is the confirmation sent back to the submitter.
type AutoReplyJob struct {
	ToEmail   string
	Subject   string
	Text      string
	HTML      string
	FirstName string
	LastName  string
	Lang      string
	QueuedAt  time.Time
}

// UnknownJob wraps a stored item whose type is missing, unrecognised or whose
// payload does not decode. It is written back unchanged apart from whitespace.
type UnknownJob struct {
	Raw json.RawMessage
}

func (NotificationJob) Type() string { return TypeNotification }
func (AutoReplyJob) Type() string    { return TypeAutoResponder }
func (UnknownJob) Type() string      { return "" }

func (NotificationJob) isJob() {}
func (AutoReplyJob) isJob()    {}
func (UnknownJob) isJob()      {}

// QueuedAt returns when job was first enqueued. ok is false for unknown jobs
// and for items stored without a timestamp.
func QueuedAt(job Job) (t time.Time, ok bool) {
	switch j := job.(type) {
	case NotificationJob:
		return j.QueuedAt, !j.QueuedAt.IsZero()
	case AutoReplyJob:
		return j.QueuedAt, !j.QueuedAt.IsZero()
	default:
		return time.Time{}, false
	}
}

// Recipient is the address the job will be delivered to, or the submitter
// for notifications.
func Recipient(job Job) string {
	switch j := job.(type) {
	case NotificationJob:
		return j.Email
	case AutoReplyJob:
		return j.ToEmail
	default:
		return ""
	}
}

type wireItem struct {
	Type     string          `json:"type"`
	QueuedAt string          `json:"queuedAt"`
	Payload  json.RawMessage `json:"payload"`
}

type notificationPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	Lang      string `json:"lang,omitempty"`
	IP        string `json:"ip,omitempty"`
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

type autoReplyPayload struct {
	ToEmail   string `json:"toEmail"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

// EncodeJob serializes one queue item.
func EncodeJob(job Job) (json.RawMessage, error) {
	switch j := job.(type) {
	case NotificationJob:
		payload, err := marshal(notificationPayload{
			FirstName: j.FirstName,
			LastName:  j.LastName,
			Email:     j.Email,
			Message:   j.Message,
			Lang:      j.Lang,
			IP:        j.IP,
			Text:      j.Text,
			HTML:      j.HTML,
			Subject:   j.Subject,
		})
		if err != nil {
			return nil, err
		}
		return marshal(wireItem{Type: TypeNotification, QueuedAt: formatTime(j.QueuedAt), Payload: payload})
	case AutoReplyJob:
		payload, err := marshal(autoReplyPayload{
			ToEmail:   j.ToEmail,
			Subject:   j.Subject,
			Text:      j.Text,
			HTML:      j.HTML,
			FirstName: j.FirstName,
			LastName:  j.LastName,
			Lang:      j.Lang,
		})
		if err != nil {
			return nil, err
		}
		return marshal(wireItem{Type: TypeAutoResponder, QueuedAt: formatTime(j.QueuedAt), Payload: payload})
	case UnknownJob:
		if !json.Valid(j.Raw) {
			return nil, errors.New("unknown job holds invalid JSON")
		}
		return append(json.RawMessage(nil), j.Raw...), nil
	default:
		return nil, errors.New("unsupported job type")
	}
}

// DecodeJob never fails: anything that is not a well-formed notification or
// autoresponder item comes back as an UnknownJob holding raw.
func DecodeJob(raw json.RawMessage) Job {
	unknown := UnknownJob{Raw: append(json.RawMessage(nil), raw...)}

	var item wireItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return unknown
	}
	if !isObject(item.Payload) {
		return unknown
	}
	queuedAt := parseTime(item.QueuedAt)

	switch item.Type {
	case TypeNotification:
		var p notificationPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return unknown
		}
		return NotificationJob{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
			Message:   p.Message,
			Lang:      p.Lang,
			IP:        p.IP,
			Subject:   p.Subject,
			Text:      p.Text,
			HTML:      p.HTML,
			QueuedAt:  queuedAt,
		}
	case TypeAutoResponder:
		var p autoReplyPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return unknown
		}
		return AutoReplyJob{
			ToEmail:   p.ToEmail,
			Subject:   p.Subject,
			Text:      p.Text,
			HTML:      p.HTML,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Lang:      p.Lang,
			QueuedAt:  queuedAt,
		}
	default:
		return unknown
	}
}

// SplitQueue splits a stored queue blob into its raw items. An empty blob is
// an empty queue.
func SplitQueue(data []byte) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, ErrNotArray
	}
	// Items are compacted so an indented blob and its rewritten form compare equal.
	for i, raw := range items {
		var b bytes.Buffer
		if err := json.Compact(&b, raw); err != nil {
			return nil, ErrNotArray
		}
		items[i] = b.Bytes()
	}
	return items, nil
}

// JoinQueue is the inverse of SplitQueue.
func JoinQueue(items []json.RawMessage) ([]byte, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	return marshal(items)
}

func MarshalQueue(jobs []Job) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(jobs))
	for _, job := range jobs {
		raw, err := EncodeJob(job)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return JoinQueue(items)
}

func UnmarshalQueue(data []byte) ([]Job, error) {
	items, err := SplitQueue(data)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(items))
	for _, raw := range items {
		jobs = append(jobs, DecodeJob(raw))
	}
	return jobs, nil
}

// marshal is json.Marshal without HTML escaping, so stored bodies stay readable.
func marshal(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
