// Package templates renders the notification and auto-reply mails.
package templates

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

//go:embed files/*.tmpl
var files embed.FS

// Content is a rendered mail.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

// Brand is the signature printed under auto-replies. Empty fields are skipped.
type Brand struct {
	Name     string
	Title    string
	Email    string
	Website  string
	LinkedIn string
	GitHub   string
}

type NotificationParams struct {
	FirstName    string
	LastName     string
	Email        string
	Message      string
	Lang         string
	Reason       string
	SubjectOther string
	Company      string
	Phone        string
	Website      string
	Source       string
	ReceivedAt   time.Time
}

type AutoReplyParams struct {
	Lang      string
	FirstName string
	Message   string
	Brand     Brand
}

var (
	notificationHTML = parseHTML("notification.html.tmpl")
	notificationText = parseText("notification.txt.tmpl")
	autoReplyHTML    = parseHTML("autoreply.html.tmpl")
	autoReplyText    = parseText("autoreply.txt.tmpl")
)

func parseHTML(name string) *htmltemplate.Template {
	return htmltemplate.Must(htmltemplate.New(name).
		Funcs(sprig.FuncMap()).
		Funcs(htmltemplate.FuncMap{"nl2br": nl2br}).
		ParseFS(files, "files/"+name))
}

func parseText(name string) *texttemplate.Template {
	return texttemplate.Must(texttemplate.New(name).Funcs(sprig.TxtFuncMap()).ParseFS(files, "files/"+name))
}

func nl2br(s string) htmltemplate.HTML {
	return htmltemplate.HTML(strings.ReplaceAll(htmltemplate.HTMLEscapeString(s), "\n", "<br>"))
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func render(t executor, data any) (string, error) {
	var b bytes.Buffer
	err := t.Execute(&b, data)
	return b.String(), err
}

// RenderNotification builds the owner notification. The subject names the
// reason, or the free-text subject when the reason is "other".
func RenderNotification(p NotificationParams) (Content, error) {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}
	if p.Source == "" {
		p.Source = "Contact Form"
	}
	data := map[string]any{
		"FullName":     strings.TrimSpace(p.FirstName + " " + p.LastName),
		"Email":        p.Email,
		"Message":      p.Message,
		"LangFull":     LangFullName(p.Lang),
		"ReasonLabel":  ReasonLabel(p.Lang, p.Reason),
		"SubjectOther": subjectOther(p),
		"Company":      p.Company,
		"Phone":        p.Phone,
		"Website":      p.Website,
		"Source":       p.Source,
		"ReceivedAt":   p.ReceivedAt.Format("02 Jan 2006, 15:04"),
	}

	text, err := render(notificationText, data)
	if err != nil {
		return Content{}, err
	}
	html, err := render(notificationHTML, data)
	if err != nil {
		return Content{}, err
	}
	return Content{Subject: NotificationSubject(p), Text: text, HTML: html}, nil
}

func NotificationSubject(p NotificationParams) string {
	if other := subjectOther(p); other != "" {
		return "Contact Form: " + other
	}
	if label := ReasonLabel(p.Lang, p.Reason); label != "" {
		return "Contact Form: " + label
	}
	return "Contact Form"
}

func subjectOther(p NotificationParams) string {
	if p.Reason != "other" {
		return ""
	}
	return strings.TrimSpace(p.SubjectOther)
}

// RenderAutoReply builds the confirmation mail in the submitter's language.
func RenderAutoReply(p AutoReplyParams) (Content, error) {
	t := Strings(p.Lang).AutoReply
	data := map[string]any{
		"T":         t,
		"FirstName": p.FirstName,
		"Message":   p.Message,
		"Brand":     p.Brand,
	}

	text, err := render(autoReplyText, data)
	if err != nil {
		return Content{}, err
	}
	html, err := render(autoReplyHTML, data)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Subject: t.Subject + " " + p.FirstName + "!",
		Text:    text,
		HTML:    html,
	}, nil
}
