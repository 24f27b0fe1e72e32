package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"guestlist/internal/domain"
)

// mailingRenderer implements domain.MailingRenderer with Go templates. Mailing bodies use
// merge fields such as {{.Name}}, {{.EventName}} and {{.RsvpURL}}.
type mailingRenderer struct{}

// NewMailingRenderer returns a MailingRenderer that parses the mailing's own text as templates.
func NewMailingRenderer() domain.MailingRenderer {
	return &mailingRenderer{}
}

// Render executes subject and plain text as text templates and the HTML body as an
// html/template so merge values are escaped.
func (r *mailingRenderer) Render(m *domain.Mailing, data domain.MergeData) (subject, htmlBody, textBody string, err error) {
	subject, err = renderText("subject", m.Subject, data)
	if err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	if m.HTML != "" {
		htmlBody, err = renderHTML(m.HTML, data)
		if err != nil {
			return "", "", "", fmt.Errorf("render html: %w", err)
		}
	}
	if m.PlainText != "" {
		textBody, err = renderText("plain_text", m.PlainText, data)
		if err != nil {
			return "", "", "", fmt.Errorf("render text: %w", err)
		}
	}
	return strings.TrimSpace(subject), htmlBody, textBody, nil
}

func renderText(name, tmpl string, data domain.MergeData) (string, error) {
	t, err := texttemplate.New(name).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderHTML(tmpl string, data domain.MergeData) (string, error) {
	t, err := template.New("html").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
