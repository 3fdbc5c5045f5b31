package notifier

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// TimestampLayout is how notification timestamps are rendered.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Detail is one rendered entry of the alert payload.
type Detail struct {
	Key   string
	Label string
	Value string
}

// Message is a notification rendered once and shared by every channel.
type Message struct {
	AlertID        string
	AlertName      string
	Description    string
	ConditionType  models.ConditionType
	ConditionLabel string
	Severity       models.Severity
	Timestamp      time.Time
	Details        []Detail

	Subject string
	Plain   string
	HTML    string
}

// FormattedTime returns the timestamp in UTC.
func (m *Message) FormattedTime() string {
	return m.Timestamp.UTC().Format(TimestampLayout)
}

// Markdown renders the details as a markdown bullet list.
func (m *Message) Markdown() string {
	var b strings.Builder
	for _, d := range m.Details {
		fmt.Fprintf(&b, "- **%s:** %s\n", d.Label, d.Value)
	}
	return b.String()
}

type templateSet struct {
	html  *htmltemplate.Template
	plain *template.Template
}

var (
	loadOnce  sync.Once
	templates *templateSet
	loadErr   error
)

func loadTemplates() (*templateSet, error) {
	loadOnce.Do(func() {
		textFuncs := template.FuncMap{"upper": strings.ToUpper}
		htmlFuncs := htmltemplate.FuncMap{"upper": strings.ToUpper}

		plain, err := template.New("alert.txt").Funcs(textFuncs).ParseFS(templateFS, "templates/alert.txt")
		if err != nil {
			loadErr = fmt.Errorf("parse plain template: %w", err)
			return
		}
		html, err := htmltemplate.New("alert.html").Funcs(htmlFuncs).ParseFS(templateFS, "templates/alert.html")
		if err != nil {
			loadErr = fmt.Errorf("parse html template: %w", err)
			return
		}
		templates = &templateSet{html: html, plain: plain}
	})
	return templates, loadErr
}

// titleize turns snake_case identifiers into title-cased labels.
func titleize(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// SeverityColor returns the hex color used for a severity in cards and attachments.
func SeverityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#ff0000"
	case models.SeverityWarning:
		return "#ff9900"
	default:
		return "#36a64f"
	}
}

type templateData struct {
	*Message
	Color string
}

// BuildMessage renders the subject, plain text and HTML bodies for a triggered
// alert. Details are listed in sorted key order.
func BuildMessage(alert *models.Alert, payload *models.AlertPayload, now time.Time) (*Message, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(payload.Details))
	for k := range payload.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	details := make([]Detail, 0, len(keys))
	for _, k := range keys {
		details = append(details, Detail{
			Key:   k,
			Label: titleize(k),
			Value: fmt.Sprint(payload.Details[k]),
		})
	}

	msg := &Message{
		AlertID:        alert.ID,
		AlertName:      alert.Name,
		Description:    alert.Description,
		ConditionType:  alert.ConditionType,
		ConditionLabel: titleize(string(alert.ConditionType)),
		Severity:       payload.Severity,
		Timestamp:      now.UTC(),
		Details:        details,
	}
	msg.Subject = fmt.Sprintf("[%s] DataMantri Alert: %s", strings.ToUpper(string(payload.Severity)), alert.Name)

	data := templateData{Message: msg, Color: SeverityColor(payload.Severity)}

	var plain bytes.Buffer
	if err := tmpl.plain.Execute(&plain, data); err != nil {
		return nil, fmt.Errorf("render plain body: %w", err)
	}
	var html bytes.Buffer
	if err := tmpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	msg.Plain = plain.String()
	msg.HTML = html.String()

	return msg, nil
}
