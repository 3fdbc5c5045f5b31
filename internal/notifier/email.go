package notifier

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string // SMTP server host
	Port     int    // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string
	Password string
	From     string
}

// Configured reports whether every setting needed to send is present.
func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.Port != 0 && c.Username != "" && c.Password != "" && c.From != ""
}

// mailDialer is satisfied by *gomail.Dialer.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender sends multipart plain/HTML email through SMTP.
type EmailSender struct {
	config EmailConfig
	dialer mailDialer
}

// NewEmailSender creates an email sender. The sender is always constructed;
// missing settings are reported per send.
func NewEmailSender(config EmailConfig) *EmailSender {
	return &EmailSender{
		config: config,
		// gomail upgrades to STARTTLS when the server advertises it.
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Channel returns models.ChannelEmail.
func (e *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send delivers one message addressed to all recipients.
func (e *EmailSender) Send(ctx context.Context, recipients []string, msg *Message) models.ChannelResult {
	if !e.config.Configured() {
		return models.ChannelResult{Error: "SMTP not configured"}
	}
	if len(recipients) == 0 {
		return models.ChannelResult{Error: "no email recipients"}
	}
	if err := ctx.Err(); err != nil {
		return models.ChannelResult{Error: err.Error()}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.config.From)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Plain)
	m.AddAlternative("text/html", msg.HTML)

	if err := e.dialer.DialAndSend(m); err != nil {
		return models.ChannelResult{Error: err.Error()}
	}

	return models.ChannelResult{
		Success: true,
		Message: fmt.Sprintf("Email sent to %d recipients", len(recipients)),
	}
}
