package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

const whatsappPrefix = "whatsapp:"

// WhatsAppConfig holds Twilio credentials and the sending number.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	From       string // WhatsApp-enabled number, with or without the whatsapp: prefix
	// MessagesPerSecond paces sends to stay under the sender's Twilio
	// throughput. 0 disables pacing.
	MessagesPerSecond float64
}

// Configured reports whether every setting needed to send is present.
func (c WhatsAppConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// messageCreator is satisfied by the Twilio API v2010 service.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// WhatsAppSender sends one Twilio WhatsApp message per recipient.
type WhatsAppSender struct {
	config  WhatsAppConfig
	api     messageCreator
	limiter *rate.Limiter
}

// NewWhatsAppSender creates a WhatsApp sender backed by the Twilio REST API.
func NewWhatsAppSender(config WhatsAppConfig) *WhatsAppSender {
	s := &WhatsAppSender{config: config}
	if config.Configured() {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: config.AccountSID,
			Password: config.AuthToken,
		})
		s.api = client.Api
	}
	if config.MessagesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.MessagesPerSecond), 1)
	}
	return s
}

// Channel returns models.ChannelWhatsApp.
func (w *WhatsAppSender) Channel() models.Channel {
	return models.ChannelWhatsApp
}

// normalizeWhatsApp returns the number as a whatsapp:+E164 address.
func normalizeWhatsApp(number string) string {
	n := strings.TrimSpace(number)
	n = strings.TrimPrefix(n, whatsappPrefix)
	n = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(n)
	if !strings.HasPrefix(n, "+") {
		n = "+" + n
	}
	return whatsappPrefix + n
}

// Send delivers the plain-text body to each recipient. At least one delivery
// counts as success; per-recipient failures are listed in Errors.
func (w *WhatsAppSender) Send(ctx context.Context, recipients []string, msg *Message) models.ChannelResult {
	if !w.config.Configured() || w.api == nil {
		return models.ChannelResult{Error: "WhatsApp (Twilio) not configured"}
	}
	if len(recipients) == 0 {
		return models.ChannelResult{Error: "no WhatsApp recipients"}
	}

	from := normalizeWhatsApp(w.config.From)
	body := fmt.Sprintf("*%s*\n\n%s", msg.Subject, msg.Plain)

	var errs []string
	sent := 0
	for _, number := range recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", number, err))
			continue
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", number, err))
				continue
			}
		}

		params := &openapi.CreateMessageParams{}
		params.SetTo(normalizeWhatsApp(number))
		params.SetFrom(from)
		params.SetBody(body)

		if _, err := w.api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", number, err))
			continue
		}
		sent++
	}

	if sent == 0 {
		return models.ChannelResult{
			Error:  "failed to send to any recipient",
			Errors: errs,
		}
	}
	return models.ChannelResult{
		Success: true,
		Message: fmt.Sprintf("Sent to %d/%d recipients", sent, len(recipients)),
		Errors:  errs,
	}
}
