package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// WebhookTimeout bounds Slack and Teams webhook posts.
const WebhookTimeout = 10 * time.Second

// SlackSender posts an attachment to a Slack incoming webhook.
type SlackSender struct {
	httpClient *http.Client
}

// NewSlackSender creates a Slack sender with the default webhook timeout.
func NewSlackSender() *SlackSender {
	return &SlackSender{httpClient: &http.Client{Timeout: WebhookTimeout}}
}

// Channel returns models.ChannelSlack.
func (s *SlackSender) Channel() models.Channel {
	return models.ChannelSlack
}

// Send posts to the first recipient, which is the webhook URL.
func (s *SlackSender) Send(ctx context.Context, recipients []string, msg *Message) models.ChannelResult {
	if len(recipients) == 0 || recipients[0] == "" {
		return models.ChannelResult{Error: "Slack webhook URL not configured"}
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, recipients[0], s.httpClient, s.buildPayload(msg))
	if err != nil {
		var statusErr slack.StatusCodeError
		if errors.As(err, &statusErr) {
			return models.ChannelResult{Error: fmt.Sprintf("Slack returned status %d", statusErr.Code)}
		}
		var rateErr *slack.RateLimitedError
		if errors.As(err, &rateErr) {
			return models.ChannelResult{Error: fmt.Sprintf("Slack returned status %d", http.StatusTooManyRequests)}
		}
		return models.ChannelResult{Error: err.Error()}
	}

	return models.ChannelResult{Success: true, Message: "Slack notification sent"}
}

func (s *SlackSender) buildPayload(msg *Message) *slack.WebhookMessage {
	fields := make([]slack.AttachmentField, 0, len(msg.Details)+2)
	fields = append(fields,
		slack.AttachmentField{Title: "Condition", Value: msg.ConditionLabel, Short: true},
		slack.AttachmentField{Title: "Severity", Value: string(msg.Severity), Short: true},
	)
	for _, d := range msg.Details {
		fields = append(fields, slack.AttachmentField{Title: d.Label, Value: d.Value, Short: true})
	}

	text := msg.Description
	if text == "" {
		text = fmt.Sprintf("%s alert triggered", msg.ConditionLabel)
	}

	return &slack.WebhookMessage{
		Attachments: []slack.Attachment{{
			Color:      SeverityColor(msg.Severity),
			Title:      fmt.Sprintf("DataMantri Alert: %s", msg.AlertName),
			Text:       text,
			Fields:     fields,
			Footer:     "DataMantri",
			Ts:         json.Number(strconv.FormatInt(msg.Timestamp.Unix(), 10)),
			MarkdownIn: []string{"text"},
		}},
	}
}
