package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// TeamsSender posts a MessageCard to a Microsoft Teams incoming webhook.
type TeamsSender struct {
	httpClient *http.Client
}

// NewTeamsSender creates a Teams sender with the default webhook timeout.
func NewTeamsSender() *TeamsSender {
	return &TeamsSender{httpClient: &http.Client{Timeout: WebhookTimeout}}
}

// Channel returns models.ChannelTeams.
func (t *TeamsSender) Channel() models.Channel {
	return models.ChannelTeams
}

// Send posts to the first recipient, which is the webhook URL.
func (t *TeamsSender) Send(ctx context.Context, recipients []string, msg *Message) models.ChannelResult {
	if len(recipients) == 0 || recipients[0] == "" {
		return models.ChannelResult{Error: "Teams webhook URL not configured"}
	}

	jsonData, err := json.Marshal(t.buildPayload(msg))
	if err != nil {
		return models.ChannelResult{Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipients[0], bytes.NewReader(jsonData))
	if err != nil {
		return models.ChannelResult{Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return models.ChannelResult{Error: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return models.ChannelResult{Error: fmt.Sprintf("Teams returned status %d", resp.StatusCode)}
	}

	return models.ChannelResult{Success: true, Message: "Teams notification sent"}
}

// teamsMessageCard is the legacy connector card accepted by incoming webhooks.
type teamsMessageCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text,omitempty"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	ActivityTitle    string      `json:"activityTitle"`
	ActivitySubtitle string      `json:"activitySubtitle"`
	Facts            []teamsFact `json:"facts"`
	Text             string      `json:"text,omitempty"`
	Markdown         bool        `json:"markdown"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// teamsThemeColor maps severity to a MessageCard theme color.
func teamsThemeColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "FF0000"
	case models.SeverityWarning:
		return "FF9900"
	default:
		return "0078D7"
	}
}

func (t *TeamsSender) buildPayload(msg *Message) teamsMessageCard {
	facts := make([]teamsFact, 0, len(msg.Details)+2)
	facts = append(facts,
		teamsFact{Name: "Condition", Value: msg.ConditionLabel},
		teamsFact{Name: "Severity", Value: string(msg.Severity)},
	)
	for _, d := range msg.Details {
		facts = append(facts, teamsFact{Name: d.Label, Value: d.Value})
	}

	return teamsMessageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: teamsThemeColor(msg.Severity),
		Summary:    msg.Subject,
		Title:      fmt.Sprintf("DataMantri Alert: %s", msg.AlertName),
		Text:       msg.Description,
		Sections: []teamsSection{{
			ActivityTitle:    msg.ConditionLabel,
			ActivitySubtitle: msg.FormattedTime(),
			Facts:            facts,
			Text:             msg.Markdown(),
			Markdown:         true,
		}},
	}
}
