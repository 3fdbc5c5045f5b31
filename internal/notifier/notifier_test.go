package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

type mockSender struct {
	channel    models.Channel
	result     models.ChannelResult
	panics     bool
	calls      int
	recipients []string
	msg        *Message
}

func (m *mockSender) Channel() models.Channel { return m.channel }

func (m *mockSender) Send(_ context.Context, recipients []string, msg *Message) models.ChannelResult {
	m.calls++
	m.recipients = recipients
	m.msg = msg
	if m.panics {
		panic("boom")
	}
	return m.result
}

var testNow = time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC)

func testAlert() *models.Alert {
	a := models.NewAlert("Warehouse down", models.ConditionDatasourceFailure)
	a.ID = "alert-1"
	return a
}

func testPayload() *models.AlertPayload {
	return &models.AlertPayload{
		Severity: models.SeverityCritical,
		Details: map[string]any{
			"datasource_name": "warehouse",
			"error":           "connection refused",
			"port":            5432,
		},
	}
}

func newTestService(senders ...Sender) *Service {
	return NewService(zap.NewNop(), senders, WithClock(func() time.Time { return testNow }))
}

func TestSendNotificationSkipsChannelWithoutRecipients(t *testing.T) {
	slack := &mockSender{channel: models.ChannelSlack, result: models.ChannelResult{Success: true}}
	svc := newTestService(slack)

	alert := testAlert()
	alert.Channels = []models.Channel{models.ChannelSlack}

	results := svc.SendNotification(context.Background(), alert, testPayload())
	assert.Empty(t, results)
	assert.Zero(t, slack.calls)
}

func TestSendNotificationSkipsUnregisteredChannel(t *testing.T) {
	svc := newTestService()

	alert := testAlert()
	alert.Channels = []models.Channel{models.ChannelTeams}
	alert.Recipients[models.ChannelTeams] = models.RecipientList{"https://example.webhook.office.com/x"}

	assert.Empty(t, svc.SendNotification(context.Background(), alert, testPayload()))
}

func TestSendNotificationIsolatesChannels(t *testing.T) {
	email := &mockSender{channel: models.ChannelEmail, result: models.ChannelResult{Error: "SMTP not configured"}}
	slack := &mockSender{channel: models.ChannelSlack, panics: true}
	teams := &mockSender{channel: models.ChannelTeams, result: models.ChannelResult{Success: true, Message: "ok"}}
	svc := newTestService(email, slack, teams)

	alert := testAlert()
	alert.Channels = []models.Channel{models.ChannelEmail, models.ChannelSlack, models.ChannelTeams, models.ChannelTeams}
	alert.Recipients = map[models.Channel]models.RecipientList{
		models.ChannelEmail: {"ops@example.com", ""},
		models.ChannelSlack: {"https://hooks.slack.com/services/T/B/x"},
		models.ChannelTeams: {"https://example.webhook.office.com/x"},
	}

	results := svc.SendNotification(context.Background(), alert, testPayload())
	require.Len(t, results, 3)

	assert.False(t, results[models.ChannelEmail].Success)
	assert.Equal(t, "SMTP not configured", results[models.ChannelEmail].Error)
	assert.Equal(t, []string{"ops@example.com"}, email.recipients)

	assert.False(t, results[models.ChannelSlack].Success)
	assert.Contains(t, results[models.ChannelSlack].Error, "sender panicked")

	assert.True(t, results[models.ChannelTeams].Success)
	assert.Equal(t, 1, teams.calls)

	// The message is rendered once and shared.
	assert.Same(t, email.msg, teams.msg)
	assert.Equal(t, "[CRITICAL] DataMantri Alert: Warehouse down", teams.msg.Subject)
}

func TestSendNotificationRateLimited(t *testing.T) {
	slack := &mockSender{channel: models.ChannelSlack, result: models.ChannelResult{Success: true}}
	svc := NewService(zap.NewNop(), []Sender{slack}, WithRateLimit(RateLimitConfig{
		MaxPerWindow: 1,
		Window:       time.Hour,
		Enabled:      true,
	}))

	alert := testAlert()
	alert.Channels = []models.Channel{models.ChannelSlack}
	alert.Recipients[models.ChannelSlack] = models.RecipientList{"https://hooks.slack.com/services/T/B/x"}

	first := svc.SendNotification(context.Background(), alert, testPayload())
	assert.True(t, first[models.ChannelSlack].Success)

	second := svc.SendNotification(context.Background(), alert, testPayload())
	assert.Equal(t, models.ChannelResult{Error: "notification rate limited"}, second[models.ChannelSlack])
	assert.Equal(t, 1, slack.calls)
	assert.Equal(t, int64(1), svc.RateLimitStats().Dropped)
}

func TestSendNotificationRefundsOnFailure(t *testing.T) {
	slack := &mockSender{channel: models.ChannelSlack, result: models.ChannelResult{Error: "Slack returned status 500"}}
	svc := NewService(zap.NewNop(), []Sender{slack}, WithRateLimit(RateLimitConfig{
		MaxPerWindow: 1,
		Window:       time.Hour,
		Enabled:      true,
	}))

	alert := testAlert()
	alert.Channels = []models.Channel{models.ChannelSlack}
	alert.Recipients[models.ChannelSlack] = models.RecipientList{"https://hooks.slack.com/services/T/B/x"}

	svc.SendNotification(context.Background(), alert, testPayload())
	svc.SendNotification(context.Background(), alert, testPayload())

	assert.Equal(t, 2, slack.calls)
	assert.Zero(t, svc.RateLimitStats().CurrentCount)
}

func TestSendNotificationRefundsOnRenderError(t *testing.T) {
	slack := &mockSender{channel: models.ChannelSlack, result: models.ChannelResult{Success: true}}
	svc := NewService(zap.NewNop(), []Sender{slack}, WithRateLimit(RateLimitConfig{
		MaxPerWindow: 1,
		Window:       time.Hour,
		Enabled:      true,
	}))
	svc.render = func(*models.Alert, *models.AlertPayload, time.Time) (*Message, error) {
		return nil, errors.New("template: bad field")
	}

	alert := testAlert()
	alert.Channels = []models.Channel{models.ChannelSlack}
	alert.Recipients[models.ChannelSlack] = models.RecipientList{"https://hooks.slack.com/services/T/B/x"}

	results := svc.SendNotification(context.Background(), alert, testPayload())
	assert.Equal(t, "template: bad field", results[models.ChannelSlack].Error)
	assert.Zero(t, slack.calls)
	assert.Zero(t, svc.RateLimitStats().CurrentCount)

	// The refunded slot lets the next notification through.
	svc.render = BuildMessage
	results = svc.SendNotification(context.Background(), alert, testPayload())
	assert.True(t, results[models.ChannelSlack].Success)
	assert.Equal(t, 1, slack.calls)
}

func TestSendNotificationNilPayload(t *testing.T) {
	svc := newTestService()
	assert.Empty(t, svc.SendNotification(context.Background(), testAlert(), nil))
}
