package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"gopkg.in/gomail.v2"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

func testMessage(t *testing.T) *Message {
	t.Helper()
	msg, err := BuildMessage(testAlert(), testPayload(), testNow)
	require.NoError(t, err)
	return msg
}

type mockDialer struct {
	calls    int
	messages []*gomail.Message
	err      error
}

func (m *mockDialer) DialAndSend(msgs ...*gomail.Message) error {
	m.calls++
	m.messages = append(m.messages, msgs...)
	return m.err
}

func configuredEmail() EmailConfig {
	return EmailConfig{Host: "smtp.example.com", Port: 587, Username: "alerts", Password: "pw", From: "alerts@example.com"}
}

func TestEmailSenderNotConfigured(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EmailConfig)
	}{
		{"no host", func(c *EmailConfig) { c.Host = "" }},
		{"no username", func(c *EmailConfig) { c.Username = "" }},
		{"no password", func(c *EmailConfig) { c.Password = "" }},
		{"no from", func(c *EmailConfig) { c.From = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := configuredEmail()
			tt.mutate(&cfg)
			dialer := &mockDialer{}
			sender := NewEmailSender(cfg)
			sender.dialer = dialer

			result := sender.Send(context.Background(), []string{"ops@example.com"}, testMessage(t))
			assert.Equal(t, models.ChannelResult{Error: "SMTP not configured"}, result)
			assert.Zero(t, dialer.calls)
		})
	}
}

func TestEmailSenderSends(t *testing.T) {
	dialer := &mockDialer{}
	sender := NewEmailSender(configuredEmail())
	sender.dialer = dialer

	result := sender.Send(context.Background(), []string{"a@example.com", "b@example.com"}, testMessage(t))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Email sent to 2 recipients", result.Message)
	require.Len(t, dialer.messages, 1)

	m := dialer.messages[0]
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"[CRITICAL] DataMantri Alert: Warehouse down"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "multipart/alternative")
	assert.Contains(t, buf.String(), "text/html")
}

func TestEmailSenderTransportError(t *testing.T) {
	dialer := &mockDialer{err: errors.New("dial tcp: connection refused")}
	sender := NewEmailSender(configuredEmail())
	sender.dialer = dialer

	result := sender.Send(context.Background(), []string{"a@example.com"}, testMessage(t))
	assert.False(t, result.Success)
	assert.Equal(t, "dial tcp: connection refused", result.Error)
}

func TestSlackSender(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewSlackSender().Send(context.Background(), []string{srv.URL}, testMessage(t))
	require.True(t, result.Success, result.Error)

	attachments := received["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "#ff0000", att["color"])
	assert.Equal(t, "DataMantri", att["footer"])
	assert.EqualValues(t, testNow.Unix(), att["ts"])
}

func TestSlackSenderNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := NewSlackSender().Send(context.Background(), []string{srv.URL}, testMessage(t))
	assert.Equal(t, models.ChannelResult{Error: "Slack returned status 500"}, result)
}

func TestSlackSenderNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := NewSlackSender().Send(context.Background(), []string{url}, testMessage(t))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestTeamsSender(t *testing.T) {
	var card teamsMessageCard
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&card))
		w.Write([]byte("1"))
	}))
	defer srv.Close()

	result := NewTeamsSender().Send(context.Background(), []string{srv.URL}, testMessage(t))
	require.True(t, result.Success, result.Error)

	assert.Equal(t, "MessageCard", card.Type)
	assert.Equal(t, "FF0000", card.ThemeColor)
	require.Len(t, card.Sections, 1)
	assert.True(t, card.Sections[0].Markdown)
	assert.Contains(t, card.Sections[0].Facts, teamsFact{Name: "Error", Value: "connection refused"})
}

func TestTeamsSenderNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	result := NewTeamsSender().Send(context.Background(), []string{srv.URL}, testMessage(t))
	assert.Equal(t, models.ChannelResult{Error: "Teams returned status 400"}, result)
}

func TestTeamsThemeColor(t *testing.T) {
	assert.Equal(t, "0078D7", teamsThemeColor(models.SeverityInfo))
	assert.Equal(t, "FF9900", teamsThemeColor(models.SeverityWarning))
	assert.Equal(t, "FF0000", teamsThemeColor(models.SeverityCritical))
}

type mockTwilio struct {
	fail map[string]bool
	to   []string
	from []string
}

func (m *mockTwilio) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	to := *params.To
	m.to = append(m.to, to)
	m.from = append(m.from, *params.From)
	if m.fail[to] {
		return nil, errors.New("invalid number")
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestWhatsAppSenderNotConfigured(t *testing.T) {
	result := NewWhatsAppSender(WhatsAppConfig{AccountSID: "AC1"}).Send(context.Background(), []string{"+15550001"}, testMessage(t))
	assert.Equal(t, models.ChannelResult{Error: "WhatsApp (Twilio) not configured"}, result)
}

func TestWhatsAppSenderPartialSuccess(t *testing.T) {
	api := &mockTwilio{fail: map[string]bool{"whatsapp:+15550003": true}}
	sender := NewWhatsAppSender(WhatsAppConfig{AccountSID: "AC1", AuthToken: "tok", From: "+15550000"})
	sender.api = api

	result := sender.Send(context.Background(), []string{"+15550001", "whatsapp:+15550002", "15550003"}, testMessage(t))
	assert.True(t, result.Success)
	assert.Equal(t, "Sent to 2/3 recipients", result.Message)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "15550003"))

	assert.Equal(t, []string{"whatsapp:+15550001", "whatsapp:+15550002", "whatsapp:+15550003"}, api.to)
	assert.Equal(t, "whatsapp:+15550000", api.from[0])
}

func TestWhatsAppSenderAllFail(t *testing.T) {
	api := &mockTwilio{fail: map[string]bool{"whatsapp:+15550001": true}}
	sender := NewWhatsAppSender(WhatsAppConfig{AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+15550000"})
	sender.api = api

	result := sender.Send(context.Background(), []string{"+15550001"}, testMessage(t))
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
}

func TestNormalizeWhatsApp(t *testing.T) {
	assert.Equal(t, "whatsapp:+919876543210", normalizeWhatsApp(" +91 98765-43210 "))
	assert.Equal(t, "whatsapp:+15550001", normalizeWhatsApp("whatsapp:+15550001"))
	assert.Equal(t, "whatsapp:+15550001", normalizeWhatsApp("15550001"))
}

func TestWhatsAppSenderPacing(t *testing.T) {
	api := &mockTwilio{}
	sender := NewWhatsAppSender(WhatsAppConfig{AccountSID: "AC1", AuthToken: "tok", From: "+15550000", MessagesPerSecond: 0.001})
	sender.api = api
	require.NotNil(t, sender.limiter)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The burst covers the first message; the second would wait far past the deadline.
	result := sender.Send(ctx, []string{"+15550001", "+15550002"}, testMessage(t))
	assert.True(t, result.Success)
	assert.Equal(t, "Sent to 1/2 recipients", result.Message)
	assert.Equal(t, []string{"whatsapp:+15550001"}, api.to)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "+15550002"))
}
