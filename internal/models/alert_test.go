package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRecipientListUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  RecipientList
	}{
		{name: "single webhook", input: `"https://hooks.slack.com/services/T/B/x"`, want: RecipientList{"https://hooks.slack.com/services/T/B/x"}},
		{name: "list", input: `["a@example.com", "b@example.com"]`, want: RecipientList{"a@example.com", "b@example.com"}},
		{name: "empty string", input: `""`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got RecipientList
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecipientListUnmarshalJSONRejectsObjects(t *testing.T) {
	var got RecipientList
	err := json.Unmarshal([]byte(`{"url": "x"}`), &got)
	assert.Error(t, err)
}

func TestAlertRecipientsFromYAML(t *testing.T) {
	src := `
name: Warehouse down
condition_type: datasource_failure
condition_config:
  datasource_id: ds-1
channels: [email, slack]
recipients:
  email:
    - ops@example.com
    - ""
  slack: https://hooks.slack.com/services/T/B/x
is_active: true
`
	var alert Alert
	require.NoError(t, yaml.Unmarshal([]byte(src), &alert))

	assert.Equal(t, ConditionDatasourceFailure, alert.ConditionType)
	assert.Equal(t, []string{"ops@example.com"}, alert.RecipientsFor(ChannelEmail))
	assert.Equal(t, []string{"https://hooks.slack.com/services/T/B/x"}, alert.RecipientsFor(ChannelSlack))
	assert.Empty(t, alert.RecipientsFor(ChannelTeams))
	assert.Equal(t, "ds-1", alert.ConditionConfig["datasource_id"])
}

func TestConditionTypeIsValid(t *testing.T) {
	for _, ct := range ConditionTypes {
		assert.True(t, ct.IsValid(), ct)
	}
	assert.False(t, ConditionType("disk_full").IsValid())
}

func TestChannelIsValid(t *testing.T) {
	assert.True(t, ChannelWhatsApp.IsValid())
	assert.False(t, Channel("pager").IsValid())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityWarning, ParseSeverity("warning"))
	assert.Equal(t, SeverityInfo, ParseSeverity("bogus"))
}

func TestRunStatusIsFailure(t *testing.T) {
	assert.True(t, RunStatusFailed.IsFailure())
	assert.True(t, RunStatusError.IsFailure())
	assert.False(t, RunStatusSuccess.IsFailure())
	assert.False(t, RunStatusRunning.IsFailure())
}

func TestParseConnectionType(t *testing.T) {
	assert.Equal(t, ConnectionPostgreSQL, ParseConnectionType("postgres"))
	assert.Equal(t, ConnectionMySQL, ParseConnectionType("mariadb"))
	assert.Equal(t, ConnectionType("oracle"), ParseConnectionType("oracle"))
}
