package notifier

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

func TestBuildMessage(t *testing.T) {
	alert := testAlert()
	alert.Description = "Primary warehouse <prod>"

	msg, err := BuildMessage(alert, testPayload(), testNow)
	require.NoError(t, err)

	assert.Equal(t, "[CRITICAL] DataMantri Alert: Warehouse down", msg.Subject)
	assert.Equal(t, "Datasource Failure", msg.ConditionLabel)

	labels := make([]string, len(msg.Details))
	for i, d := range msg.Details {
		labels[i] = d.Label
	}
	assert.Equal(t, []string{"Datasource Name", "Error", "Port"}, labels)

	assert.Contains(t, msg.Plain, "DataMantri Alert: Warehouse down")
	assert.Contains(t, msg.Plain, "Condition: Datasource Failure")
	assert.Contains(t, msg.Plain, "Severity: CRITICAL")
	assert.Contains(t, msg.Plain, "Time: 2026-03-02 09:45:00 UTC")
	assert.Contains(t, msg.Plain, "- Datasource Name: warehouse\n- Error: connection refused\n- Port: 5432\n")

	assert.Contains(t, msg.HTML, "<div")
	assert.Contains(t, msg.HTML, "#ff0000")
	assert.Contains(t, msg.HTML, "<li><strong>Error:</strong> connection refused</li>")
	assert.Contains(t, msg.HTML, "Primary warehouse &lt;prod&gt;")
	assert.True(t, strings.Index(msg.HTML, "Datasource Name") < strings.Index(msg.HTML, "Port"))
}

func TestBuildMessageBodies(t *testing.T) {
	alert := models.NewAlert("Nightly load failed", models.ConditionPipelineFailure)
	alert.Description = "Orders pipeline"
	payload := &models.AlertPayload{
		Severity: models.SeverityCritical,
		Details: map[string]any{
			"pipeline_name": "nightly load",
			"run_id":        "r-2",
			"error_message": "bad",
		},
	}

	msg, err := BuildMessage(alert, payload, testNow)
	require.NoError(t, err)

	assert.False(t, regexp.MustCompile(`<[a-zA-Z/]`).MatchString(msg.Plain), "plain body contains markup:\n%s", msg.Plain)

	for _, tag := range []string{"div", "ul", "li"} {
		open := strings.Count(msg.HTML, "<"+tag)
		closed := strings.Count(msg.HTML, "</"+tag+">")
		assert.Positive(t, open, "no <%s> in HTML body", tag)
		assert.Equal(t, open, closed, "unbalanced <%s> in HTML body", tag)
	}
	assert.Equal(t, 3, strings.Count(msg.HTML, "<li"))

	for _, label := range []string{"Error Message", "Pipeline Name", "Run Id"} {
		assert.Contains(t, msg.Plain, label)
		assert.Contains(t, msg.HTML, label)
	}
}

func TestBuildMessageEmptyDetails(t *testing.T) {
	alert := testAlert()
	alert.ConditionType = models.ConditionSLABreach

	msg, err := BuildMessage(alert, &models.AlertPayload{Severity: models.SeverityWarning}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msg.Details)
	assert.Contains(t, msg.Plain, "Condition: Sla Breach")
	assert.Contains(t, msg.Plain, "Severity: WARNING")
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, "#36a64f", SeverityColor(models.SeverityInfo))
	assert.Equal(t, "#ff9900", SeverityColor(models.SeverityWarning))
	assert.Equal(t, "#ff0000", SeverityColor(models.SeverityCritical))
}

func TestMessageMarkdown(t *testing.T) {
	msg := &Message{Details: []Detail{{Label: "Run Id", Value: "r-1"}}}
	assert.Equal(t, "- **Run Id:** r-1\n", msg.Markdown())
}
