package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ConditionType identifies what an alert watches.
type ConditionType string

const (
	ConditionDatasourceFailure ConditionType = "datasource_failure"
	ConditionPipelineFailure   ConditionType = "pipeline_failure"
	ConditionQuerySlow         ConditionType = "query_slow"
	ConditionDashboardFailure  ConditionType = "dashboard_failure"
	ConditionSLABreach         ConditionType = "sla_breach"
)

// ConditionTypes lists every known condition type.
var ConditionTypes = []ConditionType{
	ConditionDatasourceFailure,
	ConditionPipelineFailure,
	ConditionQuerySlow,
	ConditionDashboardFailure,
	ConditionSLABreach,
}

// IsValid reports whether c is a known condition type.
func (c ConditionType) IsValid() bool {
	for _, known := range ConditionTypes {
		if c == known {
			return true
		}
	}
	return false
}

// Severity represents alert severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "info", "INFO":
		return SeverityInfo
	case "warning", "WARNING":
		return SeverityWarning
	case "critical", "CRITICAL":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Channel is a notification delivery mechanism.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSlack    Channel = "slack"
	ChannelTeams    Channel = "teams"
	ChannelWhatsApp Channel = "whatsapp"
)

// IsValid reports whether c is a supported channel.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSlack, ChannelTeams, ChannelWhatsApp:
		return true
	}
	return false
}

// RecipientList holds channel-specific addresses: email addresses, phone
// numbers or a single webhook URL. It decodes from a scalar or a list.
type RecipientList []string

// UnmarshalJSON accepts either "value" or ["a", "b"].
func (r *RecipientList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = nil
		} else {
			*r = RecipientList{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients must be a string or a list of strings: %w", err)
	}
	*r = many
	return nil
}

// UnmarshalYAML accepts either a scalar or a sequence node.
func (r *RecipientList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			*r = nil
		} else {
			*r = RecipientList{node.Value}
		}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*r = many
		return nil
	default:
		return fmt.Errorf("line %d: recipients must be a string or a list of strings", node.Line)
	}
}

// NonEmpty returns the list without blank entries.
func (r RecipientList) NonEmpty() []string {
	out := make([]string, 0, len(r))
	for _, v := range r {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Alert is a stored rule describing what to watch and whom to notify.
type Alert struct {
	ID              string                    `json:"id" yaml:"id,omitempty"`
	Name            string                    `json:"name" yaml:"name"`
	Description     string                    `json:"description,omitempty" yaml:"description,omitempty"`
	ConditionType   ConditionType             `json:"condition_type" yaml:"condition_type"`
	ConditionConfig map[string]any            `json:"condition_config" yaml:"condition_config,omitempty"`
	Channels        []Channel                 `json:"channels" yaml:"channels"`
	Recipients      map[Channel]RecipientList `json:"recipients" yaml:"recipients"`
	IsActive        bool                      `json:"is_active" yaml:"is_active"`
	LastTriggeredAt *time.Time                `json:"last_triggered_at,omitempty" yaml:"-"`
	TriggerCount    int                       `json:"trigger_count" yaml:"-"`
	CreatedAt       time.Time                 `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time                 `json:"updated_at" yaml:"-"`
}

// NewAlert creates an active Alert with initialized timestamps.
func NewAlert(name string, conditionType ConditionType) *Alert {
	now := time.Now()
	return &Alert{
		Name:            name,
		ConditionType:   conditionType,
		ConditionConfig: map[string]any{},
		Channels:        []Channel{},
		Recipients:      map[Channel]RecipientList{},
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// RecipientsFor returns the non-empty recipients configured for a channel.
func (a *Alert) RecipientsFor(ch Channel) []string {
	if a.Recipients == nil {
		return nil
	}
	return a.Recipients[ch].NonEmpty()
}

// AlertPayload is the structured result of a triggered condition check.
type AlertPayload struct {
	Severity Severity       `json:"severity"`
	Details  map[string]any `json:"details"`
}

// ChannelResult is the outcome of one notification channel send.
type ChannelResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}
