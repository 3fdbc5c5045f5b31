package alerting

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// AlertsConfig is the root of an alert definitions file.
type AlertsConfig struct {
	Alerts []*models.Alert `yaml:"alerts"`
}

// LoadAlertsFromFile loads alert definitions from a YAML file.
func LoadAlertsFromFile(path string) ([]*models.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alerts file: %w", err)
	}
	defer f.Close()

	return LoadAlerts(f)
}

// LoadAlerts loads alert definitions from a reader.
func LoadAlerts(r io.Reader) ([]*models.Alert, error) {
	var config AlertsConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse alerts YAML: %w", err)
	}

	for i, alert := range config.Alerts {
		if err := ValidateAlert(alert); err != nil {
			return nil, fmt.Errorf("invalid alert at index %d: %w", i, err)
		}
		if alert.ConditionConfig == nil {
			alert.ConditionConfig = map[string]any{}
		}
		if alert.Recipients == nil {
			alert.Recipients = map[models.Channel]models.RecipientList{}
		}
	}

	return config.Alerts, nil
}

// MarshalAlerts encodes alerts into the file format read by LoadAlerts.
func MarshalAlerts(alerts []*models.Alert) ([]byte, error) {
	data, err := yaml.Marshal(AlertsConfig{Alerts: alerts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode alerts YAML: %w", err)
	}
	return data, nil
}

// ValidateAlert checks the fields the evaluator and notifier depend on.
// Condition config keys are not checked here; a missing key only means the
// alert never triggers.
func ValidateAlert(alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is empty")
	}
	if alert.Name == "" {
		return fmt.Errorf("alert name is required")
	}
	if alert.ConditionType == "" {
		return fmt.Errorf("condition_type is required for alert %q", alert.Name)
	}
	if !alert.ConditionType.IsValid() {
		return fmt.Errorf("invalid condition_type %q for alert %q", alert.ConditionType, alert.Name)
	}
	for _, ch := range alert.Channels {
		if !ch.IsValid() {
			return fmt.Errorf("invalid channel %q for alert %q", ch, alert.Name)
		}
	}
	for ch := range alert.Recipients {
		if !ch.IsValid() {
			return fmt.Errorf("invalid recipients channel %q for alert %q", ch, alert.Name)
		}
	}
	return nil
}
