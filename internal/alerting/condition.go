// Package alerting evaluates DataMantri alert conditions against data sources
// and pipeline runs. Every check fails closed: an error in a collaborator or a
// malformed condition config means "not triggered".
package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

const (
	// DefaultToleranceMinutes is the SLA grace period when none is configured.
	DefaultToleranceMinutes = 30
	// DefaultCheckLastNRuns is how many pipeline runs are inspected by default.
	DefaultCheckLastNRuns = 1
)

// Condition is a parsed, validated condition config. The concrete type
// identifies the check to run.
type Condition interface {
	Type() models.ConditionType
}

// DatasourceFailure triggers when the data source cannot be reached.
type DatasourceFailure struct {
	DataSourceID string
}

// PipelineFailure triggers when one of the last N runs failed.
type PipelineFailure struct {
	PipelineID     string
	CheckLastNRuns int
}

// QuerySlow is accepted but never triggers.
type QuerySlow struct{}

// DashboardFailure is accepted but never triggers.
type DashboardFailure struct{}

// SLABreach triggers when a data source missed its daily load time.
type SLABreach struct {
	DataSourceID     string
	ExpectedHour     int
	ExpectedMinute   int
	ToleranceMinutes int
}

func (DatasourceFailure) Type() models.ConditionType { return models.ConditionDatasourceFailure }
func (PipelineFailure) Type() models.ConditionType   { return models.ConditionPipelineFailure }
func (QuerySlow) Type() models.ConditionType         { return models.ConditionQuerySlow }
func (DashboardFailure) Type() models.ConditionType  { return models.ConditionDashboardFailure }
func (SLABreach) Type() models.ConditionType         { return models.ConditionSLABreach }

// ExpectedTime returns the configured load time as HH:MM.
func (c SLABreach) ExpectedTime() string {
	return fmt.Sprintf("%02d:%02d", c.ExpectedHour, c.ExpectedMinute)
}

// Deadline returns the moment the SLA is breached on the UTC day of now.
func (c SLABreach) Deadline(now time.Time) time.Time {
	now = now.UTC()
	expected := time.Date(now.Year(), now.Month(), now.Day(), c.ExpectedHour, c.ExpectedMinute, 0, 0, time.UTC)
	return expected.Add(time.Duration(c.ToleranceMinutes) * time.Minute)
}

// ErrUnknownCondition is returned by ParseCondition for unrecognised types.
type ErrUnknownCondition struct {
	Type models.ConditionType
}

func (e *ErrUnknownCondition) Error() string {
	return fmt.Sprintf("unknown condition type %q", e.Type)
}

// ParseCondition validates config for the given condition type.
func ParseCondition(ct models.ConditionType, config map[string]any) (Condition, error) {
	switch ct {
	case models.ConditionDatasourceFailure:
		id, err := requiredID(config, "datasource_id")
		if err != nil {
			return nil, err
		}
		return DatasourceFailure{DataSourceID: id}, nil

	case models.ConditionPipelineFailure:
		id, err := requiredID(config, "pipeline_id")
		if err != nil {
			return nil, err
		}
		n := DefaultCheckLastNRuns
		if raw, ok := config["check_last_n_runs"]; ok && raw != nil {
			v, err := cast.ToIntE(raw)
			if err != nil {
				return nil, fmt.Errorf("check_last_n_runs: %w", err)
			}
			n = v
		}
		if n < 1 {
			n = 1
		}
		return PipelineFailure{PipelineID: id, CheckLastNRuns: n}, nil

	case models.ConditionQuerySlow:
		return QuerySlow{}, nil

	case models.ConditionDashboardFailure:
		return DashboardFailure{}, nil

	case models.ConditionSLABreach:
		id, err := requiredID(config, "datasource_id")
		if err != nil {
			return nil, err
		}
		raw, ok := config["expected_load_time"]
		if !ok || raw == nil {
			return nil, fmt.Errorf("expected_load_time is required")
		}
		hour, minute, err := parseClock(cast.ToString(raw))
		if err != nil {
			return nil, err
		}
		tolerance := DefaultToleranceMinutes
		if rawTol, ok := config["tolerance_minutes"]; ok && rawTol != nil {
			v, err := cast.ToIntE(rawTol)
			if err != nil {
				return nil, fmt.Errorf("tolerance_minutes: %w", err)
			}
			tolerance = v
		}
		return SLABreach{
			DataSourceID:     id,
			ExpectedHour:     hour,
			ExpectedMinute:   minute,
			ToleranceMinutes: tolerance,
		}, nil
	}

	return nil, &ErrUnknownCondition{Type: ct}
}

// requiredID reads an identifier that may be stored as a string or a number.
func requiredID(config map[string]any, key string) (string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	id, err := cast.ToStringE(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return id, nil
}

// parseClock parses "HH:MM" in 24-hour form.
func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid expected_load_time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
