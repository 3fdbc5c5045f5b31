package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name    string
		ct      models.ConditionType
		config  map[string]any
		want    Condition
		wantErr string
	}{
		{
			name:   "datasource failure",
			ct:     models.ConditionDatasourceFailure,
			config: map[string]any{"datasource_id": "ds-1"},
			want:   DatasourceFailure{DataSourceID: "ds-1"},
		},
		{
			name:   "numeric id",
			ct:     models.ConditionDatasourceFailure,
			config: map[string]any{"datasource_id": float64(7)},
			want:   DatasourceFailure{DataSourceID: "7"},
		},
		{
			name:    "missing datasource id",
			ct:      models.ConditionDatasourceFailure,
			config:  map[string]any{},
			wantErr: "datasource_id is required",
		},
		{
			name:    "blank datasource id",
			ct:      models.ConditionDatasourceFailure,
			config:  map[string]any{"datasource_id": "  "},
			wantErr: "datasource_id is required",
		},
		{
			name:   "pipeline failure default runs",
			ct:     models.ConditionPipelineFailure,
			config: map[string]any{"pipeline_id": "p-1"},
			want:   PipelineFailure{PipelineID: "p-1", CheckLastNRuns: 1},
		},
		{
			name:   "pipeline failure string runs",
			ct:     models.ConditionPipelineFailure,
			config: map[string]any{"pipeline_id": "p-1", "check_last_n_runs": "3"},
			want:   PipelineFailure{PipelineID: "p-1", CheckLastNRuns: 3},
		},
		{
			name:   "pipeline failure zero runs floored",
			ct:     models.ConditionPipelineFailure,
			config: map[string]any{"pipeline_id": "p-1", "check_last_n_runs": 0},
			want:   PipelineFailure{PipelineID: "p-1", CheckLastNRuns: 1},
		},
		{
			name:   "sla default tolerance",
			ct:     models.ConditionSLABreach,
			config: map[string]any{"datasource_id": "ds-1", "expected_load_time": "09:00"},
			want:   SLABreach{DataSourceID: "ds-1", ExpectedHour: 9, ToleranceMinutes: 30},
		},
		{
			name:   "sla explicit tolerance",
			ct:     models.ConditionSLABreach,
			config: map[string]any{"datasource_id": "ds-1", "expected_load_time": "6:15", "tolerance_minutes": 10},
			want:   SLABreach{DataSourceID: "ds-1", ExpectedHour: 6, ExpectedMinute: 15, ToleranceMinutes: 10},
		},
		{
			name:    "sla missing time",
			ct:      models.ConditionSLABreach,
			config:  map[string]any{"datasource_id": "ds-1"},
			wantErr: "expected_load_time is required",
		},
		{
			name:    "sla bad time",
			ct:      models.ConditionSLABreach,
			config:  map[string]any{"datasource_id": "ds-1", "expected_load_time": "25:99"},
			wantErr: "invalid expected_load_time",
		},
		{
			name: "query slow",
			ct:   models.ConditionQuerySlow,
			want: QuerySlow{},
		},
		{
			name: "dashboard failure",
			ct:   models.ConditionDashboardFailure,
			want: DashboardFailure{},
		},
		{
			name:    "unknown",
			ct:      "disk_full",
			wantErr: `unknown condition type "disk_full"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCondition(tt.ct, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ct, got.Type())
		})
	}
}

func TestSLABreachDeadline(t *testing.T) {
	c := SLABreach{ExpectedHour: 9, ExpectedMinute: 0, ToleranceMinutes: 30}
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), c.Deadline(now))
	assert.Equal(t, "09:00", c.ExpectedTime())
}
