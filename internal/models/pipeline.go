package models

import "time"

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusError   RunStatus = "error"
)

// IsFailure reports whether the run ended badly.
func (s RunStatus) IsFailure() bool {
	return s == RunStatusFailed || s == RunStatusError
}

// Pipeline is a named data-loading job.
type Pipeline struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPipeline creates a new Pipeline with initialized timestamps.
func NewPipeline(name, description string) *Pipeline {
	now := time.Now()
	return &Pipeline{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PipelineRun is a single execution of a pipeline.
type PipelineRun struct {
	ID               string     `json:"id"`
	PipelineID       string     `json:"pipeline_id"`
	Status           RunStatus  `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RecordsProcessed int64      `json:"records_processed"`
	RecordsFailed    int64      `json:"records_failed"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}
