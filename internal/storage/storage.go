// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

var (
	// ErrNotFound is returned by mutations that target a missing row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when resolving a history entry twice.
	ErrAlreadyResolved = errors.New("alert history entry already resolved")
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// DB returns the underlying connection for health checks.
	DB() *sql.DB

	// Repository accessors
	Alerts() AlertRepository
	AlertHistory() AlertHistoryRepository
	DataSources() DataSourceRepository
	Pipelines() PipelineRepository
}

// AlertRepository defines operations for alert management.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Alert, error)
	ListActive(ctx context.Context) ([]*models.Alert, error)
	SetActive(ctx context.Context, id string, active bool) error
	// RecordTrigger increments trigger_count and sets last_triggered_at.
	RecordTrigger(ctx context.Context, id string, at time.Time) error
}

// AlertHistoryRepository defines operations for alert history. Entries are
// append-only apart from a single resolution.
type AlertHistoryRepository interface {
	Create(ctx context.Context, history *models.AlertHistory) error
	GetByID(ctx context.Context, id string) (*models.AlertHistory, error)
	List(ctx context.Context, limit, offset int) ([]*models.AlertHistory, int64, error)
	ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistory, int64, error)
	Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// DataSourceRepository defines operations for monitored data sources.
// Passwords are encrypted at rest and decrypted on read.
type DataSourceRepository interface {
	Create(ctx context.Context, ds *models.DataSource) error
	GetByID(ctx context.Context, id string) (*models.DataSource, error)
	List(ctx context.Context) ([]*models.DataSource, error)
	Update(ctx context.Context, ds *models.DataSource) error
	UpdateLastSync(ctx context.Context, id string, at time.Time) error
}

// PipelineRepository defines operations for pipelines and their runs.
type PipelineRepository interface {
	Create(ctx context.Context, pipeline *models.Pipeline) error
	GetByID(ctx context.Context, id string) (*models.Pipeline, error)
	List(ctx context.Context) ([]*models.Pipeline, error)
	CreateRun(ctx context.Context, run *models.PipelineRun) error
	// RecentRuns returns up to limit runs ordered by start time, newest first.
	RecentRuns(ctx context.Context, pipelineID string, limit int) ([]*models.PipelineRun, error)
}
