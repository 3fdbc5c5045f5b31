package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

type sqlitePipelineRepo struct {
	db *sql.DB
}

func (r *sqlitePipelineRepo) Create(ctx context.Context, p *models.Pipeline) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO pipelines (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Name, nullString(p.Description), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

func (r *sqlitePipelineRepo) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM pipelines WHERE id = ?", id)
	p, err := scanPipeline(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *sqlitePipelineRepo) List(ctx context.Context) ([]*models.Pipeline, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM pipelines ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []*models.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

func (r *sqlitePipelineRepo) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, pipeline_id, status, error_message, records_processed,
			records_failed, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.PipelineID, run.Status, nullString(run.ErrorMessage), run.RecordsProcessed,
		run.RecordsFailed, run.StartedAt.UTC(), nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

func (r *sqlitePipelineRepo) RecentRuns(ctx context.Context, pipelineID string, limit int) ([]*models.PipelineRun, error) {
	if limit < 1 {
		limit = 1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pipeline_id, status, error_message, records_processed, records_failed,
			started_at, completed_at
		FROM pipeline_runs WHERE pipeline_id = ? ORDER BY started_at DESC LIMIT ?
	`, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PipelineRun
	for rows.Next() {
		run := &models.PipelineRun{}
		var errorMessage sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.PipelineID, &run.Status, &errorMessage, &run.RecordsProcessed,
			&run.RecordsFailed, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		run.ErrorMessage = errorMessage.String
		run.StartedAt = run.StartedAt.UTC()
		run.CompletedAt = timePtr(completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanPipeline(row scanner) (*models.Pipeline, error) {
	p := &models.Pipeline{}
	var description sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	p.Description = description.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
