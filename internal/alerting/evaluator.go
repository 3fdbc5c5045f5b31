package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// DataSourceReader looks up data sources by ID.
type DataSourceReader interface {
	GetByID(ctx context.Context, id string) (*models.DataSource, error)
}

// PipelineReader looks up pipelines and their most recent runs.
type PipelineReader interface {
	GetByID(ctx context.Context, id string) (*models.Pipeline, error)
	RecentRuns(ctx context.Context, pipelineID string, limit int) ([]*models.PipelineRun, error)
}

// Stats tracks evaluator statistics using atomic operations for lock-free access.
type Stats struct {
	Evaluated atomic.Int64
	Triggered atomic.Int64
	Skipped   atomic.Int64
	Failed    atomic.Int64
}

// Evaluator decides whether an alert's condition currently holds.
type Evaluator struct {
	dataSources DataSourceReader
	pipelines   PipelineReader
	prober      Prober
	now         func() time.Time
	logger      *zap.Logger
	stats       *Stats
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithProber replaces the SQL connectivity prober.
func WithProber(p Prober) Option {
	return func(e *Evaluator) { e.prober = p }
}

// New creates an evaluator reading from the given repositories.
func New(dataSources DataSourceReader, pipelines PipelineReader, logger *zap.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		dataSources: dataSources,
		pipelines:   pipelines,
		prober:      NewSQLProber(),
		now:         time.Now,
		logger:      logger.Named("evaluator"),
		stats:       &Stats{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the evaluator's counters.
func (e *Evaluator) Stats() *Stats {
	return e.stats
}

// EvaluateAlert returns a payload when the alert's condition holds and nil
// otherwise. Inactive alerts are never evaluated. It never returns an error:
// every failure is logged and reported as nil.
func (e *Evaluator) EvaluateAlert(ctx context.Context, alert *models.Alert) (payload *models.AlertPayload) {
	if alert == nil || !alert.IsActive {
		e.stats.Skipped.Add(1)
		return nil
	}
	e.stats.Evaluated.Add(1)

	log := e.logger.With(zap.String("alert_id", alert.ID), zap.String("alert", alert.Name))

	defer func() {
		if r := recover(); r != nil {
			e.stats.Failed.Add(1)
			log.Error("alert check panicked", zap.Any("panic", r))
			payload = nil
		}
	}()

	cond, err := ParseCondition(alert.ConditionType, alert.ConditionConfig)
	if err != nil {
		var unknown *ErrUnknownCondition
		if errors.As(err, &unknown) {
			log.Warn("unknown condition type", zap.String("condition_type", string(alert.ConditionType)))
		} else {
			log.Debug("invalid condition config", zap.Error(err))
		}
		return nil
	}

	switch c := cond.(type) {
	case DatasourceFailure:
		payload, err = e.checkDatasourceFailure(ctx, c)
	case PipelineFailure:
		payload, err = e.checkPipelineFailure(ctx, c)
	case SLABreach:
		payload, err = e.checkSLABreach(ctx, c)
	case QuerySlow, DashboardFailure:
		return nil
	default:
		log.Warn("unhandled condition", zap.String("condition_type", string(cond.Type())))
		return nil
	}

	if err != nil {
		e.stats.Failed.Add(1)
		log.Error("alert check failed", zap.String("condition_type", string(cond.Type())), zap.Error(err))
		return nil
	}
	if payload != nil {
		e.stats.Triggered.Add(1)
		log.Info("alert condition met", zap.String("severity", string(payload.Severity)))
	}
	return payload
}

func (e *Evaluator) checkDatasourceFailure(ctx context.Context, c DatasourceFailure) (*models.AlertPayload, error) {
	ds, err := e.dataSources.GetByID(ctx, c.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("get data source %s: %w", c.DataSourceID, err)
	}
	if ds == nil {
		e.logger.Debug("data source not found", zap.String("datasource_id", c.DataSourceID))
		return nil, nil
	}

	probeErr := e.prober.Probe(ctx, ds)
	if probeErr == nil {
		return nil, nil
	}
	if errors.Is(probeErr, ErrUnsupportedConnectionType) {
		e.logger.Debug("skipping probe", zap.String("datasource_id", ds.ID), zap.Error(probeErr))
		return nil, nil
	}

	return &models.AlertPayload{
		Severity: models.SeverityCritical,
		Details: map[string]any{
			"datasource_name": ds.Name,
			"datasource_id":   ds.ID,
			"error":           probeErr.Error(),
			"host":            ds.Host,
			"port":            ds.Port,
		},
	}, nil
}

func (e *Evaluator) checkPipelineFailure(ctx context.Context, c PipelineFailure) (*models.AlertPayload, error) {
	pipeline, err := e.pipelines.GetByID(ctx, c.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("get pipeline %s: %w", c.PipelineID, err)
	}
	if pipeline == nil {
		e.logger.Debug("pipeline not found", zap.String("pipeline_id", c.PipelineID))
		return nil, nil
	}

	runs, err := e.pipelines.RecentRuns(ctx, pipeline.ID, c.CheckLastNRuns)
	if err != nil {
		return nil, fmt.Errorf("list runs for pipeline %s: %w", pipeline.ID, err)
	}

	for i, run := range runs {
		if i >= c.CheckLastNRuns {
			break
		}
		if !run.Status.IsFailure() {
			continue
		}
		msg := run.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return &models.AlertPayload{
			Severity: models.SeverityCritical,
			Details: map[string]any{
				"pipeline_name":  pipeline.Name,
				"pipeline_id":    pipeline.ID,
				"run_id":         run.ID,
				"error_message":  msg,
				"records_failed": run.RecordsFailed,
				"started_at":     run.StartedAt.UTC().Format(time.RFC3339),
			},
		}, nil
	}
	return nil, nil
}

func (e *Evaluator) checkSLABreach(ctx context.Context, c SLABreach) (*models.AlertPayload, error) {
	ds, err := e.dataSources.GetByID(ctx, c.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("get data source %s: %w", c.DataSourceID, err)
	}
	if ds == nil {
		e.logger.Debug("data source not found", zap.String("datasource_id", c.DataSourceID))
		return nil, nil
	}

	now := e.now().UTC()
	deadline := c.Deadline(now)
	if !now.After(deadline) {
		return nil, nil
	}
	if ds.LastSync != nil && now.Sub(*ds.LastSync) <= 24*time.Hour {
		return nil, nil
	}

	lastSync := "Never"
	delayFrom := deadline
	if ds.LastSync != nil {
		lastSync = ds.LastSync.UTC().Format(time.RFC3339)
		delayFrom = *ds.LastSync
	}

	return &models.AlertPayload{
		Severity: models.SeverityWarning,
		Details: map[string]any{
			"datasource_name":   ds.Name,
			"datasource_id":     ds.ID,
			"expected_time":     c.ExpectedTime(),
			"tolerance_minutes": c.ToleranceMinutes,
			"last_sync":         lastSync,
			"delay_hours":       int(now.Sub(delayFrom).Hours()),
		},
	}, nil
}
