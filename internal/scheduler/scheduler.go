// Package scheduler runs alert evaluation on an interval and records the
// outcome of every triggered alert.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/metrics"
	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

var (
	// ErrAlertNotFound is returned by RunAlert for an unknown ID.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrAlertInactive is returned by RunAlert for a disabled alert.
	ErrAlertInactive = errors.New("alert is inactive")
)

// Config configures the runner.
type Config struct {
	Interval         time.Duration // How often to evaluate (default: 5m)
	AlertTimeout     time.Duration // Upper bound per alert (default: 1m)
	HistoryRetention time.Duration // Delete history older than this after each run, 0 disables
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		AlertTimeout: time.Minute,
	}
}

// Evaluator checks one alert.
type Evaluator interface {
	EvaluateAlert(ctx context.Context, alert *models.Alert) *models.AlertPayload
}

// Notifier delivers a triggered alert.
type Notifier interface {
	SendNotification(ctx context.Context, alert *models.Alert, payload *models.AlertPayload) map[models.Channel]models.ChannelResult
}

// Summary describes one evaluation pass.
type Summary struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Evaluated     int           `json:"evaluated"`
	Triggered     int           `json:"triggered"`
	Notified      int           `json:"notified"`
	PersistErrors int           `json:"persist_errors"`
	Pruned        int64         `json:"pruned"`
}

// Outcome is the result of evaluating a single alert.
type Outcome struct {
	Alert   *models.Alert
	Payload *models.AlertPayload
	History *models.AlertHistory
	Results map[models.Channel]models.ChannelResult
	// Err is set when the history row or trigger bookkeeping failed.
	Err error
}

// Triggered reports whether the alert condition held.
func (o *Outcome) Triggered() bool {
	return o.Payload != nil
}

// Runner evaluates active alerts and persists what fired.
type Runner struct {
	config    Config
	alerts    storage.AlertRepository
	history   storage.AlertHistoryRepository
	evaluator Evaluator
	notifier  Notifier
	now       func() time.Time
	logger    *zap.Logger

	// mu serializes passes so an on-demand run never overlaps the loop.
	mu      sync.Mutex
	lastRun atomic.Int64 // unix nanos of the last completed pass
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a runner.
func New(config Config, alerts storage.AlertRepository, history storage.AlertHistoryRepository,
	evaluator Evaluator, notifier Notifier, logger *zap.Logger, opts ...Option) *Runner {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.AlertTimeout <= 0 {
		config.AlertTimeout = defaults.AlertTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		config:    config,
		alerts:    alerts,
		history:   history,
		evaluator: evaluator,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates all alerts immediately and then on every interval until ctx
// is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("scheduler started", zap.Duration("interval", r.config.Interval))

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("evaluation pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce evaluates every active alert sequentially. Only a failure to list
// alerts is returned; per-alert persistence errors are counted.
func (r *Runner) RunOnce(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := &Summary{StartedAt: r.now()}

	alerts, err := r.alerts.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active alerts: %w", err)
	}

	for _, alert := range alerts {
		if ctx.Err() != nil {
			break
		}
		outcome := r.evaluate(ctx, alert)
		summary.Evaluated++
		if !outcome.Triggered() {
			continue
		}
		summary.Triggered++
		if outcome.History.SuccessfulChannels() > 0 {
			summary.Notified++
		}
		if outcome.Err != nil {
			summary.PersistErrors++
		}
	}

	if r.config.HistoryRetention > 0 && ctx.Err() == nil {
		cutoff := r.now().Add(-r.config.HistoryRetention)
		n, err := r.history.DeleteBefore(ctx, cutoff)
		if err != nil {
			r.logger.Error("prune alert history", zap.Error(err))
		} else {
			summary.Pruned = n
		}
	}

	summary.Duration = r.now().Sub(summary.StartedAt)
	r.lastRun.Store(r.now().UnixNano())
	r.logger.Info("evaluation pass complete",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("triggered", summary.Triggered),
		zap.Int("notified", summary.Notified),
		zap.Int("persist_errors", summary.PersistErrors),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// LastRun returns when the last full pass completed, or the zero time.
func (r *Runner) LastRun() time.Time {
	n := r.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Healthy returns an error when no pass has completed within maxAge. A
// runner that has not finished its first pass is considered healthy.
func (r *Runner) Healthy(maxAge time.Duration) error {
	last := r.LastRun()
	if last.IsZero() {
		return nil
	}
	if age := r.now().Sub(last); age > maxAge {
		return fmt.Errorf("last evaluation pass %s ago", age.Round(time.Second))
	}
	return nil
}

// RunAlert evaluates one alert on demand.
func (r *Runner) RunAlert(ctx context.Context, id string) (*Outcome, error) {
	alert, err := r.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	if !alert.IsActive {
		return nil, ErrAlertInactive
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evaluate(ctx, alert), nil
}

func (r *Runner) evaluate(ctx context.Context, alert *models.Alert) *Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.config.AlertTimeout)
	defer cancel()

	outcome := &Outcome{Alert: alert}
	log := r.logger.With(zap.String("alert_id", alert.ID), zap.String("alert", alert.Name))

	start := time.Now()
	outcome.Payload = r.evaluator.EvaluateAlert(ctx, alert)
	result := "ok"
	if outcome.Payload != nil {
		result = "triggered"
	}
	metrics.RecordEvaluation(string(alert.ConditionType), result, time.Since(start).Seconds())

	if outcome.Payload == nil {
		return outcome
	}

	outcome.Results = r.notifier.SendNotification(ctx, alert, outcome.Payload)

	triggeredAt := r.now().UTC()
	outcome.History = &models.AlertHistory{
		AlertID:           alert.ID,
		AlertName:         alert.Name,
		TriggeredAt:       triggeredAt,
		ConditionMet:      outcome.Payload.Details,
		Severity:          outcome.Payload.Severity,
		NotificationsSent: outcome.Results,
	}

	// Bookkeeping outlives the per-alert timeout.
	persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer persistCancel()

	var errs []error
	if err := r.history.Create(persistCtx, outcome.History); err != nil {
		errs = append(errs, fmt.Errorf("create alert history: %w", err))
	}
	if err := r.alerts.RecordTrigger(persistCtx, alert.ID, triggeredAt); err != nil {
		errs = append(errs, fmt.Errorf("record trigger: %w", err))
	}
	if len(errs) > 0 {
		outcome.Err = errors.Join(errs...)
		metrics.HistoryWriteErrors.Inc()
		log.Error("persist alert trigger", zap.Error(outcome.Err))
	} else {
		alert.TriggerCount++
		alert.LastTriggeredAt = &triggeredAt
	}

	return outcome
}
