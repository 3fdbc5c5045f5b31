package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, name, description, condition_type, condition_config_json,
	channels_json, recipients_json, is_active, last_triggered_at, trigger_count,
	created_at, updated_at`

type alertJSON struct {
	config     string
	channels   string
	recipients string
}

func marshalAlert(alert *models.Alert) (alertJSON, error) {
	config := alert.ConditionConfig
	if config == nil {
		config = map[string]any{}
	}
	channels := alert.Channels
	if channels == nil {
		channels = []models.Channel{}
	}
	recipients := alert.Recipients
	if recipients == nil {
		recipients = map[models.Channel]models.RecipientList{}
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return alertJSON{}, fmt.Errorf("marshal condition config: %w", err)
	}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return alertJSON{}, fmt.Errorf("marshal channels: %w", err)
	}
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return alertJSON{}, fmt.Errorf("marshal recipients: %w", err)
	}
	return alertJSON{config: string(configJSON), channels: string(channelsJSON), recipients: string(recipientsJSON)}, nil
}

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = now
	}

	j, err := marshalAlert(alert)
	if err != nil {
		return err
	}

	query := `INSERT INTO alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		alert.ID, alert.Name, nullString(alert.Description), alert.ConditionType,
		j.config, j.channels, j.recipients, boolToInt(alert.IsActive),
		nullTime(alert.LastTriggeredAt), alert.TriggerCount,
		alert.CreatedAt.UTC(), alert.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

// Update rewrites the operator-editable fields. Trigger bookkeeping is left to
// RecordTrigger.
func (r *sqliteAlertRepo) Update(ctx context.Context, alert *models.Alert) error {
	j, err := marshalAlert(alert)
	if err != nil {
		return err
	}
	alert.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE alerts SET name = ?, description = ?, condition_type = ?,
			condition_config_json = ?, channels_json = ?, recipients_json = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		alert.Name, nullString(alert.Description), alert.ConditionType,
		j.config, j.channels, j.recipients, boolToInt(alert.IsActive),
		alert.UpdatedAt, alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return expectOneRow(result, "alert", alert.ID)
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return expectOneRow(result, "alert", id)
}

func (r *sqliteAlertRepo) List(ctx context.Context) ([]*models.Alert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY name`)
}

func (r *sqliteAlertRepo) ListActive(ctx context.Context) ([]*models.Alert, error) {
	return r.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts WHERE is_active = 1 ORDER BY created_at, id`)
}

func (r *sqliteAlertRepo) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET is_active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set alert active: %w", err)
	}
	return expectOneRow(result, "alert", id)
}

func (r *sqliteAlertRepo) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET trigger_count = trigger_count + 1, last_triggered_at = ? WHERE id = ?",
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("record alert trigger: %w", err)
	}
	return expectOneRow(result, "alert", id)
}

func (r *sqliteAlertRepo) queryAlerts(ctx context.Context, query string, args ...any) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlert(row scanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var description sql.NullString
	var configJSON, channelsJSON, recipientsJSON string
	var isActive int
	var lastTriggered sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.Name, &description, &alert.ConditionType, &configJSON,
		&channelsJSON, &recipientsJSON, &isActive, &lastTriggered, &alert.TriggerCount,
		&alert.CreatedAt, &alert.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	alert.Description = description.String
	alert.IsActive = isActive != 0
	alert.LastTriggeredAt = timePtr(lastTriggered)
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()

	if err := json.Unmarshal([]byte(configJSON), &alert.ConditionConfig); err != nil {
		return nil, fmt.Errorf("unmarshal condition config: %w", err)
	}
	if err := json.Unmarshal([]byte(channelsJSON), &alert.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	if err := json.Unmarshal([]byte(recipientsJSON), &alert.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}

	return alert, nil
}

func expectOneRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
