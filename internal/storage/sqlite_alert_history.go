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

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

const historyColumns = `id, alert_id, alert_name, triggered_at, condition_met_json, severity,
	notifications_sent_json, resolved_at, resolved_by, resolution_notes`

func (r *sqliteAlertHistoryRepo) Create(ctx context.Context, h *models.AlertHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.TriggeredAt.IsZero() {
		h.TriggeredAt = time.Now().UTC()
	}

	conditionJSON, err := json.Marshal(nonNilMap(h.ConditionMet))
	if err != nil {
		return fmt.Errorf("marshal condition met: %w", err)
	}
	sent := h.NotificationsSent
	if sent == nil {
		sent = map[models.Channel]models.ChannelResult{}
	}
	sentJSON, err := json.Marshal(sent)
	if err != nil {
		return fmt.Errorf("marshal notifications sent: %w", err)
	}

	query := `INSERT INTO alert_history (` + historyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		h.ID, h.AlertID, h.AlertName, h.TriggeredAt.UTC(), string(conditionJSON), h.Severity,
		string(sentJSON), nullTime(h.ResolvedAt), nullString(h.ResolvedBy), nullString(h.ResolutionNotes),
	)
	if err != nil {
		return fmt.Errorf("create alert history: %w", err)
	}
	return nil
}

func (r *sqliteAlertHistoryRepo) GetByID(ctx context.Context, id string) (*models.AlertHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM alert_history WHERE id = ?`
	h, err := scanHistory(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

func (r *sqliteAlertHistoryRepo) List(ctx context.Context, limit, offset int) ([]*models.AlertHistory, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history").Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	query := `SELECT ` + historyColumns + ` FROM alert_history ORDER BY triggered_at DESC LIMIT ? OFFSET ?`
	histories, err := r.queryHistories(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

func (r *sqliteAlertHistoryRepo) ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history WHERE alert_id = ?", alertID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history by alert: %w", err)
	}

	query := `SELECT ` + historyColumns + ` FROM alert_history WHERE alert_id = ? ORDER BY triggered_at DESC LIMIT ? OFFSET ?`
	histories, err := r.queryHistories(ctx, query, alertID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

// Resolve sets the resolution fields once. A second call returns
// ErrAlreadyResolved and leaves the entry untouched.
func (r *sqliteAlertHistoryRepo) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alert_history SET resolved_at = ?, resolved_by = ?, resolution_notes = ?
		WHERE id = ? AND resolved_at IS NULL
	`, at.UTC(), nullString(resolvedBy), nullString(notes), id)
	if err != nil {
		return fmt.Errorf("resolve alert history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("alert history %s: %w", id, ErrNotFound)
	}
	return ErrAlreadyResolved
}

func (r *sqliteAlertHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_history WHERE triggered_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteAlertHistoryRepo) queryHistories(ctx context.Context, query string, args ...any) ([]*models.AlertHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var histories []*models.AlertHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

func scanHistory(row scanner) (*models.AlertHistory, error) {
	h := &models.AlertHistory{}
	var conditionJSON, sentJSON string
	var resolvedAt sql.NullTime
	var resolvedBy, notes sql.NullString

	err := row.Scan(&h.ID, &h.AlertID, &h.AlertName, &h.TriggeredAt, &conditionJSON, &h.Severity,
		&sentJSON, &resolvedAt, &resolvedBy, &notes)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert history: %w", err)
	}

	h.TriggeredAt = h.TriggeredAt.UTC()
	h.ResolvedAt = timePtr(resolvedAt)
	h.ResolvedBy = resolvedBy.String
	h.ResolutionNotes = notes.String

	if err := json.Unmarshal([]byte(conditionJSON), &h.ConditionMet); err != nil {
		return nil, fmt.Errorf("unmarshal condition met: %w", err)
	}
	if err := json.Unmarshal([]byte(sentJSON), &h.NotificationsSent); err != nil {
		return nil, fmt.Errorf("unmarshal notifications sent: %w", err)
	}
	return h, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
