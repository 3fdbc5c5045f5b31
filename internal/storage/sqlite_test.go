package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

var testMasterKey = []byte("test-master-key-32-bytes-long!!!")

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	store := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), testMasterKey)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func TestSQLiteStorageRequiresMasterKey(t *testing.T) {
	store := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), nil)
	assert.ErrorContains(t, store.Open(), "master key is required")
}

func TestSQLiteStorageMigrate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	tables := []string{"alerts", "alert_history", "data_sources", "pipelines", "pipeline_runs", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// Running again is a no-op.
	require.NoError(t, store.Migrate())
	var version int
	require.NoError(t, store.DB().QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func newStoredAlert(t *testing.T, store *SQLiteStorage, name string, active bool) *models.Alert {
	t.Helper()
	alert := models.NewAlert(name, models.ConditionPipelineFailure)
	alert.ConditionConfig = map[string]any{"pipeline_id": "p-1", "check_last_n_runs": 3}
	alert.Channels = []models.Channel{models.ChannelEmail, models.ChannelSlack}
	alert.Recipients = map[models.Channel]models.RecipientList{
		models.ChannelEmail: {"ops@example.com"},
		models.ChannelSlack: {"https://hooks.slack.com/services/T/B/x"},
	}
	alert.IsActive = active
	require.NoError(t, store.Alerts().Create(context.Background(), alert))
	return alert
}

func TestAlertRepositoryCRUD(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.Alerts()

	alert := newStoredAlert(t, store, "Nightly load", true)
	require.NotEmpty(t, alert.ID)

	got, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Nightly load", got.Name)
	assert.Equal(t, models.ConditionPipelineFailure, got.ConditionType)
	assert.Equal(t, "p-1", got.ConditionConfig["pipeline_id"])
	assert.Equal(t, float64(3), got.ConditionConfig["check_last_n_runs"])
	assert.Equal(t, alert.Channels, got.Channels)
	assert.Equal(t, []string{"ops@example.com"}, got.RecipientsFor(models.ChannelEmail))
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastTriggeredAt)

	got.Description = "updated"
	got.Channels = []models.Channel{models.ChannelTeams}
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", again.Description)
	assert.Equal(t, []models.Channel{models.ChannelTeams}, again.Channels)

	require.NoError(t, repo.Delete(ctx, alert.ID))
	gone, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.True(t, errors.Is(repo.Delete(ctx, alert.ID), ErrNotFound))
}

func TestAlertRepositoryListActiveAndSetActive(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.Alerts()

	a := newStoredAlert(t, store, "a", true)
	newStoredAlert(t, store, "b", false)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	require.NoError(t, repo.SetActive(ctx, a.ID, false))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, repo.SetActive(ctx, "missing", true), ErrNotFound)
}

func TestAlertRepositoryRecordTrigger(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.Alerts()

	alert := newStoredAlert(t, store, "a", true)
	at := time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC)

	require.NoError(t, repo.RecordTrigger(ctx, alert.ID, at))
	require.NoError(t, repo.RecordTrigger(ctx, alert.ID, at.Add(time.Hour)))

	got, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TriggerCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, at.Add(time.Hour).Equal(*got.LastTriggeredAt))
}

func TestAlertHistoryRepository(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.AlertHistory()

	alert := newStoredAlert(t, store, "a", true)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.AlertHistory{
			AlertID:      alert.ID,
			AlertName:    alert.Name,
			TriggeredAt:  base.Add(time.Duration(i) * time.Hour),
			ConditionMet: map[string]any{"run_id": "r-1"},
			Severity:     models.SeverityCritical,
			NotificationsSent: map[models.Channel]models.ChannelResult{
				models.ChannelSlack: {Success: true, Message: "ok"},
			},
		}))
	}

	list, total, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.True(t, list[0].TriggeredAt.After(list[1].TriggeredAt))
	assert.Equal(t, "r-1", list[0].ConditionMet["run_id"])
	assert.True(t, list[0].NotificationsSent[models.ChannelSlack].Success)

	byAlert, total, err := repo.ListByAlert(ctx, alert.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, byAlert, 3)

	deleted, err := repo.DeleteBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestAlertHistoryResolveOnce(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.AlertHistory()

	alert := newStoredAlert(t, store, "a", true)
	h := &models.AlertHistory{AlertID: alert.ID, AlertName: alert.Name, Severity: models.SeverityWarning}
	require.NoError(t, repo.Create(ctx, h))

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Resolve(ctx, h.ID, "alice", "reloaded", at))

	got, err := repo.GetByID(ctx, h.ID)
	require.NoError(t, err)
	require.True(t, got.IsResolved())
	assert.Equal(t, "alice", got.ResolvedBy)
	assert.Equal(t, "reloaded", got.ResolutionNotes)

	err = repo.Resolve(ctx, h.ID, "bob", "again", at.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	got, err = repo.GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ResolvedBy)

	assert.ErrorIs(t, repo.Resolve(ctx, "missing", "x", "", at), ErrNotFound)
}

func TestDataSourceRepositoryEncryptsPassword(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.DataSources()

	ds := models.NewDataSource("warehouse", models.ConnectionPostgreSQL)
	ds.Host = "db.internal"
	ds.Username = "reader"
	ds.Password = "s3cret"
	ds.Database = "analytics"
	require.NoError(t, repo.Create(ctx, ds))

	var stored string
	require.NoError(t, store.DB().QueryRowContext(ctx,
		"SELECT password_encrypted FROM data_sources WHERE id = ?", ds.ID).Scan(&stored))
	assert.NotContains(t, stored, "s3cret")

	got, err := repo.GetByID(ctx, ds.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s3cret", got.Password)
	assert.Equal(t, 5432, got.Port)
	assert.Nil(t, got.LastSync)

	synced := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastSync(ctx, ds.ID, synced))
	got, err = repo.GetByID(ctx, ds.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.True(t, synced.Equal(*got.LastSync))

	got.Host = "db2.internal"
	require.NoError(t, repo.Update(ctx, got))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "db2.internal", list[0].Host)
	assert.Equal(t, "s3cret", list[0].Password)

	missing, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPipelineRepositoryRecentRuns(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repo := store.Pipelines()

	p := models.NewPipeline("nightly", "loads the warehouse")
	require.NoError(t, repo.Create(ctx, p))

	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	statuses := []models.RunStatus{models.RunStatusSuccess, models.RunStatusFailed, models.RunStatusSuccess}
	for i, status := range statuses {
		require.NoError(t, repo.CreateRun(ctx, &models.PipelineRun{
			PipelineID:    p.ID,
			Status:        status,
			RecordsFailed: int64(i),
			StartedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := repo.RecentRuns(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	assert.Equal(t, int64(2), runs[0].RecordsFailed)
	assert.Equal(t, models.RunStatusFailed, runs[1].Status)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "loads the warehouse", got.Description)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	none, err := repo.RecentRuns(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
