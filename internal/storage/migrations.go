package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				condition_type TEXT NOT NULL,
				condition_config_json TEXT NOT NULL DEFAULT '{}',
				channels_json TEXT NOT NULL DEFAULT '[]',
				recipients_json TEXT NOT NULL DEFAULT '{}',
				is_active INTEGER NOT NULL DEFAULT 1,
				last_triggered_at DATETIME,
				trigger_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Alert history table
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				alert_name TEXT NOT NULL,
				triggered_at DATETIME NOT NULL,
				condition_met_json TEXT NOT NULL DEFAULT '{}',
				severity TEXT NOT NULL,
				notifications_sent_json TEXT NOT NULL DEFAULT '{}',
				resolved_at DATETIME,
				resolved_by TEXT,
				resolution_notes TEXT,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- Data sources table
			CREATE TABLE IF NOT EXISTS data_sources (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				connection_type TEXT NOT NULL,
				host TEXT,
				port INTEGER,
				username TEXT,
				password_encrypted TEXT,
				database_name TEXT,
				last_sync DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(is_active);
			CREATE INDEX IF NOT EXISTS idx_alert_history_alert ON alert_history(alert_id);
			CREATE INDEX IF NOT EXISTS idx_alert_history_triggered ON alert_history(triggered_at);
			CREATE INDEX IF NOT EXISTS idx_data_sources_name ON data_sources(name);
		`,
	},
	{
		Version: 2,
		Name:    "pipelines",
		Up: `
			CREATE TABLE IF NOT EXISTS pipelines (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS pipeline_runs (
				id TEXT PRIMARY KEY,
				pipeline_id TEXT NOT NULL,
				status TEXT NOT NULL,
				error_message TEXT,
				records_processed INTEGER NOT NULL DEFAULT 0,
				records_failed INTEGER NOT NULL DEFAULT 0,
				started_at DATETIME NOT NULL,
				completed_at DATETIME,
				FOREIGN KEY (pipeline_id) REFERENCES pipelines(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(pipeline_id, started_at DESC);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
