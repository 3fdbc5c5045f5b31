package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path      string
	masterKey []byte
	db        *sql.DB

	alerts       *sqliteAlertRepo
	alertHistory *sqliteAlertHistoryRepo
	dataSources  *sqliteDataSourceRepo
	pipelines    *sqlitePipelineRepo
}

// NewSQLiteStorage creates a new SQLite storage. masterKey encrypts
// data-source passwords.
func NewSQLiteStorage(path string, masterKey []byte) *SQLiteStorage {
	return &SQLiteStorage{
		path:      path,
		masterKey: masterKey,
	}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	if len(s.masterKey) == 0 {
		return fmt.Errorf("master key is required")
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_time_format", "sqlite")
	dsn := fmt.Sprintf("file:%s?%s", s.path, q.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db

	s.alerts = &sqliteAlertRepo{db: db}
	s.alertHistory = &sqliteAlertHistoryRepo{db: db}
	s.dataSources = &sqliteDataSourceRepo{db: db, masterKey: s.masterKey}
	s.pipelines = &sqlitePipelineRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository {
	return s.alerts
}

// AlertHistory returns the alert history repository.
func (s *SQLiteStorage) AlertHistory() AlertHistoryRepository {
	return s.alertHistory
}

// DataSources returns the data source repository.
func (s *SQLiteStorage) DataSources() DataSourceRepository {
	return s.dataSources
}

// Pipelines returns the pipeline repository.
func (s *SQLiteStorage) Pipelines() PipelineRepository {
	return s.pipelines
}

type scanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
