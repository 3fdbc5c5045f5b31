package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/internal/security"
)

type sqliteDataSourceRepo struct {
	db        *sql.DB
	masterKey []byte
}

const dataSourceColumns = `id, name, connection_type, host, port, username, password_encrypted,
	database_name, last_sync, created_at, updated_at`

func (r *sqliteDataSourceRepo) Create(ctx context.Context, ds *models.DataSource) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	if ds.UpdatedAt.IsZero() {
		ds.UpdatedAt = now
	}

	password, err := security.SealString(ds.Password, r.masterKey)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	query := `INSERT INTO data_sources (` + dataSourceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		ds.ID, ds.Name, ds.ConnectionType, nullString(ds.Host), ds.Port, nullString(ds.Username),
		nullString(password), nullString(ds.Database), nullTime(ds.LastSync),
		ds.CreatedAt.UTC(), ds.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert data source: %w", err)
	}
	return nil
}

func (r *sqliteDataSourceRepo) GetByID(ctx context.Context, id string) (*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE id = ?`
	ds, err := r.scanDataSource(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ds, err
}

func (r *sqliteDataSourceRepo) List(ctx context.Context) ([]*models.DataSource, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+dataSourceColumns+` FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		ds, err := r.scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}

func (r *sqliteDataSourceRepo) Update(ctx context.Context, ds *models.DataSource) error {
	password, err := security.SealString(ds.Password, r.masterKey)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}
	ds.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE data_sources SET name = ?, connection_type = ?, host = ?, port = ?,
			username = ?, password_encrypted = ?, database_name = ?, last_sync = ?, updated_at = ?
		WHERE id = ?
	`,
		ds.Name, ds.ConnectionType, nullString(ds.Host), ds.Port, nullString(ds.Username),
		nullString(password), nullString(ds.Database), nullTime(ds.LastSync), ds.UpdatedAt, ds.ID,
	)
	if err != nil {
		return fmt.Errorf("update data source: %w", err)
	}
	return expectOneRow(result, "data source", ds.ID)
}

func (r *sqliteDataSourceRepo) UpdateLastSync(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE data_sources SET last_sync = ?, updated_at = ? WHERE id = ?",
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update last sync: %w", err)
	}
	return expectOneRow(result, "data source", id)
}

func (r *sqliteDataSourceRepo) scanDataSource(row scanner) (*models.DataSource, error) {
	ds := &models.DataSource{}
	var host, username, password, database sql.NullString
	var port sql.NullInt64
	var lastSync sql.NullTime

	err := row.Scan(&ds.ID, &ds.Name, &ds.ConnectionType, &host, &port, &username, &password,
		&database, &lastSync, &ds.CreatedAt, &ds.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan data source: %w", err)
	}

	plain, err := security.OpenString(password.String, r.masterKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt password for data source %s: %w", ds.ID, err)
	}

	ds.Host = host.String
	ds.Port = int(port.Int64)
	ds.Username = username.String
	ds.Password = plain
	ds.Database = database.String
	ds.LastSync = timePtr(lastSync)
	ds.CreatedAt = ds.CreatedAt.UTC()
	ds.UpdatedAt = ds.UpdatedAt.UTC()
	return ds, nil
}
