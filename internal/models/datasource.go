package models

import (
	"time"
)

// ConnectionType identifies the database engine behind a data source.
type ConnectionType string

const (
	ConnectionPostgreSQL ConnectionType = "postgresql"
	ConnectionMySQL      ConnectionType = "mysql"
	ConnectionSQLite     ConnectionType = "sqlite"
	ConnectionClickHouse ConnectionType = "clickhouse"
)

// ParseConnectionType converts a string to ConnectionType.
// Common aliases are folded into their canonical names.
func ParseConnectionType(s string) ConnectionType {
	switch s {
	case "postgresql", "postgres", "pg":
		return ConnectionPostgreSQL
	case "mysql", "mariadb":
		return ConnectionMySQL
	default:
		return ConnectionType(s)
	}
}

// DataSource holds connection parameters for a monitored database.
type DataSource struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	ConnectionType ConnectionType `json:"connection_type"`
	Host           string         `json:"host,omitempty"`
	Port           int            `json:"port,omitempty"`
	Username       string         `json:"username,omitempty"`
	Password       string         `json:"-"` // Never expose in JSON
	Database       string         `json:"database,omitempty"`
	LastSync       *time.Time     `json:"last_sync,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewDataSource creates a new DataSource with initialized timestamps and the
// engine's default port.
func NewDataSource(name string, connType ConnectionType) *DataSource {
	now := time.Now()
	ds := &DataSource{
		Name:           name,
		ConnectionType: connType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch connType {
	case ConnectionPostgreSQL:
		ds.Port = 5432
	case ConnectionMySQL:
		ds.Port = 3306
	}
	return ds
}
