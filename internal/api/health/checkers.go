package health

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// FuncChecker adapts a function, such as the scheduler's liveness, to a Checker.
type FuncChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncChecker creates a named checker backed by fn.
func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: fn}
}

// Name returns the checker name.
func (c *FuncChecker) Name() string {
	return c.name
}

// Check runs the wrapped function.
func (c *FuncChecker) Check(ctx context.Context) error {
	if c.check == nil {
		return fmt.Errorf("%s check not configured", c.name)
	}
	return c.check(ctx)
}
