package alerting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// DefaultProbeTimeout bounds a single connectivity probe.
const DefaultProbeTimeout = 5 * time.Second

// ErrUnsupportedConnectionType is returned for engines the prober cannot reach.
// The evaluator treats it as "not triggered".
var ErrUnsupportedConnectionType = errors.New("unsupported connection type")

// Prober checks that a data source accepts connections and answers a query.
type Prober interface {
	Probe(ctx context.Context, ds *models.DataSource) error
}

// SQLProber opens a short-lived database/sql connection per probe.
type SQLProber struct {
	Timeout time.Duration
}

// NewSQLProber creates a prober with the default timeout.
func NewSQLProber() *SQLProber {
	return &SQLProber{Timeout: DefaultProbeTimeout}
}

// Probe connects, pings and runs SELECT 1.
func (p *SQLProber) Probe(ctx context.Context, ds *models.DataSource) error {
	driver, dsn, err := BuildDSN(ds)
	if err != nil {
		return err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

// BuildDSN returns the database/sql driver name and DSN for a data source.
func BuildDSN(ds *models.DataSource) (driver, dsn string, err error) {
	switch models.ParseConnectionType(string(ds.ConnectionType)) {
	case models.ConnectionPostgreSQL:
		port := ds.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(ds.Host, strconv.Itoa(port)),
			Path:   "/" + ds.Database,
		}
		if ds.Username != "" {
			u.User = url.UserPassword(ds.Username, ds.Password)
		}
		q := url.Values{}
		q.Set("connect_timeout", strconv.Itoa(int(DefaultProbeTimeout/time.Second)))
		u.RawQuery = q.Encode()
		return "pgx", u.String(), nil

	case models.ConnectionMySQL:
		port := ds.Port
		if port == 0 {
			port = 3306
		}
		cfg := mysql.NewConfig()
		cfg.User = ds.Username
		cfg.Passwd = ds.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(ds.Host, strconv.Itoa(port))
		cfg.DBName = ds.Database
		cfg.Timeout = DefaultProbeTimeout
		return "mysql", cfg.FormatDSN(), nil
	}

	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedConnectionType, ds.ConnectionType)
}
