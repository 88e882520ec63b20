package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LedgerConfig holds configuration for the SQL results ledger
type LedgerConfig struct {
	Driver          string        `json:"driver"`
	DSN             string        `json:"dsn"`
	Table           string        `json:"table"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// SQLLedger implements interfaces.ResultLedger on database/sql
type SQLLedger struct {
	config *LedgerConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewSQLLedger creates a ledger; call Connect before use
func NewSQLLedger(config *LedgerConfig, logger *logrus.Logger) (*SQLLedger, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "ledger config cannot be nil")
	}

	switch config.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.NewStorageError(errors.CodeInvalidConfig,
			fmt.Sprintf("unsupported ledger driver %q", config.Driver))
	}

	if config.DSN == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "ledger DSN is required")
	}

	if config.Table == "" {
		config.Table = constants.DefaultLedgerTable
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = constants.DefaultStorageTimeout
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &SQLLedger{
		config: config,
		logger: logger,
	}, nil
}

// Connect opens the database and creates the results table if needed
func (l *SQLLedger) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return nil
	}

	db, err := sql.Open(l.config.Driver, l.config.DSN)
	if err != nil {
		return errors.WrapStorageError(err, "connect", l.config.Driver)
	}

	if l.config.MaxConnections > 0 {
		db.SetMaxOpenConns(l.config.MaxConnections)
	}
	if l.config.Driver == DriverSQLite {
		// sqlite serialises writers anyway
		db.SetMaxOpenConns(1)
	}
	if l.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(l.config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WrapStorageError(err, "ping", l.config.Driver)
	}

	if _, err := db.ExecContext(ctx, l.schema()); err != nil {
		db.Close()
		return errors.WrapStorageError(err, "write", l.config.Driver).WithTarget(l.config.Table)
	}

	l.db = db
	l.closed = false

	l.logger.WithFields(logrus.Fields{
		"driver": l.config.Driver,
		"table":  l.config.Table,
	}).Info("Connected to results ledger")

	return nil
}

// Close closes the database
func (l *SQLLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil
	l.closed = true
	if err != nil {
		return errors.WrapStorageError(err, "close", l.config.Driver)
	}

	l.logger.Debug("Results ledger closed")
	return nil
}

// Ping tests the database connection
func (l *SQLLedger) Ping(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "ledger not connected")
	}
	if err := l.db.PingContext(ctx); err != nil {
		return errors.WrapStorageError(err, "ping", l.config.Driver)
	}
	return nil
}

// Record inserts entry, filling ID and CreatedAt when unset
func (l *SQLLedger) Record(ctx context.Context, entry *interfaces.ResultEntry) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "ledger not connected")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := l.db.ExecContext(ctx, l.insertQuery(),
		entry.ID,
		entry.RunID,
		entry.Setting,
		entry.Split,
		entry.Model,
		entry.MAE,
		entry.MSE,
		entry.RMSE,
		entry.MAPE,
		entry.MSPE,
		entry.DirectionalAccuracy,
		entry.Samples,
		entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return errors.WrapStorageError(err, "write", l.config.Driver).
			WithTarget(l.config.Table).
			WithDuration(time.Since(start))
	}

	l.logger.WithFields(logrus.Fields{
		"setting": entry.Setting,
		"split":   entry.Split,
		"mse":     entry.MSE,
	}).Debug("Recorded result")

	return nil
}

// List returns entries for setting (all entries when empty), newest first
func (l *SQLLedger) List(ctx context.Context, setting string) ([]*interfaces.ResultEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "ledger not connected")
	}

	query := fmt.Sprintf(
		"SELECT id, run_id, setting, split, model, mae, mse, rmse, mape, mspe, directional_accuracy, samples, created_at FROM %s",
		l.table())
	var args []interface{}
	if setting != "" {
		query += " WHERE setting = " + l.placeholder(1)
		args = append(args, setting)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStorageError(err, "list", l.config.Driver).WithTarget(l.config.Table)
	}
	defer rows.Close()

	var entries []*interfaces.ResultEntry
	for rows.Next() {
		var (
			e       interfaces.ResultEntry
			created int64
		)
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.Setting, &e.Split, &e.Model,
			&e.MAE, &e.MSE, &e.RMSE, &e.MAPE, &e.MSPE,
			&e.DirectionalAccuracy, &e.Samples, &created,
		); err != nil {
			return nil, errors.WrapStorageError(err, "read", l.config.Driver).WithTarget(l.config.Table)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorageError(err, "read", l.config.Driver).WithTarget(l.config.Table)
	}

	return entries, nil
}

func (l *SQLLedger) table() string {
	return pq.QuoteIdentifier(l.config.Table)
}

// placeholder renders the n-th bind parameter for the configured driver
func (l *SQLLedger) placeholder(n int) string {
	if l.config.Driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (l *SQLLedger) schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	setting TEXT NOT NULL,
	split TEXT NOT NULL,
	model TEXT NOT NULL,
	mae DOUBLE PRECISION NOT NULL,
	mse DOUBLE PRECISION NOT NULL,
	rmse DOUBLE PRECISION NOT NULL,
	mape DOUBLE PRECISION NOT NULL,
	mspe DOUBLE PRECISION NOT NULL,
	directional_accuracy DOUBLE PRECISION NOT NULL,
	samples BIGINT NOT NULL,
	created_at BIGINT NOT NULL
)`, l.table())
}

func (l *SQLLedger) insertQuery() string {
	ph := make([]string, 13)
	for i := range ph {
		ph[i] = l.placeholder(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (id, run_id, setting, split, model, mae, mse, rmse, mape, mspe, directional_accuracy, samples, created_at) VALUES (%s)",
		l.table(), strings.Join(ph, ", "))
}
