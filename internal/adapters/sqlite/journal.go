package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements ports.ExecutionRecorder using SQLite. It is an
// append-only audit trail of fills; the engine never reads it back into
// trading state.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal opens (or creates) the journal database and its schema.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/executions.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize journal schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Execution journal opened", map[string]interface{}{"path": dbPath})
	return j, nil
}

func (j *Journal) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id         INTEGER NOT NULL,
		client_order_id  TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		side             TEXT NOT NULL,
		requested_qty    REAL NOT NULL,
		rounded_qty      REAL NOT NULL,
		avg_price        REAL NOT NULL,
		executed_qty     REAL NOT NULL,
		cum_quote        REAL NOT NULL,
		status           TEXT NOT NULL,
		executed_at      TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_symbol_time ON executions (symbol, executed_at DESC);`

	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// RecordExecution appends a receipt and returns its assigned ID.
func (j *Journal) RecordExecution(ctx context.Context, exec *domain.Execution) (int64, error) {
	if exec == nil {
		return 0, fmt.Errorf("cannot record a nil execution")
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO executions (order_id, client_order_id, symbol, side, requested_qty, rounded_qty, avg_price, executed_qty, cum_quote, status, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.OrderID, exec.ClientOrderID, exec.Symbol, string(exec.Side),
		exec.RequestedQty, exec.RoundedQty, exec.AvgPrice, exec.ExecutedQty,
		exec.CumQuote, exec.Status, exec.Timestamp.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting execution: %w: %w", ports.ErrQueryFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading execution id: %w: %w", ports.ErrQueryFailed, err)
	}
	return id, nil
}

// FindBySymbol retrieves the most recent receipts for a symbol, newest first.
func (j *Journal) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT order_id, client_order_id, symbol, side, requested_qty, rounded_qty, avg_price, executed_qty, cum_quote, status, executed_at
		 FROM executions WHERE symbol = ? ORDER BY executed_at DESC, id DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		var side string
		if err := rows.Scan(&e.OrderID, &e.ClientOrderID, &e.Symbol, &side,
			&e.RequestedQty, &e.RoundedQty, &e.AvgPrice, &e.ExecutedQty,
			&e.CumQuote, &e.Status, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning execution: %w: %w", ports.ErrQueryFailed, err)
		}
		e.Side = domain.OrderSide(side)
		execs = append(execs, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w: %w", ports.ErrQueryFailed, err)
	}
	return execs, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
