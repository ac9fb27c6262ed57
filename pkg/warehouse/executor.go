// Package warehouse runs vetted read-only queries against the analytics
// store and describes its tables for prompt construction.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"
)

var ErrTimeout = errors.New("warehouse query timed out")

// Result is a bounded row set. Values are JSON friendly: byte slices are
// returned as strings.
type Result struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
	Duration  time.Duration
}

// Executor runs a query that has already passed the safety gate.
type Executor interface {
	Execute(ctx context.Context, query string, timeout time.Duration, rowLimit int) (*Result, error)
}

type SQLExecutor struct {
	db *sql.DB
	// readOnlyTx wraps each query in a read-only transaction, for engines
	// that support it.
	readOnlyTx bool
}

var _ Executor = (*SQLExecutor)(nil)

// Open connects to the warehouse with the given driver ("pgx" or "sqlite").
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPgx, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported warehouse driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func NewSQLExecutor(db *sql.DB, readOnlyTx bool) *SQLExecutor {
	return &SQLExecutor{db: db, readOnlyTx: readOnlyTx}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (e *SQLExecutor) Execute(ctx context.Context, query string, timeout time.Duration, rowLimit int) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	var q querier = e.db
	if e.readOnlyTx {
		tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, wrapCtx(ctx, fmt.Errorf("begin read-only tx: %w", err))
		}
		defer tx.Rollback()
		q = tx
	}

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapCtx(ctx, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	res, err := scanRows(rows, rowLimit)
	if err != nil {
		return nil, wrapCtx(ctx, err)
	}
	res.Duration = time.Since(start)
	return res, nil
}

func wrapCtx(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func scanRows(rows *sql.Rows, rowLimit int) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	res := &Result{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		if rowLimit > 0 && len(res.Rows) >= rowLimit {
			res.Truncated = true
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return res, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
