package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"chatserver-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
)

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment,omitempty"`
}

type TableSchema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// SchemaProvider describes tables for prompt construction.
type SchemaProvider interface {
	Describe(ctx context.Context, tables []string) ([]TableSchema, error)
}

const (
	postgresColumnsQuery = `SELECT column_name, data_type, is_nullable = 'YES',
       COALESCE(col_description(format('%I.%I', table_schema, table_name)::regclass, ordinal_position), '')
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	sqliteColumnsQuery = `SELECT name, type, "notnull" = 0, '' FROM pragma_table_info(?) ORDER BY cid`
)

type SQLSchemaProvider struct {
	db            *sql.DB
	driver        string
	defaultSchema string
	cache         *cache.Cache
	logger        logger.ILogger
}

var _ SchemaProvider = (*SQLSchemaProvider)(nil)

// NewSQLSchemaProvider caches per-table descriptions for ttl.
func NewSQLSchemaProvider(db *sql.DB, driver, defaultSchema string, ttl time.Duration, log logger.ILogger) *SQLSchemaProvider {
	if defaultSchema == "" && driver == DriverPgx {
		defaultSchema = "public"
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SQLSchemaProvider{
		db:            db,
		driver:        driver,
		defaultSchema: defaultSchema,
		cache:         cache.New(ttl, 2*ttl),
		logger:        log,
	}
}

// Describe returns metadata for the given tables only. Tables that cannot be
// described are skipped and logged; an error is returned only when none could.
func (p *SQLSchemaProvider) Describe(ctx context.Context, tables []string) ([]TableSchema, error) {
	out := make([]TableSchema, 0, len(tables))
	var lastErr error

	for _, table := range tables {
		key := p.driver + ":" + strings.ToLower(table)
		if cached, found := p.cache.Get(key); found {
			out = append(out, cached.(TableSchema))
			continue
		}

		ts, err := p.describeTable(ctx, table)
		if err != nil {
			lastErr = err
			p.logger.Warn("WAREHOUSE", "Could not describe table", map[string]interface{}{
				"table": table,
				"error": err.Error(),
			})
			continue
		}
		p.cache.Set(key, ts, cache.DefaultExpiration)
		out = append(out, ts)
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (p *SQLSchemaProvider) describeTable(ctx context.Context, table string) (TableSchema, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch p.driver {
	case DriverSQLite:
		rows, err = p.db.QueryContext(ctx, sqliteColumnsQuery, table)
	default:
		schema, name := p.defaultSchema, table
		if i := strings.LastIndex(table, "."); i >= 0 {
			schema, name = table[:i], table[i+1:]
		}
		rows, err = p.db.QueryContext(ctx, postgresColumnsQuery, schema, name)
	}
	if err != nil {
		return TableSchema{}, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	ts := TableSchema{Table: table}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Comment); err != nil {
			return TableSchema{}, fmt.Errorf("scan column of %s: %w", table, err)
		}
		ts.Columns = append(ts.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return TableSchema{}, fmt.Errorf("describe %s: %w", table, err)
	}
	if len(ts.Columns) == 0 {
		return TableSchema{}, fmt.Errorf("describe %s: table not found", table)
	}
	return ts, nil
}
