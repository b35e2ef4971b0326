// Copyright 2025 James Ross
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// Client is the contract the rest of the ETL depends on: insert, exec_ddl,
// and ping, per spec.md §4.3. A fake in-memory implementation (FakeClient)
// satisfies this interface for tests.
type Client interface {
	Insert(ctx context.Context, table string, columns []string, rows [][]any) (InsertResult, error)
	ExecDDL(ctx context.Context, statements []string) error
	Ping(ctx context.Context) error
	Close() error
}

// InsertResult reports how many rows were accepted and how many required a
// retry before being accepted.
type InsertResult struct {
	Ingested int
	Retried  int
}

// Config bundles the connection and retry tunables for a ClickHouse-backed
// client.
type Config struct {
	DSN          string
	Database     string
	User         string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	DialTimeout  time.Duration
	InsertTimeout time.Duration

	RetryBase       time.Duration
	RetryMax        time.Duration
	RetryMaxRetries int
}

// ClickHouseClient wraps a database/sql pool over clickhouse-go. The pool
// size is the MaxOpenConns the caller passes; cmd/etl passes the
// warehouse.max_open_conns setting as is, without relating it to the
// worker count.
type ClickHouseClient struct {
	cfg Config
	db  *sql.DB
	log *zap.Logger

	colsMu    sync.Mutex
	colsCache map[string][]string // table -> resolved insert columns, first-insert cached
	warned    map[string]bool     // table -> the narrow-schema warning has already been logged once
}

// NewClickHouseClient dials ClickHouse and verifies connectivity with a
// ping, directly grounded on clickhouse_exporter.go's connect().
func NewClickHouseClient(cfg Config, log *zap.Logger) (*ClickHouseClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.InsertTimeout == 0 {
		cfg.InsertTimeout = 60 * time.Second
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.DSN},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLife,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseClient{
		cfg:       cfg,
		db:        db,
		log:       log,
		colsCache: make(map[string][]string),
		warned:    make(map[string]bool),
	}, nil
}

// Ping checks connectivity with a single PingContext on the pool. It does
// not evict or replace connections, and batches are not preceded by a
// ping; cmd/etl calls it only from the /readyz probe.
func (c *ClickHouseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ExecDDL runs bootstrap statements (CREATE TABLE IF NOT EXISTS, CREATE
// MATERIALIZED VIEW, ...) sequentially, directly grounded on
// clickhouse_exporter.go's ensureTable.
func (c *ClickHouseClient) ExecDDL(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec ddl: %w", err)
		}
	}
	return nil
}

// Insert performs a batched, retrying insert into table. Rows must already
// carry the deterministic id column first, per spec.md §4.3.
//
// Before the first insert into a given table, Insert describes the live
// schema and compares it against the caller's wanted columns via
// DescribeColumns (DESIGN.md Open Question 2): a pre-existing table
// narrower than the wide layout gets a one-time warning and every
// subsequent insert into that table writes only the columns both sides
// agree on, never an ALTER TABLE. The resolved column list is cached for
// the client's lifetime so steady-state inserts pay no extra query.
func (c *ClickHouseClient) Insert(ctx context.Context, table string, columns []string, rows [][]any) (InsertResult, error) {
	resolved, err := c.resolveColumns(ctx, table, columns)
	if err != nil {
		return InsertResult{}, err
	}
	if len(resolved) != len(columns) {
		rows = projectRows(columns, resolved, rows)
		columns = resolved
	}
	return insertWithRetry(ctx, c.db, c.cfg, table, columns, rows)
}

// resolveColumns returns the columns Insert should actually write for
// table, querying system.columns and caching the result on first use.
func (c *ClickHouseClient) resolveColumns(ctx context.Context, table string, wanted []string) ([]string, error) {
	c.colsMu.Lock()
	if cached, ok := c.colsCache[table]; ok {
		c.colsMu.Unlock()
		return cached, nil
	}
	c.colsMu.Unlock()

	existing, err := c.describeTable(ctx, table)
	if err != nil {
		return nil, err
	}

	resolved := wanted
	subset, narrowed := DescribeColumns(existing, wanted)
	if narrowed {
		resolved = subset
	}

	c.colsMu.Lock()
	defer c.colsMu.Unlock()
	if narrowed && !c.warned[table] {
		c.warned[table] = true
		c.log.Warn("warehouse table is narrower than the wide layout; writing subset of columns only",
			zap.String("table", table), zap.Int("wanted_columns", len(wanted)), zap.Int("available_columns", len(subset)))
	}
	c.colsCache[table] = resolved
	return resolved, nil
}

// describeTable lists table's column names via system.columns, the
// portable equivalent of DESCRIBE TABLE across ClickHouse versions.
func (c *ClickHouseClient) describeTable(ctx context.Context, table string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM system.columns WHERE database = ? AND table = ?`, c.cfg.Database, table)
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("describe table %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// projectRows re-slices each row from the from column order down to the
// to column order, dropping any column to doesn't want.
func projectRows(from, to []string, rows [][]any) [][]any {
	pos := make(map[string]int, len(from))
	for i, c := range from {
		pos[c] = i
	}
	idx := make([]int, len(to))
	for i, c := range to {
		idx[i] = pos[c]
	}

	out := make([][]any, len(rows))
	for i, row := range rows {
		projected := make([]any, len(to))
		for j, srcIdx := range idx {
			projected[j] = row[srcIdx]
		}
		out[i] = projected
	}
	return out
}

func (c *ClickHouseClient) Close() error {
	return c.db.Close()
}
