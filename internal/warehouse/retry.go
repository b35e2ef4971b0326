// Copyright 2025 James Ross
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PermanentError marks a warehouse error that must not be retried — schema
// mismatch, constraint violation — and fails the file immediately per
// spec.md §4.3.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// classify distinguishes transient engine errors (connection reset,
// timeout, 5xx-equivalent) from permanent ones (schema/constraint), per
// spec.md §4.3. ClickHouse surfaces both as generic driver errors, so this
// is a substring classification over the error text — the same technique
// clickhouse-go's own examples use in the absence of typed exception codes
// for every engine error class.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"code: 62", // unknown identifier
		"code: 53", // type mismatch
		"code: 44", // cannot parse
		"code: 117", // duplicate column
		"no such column",
		"type mismatch",
		"syntax error",
		"constraint",
	}
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return &PermanentError{Err: err}
		}
	}
	return err
}

// insertWithRetry drives an exponential-backoff retry loop (base 500ms,
// factor 2, max delay 10s by default; RetryMaxRetries retries after the
// first attempt, default 5, so up to 6 attempts in all) over a single batch
// insert, promoting cenkalti/backoff/v4 from an indirect to a direct
// dependency in place of a hand-rolled sleep loop.
func insertWithRetry(ctx context.Context, db *sql.DB, cfg Config, table string, columns []string, rows [][]any) (InsertResult, error) {
	if len(rows) == 0 {
		return InsertResult{}, nil
	}

	base := cfg.RetryBase
	if base == 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := cfg.RetryMax
	if maxDelay == 0 {
		maxDelay = 10 * time.Second
	}
	maxRetries := cfg.RetryMaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.MaxInterval = maxDelay
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below instead of wall time
	policy := backoff.WithMaxRetries(bo, uint64(maxRetries))

	retried := 0
	insertTimeout := cfg.InsertTimeout
	if insertTimeout == 0 {
		insertTimeout = 60 * time.Second
	}

	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, insertTimeout)
		defer cancel()
		if err := execInsert(attemptCtx, db, table, columns, rows); err != nil {
			classified := classify(err)
			var perm *PermanentError
			if errors.As(classified, &perm) {
				return backoff.Permanent(classified)
			}
			retried++
			return classified
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return InsertResult{Ingested: 0, Retried: retried}, fmt.Errorf("insert into %s: %w", table, err)
	}
	return InsertResult{Ingested: len(rows), Retried: retried}, nil
}

func execInsert(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, buildInsertSQL(table, columns))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("exec row: %w", err)
		}
	}
	return tx.Commit()
}

func buildInsertSQL(table string, columns []string) string {
	placeholders := strings.Repeat("?, ", len(columns))
	placeholders = strings.TrimSuffix(placeholders, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
}
