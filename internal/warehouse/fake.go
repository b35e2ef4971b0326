// Copyright 2025 James Ross
package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is an in-memory Client used by package tests across
// internal/batchproc, internal/discovery, and internal/warehouse itself —
// the role alicebob/miniredis/v2 plays for the teacher's Redis-backed
// tests, here played by a plain map since no pure-Go in-memory ClickHouse
// exists in the example corpus.
type FakeClient struct {
	mu       sync.Mutex
	Tables   map[string][][]any
	DDLCalls [][]string
	PingErr  error
	InsertErr error
	seen      map[string]struct{} // dedup by first column (id), mirrors ReplacingMergeTree collapse
}

// NewFakeClient returns an empty FakeClient ready for use.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Tables: make(map[string][][]any),
		seen:   make(map[string]struct{}),
	}
}

func (f *FakeClient) Insert(_ context.Context, table string, _ []string, rows [][]any) (InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return InsertResult{}, f.InsertErr
	}
	ingested := 0
	for _, row := range rows {
		key := fmtKey(table, row)
		if _, dup := f.seen[key]; dup {
			continue
		}
		f.seen[key] = struct{}{}
		f.Tables[table] = append(f.Tables[table], row)
		ingested++
	}
	return InsertResult{Ingested: ingested}, nil
}

func (f *FakeClient) ExecDDL(_ context.Context, statements []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DDLCalls = append(f.DDLCalls, statements)
	return nil
}

func (f *FakeClient) Ping(_ context.Context) error {
	return f.PingErr
}

func (f *FakeClient) Close() error { return nil }

// RowCount returns the number of distinct rows accepted into table so far.
func (f *FakeClient) RowCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Tables[table])
}

func fmtKey(table string, row []any) string {
	if len(row) == 0 {
		return table
	}
	return fmt.Sprintf("%s#%v", table, row[0])
}
