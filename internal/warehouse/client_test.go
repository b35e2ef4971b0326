// Copyright 2025 James Ross
package warehouse

import (
	"context"
	"errors"
	"testing"
)

func TestRecordIDDeterministic(t *testing.T) {
	id1 := RecordID("/var/log/nginx/access-2026-07-31.log", 4096, "ab12cd34")
	id2 := RecordID("/var/log/nginx/access-2026-07-31.log", 4096, "ab12cd34")
	if id1 != id2 {
		t.Fatalf("RecordID not deterministic: %d != %d", id1, id2)
	}

	id3 := RecordID("/var/log/nginx/access-2026-07-31.log", 4097, "ab12cd34")
	if id1 == id3 {
		t.Fatal("RecordID must differ when byte offset differs")
	}
}

func TestFakeClientDedupsByID(t *testing.T) {
	fc := NewFakeClient()
	ctx := context.Background()

	rows := [][]any{
		{uint64(1), "row-one"},
		{uint64(2), "row-two"},
		{uint64(1), "row-one-again"}, // same id, simulates reprocessing a file
	}
	res, err := fc.Insert(ctx, EnrichedTable, EnrichedColumns[:2], rows)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Ingested != 2 {
		t.Fatalf("Ingested = %d, want 2 (dedup'd)", res.Ingested)
	}
	if fc.RowCount(EnrichedTable) != 2 {
		t.Fatalf("RowCount = %d, want 2", fc.RowCount(EnrichedTable))
	}
}

func TestFakeClientSurfacesInsertErr(t *testing.T) {
	fc := NewFakeClient()
	fc.InsertErr = errors.New("connection reset")
	_, err := fc.Insert(context.Background(), RawTable, RawColumns, [][]any{{uint64(1)}})
	if err == nil {
		t.Fatal("expected Insert to surface InsertErr")
	}
}

func TestClassifyPermanentVsTransient(t *testing.T) {
	transient := errors.New("dial tcp: connection reset by peer")
	if perm := classify(transient); perm != transient {
		t.Fatalf("expected transient error to pass through unwrapped")
	}

	permanent := errors.New("Code: 53, no such column: foo")
	classified := classify(permanent)
	var pe *PermanentError
	if !errors.As(classified, &pe) {
		t.Fatalf("expected schema-mismatch error to classify as permanent, got %v", classified)
	}
}

func TestDescribeColumnsNarrowFallback(t *testing.T) {
	existing := []string{"id", "ts", "client_ip", "status"}
	subset, narrowed := DescribeColumns(existing, EnrichedColumns)
	if !narrowed {
		t.Fatal("expected narrowed = true for a subset schema")
	}
	if len(subset) != 4 {
		t.Fatalf("subset len = %d, want 4", len(subset))
	}
}

func TestProjectRowsDropsColumnsNotInTarget(t *testing.T) {
	from := []string{"id", "ts", "client_ip", "status"}
	to := []string{"id", "status"}
	rows := [][]any{
		{uint64(1), "2026-07-31", "203.0.113.7", "200"},
		{uint64(2), "2026-07-31", "203.0.113.8", "404"},
	}

	out := projectRows(from, to, rows)
	if len(out) != 2 {
		t.Fatalf("expected 2 projected rows, got %d", len(out))
	}
	if out[0][0] != uint64(1) || out[0][1] != "200" {
		t.Fatalf("row 0 = %v, want [1 200]", out[0])
	}
	if out[1][0] != uint64(2) || out[1][1] != "404" {
		t.Fatalf("row 1 = %v, want [2 404]", out[1])
	}
}

func TestBootstrapDDLMatchesColumnLists(t *testing.T) {
	stmts := BootstrapDDL("etl")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 DDL statements (raw + enriched), got %d", len(stmts))
	}
	for _, col := range RawColumns {
		if col == "" {
			t.Fatal("empty column name in RawColumns")
		}
	}
	if len(EnrichedColumns) < 40 {
		t.Fatalf("EnrichedColumns too narrow for the wide layout: %d columns", len(EnrichedColumns))
	}
}
