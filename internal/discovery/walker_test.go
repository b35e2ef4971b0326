// Copyright 2025 James Ross
package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWalkOrdersOldestPartitionFirst(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "2026-07-30", "b.log"))
	touch(t, filepath.Join(root, "2026-07-30", "a.log"))
	touch(t, filepath.Join(root, "2026-07-31", "a.log"))

	today := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	files, err := Walk(root, []string{"**/*.log"}, nil, today)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files[0].DatePartition != "2026-07-30" || files[1].DatePartition != "2026-07-30" {
		t.Fatalf("expected 2026-07-30 first, got %v", files)
	}
	if files[2].DatePartition != "2026-07-31" {
		t.Fatalf("expected 2026-07-31 last, got %v", files)
	}
	if !files[0].PastDatePartition {
		t.Fatalf("expected 2026-07-30 entry to be past-partition relative to today")
	}
	if files[2].PastDatePartition {
		t.Fatalf("expected today's partition to not be past-partition")
	}
}

func TestWalkExcludeGlobFilters(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "2026-07-31", "access.log"))
	touch(t, filepath.Join(root, "2026-07-31", "access.log.tmp"))

	files, err := Walk(root, []string{"**/*.log*"}, []string{"**/*.tmp"}, time.Now())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exclude glob to drop .tmp file, got %v", files)
	}
}

func TestWalkRecognizesCompactDatePartition(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "20260730", "b.log"))
	touch(t, filepath.Join(root, "2026-07-31", "a.log"))

	today := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	files, err := Walk(root, []string{"**/*.log"}, nil, today)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	// YYYYMMDD must normalize to the same canonical form as YYYY-MM-DD,
	// so it sorts and scopes identically regardless of which form a given
	// partition directory uses.
	if files[0].DatePartition != "2026-07-30" {
		t.Fatalf("expected compact partition normalized to 2026-07-30, got %q", files[0].DatePartition)
	}
	if !files[0].PastDatePartition {
		t.Fatalf("expected normalized compact partition to compare as past-partition")
	}
	if files[1].DatePartition != "2026-07-31" {
		t.Fatalf("expected second file's partition to be 2026-07-31, got %q", files[1].DatePartition)
	}
}

func TestWalkFlatTreeHasNoPartition(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "access.log"))

	files, err := Walk(root, []string{"*.log"}, nil, time.Now())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].DatePartition != "" || files[0].PastDatePartition {
		t.Fatalf("expected flat-tree file to have no partition, got %+v", files[0])
	}
}
