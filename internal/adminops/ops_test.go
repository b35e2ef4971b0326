// Copyright 2025 James Ross
package adminops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/flyingrobots/nginx-log-etl/internal/statestore"
)

func newTestStore(t *testing.T) *statestore.JSONStore {
	t.Helper()
	store, err := statestore.NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return store
}

func TestStatusCountsByOutcome(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Claim(ctx, "/logs/2026-07-30/a.log", "worker-0", "hash-a"); err != nil {
		t.Fatalf("claim a: %v", err)
	}
	if err := store.Finish(ctx, "/logs/2026-07-30/a.log", statestore.OutcomeCompleted, statestore.FinishStats{RecordsIngested: 10}); err != nil {
		t.Fatalf("finish a: %v", err)
	}

	if _, err := store.Claim(ctx, "/logs/2026-07-30/b.log", "worker-0", "hash-b"); err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if err := store.Finish(ctx, "/logs/2026-07-30/b.log", statestore.OutcomeFailed, statestore.FinishStats{Error: "boom"}); err != nil {
		t.Fatalf("finish b: %v", err)
	}

	if _, err := store.Claim(ctx, "/logs/2026-07-30/c.log", "worker-0", "hash-c"); err != nil {
		t.Fatalf("claim c: %v", err)
	}

	res, err := Status(ctx, store, "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if res.Completed != 1 || res.Failed != 1 || res.InProgress != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.Records != 10 {
		t.Fatalf("expected 10 records ingested total, got %d", res.Records)
	}
	if len(res.Failures) != 1 || res.Failures[0].Path != "/logs/2026-07-30/b.log" {
		t.Fatalf("expected b.log in failures, got %+v", res.Failures)
	}
}

func TestStatusScopesByPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Claim(ctx, "/logs/2026-07-30/a.log", "w", "h1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.Finish(ctx, "/logs/2026-07-30/a.log", statestore.OutcomeCompleted, statestore.FinishStats{})

	if _, err := store.Claim(ctx, "/logs/2026-07-31/b.log", "w", "h2"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.Finish(ctx, "/logs/2026-07-31/b.log", statestore.OutcomeCompleted, statestore.FinishStats{})

	res, err := Status(ctx, store, "/logs/2026-07-30/")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if res.Completed != 1 {
		t.Fatalf("expected scope to restrict to 1 file, got %+v", res)
	}
}

func TestResetFailedClearsTerminalState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Claim(ctx, "/logs/a.log", "w", "h"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Finish(ctx, "/logs/a.log", statestore.OutcomeFailed, statestore.FinishStats{Error: "disk full"}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	n, err := ResetFailed(ctx, store, "")
	if err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}

	fs, ok, err := store.Get(ctx, "/logs/a.log")
	if err != nil || !ok {
		t.Fatalf("Get after reset: ok=%v err=%v", ok, err)
	}
	if fs.Status != "" {
		t.Fatalf("expected status cleared, got %q", fs.Status)
	}
}

func TestListUnfinishedReturnsOnlyInProgress(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Claim(ctx, "/logs/a.log", "w", "h"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.Finish(ctx, "/logs/a.log", statestore.OutcomeCompleted, statestore.FinishStats{})

	if _, err := store.Claim(ctx, "/logs/b.log", "w", "h2"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	unfinished, err := ListUnfinished(ctx, store)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(unfinished) != 1 || unfinished[0].Path != "/logs/b.log" {
		t.Fatalf("expected only b.log unfinished, got %+v", unfinished)
	}
}
