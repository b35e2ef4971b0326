// Copyright 2025 James Ross
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flyingrobots/nginx-log-etl/internal/batchproc"
	"github.com/flyingrobots/nginx-log-etl/internal/breaker"
	"github.com/flyingrobots/nginx-log-etl/internal/enrich"
	"github.com/flyingrobots/nginx-log-etl/internal/obs"
	"github.com/flyingrobots/nginx-log-etl/internal/statestore"
	"github.com/flyingrobots/nginx-log-etl/internal/warehouse"
	"go.uber.org/zap"
)

const sampleLine = `{"time":"2026-07-31T10:15:30.000000000Z","remote_addr":"203.0.113.7","request":"GET /api/v1/users/42 HTTP/1.1","status":"200","http_host":"api.example.com","body_bytes":2048,"bytes_sent":2200,"agent":"zgt-ios/1.4.1","request_time":0.065}`

func newTestScheduler(t *testing.T, workers int) (*Scheduler, *warehouse.FakeClient) {
	t.Helper()
	dir := t.TempDir()
	store, err := statestore.NewJSONStore(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	rules, err := enrich.LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	cfg := enrich.NewConfig([]string{"200"}, 3.0, 1024*1024, rules)
	wh := warehouse.NewFakeClient()
	proc := &batchproc.Processor{
		Store:      store,
		Warehouse:  wh,
		EnrichCfg:  cfg,
		Breaker:    breaker.New(time.Minute, 30*time.Second, 0.5, 20),
		Log:        zap.NewNop(),
		Summary:    obs.NewRunSummary(),
		BatchRows:  100,
		BatchLines: 1000,
		FlushEvery: time.Hour,
	}
	return NewScheduler(proc, workers, zap.NewNop()), wh
}

func TestSchedulerProcessesAllFilesConcurrently(t *testing.T) {
	root := t.TempDir()
	var files []LogFile
	for i := 0; i < 5; i++ {
		path := filepath.Join(root, "access"+string(rune('a'+i))+".log")
		if err := os.WriteFile(path, []byte(sampleLine+"\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		files = append(files, LogFile{Path: path, PastDatePartition: true})
	}

	sched, wh := newTestScheduler(t, 3)
	results := sched.Run(context.Background(), files, batchproc.ProcessOptions{})

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Failed {
			t.Fatalf("unexpected failure for %s: %v", r.Path, r.Err)
		}
	}
	if got := wh.RowCount(warehouse.EnrichedTable); got != 5 {
		t.Fatalf("expected 5 enriched rows across all files, got %d", got)
	}
}

func TestSchedulerRespectsCancellation(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "access.log")
	if err := os.WriteFile(path, []byte(sampleLine+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	files := []LogFile{{Path: path, PastDatePartition: true}}

	sched, _ := newTestScheduler(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := sched.Run(ctx, files, batchproc.ProcessOptions{})
	// A cancelled context may still let an already-dispatched file finish
	// or may drop it before send; either is an acceptable outcome, but
	// the call must return promptly rather than hang.
	_ = results
}
