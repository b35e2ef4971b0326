// Copyright 2025 James Ross
package discovery

import (
	"context"
	"strconv"
	"sync"

	"github.com/flyingrobots/nginx-log-etl/internal/batchproc"
	"github.com/flyingrobots/nginx-log-etl/internal/obs"
	"go.uber.org/zap"
)

// Scheduler owns the bounded dispatch channel between discovery and the
// worker pool, generalizing the teacher's Redis BRPOPLPUSH hand-off
// (producer LPUSH, worker BRPOPLPUSH) to an in-process Go channel of
// capacity 2*workers, per design note §9 and spec.md §5's concurrency
// model: one file per worker goroutine, no intra-file parallelism.
type Scheduler struct {
	Processor *batchproc.Processor
	Workers   int
	Log       *zap.Logger

	queue chan LogFile
}

// NewScheduler allocates the dispatch channel at capacity 2*workers.
func NewScheduler(proc *batchproc.Processor, workers int, log *zap.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		Processor: proc,
		Workers:   workers,
		Log:       log,
		queue:     make(chan LogFile, 2*workers),
	}
}

// Run starts the worker pool, feeds files into the dispatch channel, and
// blocks until every file has been processed or ctx is cancelled.
// Cancellation stops accepting new files and lets in-flight ones run to
// their next checkpoint (stream loop checks ctx.Done() between lines).
func (s *Scheduler) Run(ctx context.Context, files []LogFile, opts batchproc.ProcessOptions) []batchproc.FileResult {
	results := make([]batchproc.FileResult, 0, len(files))
	var mu sync.Mutex
	// Each Run closes its queue when feeding ends, so a fresh one is made
	// per call; the daemon calls Run once per cycle.
	s.queue = make(chan LogFile, cap(s.queue))

	var wg sync.WaitGroup
	obs.WorkerActive.Set(float64(s.Workers))
	defer obs.WorkerActive.Set(0)

	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		workerID := workerName(i)
		go func() {
			defer wg.Done()
			for lf := range s.queue {
				o := opts
				o.WorkerID = workerID
				res := s.Processor.ProcessFile(ctx, lf.Path, lf.PastDatePartition, o)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(s.queue)
		for _, lf := range files {
			select {
			case <-ctx.Done():
				return
			case s.queue <- lf:
				obs.QueueDepth.Set(float64(len(s.queue)))
			}
		}
	}()

	wg.Wait()
	obs.QueueDepth.Set(0)
	return results
}

func workerName(i int) string {
	return "worker-" + strconv.Itoa(i)
}
