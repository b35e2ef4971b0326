// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/guptarohit/asciigraph"
)

// RunSummary accumulates the counters spec.md §7 requires printed at the
// end of a run: files discovered/skipped/completed/failed, parse
// failures, records ingested, and elapsed wall time. perMinute buckets
// RecordsIngested by the minute it landed in, feeding the end-of-run
// throughput sparkline.
type RunSummary struct {
	mu                 sync.Mutex
	Started            time.Time
	FilesDiscovered    int
	FilesSkippedDone   int
	FilesCompleted     int
	FilesFailed        int
	ParseFailuresTotal int64
	RecordsIngested    int64
	perMinute          []int64
}

func NewRunSummary() *RunSummary {
	return &RunSummary{Started: time.Now()}
}

// RecordFlush attributes n ingested records to the minute bucket
// containing now, for the end-of-run throughput sparkline.
func (s *RunSummary) RecordFlush(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	minute := int(time.Since(s.Started) / time.Minute)
	for len(s.perMinute) <= minute {
		s.perMinute = append(s.perMinute, 0)
	}
	s.perMinute[minute] += n
}

// WriteTo renders the summary table and, when the run spanned more than
// one minute, an asciigraph sparkline of records ingested per minute.
func (s *RunSummary) WriteTo(w io.Writer) {
	elapsed := time.Since(s.Started).Round(time.Millisecond)
	fmt.Fprintln(w, strings.Repeat("-", 48))
	fmt.Fprintf(w, "%-28s %16d\n", "files discovered", s.FilesDiscovered)
	fmt.Fprintf(w, "%-28s %16d\n", "files skipped (completed)", s.FilesSkippedDone)
	fmt.Fprintf(w, "%-28s %16d\n", "files completed", s.FilesCompleted)
	fmt.Fprintf(w, "%-28s %16d\n", "files failed", s.FilesFailed)
	fmt.Fprintf(w, "%-28s %16d\n", "parse failures", s.ParseFailuresTotal)
	fmt.Fprintf(w, "%-28s %16d\n", "records ingested", s.RecordsIngested)
	fmt.Fprintf(w, "%-28s %16s\n", "elapsed", elapsed.String())
	fmt.Fprintln(w, strings.Repeat("-", 48))

	s.mu.Lock()
	samples := make([]float64, len(s.perMinute))
	for i, v := range s.perMinute {
		samples[i] = float64(v)
	}
	s.mu.Unlock()

	if len(samples) >= 2 {
		graph := asciigraph.Plot(samples,
			asciigraph.Height(8),
			asciigraph.Caption("records ingested per minute"))
		fmt.Fprintln(w, graph)
	}
}
