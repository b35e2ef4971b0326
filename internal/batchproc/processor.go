// Copyright 2025 James Ross
package batchproc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/flyingrobots/nginx-log-etl/internal/breaker"
	"github.com/flyingrobots/nginx-log-etl/internal/enrich"
	"github.com/flyingrobots/nginx-log-etl/internal/logline"
	"github.com/flyingrobots/nginx-log-etl/internal/obs"
	"github.com/flyingrobots/nginx-log-etl/internal/statestore"
	"github.com/flyingrobots/nginx-log-etl/internal/warehouse"
	"go.uber.org/zap"
)

// Processor drives one file at a time through stabilize -> claim -> parse
// -> enrich -> batch -> flush -> finish, directly adapted from the
// teacher's worker.go runOne/processJob dequeue-claim-process-ack loop:
// the BRPOPLPUSH receive becomes a channel receive from discovery, the
// Redis processing-list claim becomes StateStore.Claim, and the
// retry/dead-letter branch becomes success/parse-failure-tolerant/abort.
type Processor struct {
	Store      statestore.Store
	Warehouse  warehouse.Client
	EnrichCfg  *enrich.Config
	Breaker    *breaker.CircuitBreaker
	Log        *zap.Logger
	Summary    *obs.RunSummary

	StabilizeWindow time.Duration
	BatchRows       int
	BatchLines      int
	FlushEvery      time.Duration
}

// ProcessFile runs the full per-file procedure. pastDatePartition tells
// the stabilizer this file is from an older date directory and therefore
// assumed already closed by nginx's logrotate, skipping the wait.
func (p *Processor) ProcessFile(ctx context.Context, path string, pastDatePartition bool, opts ProcessOptions) FileResult {
	res := FileResult{Path: path}
	workerID := opts.WorkerID
	if workerID == "" {
		workerID = "worker"
	}

	if opts.DryRun {
		return p.processDryRun(ctx, path, opts)
	}

	stable, err := stabilize(ctx, path, p.StabilizeWindow, opts.Force, pastDatePartition)
	if err != nil {
		res.Failed = true
		res.Err = err
		return res
	}
	if !stable {
		res.Failed = true
		res.Err = errNotStable(path)
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Failed = true
		res.Err = err
		return res
	}
	cheap := cheapHash(path, info.Size(), info.ModTime().UnixNano())

	claim, err := p.Store.Claim(ctx, path, workerID, cheap)
	if err != nil {
		res.Failed = true
		res.Err = err
		return res
	}
	switch claim.Decision {
	case statestore.ClaimSkipCompleted:
		res.Skipped = "completed"
		return res
	case statestore.ClaimSkipInProgress:
		res.Skipped = "in_progress"
		return res
	}

	// Panic boundary: log the stack, mark the claimed file failed, rethrow.
	defer func() {
		if r := recover(); r != nil {
			p.Log.Error("panic while processing file", obs.String("path", path), zap.Any("panic", r), zap.Stack("stack"))
			_ = p.Store.Finish(ctx, path, statestore.OutcomeFailed, statestore.FinishStats{Error: fmt.Sprintf("panic: %v", r)})
			panic(r)
		}
	}()

	digest, err := contentDigest(path)
	if err != nil {
		_ = p.Store.Finish(ctx, path, statestore.OutcomeFailed, statestore.FinishStats{Error: err.Error()})
		res.Failed = true
		res.Err = err
		return res
	}
	if err := p.Store.SetContentHash(ctx, path, digest); err != nil {
		p.Log.Warn("set content hash failed", obs.String("path", path), obs.Err(err))
	}

	outcome, stats := p.stream(ctx, path, digest, opts)
	res.RecordsIngested = stats.RecordsIngested
	res.ParseFailures = stats.ParseFailures
	res.BytesRead = stats.BytesRead
	if p.Summary != nil {
		p.Summary.ParseFailuresTotal += stats.ParseFailures
	}

	if finishErr := p.Store.Finish(ctx, path, outcome, stats); finishErr != nil {
		p.Log.Error("finish failed", obs.String("path", path), obs.Err(finishErr))
	}

	if outcome == statestore.OutcomeFailed {
		res.Failed = true
		res.Err = errStr(stats.Error)
		if p.Summary != nil {
			p.Summary.FilesFailed++
		}
		obs.FilesFailed.Inc()
	} else if p.Summary != nil {
		p.Summary.FilesCompleted++
		obs.FilesCompleted.Inc()
	}
	return res
}

// processDryRun implements --test: parse and enrich every line without
// ever touching the state store or the warehouse, per spec.md §6.1's
// "Dry run: parse+enrich, do not insert."
func (p *Processor) processDryRun(ctx context.Context, path string, opts ProcessOptions) FileResult {
	res := FileResult{Path: path}

	ls, err := openLineSource(path)
	if err != nil {
		res.Failed = true
		res.Err = err
		return res
	}
	defer ls.Close()

	for {
		select {
		case <-ctx.Done():
			res.Failed = true
			res.Err = errStr("cancelled")
			return res
		default:
		}
		if opts.LineLimit > 0 && int(res.RecordsIngested) >= opts.LineLimit {
			break
		}
		line, lineNo, ok := ls.Next()
		if !ok {
			break
		}
		res.BytesRead += int64(len(line)) + 1

		rec, failure := logline.Parse(line, logline.FormatUnknown, lineNo)
		if failure != nil {
			res.ParseFailures++
			continue
		}
		if rec == nil {
			continue
		}
		if rec.Status == "" {
			res.ParseFailures++
			continue
		}
		_ = enrich.Enrich(rec, p.EnrichCfg)
		res.RecordsIngested++
	}
	if err := ls.Err(); err != nil {
		res.Failed = true
		res.Err = err
	}
	return res
}

// stream iterates every line of path, parsing, enriching, batching, and
// flushing as it goes. It never buffers the whole file: lineSource
// streams through a bufio.Scanner, decompressing on the fly when gzipped.
func (p *Processor) stream(ctx context.Context, path, digest string, opts ProcessOptions) (statestore.Outcome, statestore.FinishStats) {
	ls, err := openLineSource(path)
	if err != nil {
		return statestore.OutcomeFailed, statestore.FinishStats{Error: err.Error()}
	}
	defer ls.Close()

	b := newBatch(p.BatchRows, p.BatchLines, p.FlushEvery)
	defer b.stop()

	var rawRows [][]any
	var stats statestore.FinishStats
	var byteOffset int64
	var lastFlushOffset int64
	var parseFailuresSinceFlush int64

	flush := func() error {
		rows := b.drain()
		if len(rows) == 0 && len(rawRows) == 0 {
			return nil
		}
		if err := p.flush(ctx, rawRows, rows); err != nil {
			return err
		}
		delta := statestore.StatsDelta{
			RecordsIngested: int64(len(rows)),
			ParseFailures:   parseFailuresSinceFlush,
			BytesRead:       byteOffset - lastFlushOffset,
		}
		if err := p.Store.Update(ctx, path, delta); err != nil {
			return err
		}
		stats.RecordsIngested += int64(len(rows))
		lastFlushOffset = byteOffset
		parseFailuresSinceFlush = 0
		rawRows = nil
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			stats.Error = "cancelled"
			return statestore.OutcomeFailed, stats
		default:
		}

		if opts.LineLimit > 0 && int(stats.RecordsIngested) >= opts.LineLimit {
			break
		}

		line, lineNo, ok := ls.Next()
		if !ok {
			break
		}
		byteOffset += int64(len(line)) + 1

		rec, failure := logline.Parse(line, logline.FormatUnknown, lineNo)
		if failure != nil {
			stats.ParseFailures++
			parseFailuresSinceFlush++
			obs.ParseFailures.Inc()
			p.Log.Debug("parse failure", obs.String("path", path), obs.Int("line", lineNo), obs.String("reason", failure.Reason))
			continue
		}
		if rec == nil {
			continue // blank or comment line, not a failure
		}
		if rec.Status == "" {
			// method+URI present but status absent: spec.md §3.1/§4.1 route
			// this to the failure marker rather than the warehouse.
			stats.ParseFailures++
			parseFailuresSinceFlush++
			obs.ParseFailures.Inc()
			p.Log.Debug("parse failure", obs.String("path", path), obs.Int("line", lineNo), obs.String("reason", "missing status"))
			continue
		}

		enriched := enrich.Enrich(rec, p.EnrichCfg)
		id := warehouse.RecordID(path, byteOffset, digest[:minInt(len(digest), 16)])
		enriched.ID = strconv.FormatUint(id, 10)

		rawRows = append(rawRows, rawRow(id, rec, path, byteOffset))
		b.add(enriched)

		if b.ready() || b.timerFired() {
			if err := flush(); err != nil {
				stats.Error = err.Error()
				return statestore.OutcomeFailed, stats
			}
		}
	}
	if err := ls.Err(); err != nil {
		stats.Error = err.Error()
		if ferr := flush(); ferr != nil && stats.Error == "" {
			stats.Error = ferr.Error()
		}
		return statestore.OutcomeFailed, stats
	}

	if err := flush(); err != nil {
		stats.Error = err.Error()
		return statestore.OutcomeFailed, stats
	}
	stats.BytesRead = byteOffset
	return statestore.OutcomeCompleted, stats
}

// flush inserts the accumulated rows into both warehouse tables, wrapped
// by the circuit breaker the same way the teacher wraps Redis calls in
// worker.go — a tripped breaker here means ProcessFile's caller should
// back off before claiming the next file.
func (p *Processor) flush(ctx context.Context, rawRows [][]any, enrRows []*enrich.EnrichedRecord) error {
	if !p.Breaker.Allow() {
		return errBreakerOpen
	}
	start := time.Now()

	if len(rawRows) > 0 {
		if _, err := p.Warehouse.Insert(ctx, warehouse.RawTable, warehouse.RawColumns, rawRows); err != nil {
			p.Breaker.Record(false)
			p.observeBreakerState()
			return err
		}
	}
	var enrichedRows [][]any
	for _, e := range enrRows {
		enrichedRows = append(enrichedRows, enrichedRow(e))
	}
	if len(enrichedRows) > 0 {
		if _, err := p.Warehouse.Insert(ctx, warehouse.EnrichedTable, warehouse.EnrichedColumns, enrichedRows); err != nil {
			p.Breaker.Record(false)
			p.observeBreakerState()
			return err
		}
	}
	p.Breaker.Record(true)
	p.observeBreakerState()
	obs.WarehouseInsertDuration.Observe(time.Since(start).Seconds())
	if p.Summary != nil {
		p.Summary.RecordFlush(int64(len(enrRows)))
		p.Summary.RecordsIngested += int64(len(enrRows))
	}
	obs.RecordsIngested.Add(float64(len(enrRows)))
	return nil
}

// observeBreakerState publishes the breaker's current state and, when it
// has just tripped open, increments the trip counter.
func (p *Processor) observeBreakerState() {
	state := p.Breaker.State()
	obs.CircuitBreakerState.Set(float64(state))
	if state == breaker.Open {
		obs.CircuitBreakerTrips.Inc()
	}
}

func rawRow(id uint64, r *logline.RawRecord, sourcePath string, sourceOffset int64) []any {
	return []any{
		id, r.Timestamp, r.ClientIP, r.Method, r.URI, r.Status, r.ServerName,
		r.UserAgent, r.Referer, r.TraceID,
		derefI64(r.ResponseBodySize), derefI64(r.TotalBytesSent), derefF64(r.TotalRequestDuration),
		sourcePath, sourceOffset,
	}
}

func enrichedRow(e *enrich.EnrichedRecord) []any {
	return []any{
		e.ID, e.Timestamp, e.ClientIP, e.Method, e.URI, e.Status, e.ServerName,
		e.UserAgent, e.Referer, e.TraceID, e.NormalizedURI, e.RefererDomain,
		e.EntrySource, e.Platform, e.PlatformVersion, e.DeviceType,
		e.BrowserType, e.OSType, e.BotType, e.APICategory, e.Application,
		e.BackendConnectPhase, e.BackendProcessPhase, e.BackendTransferPhase,
		e.BackendTotalPhase, e.NginxTransferPhase, e.NetworkPhase,
		e.ProcessingPhase, e.TransferPhase, e.BackendEfficiency,
		e.NetworkOverhead, e.TransferRatio, e.ConnectionCostRatio,
		e.ProcessingEfficiencyIndex, e.ResponseTransferSpeed,
		e.TotalTransferSpeed, e.NginxTransferSpeed, boolU8(e.IsSuccess), boolU8(e.IsSlow),
		boolU8(e.IsError), boolU8(e.HasAnomaly), boolU8(e.IsInternalIP), e.AnomalyType,
		e.DataQualityScore, e.Date, e.Hour, e.Minute, e.Second,
		e.ResponseBodySize, e.TotalBytesSent, e.TotalRequestDuration,
	}
}

func boolU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func derefI64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefF64(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// PastDatePartition reports whether dir (the file's containing directory
// name, expected to be a YYYY-MM-DD partition) is strictly before today,
// the signal stabilize uses to skip waiting on files nginx has already
// rotated away from.
func PastDatePartition(dir string, today time.Time) bool {
	base := filepath.Base(dir)
	return base != "" && base < today.Format("2006-01-02")
}

type procError string

func (e procError) Error() string { return string(e) }

var errBreakerOpen = procError("warehouse circuit breaker open")

func errNotStable(path string) error {
	return procError("file not stable after stabilize window: " + path)
}

func errStr(s string) error {
	if s == "" {
		return nil
	}
	return procError(s)
}
