// Copyright 2025 James Ross
package adminops

import (
	"context"
	"sort"

	"github.com/flyingrobots/nginx-log-etl/internal/statestore"
)

// StatusResult summarizes C4 contents for the --status CLI flag, the
// ETL's analogue of internal/admin/admin.go's Stats: counts by terminal
// state plus the full in-progress set, instead of Redis LLEN/SCAN.
type StatusResult struct {
	Completed   int                    `json:"completed"`
	Failed      int                    `json:"failed"`
	InProgress  int                    `json:"in_progress"`
	Records     int64                  `json:"records_ingested"`
	ParseErrors int64                  `json:"parse_failures"`
	Unfinished  []statestore.FileState `json:"unfinished,omitempty"`
	Failures    []statestore.FileState `json:"failures,omitempty"`
}

// Status reports C4 contents for scope ("" = every file) without
// processing anything, per spec.md §6.1's `--status [--date D]`.
func Status(ctx context.Context, store statestore.Store, scope string) (StatusResult, error) {
	files, err := store.List(ctx, scope)
	if err != nil {
		return StatusResult{}, err
	}

	var res StatusResult
	for _, fs := range files {
		res.Records += fs.RecordsIngested
		res.ParseErrors += fs.ParseFailures
		switch fs.Status {
		case statestore.OutcomeCompleted:
			res.Completed++
		case statestore.OutcomeFailed:
			res.Failed++
			res.Failures = append(res.Failures, fs)
		default:
			res.InProgress++
			res.Unfinished = append(res.Unfinished, fs)
		}
	}
	sort.Slice(res.Unfinished, func(i, j int) bool { return res.Unfinished[i].Path < res.Unfinished[j].Path })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Path < res.Failures[j].Path })
	return res, nil
}

// ResetFailed transitions every failed FileState under scope back to
// pending, making it eligible for the next run to reclaim — spec.md
// §6.1's `--reset-failed [--date D]`.
func ResetFailed(ctx context.Context, store statestore.Store, scope string) (int, error) {
	return store.ResetFailed(ctx, scope)
}

// ListUnfinished exposes C4's in-progress set directly (claimed, never
// finished). Stale-claim reclaim and --status do not go through it.
func ListUnfinished(ctx context.Context, store statestore.Store) ([]statestore.FileState, error) {
	return store.ListUnfinished(ctx)
}
