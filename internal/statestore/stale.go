// Copyright 2025 James Ross
package statestore

import (
	"context"
	"time"

	"github.com/flyingrobots/nginx-log-etl/internal/obs"
	"go.uber.org/zap"
)

// StaleReclaimer periodically scans for in-progress claims whose last
// update predates staleAfter and releases them, directly adapted from
// internal/reaper/reaper.go's scanOnce ticker loop: where the teacher
// scans Redis processing lists for workers with an expired heartbeat key,
// this scans FileState rows for a claim with no recent Update call.
type StaleReclaimer struct {
	store      Store
	staleAfter time.Duration
	interval   time.Duration
	log        *zap.Logger
}

func NewStaleReclaimer(store Store, staleAfter, interval time.Duration, log *zap.Logger) *StaleReclaimer {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StaleReclaimer{store: store, staleAfter: staleAfter, interval: interval, log: log}
}

// Run blocks, scanning on each tick until ctx is cancelled.
func (r *StaleReclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *StaleReclaimer) scanOnce(ctx context.Context) {
	n, err := r.store.ReclaimStale(ctx, r.staleAfter)
	if err != nil {
		r.log.Warn("stale reclaim scan error", zap.Error(err))
		return
	}
	if n > 0 {
		obs.StaleFilesReclaimed.Add(float64(n))
		r.log.Warn("reclaimed stale in-progress files", zap.Int("count", n))
	}
}
