// Copyright 2025 James Ross
package batchproc

import (
	"context"
	"os"
	"time"
)

// stabilize records the file's size, waits window, and re-checks it,
// guarding against reading a partially-written log, per spec.md §4.5
// step 1. force and pastDatePartition both skip the wait entirely.
func stabilize(ctx context.Context, path string, window time.Duration, force, pastDatePartition bool) (bool, error) {
	if force || pastDatePartition || window <= 0 {
		return true, nil
	}

	before, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	after, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return before.Size() == after.Size(), nil
}
