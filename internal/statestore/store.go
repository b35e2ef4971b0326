// Copyright 2025 James Ross
package statestore

import (
	"context"
	"time"
)

// Store is the contract C4 exposes to the rest of the ETL, per spec.md
// §4.4: claim, update, finish, list_unfinished, reset_failed. Two
// backends implement it — jsonstore (default) and sqlitestore
// (--state-backend sqlite).
type Store interface {
	// Claim attempts to take ownership of path for workerID. cheapHash is
	// the caller's (size, mtime, path) digest. The content hash is not part
	// of the claim; the caller records it afterwards via SetContentHash.
	Claim(ctx context.Context, path, workerID, cheapHash string) (ClaimResult, error)

	// Update applies an incremental accounting delta to an in-progress
	// claim, persisting before returning (durability-before-ack, per
	// spec.md §4.4).
	Update(ctx context.Context, path string, delta StatsDelta) error

	// Finish records the terminal outcome for path, ending any claim.
	Finish(ctx context.Context, path string, outcome Outcome, stats FinishStats) error

	// SetContentHash records the full content digest computed on first
	// claim, so subsequent runs can compare cheap hashes first and only
	// recompute the digest on mismatch.
	SetContentHash(ctx context.Context, path, contentHash string) error

	// ListUnfinished returns every FileState whose Status is empty
	// (claimed but never finished). The stale-claim reclaimer uses
	// ReclaimStale, not this method.
	ListUnfinished(ctx context.Context) ([]FileState, error)

	// List returns every FileState regardless of status, optionally
	// restricted to paths with the given prefix (empty scope = all),
	// for --status reporting.
	List(ctx context.Context, scope string) ([]FileState, error)

	// ResetFailed clears the terminal state for every file under scope
	// whose Status is failed, making it eligible for reclaim. Returns the
	// count reset.
	ResetFailed(ctx context.Context, scope string) (int, error)

	// Get returns the current FileState for path, or ok=false if unknown.
	Get(ctx context.Context, path string) (FileState, bool, error)

	// ReclaimStale clears ClaimedBy on every in-progress FileState whose
	// UpdatedAt is older than staleAfter, making the path eligible for a
	// fresh Claim. Returns the count reclaimed.
	ReclaimStale(ctx context.Context, staleAfter time.Duration) (int, error)

	Close() error
}
