// Copyright 2025 James Ross
package discovery

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNextIntervalFuncPlainInterval(t *testing.T) {
	d := &Daemon{RefreshEvery: 5 * time.Minute}
	next, err := d.nextIntervalFunc()
	if err != nil {
		t.Fatalf("nextIntervalFunc: %v", err)
	}
	if got := next(); got != 5*time.Minute {
		t.Fatalf("expected 5m interval, got %v", got)
	}
}

func TestNextIntervalFuncDefaultsWhenUnset(t *testing.T) {
	d := &Daemon{}
	next, err := d.nextIntervalFunc()
	if err != nil {
		t.Fatalf("nextIntervalFunc: %v", err)
	}
	if got := next(); got != time.Minute {
		t.Fatalf("expected default 1m interval, got %v", got)
	}
}

func TestNextIntervalFuncCronExpression(t *testing.T) {
	d := &Daemon{RefreshCron: "*/5 * * * *"}
	next, err := d.nextIntervalFunc()
	if err != nil {
		t.Fatalf("nextIntervalFunc: %v", err)
	}
	wait := next()
	if wait <= 0 || wait > 5*time.Minute {
		t.Fatalf("expected wait within (0, 5m], got %v", wait)
	}
}

func TestNextIntervalFuncRejectsInvalidCron(t *testing.T) {
	d := &Daemon{RefreshCron: "not a cron expression"}
	if _, err := d.nextIntervalFunc(); err == nil {
		t.Fatalf("expected error for invalid --refresh-cron")
	}
}

func TestAcquireLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.lock")

	unlock1, err := acquireLock(path)
	if err != nil {
		t.Fatalf("first acquireLock: %v", err)
	}

	if _, err := acquireLock(path); err == nil {
		t.Fatalf("expected second acquireLock to fail while first holds the lock")
	}

	unlock1()

	unlock2, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock after release: %v", err)
	}
	unlock2()
}

func TestAcquireLockEmptyPathIsNoop(t *testing.T) {
	unlock, err := acquireLock("")
	if err != nil {
		t.Fatalf("acquireLock(\"\"): %v", err)
	}
	unlock()
}
