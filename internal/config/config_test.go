// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("WORKER_COUNT")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Count != 6 {
		t.Fatalf("expected default worker count 6, got %d", cfg.Worker.Count)
	}
	if cfg.Warehouse.Host == "" {
		t.Fatalf("expected default warehouse host")
	}
	if cfg.StateStore.Path != "./logs/.processing-state.json" {
		t.Fatalf("expected derived state store path, got %q", cfg.StateStore.Path)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Count = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for worker.count < 1")
	}
	cfg = defaultConfig()
	cfg.Worker.HeartbeatTTL = 3 * 1e9 // 3s
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for heartbeat ttl < 5s")
	}
	cfg = defaultConfig()
	cfg.Batch.Size = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for batch.size < 1")
	}
	cfg = defaultConfig()
	cfg.StateStore.Backend = "mongo"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unknown state store backend")
	}
}
