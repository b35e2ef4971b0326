// Copyright 2025 James Ross
package enrich

import (
	"testing"
	"time"

	"github.com/flyingrobots/nginx-log-etl/internal/logline"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func testConfig(t *testing.T) *Config {
	t.Helper()
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	return NewConfig([]string{"200", "201", "202", "204", "206", "301", "302", "304"}, 3.0, 1024*1024, rules)
}

func baseRecord() *logline.RawRecord {
	return &logline.RawRecord{
		Timestamp:            time.Date(2026, 7, 31, 10, 15, 30, 0, time.UTC),
		ClientIP:             "203.0.113.7",
		Method:               "GET",
		URI:                  "/api/v1/users/42",
		Status:               "200",
		ServerName:           "api.example.com",
		UserAgent:            "zgt-ios/1.4.1",
		Referer:              "",
		ResponseBodySize:     i64(2048),
		TotalBytesSent:       i64(2200),
		UpstreamConnectTime:  f64(0.001),
		UpstreamHeaderTime:   f64(0.050),
		UpstreamResponseTime: f64(0.060),
		TotalRequestDuration: f64(0.065),
	}
}

func TestEnrichHappyPath(t *testing.T) {
	cfg := testConfig(t)
	e := Enrich(baseRecord(), cfg)

	if e.NormalizedURI != "/api/v1/users/{id}" {
		t.Fatalf("NormalizedURI = %q", e.NormalizedURI)
	}
	if e.Platform != "iOS" {
		t.Fatalf("Platform = %q, want iOS", e.Platform)
	}
	if e.APICategory != "business" {
		t.Fatalf("APICategory = %q, want business", e.APICategory)
	}
	if !e.IsSuccess || e.IsSlow || e.IsError || e.HasAnomaly {
		t.Fatalf("unexpected flags: success=%v slow=%v error=%v anomaly=%v", e.IsSuccess, e.IsSlow, e.IsError, e.HasAnomaly)
	}
	if e.DataQualityScore != 0.95 {
		t.Fatalf("DataQualityScore = %v, want 0.95 (no referer)", e.DataQualityScore)
	}
	if e.OSType != "iOS" {
		t.Fatalf("OSType = %q, want iOS", e.OSType)
	}
	if e.BrowserType != "app" {
		t.Fatalf("BrowserType = %q, want app", e.BrowserType)
	}
	if e.PlatformVersion != "1.4.1" {
		t.Fatalf("PlatformVersion = %q, want 1.4.1", e.PlatformVersion)
	}
}

func TestEnrichDesktopBrowserClassification(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	r.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	e := Enrich(r, cfg)
	if e.Platform != "Windows" || e.OSType != "Windows" {
		t.Fatalf("Platform/OSType = %q/%q, want Windows/Windows", e.Platform, e.OSType)
	}
	if e.BrowserType != "Chrome" {
		t.Fatalf("BrowserType = %q, want Chrome", e.BrowserType)
	}
	if e.PlatformVersion != "10.0" {
		t.Fatalf("PlatformVersion = %q, want 10.0", e.PlatformVersion)
	}
}

func TestEnrichUnknownUserAgentYieldsUnknownClassification(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	r.UserAgent = "some-custom-http-client/3.0"

	e := Enrich(r, cfg)
	if e.Platform != "Unknown" || e.OSType != "Unknown" || e.BrowserType != "Unknown" {
		t.Fatalf("expected Unknown classification, got platform=%q os=%q browser=%q", e.Platform, e.OSType, e.BrowserType)
	}
	if e.PlatformVersion != "" {
		t.Fatalf("PlatformVersion = %q, want empty", e.PlatformVersion)
	}
}

func TestEnrichSlowRequestFlag(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	r.TotalRequestDuration = f64(4.2)
	r.UpstreamResponseTime = f64(4.1)
	r.UpstreamHeaderTime = f64(4.0)

	e := Enrich(r, cfg)
	if !e.IsSlow {
		t.Fatal("expected IsSlow = true for a 4.2s request against a 3s threshold")
	}
	if !e.HasAnomaly {
		t.Fatal("expected HasAnomaly = true when IsSlow")
	}
	if e.AnomalyType != "slow_request" {
		t.Fatalf("AnomalyType = %q, want slow_request", e.AnomalyType)
	}
}

func TestEnrichPhaseInconsistencyClampsAndDegradesQuality(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	// Clock skew: upstream_header_time > upstream_response_time is impossible
	// in a well-formed log but must not go negative here.
	r.UpstreamConnectTime = f64(0.01)
	r.UpstreamHeaderTime = f64(0.09)
	r.UpstreamResponseTime = f64(0.05)
	r.TotalRequestDuration = f64(0.10)

	e := Enrich(r, cfg)
	if e.BackendTransferPhase != 0 {
		t.Fatalf("BackendTransferPhase = %v, want clamped to 0", e.BackendTransferPhase)
	}
	if !e.HasAnomaly || e.AnomalyType != "phase_inconsistency" {
		t.Fatalf("expected phase_inconsistency anomaly, got anomaly=%v type=%q", e.HasAnomaly, e.AnomalyType)
	}
	if e.DataQualityScore > 0.7 {
		t.Fatalf("DataQualityScore = %v, want <= 0.7 after phase-inconsistency deduction", e.DataQualityScore)
	}
}

func TestEnrichErrorStatusNeverSuccess(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	r.Status = "503"
	r.UpstreamResponseTime = nil

	e := Enrich(r, cfg)
	if e.IsSuccess {
		t.Fatal("503 must not be IsSuccess")
	}
	if !e.IsError {
		t.Fatal("503 must be IsError")
	}
	if !e.HasAnomaly {
		t.Fatal("503 must set HasAnomaly")
	}
}

func TestEnrichMissingTotalDurationYieldsZeroEfficiency(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	r.TotalRequestDuration = nil
	r.UpstreamConnectTime = nil
	r.UpstreamHeaderTime = nil
	r.UpstreamResponseTime = nil

	e := Enrich(r, cfg)
	if e.BackendEfficiency != 0 || e.ProcessingEfficiencyIndex != 0 {
		t.Fatalf("expected zero-value efficiency for a missing total duration, got %+v", e)
	}
}

func TestEnrichInternalIPAndDirectEntry(t *testing.T) {
	cfg := testConfig(t)
	r := baseRecord()
	r.ClientIP = "10.1.2.3"
	r.Referer = ""

	e := Enrich(r, cfg)
	if !e.IsInternalIP {
		t.Fatal("expected IsInternalIP = true for 10.1.2.3")
	}
	if e.EntrySource != "direct" {
		t.Fatalf("EntrySource = %q, want direct", e.EntrySource)
	}
}
