// Copyright 2025 James Ross
package logline

import "testing"

func TestParseKVHappyPath(t *testing.T) {
	line := `time:"2025-08-29T07:15:37+08:00" remote_addr:"10.0.0.1" request:"GET /api/v1/users?id=42 HTTP/1.1" status:"200" body:"123" ar_time:"0.150" upstream_response_time:"0.140" upstream_header_time:"0.130" upstream_connect_time:"0.010" agent:"zgt-ios/1.4.1"`
	rec, fail := Parse(line, FormatKV, 1)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if rec.Status != "200" {
		t.Fatalf("expected status 200, got %q", rec.Status)
	}
	if rec.URI != "/api/v1/users" {
		t.Fatalf("expected uri stripped of query, got %q", rec.URI)
	}
	if rec.QueryString != "id=42" {
		t.Fatalf("expected query string id=42, got %q", rec.QueryString)
	}
	if rec.UserAgent != "zgt-ios/1.4.1" {
		t.Fatalf("expected agent preserved, got %q", rec.UserAgent)
	}
	if rec.TotalRequestDuration == nil || *rec.TotalRequestDuration != 0.150 {
		t.Fatalf("expected total request duration 0.150, got %v", rec.TotalRequestDuration)
	}
}

func TestParseMalformedLine(t *testing.T) {
	rec, fail := Parse("not a log", FormatKV, 2)
	if rec != nil {
		t.Fatalf("expected nil record")
	}
	if fail == nil {
		t.Fatalf("expected parse failure")
	}
	if fail.Reason != "missing timestamp" {
		t.Fatalf("expected missing timestamp reason, got %q", fail.Reason)
	}
}

func TestParseEmptyAndCommentLinesSkippedSilently(t *testing.T) {
	for _, line := range []string{"", " ", "#comment"} {
		rec, fail := Parse(line, FormatKV, 3)
		if rec != nil || fail != nil {
			t.Fatalf("expected silent skip for %q, got rec=%v fail=%v", line, rec, fail)
		}
	}
}

func TestParseJSONWithAliasFallback(t *testing.T) {
	line := `{"time":"2025-08-29T07:15:37+08:00","remote_addr":"10.0.0.1","request":"GET /healthz HTTP/1.1","status":"200","request_time":0.05}`
	rec, fail := Parse(line, FormatJSON, 4)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if rec.TotalRequestDuration == nil || *rec.TotalRequestDuration != 0.05 {
		t.Fatalf("expected aliased request_time to populate duration, got %v", rec.TotalRequestDuration)
	}
}

func TestDashIsAbsentNotZero(t *testing.T) {
	line := `time:"2025-08-29T07:15:37+08:00" request:"GET / HTTP/1.1" status:"200" body:"-" upstream_response_time:"-"`
	rec, fail := Parse(line, FormatKV, 5)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if rec.ResponseBodySize != nil {
		t.Fatalf("expected nil body size for '-', got %v", *rec.ResponseBodySize)
	}
	if rec.UpstreamResponseTime != nil {
		t.Fatalf("expected nil upstream response time for '-', got %v", *rec.UpstreamResponseTime)
	}
}

func TestMissingStatusStillParses(t *testing.T) {
	line := `time:"2025-08-29T07:15:37+08:00" request:"GET /x HTTP/1.1"`
	rec, fail := Parse(line, FormatKV, 6)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if rec.Status != "" {
		t.Fatalf("expected empty status, got %q", rec.Status)
	}
}

func TestDuplicateKeysLastWins(t *testing.T) {
	line := `time:"2025-08-29T07:15:37+08:00" status:"200" status:"404"`
	rec, fail := Parse(line, FormatKV, 7)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if rec.Status != "404" {
		t.Fatalf("expected last status to win, got %q", rec.Status)
	}
}
