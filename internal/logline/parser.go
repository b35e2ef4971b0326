// Copyright 2025 James Ross
package logline

import (
	"fmt"
	"strings"
	"time"
)

// timeLayouts are tried in order against the "time" field's raw value.
// The canonical layout is ISO-8601 with a numeric timezone offset; a small
// number of nginx-community variants are tolerated as well.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"02/Jan/2006:15:04:05 -0700",
}

// Parse turns one log line into a RawRecord, or reports why it could not.
// It never panics: a recovered internal panic becomes a ParseFailure, since
// malformed input is expected and must not crash the file's worker (per
// spec.md §7 — unlike enrichment panics, which are treated as bugs).
func Parse(line string, hint LineFormat, lineNo int) (rec *RawRecord, failure *ParseFailure) {
	defer func() {
		if p := recover(); p != nil {
			rec = nil
			failure = &ParseFailure{Line: truncate(line, 200), LineNo: lineNo, Reason: fmt.Sprintf("panic: %v", p)}
		}
	}()

	trimmed := strings.TrimSpace(line)
	if len(trimmed) <= 1 {
		return nil, nil // skip silently, not counted as a failure
	}
	if strings.HasPrefix(trimmed, "#") {
		return nil, nil // comment marker
	}

	var fields map[string]string
	switch hint {
	case FormatJSON:
		m, err := parseJSON([]byte(trimmed))
		if err != nil {
			return nil, &ParseFailure{Line: truncate(trimmed, 200), LineNo: lineNo, Reason: "invalid json: " + err.Error()}
		}
		fields = m
	case FormatKV:
		fields = parseKV(trimmed)
	default:
		// Sniff: JSON lines start with '{'.
		if strings.HasPrefix(trimmed, "{") {
			m, err := parseJSON([]byte(trimmed))
			if err != nil {
				return nil, &ParseFailure{Line: truncate(trimmed, 200), LineNo: lineNo, Reason: "invalid json: " + err.Error()}
			}
			fields = m
		} else {
			fields = parseKV(trimmed)
		}
	}

	r := &RawRecord{}
	for k, v := range fields {
		applyField(r, strings.ToLower(k), v)
	}

	if r.TimestampRaw == "" {
		return nil, &ParseFailure{Line: truncate(trimmed, 200), LineNo: lineNo, Reason: "missing timestamp"}
	}
	ts, ok := parseTimestamp(r.TimestampRaw)
	if !ok {
		return nil, &ParseFailure{Line: truncate(trimmed, 200), LineNo: lineNo, Reason: "unparseable timestamp: " + r.TimestampRaw}
	}
	r.Timestamp = ts

	// Missing status with method+URI present is not a parse failure: the
	// record is produced with an absent status and the batch processor
	// counts it as a parse failure (spec.md §4.1 edge policy).
	return r, nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
