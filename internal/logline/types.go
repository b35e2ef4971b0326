// Copyright 2025 James Ross
package logline

import "time"

// LineFormat identifies which tokenizer Parse should use.
type LineFormat int

const (
	FormatUnknown LineFormat = iota
	FormatKV
	FormatJSON
)

// RawRecord is the normalized union of fields the parser recognizes.
// Missing fields are represented as absent (nil pointer or empty string),
// never as zero, per the spec's field-presence invariant.
type RawRecord struct {
	Timestamp    time.Time
	TimestampRaw string

	ClientIP   string
	ClientPort string

	Method   string
	URI      string
	FullURI  string
	Protocol string

	Status string // kept as a string throughout, see DESIGN.md Open Question 1

	ResponseBodySize *int64
	TotalBytesSent   *int64

	Referer   string
	UserAgent string

	UpstreamAddr         string
	UpstreamConnectTime  *float64
	UpstreamHeaderTime   *float64
	UpstreamResponseTime *float64
	TotalRequestDuration *float64

	QueryString        string
	ServerName         string
	ConnectionRequests *int64

	TraceID      string
	BusinessSign string
	Application  string
	CacheStatus  string
	ClusterNode  string

	// Extras holds unrecognized keys for diagnostics only; never required.
	Extras map[string]string
}

// ParseFailure describes a line that could not be turned into a RawRecord.
type ParseFailure struct {
	Line   string
	LineNo int
	Reason string
}
