// Copyright 2025 James Ross
package warehouse

import "fmt"

// RawTable and EnrichedTable are the two tables the ETL bootstraps, per
// spec.md §6: the warehouse itself is an external collaborator, but a
// fresh instance must be bootstrappable from nothing but this binary.
const (
	RawTable      = "nginx_access_raw"
	EnrichedTable = "nginx_access_enriched"
)

// BootstrapDDL returns the two CREATE TABLE statements (raw and enriched)
// for database, generalized from clickhouse_exporter.go's ensureTable to
// the wide (51-column) enriched-detail layout chosen in DESIGN.md Open
// Question 2. No materialized views are created.
func BootstrapDDL(database string) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.%s (
				id UInt64,
				ts DateTime64(3),
				client_ip String,
				method LowCardinality(String),
				uri String,
				status LowCardinality(String),
				server_name LowCardinality(String),
				user_agent String,
				referer String,
				trace_id String,
				response_body_size UInt64,
				total_bytes_sent UInt64,
				total_request_duration Float64,
				source_path String,
				source_offset UInt64
			) ENGINE = ReplacingMergeTree()
			PARTITION BY toYYYYMMDD(ts)
			ORDER BY (id)
			SETTINGS index_granularity = 8192
		`, database, RawTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.%s (
				id UInt64,
				ts DateTime64(3),
				client_ip String,
				method LowCardinality(String),
				uri String,
				status LowCardinality(String),
				server_name LowCardinality(String),
				user_agent String,
				referer String,
				trace_id String,
				normalized_uri String,
				referer_domain String,
				entry_source LowCardinality(String),
				platform LowCardinality(String),
				platform_version String,
				device_type LowCardinality(String),
				browser_type LowCardinality(String),
				os_type LowCardinality(String),
				bot_type LowCardinality(String),
				api_category LowCardinality(String),
				application LowCardinality(String),
				backend_connect_phase Float64,
				backend_process_phase Float64,
				backend_transfer_phase Float64,
				backend_total_phase Float64,
				nginx_transfer_phase Float64,
				network_phase Float64,
				processing_phase Float64,
				transfer_phase Float64,
				backend_efficiency Float64,
				network_overhead Float64,
				transfer_ratio Float64,
				connection_cost_ratio Float64,
				processing_efficiency_index Float64,
				response_transfer_speed Float64,
				total_transfer_speed Float64,
				nginx_transfer_speed Float64,
				is_success UInt8,
				is_slow UInt8,
				is_error UInt8,
				has_anomaly UInt8,
				is_internal_ip UInt8,
				anomaly_type LowCardinality(String),
				data_quality_score Float64,
				date Date,
				hour UInt8,
				minute UInt8,
				second UInt8,
				response_body_size UInt64,
				total_bytes_sent UInt64,
				total_request_duration Float64
			) ENGINE = ReplacingMergeTree()
			PARTITION BY toYYYYMM(date)
			ORDER BY (date, server_name, id)
			SETTINGS index_granularity = 8192
		`, database, EnrichedTable),
	}
}

// RawColumns and EnrichedColumns list the columns in insert order,
// matching BootstrapDDL exactly — the insert path's columns and the DDL's
// column list must never drift independently.
var RawColumns = []string{
	"id", "ts", "client_ip", "method", "uri", "status", "server_name",
	"user_agent", "referer", "trace_id", "response_body_size",
	"total_bytes_sent", "total_request_duration", "source_path", "source_offset",
}

var EnrichedColumns = []string{
	"id", "ts", "client_ip", "method", "uri", "status", "server_name",
	"user_agent", "referer", "trace_id", "normalized_uri", "referer_domain",
	"entry_source", "platform", "platform_version", "device_type",
	"browser_type", "os_type", "bot_type", "api_category", "application",
	"backend_connect_phase", "backend_process_phase", "backend_transfer_phase",
	"backend_total_phase", "nginx_transfer_phase", "network_phase",
	"processing_phase", "transfer_phase", "backend_efficiency",
	"network_overhead", "transfer_ratio", "connection_cost_ratio",
	"processing_efficiency_index", "response_transfer_speed",
	"total_transfer_speed", "nginx_transfer_speed", "is_success", "is_slow",
	"is_error", "has_anomaly", "is_internal_ip", "anomaly_type",
	"data_quality_score", "date", "hour", "minute", "second",
	"response_body_size", "total_bytes_sent", "total_request_duration",
}

// DescribeColumns reports whether database already has a narrower
// enriched table than EnrichedColumns — the Open-Question fallback path:
// when an operator's pre-existing warehouse predates the wide layout, the
// client logs a warning and writes only the subset both sides agree on,
// rather than failing outright.
func DescribeColumns(existing []string, wanted []string) (subset []string, narrowed bool) {
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}
	for _, c := range wanted {
		if _, ok := have[c]; ok {
			subset = append(subset, c)
		}
	}
	return subset, len(subset) < len(wanted)
}
