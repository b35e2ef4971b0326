// Copyright 2025 James Ross
package logline

import "strings"

// fieldSetter applies a raw string value from either source format onto a
// RawRecord. Both the KV tokenizer and the JSON reader route every key
// through this single table so the two formats share one mapping contract.
type fieldSetter func(r *RawRecord, value string)

// fieldTable maps a source key (as it appears in either format) to the
// canonical field it populates. Unknown keys fall through to Extras.
var fieldTable = map[string]fieldSetter{
	"time":         func(r *RawRecord, v string) { r.TimestampRaw = v },
	"time_local":   func(r *RawRecord, v string) { r.TimestampRaw = v },
	"timestamp":    func(r *RawRecord, v string) { r.TimestampRaw = v },

	"remote_addr": func(r *RawRecord, v string) { r.ClientIP = v },
	"client_ip":   func(r *RawRecord, v string) { r.ClientIP = v },
	"remote_port": func(r *RawRecord, v string) { r.ClientPort = v },

	"request":      setRequestLine,
	"http_host":    func(r *RawRecord, v string) { r.ServerName = v },
	"server_name":  func(r *RawRecord, v string) { r.ServerName = v },
	"host":         func(r *RawRecord, v string) { r.ServerName = v },

	"status":      func(r *RawRecord, v string) { r.Status = normalizeStatus(v) },
	"http_status": func(r *RawRecord, v string) { r.Status = normalizeStatus(v) },

	"body":             func(r *RawRecord, v string) { r.ResponseBodySize = parseIntPtr(v) },
	"body_bytes":       func(r *RawRecord, v string) { r.ResponseBodySize = parseIntPtr(v) },
	"body_bytes_sent":  func(r *RawRecord, v string) { r.ResponseBodySize = parseIntPtr(v) },
	"bytes_sent":       func(r *RawRecord, v string) { r.TotalBytesSent = parseIntPtr(v) },

	"http_referer": func(r *RawRecord, v string) { r.Referer = v },
	"referer":      func(r *RawRecord, v string) { r.Referer = v },

	"agent":           func(r *RawRecord, v string) { r.UserAgent = v },
	"user_agent":      func(r *RawRecord, v string) { r.UserAgent = v },
	"http_user_agent": func(r *RawRecord, v string) { r.UserAgent = v },

	"upstream_addr":          func(r *RawRecord, v string) { r.UpstreamAddr = v },
	"upstream_connect_time":  func(r *RawRecord, v string) { r.UpstreamConnectTime = parseFloatPtr(v) },
	"upstream_header_time":   func(r *RawRecord, v string) { r.UpstreamHeaderTime = parseFloatPtr(v) },
	"upstream_response_time": func(r *RawRecord, v string) { r.UpstreamResponseTime = parseFloatPtr(v) },

	"ar_time":      func(r *RawRecord, v string) { r.TotalRequestDuration = parseFloatPtr(v) },
	"request_time": func(r *RawRecord, v string) { r.TotalRequestDuration = parseFloatPtr(v) },

	"query_string": func(r *RawRecord, v string) { r.QueryString = v },
	"args":         func(r *RawRecord, v string) { r.QueryString = v },

	"connection_requests": func(r *RawRecord, v string) { r.ConnectionRequests = parseIntPtr(v) },

	"trace_id":      func(r *RawRecord, v string) { r.TraceID = v },
	"business_sign": func(r *RawRecord, v string) { r.BusinessSign = v },
	"sign":          func(r *RawRecord, v string) { r.BusinessSign = v },
	"app":           func(r *RawRecord, v string) { r.Application = v },
	"application":   func(r *RawRecord, v string) { r.Application = v },
	"service_name":  func(r *RawRecord, v string) { r.Application = v },

	"cache_status":          func(r *RawRecord, v string) { r.CacheStatus = v },
	"upstream_cache_status": func(r *RawRecord, v string) { r.CacheStatus = v },

	"cluster_node": func(r *RawRecord, v string) { r.ClusterNode = v },
	"hostname":     func(r *RawRecord, v string) { r.ClusterNode = v },
}

// setRequestLine splits "METHOD URI HTTP/x.y" into its three canonical
// fields, stripping the query string into QueryString/URI separately.
func setRequestLine(r *RawRecord, v string) {
	r.FullURI = v
	parts := strings.Fields(v)
	if len(parts) >= 1 {
		r.Method = parts[0]
	}
	if len(parts) >= 2 {
		uri := parts[1]
		if i := strings.IndexByte(uri, '?'); i >= 0 {
			r.URI = uri[:i]
			if r.QueryString == "" {
				r.QueryString = uri[i+1:]
			}
		} else {
			r.URI = uri
		}
	}
	if len(parts) >= 3 {
		r.Protocol = parts[2]
	}
}

func applyField(r *RawRecord, key, value string) {
	if setter, ok := fieldTable[key]; ok {
		setter(r, value)
		return
	}
	if r.Extras == nil {
		r.Extras = make(map[string]string)
	}
	r.Extras[key] = value
}

func normalizeStatus(v string) string {
	v = strings.TrimSpace(v)
	if v == "-" {
		return ""
	}
	return v
}
