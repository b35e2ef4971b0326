// Copyright 2025 James Ross
package logline

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// jsonAliases lists alternate JSONPath expressions tried when the direct
// map key used by the KV field table is absent from a JSON line — this is
// how the parser tolerates schema drift in JSON-formatted source logs
// without growing the canonical field table.
var jsonAliases = map[string][]string{
	"ar_time":                {"$.request_time", "$.requestTime"},
	"request_time":           {"$.ar_time"},
	"body":                   {"$.body_bytes", "$.body_bytes_sent"},
	"body_bytes":             {"$.body", "$.body_bytes_sent"},
	"agent":                  {"$.user_agent", "$.http_user_agent"},
	"remote_addr":            {"$.client_ip", "$.clientIP"},
	"http_referer":           {"$.referer"},
	"upstream_cache_status":  {"$.cache_status"},
}

// parseJSON decodes a flat JSON object into the same string-keyed map the
// KV tokenizer produces, so both formats share applyField/fieldTable.
// Numeric fields arriving as JSON numbers are coerced to their string form;
// nested values are stringified via their JSON encoding (diagnostics only).
func parseJSON(line []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = stringify(v)
	}
	// Fill gaps via jsonpath aliases for keys the field table expects but
	// this particular payload spelled differently.
	for canonical, paths := range jsonAliases {
		if _, ok := out[canonical]; ok {
			continue
		}
		for _, expr := range paths {
			v, err := jsonpath.Get(expr, raw)
			if err != nil {
				continue
			}
			out[canonical] = stringify(v)
			break
		}
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
