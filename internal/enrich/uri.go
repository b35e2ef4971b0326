// Copyright 2025 James Ross
package enrich

import (
	"net/url"
	"strconv"
	"strings"
)

// NormalizeURI strips the query string and collapses numeric and
// UUID-shaped path segments to {id}/{uuid} placeholders, preserving case,
// producing the aggregation key used by the warehouse's detail table.
func NormalizeURI(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	if decoded, err := url.PathUnescape(uri); err == nil {
		uri = decoded
	}
	segments := strings.Split(uri, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		switch {
		case isNumeric(seg):
			segments[i] = "{id}"
		case isUUID(seg):
			segments[i] = "{uuid}"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isUUID recognizes the canonical 8-4-4-4-12 hex-dashed shape.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(byte(c)) {
				return false
			}
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// RefererDomain extracts the host component of a referer URL, empty string
// when it cannot be parsed (absent, not zero-value host).
func RefererDomain(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	return u.Host
}
