// Copyright 2025 James Ross
package logline

import (
	"strconv"
	"strings"
)

// parseFloatPtr parses a fractional-seconds value. "-" or empty means
// absent, never zero, per the spec's numeric-parsing edge policy.
func parseFloatPtr(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" || v == "-" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseIntPtr parses an integer byte/count value. "-" or empty means
// absent, never zero.
func parseIntPtr(v string) *int64 {
	v = strings.TrimSpace(v)
	if v == "" || v == "-" {
		return nil
	}
	// Numbers may arrive as JSON-coerced floats ("123.0"); tolerate that.
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return &i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		i := int64(f)
		return &i
	}
	return nil
}
