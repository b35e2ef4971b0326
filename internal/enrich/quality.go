// Copyright 2025 James Ross
package enrich

import "github.com/flyingrobots/nginx-log-etl/internal/logline"

// qualityScore implements spec.md §4.2's quality score: starts at 1.0,
// deducts for missing expected fields or detected inconsistencies, floors
// at 0.
func qualityScore(r *logline.RawRecord, sameOrigin bool, phaseInconsistent, unknownPlatform, missingUpstreamOn2xx bool) float64 {
	score := 1.0
	if r.UserAgent == "" {
		score -= 0.1
	}
	if r.Referer == "" && !sameOrigin {
		score -= 0.05
	}
	if missingUpstreamOn2xx {
		score -= 0.2
	}
	if phaseInconsistent {
		score -= 0.3
	}
	if unknownPlatform {
		score -= 0.05
	}
	if score < 0 {
		score = 0
	}
	return score
}
