// Copyright 2025 James Ross
package enrich

import (
	"strconv"

	"github.com/flyingrobots/nginx-log-etl/internal/logline"
)

// Enrich derives an EnrichedRecord from a RawRecord, implementing
// spec.md §4.2 in full: URI normalization, platform/device/bot and API
// classification, HTTP phase decomposition, efficiency indicators,
// transfer speeds, flags, anomaly detection, and the quality score.
//
// Enrich is a pure function over its inputs; any panic here is treated as
// a bug and is NOT recovered (spec.md §7) — it is the caller's
// (internal/batchproc) responsibility to let it abort the file.
func Enrich(r *logline.RawRecord, cfg *Config) *EnrichedRecord {
	total := deref(r.TotalRequestDuration)
	p := decomposePhases(total, r.UpstreamConnectTime, r.UpstreamHeaderTime, r.UpstreamResponseTime)
	eff := computeEfficiency(total, p)

	respBodyKB := float64(derefInt(r.ResponseBodySize)) / 1024
	totalBytesKB := float64(derefInt(r.TotalBytesSent)) / 1024
	speeds := computeTransferSpeeds(respBodyKB, totalBytesKB, p, cfg.SpeedCapKBPerSec)

	normalizedURI := NormalizeURI(r.URI)
	platform, device, bot, osType, browserType, platformVersion := cfg.Rules.Classify(r.UserAgent)
	apiCategory := cfg.Rules.APICategory(normalizedURI)

	_, isSuccess := cfg.SuccessStatuses[r.Status]
	isError := isErrorStatus(r.Status)
	isSlow := total > cfg.SlowThresholdSec

	missingUpstreamOn2xx := isSuccess && r.UpstreamResponseTime == nil
	unknownPlatform := platform == "Unknown" && device != "bot"

	hasAnomaly := isSlow || isError || p.inconsistent || speeds.outlier
	anomalyType := ""
	switch {
	case p.inconsistent:
		anomalyType = "phase_inconsistency"
	case isSlow:
		anomalyType = "slow_request"
	case speeds.outlier:
		anomalyType = "speed_outlier"
	case isError:
		anomalyType = "http_error"
	}

	sameOrigin := r.Referer != "" && RefererDomain(r.Referer) == r.ServerName
	quality := qualityScore(r, sameOrigin, p.inconsistent, unknownPlatform, missingUpstreamOn2xx)

	e := &EnrichedRecord{
		Timestamp:     r.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
		ClientIP:      r.ClientIP,
		Method:        r.Method,
		URI:           r.URI,
		Status:        r.Status,
		ServerName:    r.ServerName,
		UserAgent:     r.UserAgent,
		Referer:       r.Referer,
		TraceID:       r.TraceID,
		NormalizedURI: normalizedURI,
		RefererDomain: RefererDomain(r.Referer),
		EntrySource:   entrySource(r.Referer, r.ServerName),

		Platform:        platform,
		PlatformVersion: platformVersion,
		DeviceType:      device,
		BrowserType:     browserType,
		OSType:          osType,
		BotType:         bot,

		APICategory: apiCategory,
		Application: r.Application,

		BackendConnectPhase:  p.backendConnect,
		BackendProcessPhase:  p.backendProcess,
		BackendTransferPhase: p.backendTransfer,
		BackendTotalPhase:    p.backendTotal,
		NginxTransferPhase:   p.nginxTransfer,
		NetworkPhase:         p.network,
		ProcessingPhase:      p.processing,
		TransferPhase:        p.transfer,

		BackendEfficiency:         eff.backendEfficiency,
		NetworkOverhead:           eff.networkOverhead,
		TransferRatio:             eff.transferRatio,
		ConnectionCostRatio:       eff.connectionCostRatio,
		ProcessingEfficiencyIndex: eff.processingEfficiencyIndex,

		ResponseTransferSpeed: speeds.response,
		TotalTransferSpeed:    speeds.total,
		NginxTransferSpeed:    speeds.nginx,

		IsSuccess:    isSuccess,
		IsSlow:       isSlow,
		IsError:      isError,
		HasAnomaly:   hasAnomaly,
		IsInternalIP: IsInternalIP(r.ClientIP),
		AnomalyType:  anomalyType,

		DataQualityScore: quality,

		Date:   r.Timestamp.Format("2006-01-02"),
		Hour:   r.Timestamp.Hour(),
		Minute: r.Timestamp.Minute(),
		Second: r.Timestamp.Second(),

		ResponseBodySize:     derefInt(r.ResponseBodySize),
		TotalBytesSent:       derefInt(r.TotalBytesSent),
		TotalRequestDuration: total,
	}
	return e
}

func isErrorStatus(status string) bool {
	if status == "" {
		return false
	}
	n, err := strconv.Atoi(status)
	if err != nil {
		return false
	}
	return n >= 400
}

func entrySource(referer, serverName string) string {
	if referer == "" {
		return "direct"
	}
	if RefererDomain(referer) == serverName {
		return "internal"
	}
	return "external"
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
