package domain

import (
	"time"
)

const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityHigh     = "high"
	AlertSeverityCritical = "critical"

	AlertTypeUsage        = "usage"
	AlertTypePerformance  = "performance"
	AlertTypeErrorRate    = "error_rate"
	AlertTypeSystemHealth = "system_health"
)

type Alert struct {
	AlertID   string         `json:"alert_id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EscalateSeverity grades an alert by how far the observed value exceeds its
// threshold: >2x critical, >1.5x high, otherwise the sampler's baseline.
func EscalateSeverity(baseline string, ratio float64) string {
	switch {
	case ratio > 2.0:
		return AlertSeverityCritical
	case ratio > 1.5:
		return AlertSeverityHigh
	default:
		return baseline
	}
}

// MetricsWindow is one trailing-window aggregate the samplers evaluate.
type MetricsWindow struct {
	Requests       int64   `json:"requests"`
	Errors         int64   `json:"errors"`
	Degradations   int64   `json:"degradations"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	P95LatencyMS   float64 `json:"p95_latency_ms"`
	ActiveTasks    int64   `json:"active_tasks"`
	WebhookRetries int64   `json:"webhook_retries"`
}
