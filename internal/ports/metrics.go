package ports

import (
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// MetricsRecorder receives observations from the request path and the task
// pipeline. Implementations must be safe for concurrent use and cheap enough
// to sit on the hot path.
type MetricsRecorder interface {
	RecordRequest(statusCode int, latency time.Duration)
	RecordTaskOutcome(status string)
	RecordDegradation()
	RecordWebhookRetry()
	SetActiveTasks(n int64)
}

// MetricsSource exposes trailing-window aggregates to the samplers.
type MetricsSource interface {
	WindowStats(window time.Duration) domain.MetricsWindow
}

// AlertSink receives every raised alert. Sinks run isolated: one failing or
// panicking sink never blocks the others.
type AlertSink func(domain.Alert)
