package application

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

// Threshold keys understood by SetThresholds, keyed by alert type except for
// the two system-health gauges.
const (
	ThresholdRequestsPerWindow = "usage_requests"
	ThresholdAvgLatencyMS      = "performance_avg_latency_ms"
	ThresholdErrorRate         = "error_rate"
	ThresholdActiveTasks       = "system_health_active_tasks"
	ThresholdDegradations      = "system_health_degradations"
)

// StartSamplers launches the four periodic samplers and blocks until the
// context ends. Each sampler skips its tick when the previous run is still in
// flight, so a slow metrics source never piles up goroutines.
func (s *Service) StartSamplers(ctx context.Context) {
	intervals := map[string]time.Duration{
		domain.AlertTypeUsage:        s.cfg.Monitoring.UsageInterval,
		domain.AlertTypePerformance:  s.cfg.Monitoring.PerformanceInterval,
		domain.AlertTypeErrorRate:    s.cfg.Monitoring.ErrorRateInterval,
		domain.AlertTypeSystemHealth: s.cfg.Monitoring.SystemHealthInterval,
	}
	for name, interval := range intervals {
		if interval <= 0 {
			interval = time.Minute
		}
		go s.runSampler(ctx, name, interval)
	}
	<-ctx.Done()
}

func (s *Service) runSampler(ctx context.Context, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		busy := s.samplerFlag(name)
		if !busy.CompareAndSwap(false, true) {
			s.logger.DebugContext(ctx, "sampler still running, skipping tick",
				"module", "monitoring",
				"operation", name,
				"outcome", "skipped",
			)
			continue
		}
		s.sampleOnce(ctx, name)
		busy.Store(false)
	}
}

func (s *Service) samplerFlag(name string) *atomic.Bool {
	v, _ := s.samplerBusy.LoadOrStore(name, &atomic.Bool{})
	return v.(*atomic.Bool)
}

// sampleOnce evaluates one sampler against the trailing metrics window and
// raises alerts for every threshold the window exceeds.
func (s *Service) sampleOnce(ctx context.Context, name string) {
	if s.source == nil {
		return
	}
	win := s.source.WindowStats(s.cfg.Monitoring.Window)

	switch name {
	case domain.AlertTypeUsage:
		s.evaluate(ctx, name, ThresholdRequestsPerWindow, float64(win.Requests), domain.AlertSeverityInfo, map[string]any{
			"requests": win.Requests,
		})
	case domain.AlertTypePerformance:
		s.evaluate(ctx, name, ThresholdAvgLatencyMS, win.AvgLatencyMS, domain.AlertSeverityWarning, map[string]any{
			"avg_latency_ms": win.AvgLatencyMS,
			"p95_latency_ms": win.P95LatencyMS,
		})
	case domain.AlertTypeErrorRate:
		var rate float64
		if win.Requests > 0 {
			rate = float64(win.Errors) / float64(win.Requests)
		}
		s.evaluate(ctx, name, ThresholdErrorRate, rate, domain.AlertSeverityWarning, map[string]any{
			"requests":   win.Requests,
			"errors":     win.Errors,
			"error_rate": rate,
		})
	case domain.AlertTypeSystemHealth:
		s.evaluate(ctx, name, ThresholdActiveTasks, float64(win.ActiveTasks), domain.AlertSeverityWarning, map[string]any{
			"active_tasks": win.ActiveTasks,
		})
		s.evaluate(ctx, name, ThresholdDegradations, float64(win.Degradations), domain.AlertSeverityWarning, map[string]any{
			"degradations":    win.Degradations,
			"webhook_retries": win.WebhookRetries,
		})
	}
}

func (s *Service) evaluate(ctx context.Context, alertType, thresholdKey string, value float64, baseline string, data map[string]any) {
	s.thresholdMu.RLock()
	threshold, ok := s.thresholds[thresholdKey]
	s.thresholdMu.RUnlock()
	if !ok || threshold <= 0 || value <= threshold {
		return
	}
	ratio := value / threshold
	data["threshold"] = threshold
	data["observed"] = value
	s.RaiseAlert(ctx, domain.Alert{
		Type:     alertType,
		Severity: domain.EscalateSeverity(baseline, ratio),
		Data:     data,
	})
}

// RaiseAlert stamps, stores and fans out one alert. Sink panics are contained
// so a misbehaving sink cannot take the sampler down.
func (s *Service) RaiseAlert(ctx context.Context, alert domain.Alert) {
	if alert.AlertID == "" {
		alert.AlertID = "alert-" + uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.nowFn()
	}
	if err := s.alerts.Append(ctx, alert); err != nil {
		s.logger.ErrorContext(ctx, "alert store append failed",
			"module", "monitoring",
			"operation", "raise_alert",
			"outcome", "failure",
			"alert_type", alert.Type,
			"error", err.Error(),
		)
	}
	s.logger.WarnContext(ctx, "alert raised",
		"module", "monitoring",
		"operation", "raise_alert",
		"outcome", "success",
		"alert_type", alert.Type,
		"severity", alert.Severity,
	)

	s.sinkMu.RLock()
	sinks := make([]ports.AlertSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.sinkMu.RUnlock()
	for _, sink := range sinks {
		s.deliverToSink(ctx, sink, alert)
	}
}

func (s *Service) deliverToSink(ctx context.Context, sink ports.AlertSink, alert domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "alert sink panicked",
				"module", "monitoring",
				"operation", "deliver_alert",
				"outcome", "failure",
				"alert_type", alert.Type,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sink(alert)
}

// AddSink registers an alert sink for all subsequently raised alerts.
func (s *Service) AddSink(sink ports.AlertSink) {
	s.sinkMu.Lock()
	s.sinks = append(s.sinks, sink)
	s.sinkMu.Unlock()
}

// ListAlerts returns recent alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.alerts.List(ctx, limit)
}

// SetThresholds replaces the given threshold entries at runtime. Admin only.
// Entries with value <= 0 disable that check.
func (s *Service) SetThresholds(actor Actor, updates map[string]float64) error {
	if !isAdminLike(actor) {
		return domain.ErrForbidden
	}
	if len(updates) == 0 {
		return domain.ErrInvalidInput
	}
	for key := range updates {
		if !isKnownThreshold(key) {
			return domain.ErrInvalidInput
		}
	}
	s.thresholdMu.Lock()
	for key, value := range updates {
		s.thresholds[key] = value
	}
	s.thresholdMu.Unlock()
	return nil
}

// Thresholds returns a copy of the current threshold table.
func (s *Service) Thresholds() map[string]float64 {
	s.thresholdMu.RLock()
	defer s.thresholdMu.RUnlock()
	out := make(map[string]float64, len(s.thresholds))
	for k, v := range s.thresholds {
		out[k] = v
	}
	return out
}

func isKnownThreshold(key string) bool {
	switch strings.TrimSpace(key) {
	case ThresholdRequestsPerWindow, ThresholdAvgLatencyMS, ThresholdErrorRate,
		ThresholdActiveTasks, ThresholdDegradations:
		return true
	default:
		return false
	}
}
