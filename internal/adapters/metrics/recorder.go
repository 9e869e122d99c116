package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

type requestSample struct {
	at        time.Time
	status    int
	latencyMS float64
}

type countSample struct {
	at time.Time
}

// Recorder is the in-process metrics store: the request path records into
// it and the monitoring samplers read trailing-window aggregates back out.
// Samples older than maxAge are pruned on write.
type Recorder struct {
	mu           sync.Mutex
	requests     []requestSample
	taskFailures []countSample
	degradations []countSample
	retries      []countSample
	maxAge       time.Duration
	activeTasks  atomic.Int64
	nowFn        func() time.Time
}

func NewRecorder(maxAge time.Duration) *Recorder {
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	return &Recorder{
		maxAge: maxAge,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) RecordRequest(statusCode int, latency time.Duration) {
	now := r.nowFn()
	r.mu.Lock()
	r.requests = append(r.requests, requestSample{at: now, status: statusCode, latencyMS: float64(latency.Milliseconds())})
	r.prune(now)
	r.mu.Unlock()
}

// RecordTaskOutcome counts failed tasks toward the error-rate window;
// completed tasks are already visible through request metrics.
func (r *Recorder) RecordTaskOutcome(status string) {
	if status != domain.TaskStatusFailed {
		return
	}
	now := r.nowFn()
	r.mu.Lock()
	r.taskFailures = append(r.taskFailures, countSample{at: now})
	r.prune(now)
	r.mu.Unlock()
}

func (r *Recorder) RecordDegradation() {
	now := r.nowFn()
	r.mu.Lock()
	r.degradations = append(r.degradations, countSample{at: now})
	r.prune(now)
	r.mu.Unlock()
}

func (r *Recorder) RecordWebhookRetry() {
	now := r.nowFn()
	r.mu.Lock()
	r.retries = append(r.retries, countSample{at: now})
	r.prune(now)
	r.mu.Unlock()
}

func (r *Recorder) SetActiveTasks(n int64) {
	r.activeTasks.Store(n)
}

func (r *Recorder) WindowStats(window time.Duration) domain.MetricsWindow {
	since := r.nowFn().Add(-window)
	r.mu.Lock()
	defer r.mu.Unlock()

	out := domain.MetricsWindow{ActiveTasks: r.activeTasks.Load()}
	latencies := make([]float64, 0, len(r.requests))
	var latencySum float64
	for _, s := range r.requests {
		if s.at.Before(since) {
			continue
		}
		out.Requests++
		if s.status >= 500 {
			out.Errors++
		}
		latencies = append(latencies, s.latencyMS)
		latencySum += s.latencyMS
	}
	for _, s := range r.taskFailures {
		if !s.at.Before(since) {
			out.Errors++
		}
	}
	for _, s := range r.degradations {
		if !s.at.Before(since) {
			out.Degradations++
		}
	}
	for _, s := range r.retries {
		if !s.at.Before(since) {
			out.WebhookRetries++
		}
	}
	if len(latencies) > 0 {
		out.AvgLatencyMS = latencySum / float64(len(latencies))
		sort.Float64s(latencies)
		idx := int(float64(len(latencies))*0.95) - 1
		if idx < 0 {
			idx = 0
		}
		out.P95LatencyMS = latencies[idx]
	}
	return out
}

// prune drops samples past maxAge. Caller holds the lock.
func (r *Recorder) prune(now time.Time) {
	cutoff := now.Add(-r.maxAge)
	r.requests = pruneRequests(r.requests, cutoff)
	r.taskFailures = pruneCounts(r.taskFailures, cutoff)
	r.degradations = pruneCounts(r.degradations, cutoff)
	r.retries = pruneCounts(r.retries, cutoff)
}

func pruneRequests(in []requestSample, cutoff time.Time) []requestSample {
	idx := 0
	for idx < len(in) && in[idx].at.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return in
	}
	return append(in[:0], in[idx:]...)
}

func pruneCounts(in []countSample, cutoff time.Time) []countSample {
	idx := 0
	for idx < len(in) && in[idx].at.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return in
	}
	return append(in[:0], in[idx:]...)
}
