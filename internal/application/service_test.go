package application

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

// In-memory test doubles for the service's ports.

type memTaskRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{rows: map[string]domain.Task{}}
}

func (r *memTaskRepo) CreateIfAbsent(_ context.Context, row domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.TaskID]; ok {
		return domain.ErrConflict
	}
	r.rows[row.TaskID] = row
	return nil
}

func (r *memTaskRepo) GetByID(_ context.Context, taskID string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *memTaskRepo) CompareAndSwapStatus(_ context.Context, taskID, expect string, upd ports.TaskUpdate) (domain.Task, error) {
	if !domain.CanTransition(expect, upd.Status) {
		return domain.Task{}, domain.ErrStaleTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	if row.Status != expect {
		return domain.Task{}, domain.ErrStaleTransition
	}
	row.Status = upd.Status
	row.UpdatedAt = upd.UpdatedAt
	if upd.ProviderTaskID != "" {
		row.ProviderTaskID = upd.ProviderTaskID
	}
	if upd.SubmittedAt != nil {
		row.SubmittedAt = upd.SubmittedAt
	}
	if upd.CompletedAt != nil {
		row.CompletedAt = upd.CompletedAt
	}
	if upd.FailedAt != nil {
		row.FailedAt = upd.FailedAt
	}
	if upd.Result != nil {
		row.Result = upd.Result
	}
	if upd.Error != nil {
		row.Error = upd.Error
	}
	r.rows[taskID] = row
	return row, nil
}

func (r *memTaskRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, row := range r.rows {
		if row.CreatedAt.Before(cutoff) {
			delete(r.rows, id)
			removed++
		}
	}
	return removed, nil
}

type memSubscriptionRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{rows: map[string]domain.Subscription{}}
}

func (r *memSubscriptionRepo) Create(_ context.Context, row domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.WebhookID]; ok {
		return domain.ErrConflict
	}
	r.rows[row.WebhookID] = row
	return nil
}

func (r *memSubscriptionRepo) GetByID(_ context.Context, webhookID string) (domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[webhookID]
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *memSubscriptionRepo) ListActiveForEvent(_ context.Context, event string) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Subscription
	for _, row := range r.rows {
		if row.WantsEvent(event) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WebhookID < out[j].WebhookID })
	return out, nil
}

type memDeliveryRepo struct {
	mu   sync.Mutex
	rows []domain.Delivery
}

func (r *memDeliveryRepo) Append(_ context.Context, row domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *memDeliveryRepo) ListByWebhook(_ context.Context, webhookID string, limit int) ([]domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Delivery
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].WebhookID == webhookID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

type memAlertRepo struct {
	mu       sync.Mutex
	rows     []domain.Alert
	capacity int
}

func (r *memAlertRepo) Append(_ context.Context, row domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	if r.capacity > 0 && len(r.rows) > r.capacity {
		r.rows = r.rows[len(r.rows)-r.capacity:]
	}
	return nil
}

func (r *memAlertRepo) List(_ context.Context, limit int) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.rows)
	if limit > n {
		limit = n
	}
	out := make([]domain.Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.rows[i])
	}
	return out, nil
}

// fakeCounterStore counts in memory and can be switched into failure mode to
// exercise fail-open behavior.
type fakeCounterStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	resets  map[string]time.Time
	failing bool
	err     error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: map[string]int64{}, resets: map[string]time.Time{}}
}

func (s *fakeCounterStore) IncrementWindow(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, time.Time{}, s.err
	}
	if _, ok := s.resets[key]; !ok {
		s.resets[key] = time.Now().UTC().Add(window)
	}
	s.counts[key]++
	return s.counts[key], s.resets[key], nil
}

type fakeBlockStore struct {
	mu      sync.Mutex
	rows    map[string]domain.BlockRecord
	failing bool
	err     error
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{rows: map[string]domain.BlockRecord{}}
}

func (s *fakeBlockStore) Put(_ context.Context, key string, rec domain.BlockRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return s.err
	}
	s.rows[key] = rec
	return nil
}

func (s *fakeBlockStore) Get(_ context.Context, key string) (*domain.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, s.err
	}
	rec, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

// fakeProvider is a scriptable adapter covering both the sync and async
// shapes.
type fakeProvider struct {
	name       string
	async      bool
	generateFn func(domain.GenerationSpec) (domain.TaskResult, error)
	submitFn   func(domain.GenerationSpec) (string, error)
	pollFn     func(string) (domain.ProviderTaskStatus, error)
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Async() bool  { return p.async }

func (p *fakeProvider) Generate(_ context.Context, spec domain.GenerationSpec) (domain.TaskResult, error) {
	return p.generateFn(spec)
}

func (p *fakeProvider) SubmitAsync(_ context.Context, spec domain.GenerationSpec) (string, error) {
	return p.submitFn(spec)
}

func (p *fakeProvider) PollTask(_ context.Context, providerTaskID string) (domain.ProviderTaskStatus, error) {
	return p.pollFn(providerTaskID)
}

type captureDispatcher struct {
	mu     sync.Mutex
	events []domain.WebhookEvent
	subs   []domain.Subscription
}

func (d *captureDispatcher) Dispatch(_ context.Context, sub domain.Subscription, event domain.WebhookEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, sub)
	d.events = append(d.events, event)
}

type countingMetrics struct {
	mu           sync.Mutex
	degradations int
	retries      int
	outcomes     map[string]int
	activeTasks  int64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[string]int{}}
}

func (m *countingMetrics) RecordRequest(int, time.Duration) {}

func (m *countingMetrics) RecordTaskOutcome(status string) {
	m.mu.Lock()
	m.outcomes[status]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordDegradation() {
	m.mu.Lock()
	m.degradations++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordWebhookRetry() {
	m.mu.Lock()
	m.retries++
	m.mu.Unlock()
}

func (m *countingMetrics) SetActiveTasks(n int64) {
	m.mu.Lock()
	m.activeTasks = n
	m.mu.Unlock()
}

type staticSource struct {
	win domain.MetricsWindow
}

func (s *staticSource) WindowStats(time.Duration) domain.MetricsWindow { return s.win }

type testEnv struct {
	svc        *Service
	tasks      *memTaskRepo
	subs       *memSubscriptionRepo
	deliveries *memDeliveryRepo
	alerts     *memAlertRepo
	counters   *fakeCounterStore
	blocks     *fakeBlockStore
	dispatcher *captureDispatcher
	metrics    *countingMetrics
	source     *staticSource
	provider   *fakeProvider
}

func newTestEnv(cfg Config, provider *fakeProvider) *testEnv {
	env := &testEnv{
		tasks:      newMemTaskRepo(),
		subs:       newMemSubscriptionRepo(),
		deliveries: &memDeliveryRepo{},
		alerts:     &memAlertRepo{capacity: 100},
		counters:   newFakeCounterStore(),
		blocks:     newFakeBlockStore(),
		dispatcher: &captureDispatcher{},
		metrics:    newCountingMetrics(),
		source:     &staticSource{},
		provider:   provider,
	}
	selector := func(taskType string) (ports.ProviderAdapter, error) {
		if provider == nil || !domain.IsValidTaskType(taskType) {
			return nil, domain.ErrInvalidInput
		}
		return provider, nil
	}
	env.svc = NewService(Dependencies{
		Config:        cfg,
		Logger:        slog.Default(),
		Tasks:         env.tasks,
		Subscriptions: env.subs,
		Deliveries:    env.deliveries,
		Alerts:        env.alerts,
		Counters:      env.counters,
		Blocks:        env.blocks,
		Providers:     selector,
		Dispatcher:    env.dispatcher,
		Metrics:       env.metrics,
		Source:        env.source,
	})
	return env
}
