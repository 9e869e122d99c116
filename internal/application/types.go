package application

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

type RateLimitConfig struct {
	// Window is the fixed window for per-endpoint-class buckets.
	Window time.Duration
	// TierBasePoints is the per-window allotment for a network-address
	// identity; user identities get 2x, api keys 3x.
	TierBasePoints map[string]int64
	// GlobalWindow/GlobalCeiling bound total traffic across all endpoint
	// classes, so hopping classes cannot evade per-class budgets.
	GlobalWindow  time.Duration
	GlobalCeiling int64
	DefaultTier   string
	// APIKeyTiers maps known api key values onto tiers; unknown keys fall
	// back to DefaultTier.
	APIKeyTiers map[string]string
}

type PollerConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

type RetentionConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

type MonitoringConfig struct {
	Window               time.Duration
	UsageInterval        time.Duration
	PerformanceInterval  time.Duration
	ErrorRateInterval    time.Duration
	SystemHealthInterval time.Duration
	// Thresholds keys are the alert type constants in domain.
	Thresholds map[string]float64
}

type Config struct {
	ServiceName string
	Version     string
	RateLimit   RateLimitConfig
	Poller      PollerConfig
	Retention   RetentionConfig
	Monitoring  MonitoringConfig
}

// Actor is the per-request caller context resolved by the http adapter.
type Actor struct {
	Identity  domain.Identity
	Tier      string
	Role      string
	RequestID string
}

// ProviderSelector is the closed provider dispatch: given a task type it
// returns the one adapter that owns it, or domain.ErrInvalidInput.
type ProviderSelector func(taskType string) (ports.ProviderAdapter, error)

type Service struct {
	cfg            Config
	logger         *slog.Logger
	tasks          ports.TaskRepository
	subscriptions  ports.SubscriptionRepository
	deliveries     ports.DeliveryRepository
	alerts         ports.AlertRepository
	counters       ports.CounterStore
	blocks         ports.BlockStore
	selectProvider ProviderSelector
	dispatcher     ports.WebhookDispatcher
	metrics        ports.MetricsRecorder
	source         ports.MetricsSource
	nowFn          func() time.Time

	activeTasks atomic.Int64

	thresholdMu sync.RWMutex
	thresholds  map[string]float64

	sinkMu sync.RWMutex
	sinks  []ports.AlertSink

	samplerBusy sync.Map // sampler name -> *atomic.Bool
}

type Dependencies struct {
	Config        Config
	Logger        *slog.Logger
	Tasks         ports.TaskRepository
	Subscriptions ports.SubscriptionRepository
	Deliveries    ports.DeliveryRepository
	Alerts        ports.AlertRepository
	Counters      ports.CounterStore
	Blocks        ports.BlockStore
	Providers     ProviderSelector
	Dispatcher    ports.WebhookDispatcher
	Metrics       ports.MetricsRecorder
	Source        ports.MetricsSource
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M59-Generation-Gateway"
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.GlobalWindow <= 0 {
		cfg.RateLimit.GlobalWindow = time.Hour
	}
	if cfg.RateLimit.GlobalCeiling <= 0 {
		cfg.RateLimit.GlobalCeiling = 1000
	}
	if len(cfg.RateLimit.TierBasePoints) == 0 {
		cfg.RateLimit.TierBasePoints = map[string]int64{
			domain.TierFree:       10,
			domain.TierPro:        60,
			domain.TierEnterprise: 300,
		}
	}
	if cfg.RateLimit.DefaultTier == "" {
		cfg.RateLimit.DefaultTier = domain.TierFree
	}
	if cfg.Poller.InitialDelay <= 0 {
		cfg.Poller.InitialDelay = 2 * time.Second
	}
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = 5 * time.Second
	}
	if cfg.Poller.MaxAttempts <= 0 {
		cfg.Poller.MaxAttempts = 60
	}
	if cfg.Retention.MaxAge <= 0 {
		cfg.Retention.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = time.Hour
	}
	if cfg.Monitoring.Window <= 0 {
		cfg.Monitoring.Window = 5 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	thresholds := map[string]float64{}
	for k, v := range cfg.Monitoring.Thresholds {
		thresholds[k] = v
	}
	return &Service{
		cfg:            cfg,
		logger:         logger.With("service", cfg.ServiceName, "layer", "application"),
		tasks:          deps.Tasks,
		subscriptions:  deps.Subscriptions,
		deliveries:     deps.Deliveries,
		alerts:         deps.Alerts,
		counters:       deps.Counters,
		blocks:         deps.Blocks,
		selectProvider: deps.Providers,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		source:         deps.Source,
		thresholds:     thresholds,
		nowFn:          func() time.Time { return time.Now().UTC() },
	}
}
