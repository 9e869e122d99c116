package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the generation gateway.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string
	Version   string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	// JWTSecret validates HS256 bearer tokens on the request path. An empty
	// secret disables user-token identities; callers fall back to network
	// address.
	JWTSecret string

	RateLimitWindow time.Duration
	GlobalWindow    time.Duration
	GlobalCeiling   int64
	DefaultTier     string
	TierBasePoints  map[string]int64
	APIKeyTiers     map[string]string

	PollerInitialDelay time.Duration
	PollerInterval     time.Duration
	PollerMaxAttempts  int

	RetentionMaxAge        time.Duration
	RetentionSweepInterval time.Duration

	MonitoringWindow     time.Duration
	UsageInterval        time.Duration
	PerformanceInterval  time.Duration
	ErrorRateInterval    time.Duration
	SystemHealthInterval time.Duration
	AlertCapacity        int
	Thresholds           map[string]float64

	WebhookMaxAttempts  int
	WebhookInitialDelay time.Duration
	WebhookMaxDelay     time.Duration
	WebhookTimeout      time.Duration

	TextBaseURL        string
	TextAPIKey         string
	TextModel          string
	VideoBaseURL       string
	VideoAPIKey        string
	VideoModel         string
	ProviderMaxRetries int

	// SubscriptionSeeds are webhook endpoints registered at startup, for
	// environments where subscribers are known ahead of time.
	SubscriptionSeeds []SubscriptionSeed
}

type SubscriptionSeed struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		Version  string `yaml:"version"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	RateLimit struct {
		WindowSeconds       int               `yaml:"window_seconds"`
		GlobalWindowMinutes int               `yaml:"global_window_minutes"`
		GlobalCeiling       int64             `yaml:"global_ceiling"`
		DefaultTier         string            `yaml:"default_tier"`
		TierBasePoints      map[string]int64  `yaml:"tier_base_points"`
		APIKeyTiers         map[string]string `yaml:"api_key_tiers"`
	} `yaml:"rate_limit"`
	Poller struct {
		InitialDelaySeconds int `yaml:"initial_delay_seconds"`
		IntervalSeconds     int `yaml:"interval_seconds"`
		MaxAttempts         int `yaml:"max_attempts"`
	} `yaml:"poller"`
	Retention struct {
		MaxAgeHours        int `yaml:"max_age_hours"`
		SweepIntervalHours int `yaml:"sweep_interval_hours"`
	} `yaml:"retention"`
	Monitoring struct {
		WindowMinutes              int                `yaml:"window_minutes"`
		UsageIntervalSeconds       int                `yaml:"usage_interval_seconds"`
		PerformanceIntervalSeconds int                `yaml:"performance_interval_seconds"`
		ErrorRateIntervalSeconds   int                `yaml:"error_rate_interval_seconds"`
		HealthIntervalSeconds      int                `yaml:"health_interval_seconds"`
		AlertCapacity              int                `yaml:"alert_capacity"`
		Thresholds                 map[string]float64 `yaml:"thresholds"`
	} `yaml:"monitoring"`
	Webhooks struct {
		MaxAttempts         int                `yaml:"max_attempts"`
		InitialDelaySeconds int                `yaml:"initial_delay_seconds"`
		MaxDelaySeconds     int                `yaml:"max_delay_seconds"`
		TimeoutSeconds      int                `yaml:"timeout_seconds"`
		Seeds               []SubscriptionSeed `yaml:"seeds"`
	} `yaml:"webhooks"`
	Providers struct {
		MaxRetries int `yaml:"max_retries"`
		Text       struct {
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"text"`
		Video struct {
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"video"`
	} `yaml:"providers"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:              "M59-Generation-Gateway",
		Version:                "0.1.0",
		HTTPPort:               8080,
		GRPCPort:               9090,
		MaxDBConns:             20,
		RateLimitWindow:        time.Minute,
		GlobalWindow:           time.Hour,
		GlobalCeiling:          1000,
		DefaultTier:            "free",
		TierBasePoints:         map[string]int64{"free": 10, "pro": 60, "enterprise": 300},
		PollerInitialDelay:     2 * time.Second,
		PollerInterval:         5 * time.Second,
		PollerMaxAttempts:      60,
		RetentionMaxAge:        7 * 24 * time.Hour,
		RetentionSweepInterval: time.Hour,
		MonitoringWindow:       5 * time.Minute,
		UsageInterval:          time.Minute,
		PerformanceInterval:    time.Minute,
		ErrorRateInterval:      30 * time.Second,
		SystemHealthInterval:   time.Minute,
		AlertCapacity:          1000,
		WebhookMaxAttempts:     5,
		WebhookInitialDelay:    time.Second,
		WebhookMaxDelay:        time.Minute,
		WebhookTimeout:         10 * time.Second,
		ProviderMaxRetries:     3,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.Version != "" {
			cfg.Version = f.Service.Version
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.RateLimit.WindowSeconds > 0 {
			cfg.RateLimitWindow = time.Duration(f.RateLimit.WindowSeconds) * time.Second
		}
		if f.RateLimit.GlobalWindowMinutes > 0 {
			cfg.GlobalWindow = time.Duration(f.RateLimit.GlobalWindowMinutes) * time.Minute
		}
		if f.RateLimit.GlobalCeiling > 0 {
			cfg.GlobalCeiling = f.RateLimit.GlobalCeiling
		}
		if f.RateLimit.DefaultTier != "" {
			cfg.DefaultTier = f.RateLimit.DefaultTier
		}
		if len(f.RateLimit.TierBasePoints) > 0 {
			cfg.TierBasePoints = f.RateLimit.TierBasePoints
		}
		if len(f.RateLimit.APIKeyTiers) > 0 {
			cfg.APIKeyTiers = f.RateLimit.APIKeyTiers
		}
		if f.Poller.InitialDelaySeconds > 0 {
			cfg.PollerInitialDelay = time.Duration(f.Poller.InitialDelaySeconds) * time.Second
		}
		if f.Poller.IntervalSeconds > 0 {
			cfg.PollerInterval = time.Duration(f.Poller.IntervalSeconds) * time.Second
		}
		if f.Poller.MaxAttempts > 0 {
			cfg.PollerMaxAttempts = f.Poller.MaxAttempts
		}
		if f.Retention.MaxAgeHours > 0 {
			cfg.RetentionMaxAge = time.Duration(f.Retention.MaxAgeHours) * time.Hour
		}
		if f.Retention.SweepIntervalHours > 0 {
			cfg.RetentionSweepInterval = time.Duration(f.Retention.SweepIntervalHours) * time.Hour
		}
		if f.Monitoring.WindowMinutes > 0 {
			cfg.MonitoringWindow = time.Duration(f.Monitoring.WindowMinutes) * time.Minute
		}
		if f.Monitoring.UsageIntervalSeconds > 0 {
			cfg.UsageInterval = time.Duration(f.Monitoring.UsageIntervalSeconds) * time.Second
		}
		if f.Monitoring.PerformanceIntervalSeconds > 0 {
			cfg.PerformanceInterval = time.Duration(f.Monitoring.PerformanceIntervalSeconds) * time.Second
		}
		if f.Monitoring.ErrorRateIntervalSeconds > 0 {
			cfg.ErrorRateInterval = time.Duration(f.Monitoring.ErrorRateIntervalSeconds) * time.Second
		}
		if f.Monitoring.HealthIntervalSeconds > 0 {
			cfg.SystemHealthInterval = time.Duration(f.Monitoring.HealthIntervalSeconds) * time.Second
		}
		if f.Monitoring.AlertCapacity > 0 {
			cfg.AlertCapacity = f.Monitoring.AlertCapacity
		}
		if len(f.Monitoring.Thresholds) > 0 {
			cfg.Thresholds = f.Monitoring.Thresholds
		}
		if f.Webhooks.MaxAttempts > 0 {
			cfg.WebhookMaxAttempts = f.Webhooks.MaxAttempts
		}
		if f.Webhooks.InitialDelaySeconds > 0 {
			cfg.WebhookInitialDelay = time.Duration(f.Webhooks.InitialDelaySeconds) * time.Second
		}
		if f.Webhooks.MaxDelaySeconds > 0 {
			cfg.WebhookMaxDelay = time.Duration(f.Webhooks.MaxDelaySeconds) * time.Second
		}
		if f.Webhooks.TimeoutSeconds > 0 {
			cfg.WebhookTimeout = time.Duration(f.Webhooks.TimeoutSeconds) * time.Second
		}
		if len(f.Webhooks.Seeds) > 0 {
			cfg.SubscriptionSeeds = f.Webhooks.Seeds
		}
		if f.Providers.MaxRetries > 0 {
			cfg.ProviderMaxRetries = f.Providers.MaxRetries
		}
		if f.Providers.Text.BaseURL != "" {
			cfg.TextBaseURL = f.Providers.Text.BaseURL
		}
		if f.Providers.Text.Model != "" {
			cfg.TextModel = f.Providers.Text.Model
		}
		if f.Providers.Video.BaseURL != "" {
			cfg.VideoBaseURL = f.Providers.Video.BaseURL
		}
		if f.Providers.Video.Model != "" {
			cfg.VideoModel = f.Providers.Video.Model
		}
	}

	cfg.DatabaseURL = envString("DB_URL", envString("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.TextBaseURL = envString("TEXT_PROVIDER_BASE_URL", cfg.TextBaseURL)
	cfg.TextAPIKey = envString("TEXT_PROVIDER_API_KEY", cfg.TextAPIKey)
	cfg.VideoBaseURL = envString("VIDEO_PROVIDER_BASE_URL", cfg.VideoBaseURL)
	cfg.VideoAPIKey = envString("VIDEO_PROVIDER_API_KEY", cfg.VideoAPIKey)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.Version = envString("SERVICE_VERSION", cfg.Version)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.GlobalCeiling = int64(envInt("GLOBAL_CEILING", int(cfg.GlobalCeiling)))
	cfg.RateLimitWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", int(cfg.RateLimitWindow.Seconds()))) * time.Second
	cfg.PollerMaxAttempts = envInt("POLLER_MAX_ATTEMPTS", cfg.PollerMaxAttempts)
	cfg.RetentionMaxAge = time.Duration(envInt("RETENTION_MAX_AGE_HOURS", int(cfg.RetentionMaxAge.Hours()))) * time.Hour
	cfg.WebhookMaxAttempts = envInt("WEBHOOK_MAX_ATTEMPTS", cfg.WebhookMaxAttempts)
	cfg.ProviderMaxRetries = envInt("PROVIDER_MAX_RETRIES", cfg.ProviderMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if strings.TrimSpace(cfg.TextBaseURL) == "" || strings.TrimSpace(cfg.VideoBaseURL) == "" {
		return Config{}, fmt.Errorf("missing provider base urls")
	}
	return cfg, nil
}

// envString returns an env var when present, otherwise the provided fallback.
func envString(name, fallback string) string {
	if raw := os.Getenv(name); raw != "" {
		return raw
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
