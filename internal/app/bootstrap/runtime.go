package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/adapters/cache"
	httpadapter "github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/adapters/http"
	metricsadapter "github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/adapters/metrics"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/adapters/notify"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/adapters/provider"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	service    *application.Service
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping generation gateway", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)
	counters := cacheadapter.NewRedisCounterStore(redisClient)
	blocks := cacheadapter.NewRedisBlockStore(redisClient)

	recorder := metricsadapter.NewRecorder(3 * cfg.MonitoringWindow)
	alerts := metricsadapter.NewAlertRing(cfg.AlertCapacity)

	dispatcher := notify.NewHTTPDispatcher(notify.DispatcherConfig{
		HTTPClient:   &http.Client{Timeout: cfg.WebhookTimeout},
		Deliveries:   repos.Deliveries,
		Metrics:      recorder,
		Logger:       logger,
		MaxAttempts:  cfg.WebhookMaxAttempts,
		InitialDelay: cfg.WebhookInitialDelay,
		MaxDelay:     cfg.WebhookMaxDelay,
	})

	registry := provider.NewRegistry(
		provider.NewTextAdapter(provider.TextAdapterConfig{
			BaseURL:      cfg.TextBaseURL,
			APIKey:       cfg.TextAPIKey,
			DefaultModel: cfg.TextModel,
			MaxRetries:   cfg.ProviderMaxRetries,
		}),
		provider.NewVideoAdapter(provider.VideoAdapterConfig{
			BaseURL:      cfg.VideoBaseURL,
			APIKey:       cfg.VideoAPIKey,
			DefaultModel: cfg.VideoModel,
			MaxRetries:   cfg.ProviderMaxRetries,
		}),
	)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName: cfg.ServiceID,
			Version:     cfg.Version,
			RateLimit: application.RateLimitConfig{
				Window:         cfg.RateLimitWindow,
				TierBasePoints: cfg.TierBasePoints,
				GlobalWindow:   cfg.GlobalWindow,
				GlobalCeiling:  cfg.GlobalCeiling,
				DefaultTier:    cfg.DefaultTier,
				APIKeyTiers:    cfg.APIKeyTiers,
			},
			Poller: application.PollerConfig{
				InitialDelay: cfg.PollerInitialDelay,
				Interval:     cfg.PollerInterval,
				MaxAttempts:  cfg.PollerMaxAttempts,
			},
			Retention: application.RetentionConfig{
				MaxAge:        cfg.RetentionMaxAge,
				SweepInterval: cfg.RetentionSweepInterval,
			},
			Monitoring: application.MonitoringConfig{
				Window:               cfg.MonitoringWindow,
				UsageInterval:        cfg.UsageInterval,
				PerformanceInterval:  cfg.PerformanceInterval,
				ErrorRateInterval:    cfg.ErrorRateInterval,
				SystemHealthInterval: cfg.SystemHealthInterval,
				Thresholds:           cfg.Thresholds,
			},
		},
		Logger:        logger,
		Tasks:         repos.Tasks,
		Subscriptions: repos.Subscriptions,
		Deliveries:    repos.Deliveries,
		Alerts:        alerts,
		Counters:      counters,
		Blocks:        blocks,
		Providers:     registry.ForTaskType,
		Dispatcher:    dispatcher,
		Metrics:       recorder,
		Source:        recorder,
	})

	seedSubscriptions(ctx, logger, svc, cfg.SubscriptionSeeds)

	ready := func(ctx context.Context) error {
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	handler := httpadapter.NewHandler(svc, ready)
	router := httpadapter.NewRouter(httpadapter.RouterConfig{
		Service:   svc,
		Handler:   handler,
		Logger:    logger,
		Metrics:   recorder,
		JWTSecret: []byte(cfg.JWTSecret),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		service:    svc,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// seedSubscriptions registers configured webhook endpoints at startup.
// Conflicts and invalid seeds are logged, never fatal.
func seedSubscriptions(ctx context.Context, logger *slog.Logger, svc *application.Service, seeds []SubscriptionSeed) {
	for _, seed := range seeds {
		events := seed.Events
		if len(events) == 0 {
			events = []string{domain.EventTaskCompleted, domain.EventTaskFailed}
		}
		if _, err := svc.CreateSubscription(ctx, seed.URL, seed.Secret, events); err != nil {
			logger.Warn("subscription seed skipped",
				"module", "bootstrap",
				"operation", "seed_subscriptions",
				"outcome", "failure",
				"url", seed.URL,
				"error", err.Error(),
			)
		}
	}
}

// RunAPI serves HTTP and gRPC health, and runs the monitoring samplers. The
// samplers live here because the metrics recorder and alert ring are
// process-local: the request middleware, task transitions and admission
// degradations all record into this process, so sampling anywhere else would
// read an empty window.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go r.service.StartSamplers(ctx)

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker runs the retention sweep loop against the shared database.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("background worker started")
	if err := r.service.RunRetentionSweeper(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("retention sweeper stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
