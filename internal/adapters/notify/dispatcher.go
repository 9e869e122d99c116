package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

// HTTPDispatcher delivers webhook events at-least-once. Dispatch returns
// immediately; a goroutine per delivery runs the attempt loop, appends one
// audit row per attempt and marks the final failure permanent once the
// attempt ceiling is reached.
type HTTPDispatcher struct {
	httpClient   *http.Client
	deliveries   ports.DeliveryRepository
	metrics      ports.MetricsRecorder
	logger       *slog.Logger
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	nowFn        func() time.Time
}

type DispatcherConfig struct {
	HTTPClient   *http.Client
	Deliveries   ports.DeliveryRepository
	Metrics      ports.MetricsRecorder
	Logger       *slog.Logger
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func NewHTTPDispatcher(cfg DispatcherConfig) *HTTPDispatcher {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	return &HTTPDispatcher{
		httpClient:   httpClient,
		deliveries:   cfg.Deliveries,
		metrics:      cfg.Metrics,
		logger:       logger.With("module", "notify", "layer", "adapter"),
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, sub domain.Subscription, event domain.WebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		d.logger.ErrorContext(ctx, "webhook event encode failed",
			"operation", "dispatch",
			"outcome", "failure",
			"webhook_id", sub.WebhookID,
			"error", err.Error(),
		)
		return
	}
	go d.deliver(context.WithoutCancel(ctx), sub, event.Event, body)
}

func (d *HTTPDispatcher) deliver(ctx context.Context, sub domain.Subscription, event string, body []byte) {
	delay := d.initialDelay
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		code, attemptErr := d.attempt(ctx, sub, body)

		row := domain.Delivery{
			DeliveryID:   "del-" + uuid.NewString(),
			WebhookID:    sub.WebhookID,
			Event:        event,
			Payload:      string(body),
			Attempt:      attempt,
			ResponseCode: code,
			Timestamp:    d.nowFn(),
		}
		if attemptErr == nil {
			row.Outcome = domain.DeliveryOutcomeDelivered
		} else {
			row.Error = attemptErr.Error()
			row.Outcome = domain.DeliveryOutcomeFailed
			if attempt == d.maxAttempts {
				row.Outcome = domain.DeliveryOutcomePermanentlyFailed
			}
		}
		d.appendAudit(ctx, row)

		if attemptErr == nil {
			return
		}
		d.logger.WarnContext(ctx, "webhook delivery attempt failed",
			"operation", "deliver",
			"outcome", "failure",
			"webhook_id", sub.WebhookID,
			"event", event,
			"attempt", attempt,
			"response_code", code,
			"error", attemptErr.Error(),
		)
		if attempt == d.maxAttempts {
			return
		}
		if d.metrics != nil {
			d.metrics.RecordWebhookRetry()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > d.maxDelay {
			delay = d.maxDelay
		}
	}
}

// attempt performs one signed POST. Any non-2xx answer counts as a failed
// attempt; the subscriber owns its own semantics beyond that.
func (d *HTTPDispatcher) attempt(ctx context.Context, sub domain.Subscription, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, Sign(sub.Secret, body))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("subscriber answered status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *HTTPDispatcher) appendAudit(ctx context.Context, row domain.Delivery) {
	if err := d.deliveries.Append(ctx, row); err != nil {
		d.logger.ErrorContext(ctx, "delivery audit append failed",
			"operation", "append_audit",
			"outcome", "failure",
			"webhook_id", row.WebhookID,
			"attempt", row.Attempt,
			"error", err.Error(),
		)
	}
}
