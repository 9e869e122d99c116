package application

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// NotifyTaskTerminal fans a terminal task out to every matching active
// subscription. Dispatch is fire-and-forget: the caller's transition has
// already been committed and must not wait on subscriber endpoints.
func (s *Service) NotifyTaskTerminal(ctx context.Context, task domain.Task) {
	event := task.TerminalEvent()
	if event == "" || s.dispatcher == nil {
		return
	}

	data, err := json.Marshal(task)
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook payload encode failed",
			"module", "webhooks",
			"operation", "notify",
			"outcome", "failure",
			"task_id", task.TaskID,
			"error", err.Error(),
		)
		return
	}
	body := domain.WebhookEvent{Event: event, Timestamp: s.nowFn(), Data: data}

	subs, err := s.subscriptions.ListActiveForEvent(ctx, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "subscription lookup failed",
			"module", "webhooks",
			"operation", "notify",
			"outcome", "failure",
			"event", event,
			"error", err.Error(),
		)
		return
	}
	for _, sub := range subs {
		if !sub.WantsEvent(event) {
			continue
		}
		s.dispatcher.Dispatch(ctx, sub, body)
	}
}

// CreateSubscription registers a new webhook endpoint. The secret is stored
// as given; it is the subscriber's half of the delivery signature.
func (s *Service) CreateSubscription(ctx context.Context, rawURL, secret string, events []string) (domain.Subscription, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateWebhookURL(rawURL); err != nil {
		return domain.Subscription{}, err
	}
	if strings.TrimSpace(secret) == "" || len(events) == 0 {
		return domain.Subscription{}, domain.ErrInvalidInput
	}
	for _, e := range events {
		if e != domain.EventTaskCompleted && e != domain.EventTaskFailed {
			return domain.Subscription{}, domain.ErrInvalidInput
		}
	}
	sub := domain.Subscription{
		WebhookID: "wh-" + uuid.NewString(),
		URL:       rawURL,
		EventSet:  events,
		Secret:    secret,
		Active:    true,
		CreatedAt: s.nowFn(),
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return domain.Subscription{}, err
	}
	s.logger.InfoContext(ctx, "webhook subscription created",
		"module", "webhooks",
		"operation", "create_subscription",
		"outcome", "success",
		"webhook_id", sub.WebhookID,
		"events", events,
	)
	return sub, nil
}

// ListDeliveries returns the audit trail for one subscription, newest first.
func (s *Service) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.Delivery, error) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return nil, domain.ErrInvalidInput
	}
	if _, err := s.subscriptions.GetByID(ctx, webhookID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.deliveries.ListByWebhook(ctx, webhookID, limit)
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ErrInvalidInput
	}
	return nil
}
