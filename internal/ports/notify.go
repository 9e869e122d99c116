package ports

import (
	"context"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// WebhookDispatcher delivers one event to one subscription out-of-band.
// Dispatch must return promptly; retries and audit happen behind it so the
// triggering state transition is never blocked.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, sub domain.Subscription, event domain.WebhookEvent)
}
