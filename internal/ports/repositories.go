package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// TaskUpdate is one status transition applied with compare-and-swap
// semantics. Nil pointer fields are left untouched.
type TaskUpdate struct {
	Status         string
	ProviderTaskID string
	SubmittedAt    *time.Time
	CompletedAt    *time.Time
	FailedAt       *time.Time
	Result         *domain.TaskResult
	Error          *domain.TaskError
	UpdatedAt      time.Time
}

type TaskRepository interface {
	// CreateIfAbsent inserts the task only if its id is not present,
	// returning domain.ErrConflict otherwise.
	CreateIfAbsent(ctx context.Context, row domain.Task) error
	GetByID(ctx context.Context, taskID string) (domain.Task, error)
	// CompareAndSwapStatus applies upd only while the stored status equals
	// expect and domain.CanTransition(expect, upd.Status) holds; anything
	// else returns domain.ErrStaleTransition.
	CompareAndSwapStatus(ctx context.Context, taskID, expect string, upd TaskUpdate) (domain.Task, error)
	// DeleteOlderThan removes tasks created before cutoff regardless of
	// status and reports how many rows went away.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, row domain.Subscription) error
	GetByID(ctx context.Context, webhookID string) (domain.Subscription, error)
	// ListActiveForEvent returns active subscriptions whose event set
	// includes event.
	ListActiveForEvent(ctx context.Context, event string) ([]domain.Subscription, error)
}

type DeliveryRepository interface {
	Append(ctx context.Context, row domain.Delivery) error
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]domain.Delivery, error)
}

// AlertRepository is a capacity-bounded ring: appends past capacity evict the
// oldest alert.
type AlertRepository interface {
	Append(ctx context.Context, row domain.Alert) error
	List(ctx context.Context, limit int) ([]domain.Alert, error)
}
