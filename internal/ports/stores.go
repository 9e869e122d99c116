package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// CounterStore is the shared fixed-window counter backing rate limiting.
// IncrementWindow must be atomic at the store level so the gateway stays
// correct across multiple instances.
type CounterStore interface {
	// IncrementWindow bumps the counter under key, arming a TTL of window on
	// first increment, and returns the post-increment count together with
	// the moment the window resets.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// BlockStore holds standing block records with a TTL; a present record
// overrides every bucket check.
type BlockStore interface {
	Put(ctx context.Context, key string, rec domain.BlockRecord, ttl time.Duration) error
	// Get returns nil without error when no block exists.
	Get(ctx context.Context, key string) (*domain.BlockRecord, error)
}
