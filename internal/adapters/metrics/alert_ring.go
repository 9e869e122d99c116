package metrics

import (
	"context"
	"sync"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// AlertRing is a capacity-bounded in-memory alert store. Appending past
// capacity evicts the oldest alert, so memory stays flat no matter how noisy
// the samplers get.
type AlertRing struct {
	mu       sync.Mutex
	rows     []domain.Alert
	capacity int
}

func NewAlertRing(capacity int) *AlertRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AlertRing{capacity: capacity}
}

func (r *AlertRing) Append(_ context.Context, row domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	if len(r.rows) > r.capacity {
		r.rows = r.rows[len(r.rows)-r.capacity:]
	}
	return nil
}

// List returns up to limit alerts, newest first.
func (r *AlertRing) List(_ context.Context, limit int) ([]domain.Alert, error) {
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
