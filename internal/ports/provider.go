package ports

import (
	"context"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// ProviderAdapter is the boundary to one external generation backend.
// Synchronous adapters implement Generate and report Async() == false;
// asynchronous ones implement SubmitAsync/PollTask. Errors escaping any
// method are *domain.ProviderError with retries already exhausted.
type ProviderAdapter interface {
	Name() string
	Async() bool
	Generate(ctx context.Context, spec domain.GenerationSpec) (domain.TaskResult, error)
	SubmitAsync(ctx context.Context, spec domain.GenerationSpec) (providerTaskID string, err error)
	PollTask(ctx context.Context, providerTaskID string) (domain.ProviderTaskStatus, error)
}
