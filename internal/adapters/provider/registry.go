package provider

import (
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

// Registry owns the closed task-type to adapter dispatch. Adding a task type
// means adding a case here; unknown types can never reach a backend.
type Registry struct {
	text  ports.ProviderAdapter
	video ports.ProviderAdapter
}

func NewRegistry(text, video ports.ProviderAdapter) *Registry {
	return &Registry{text: text, video: video}
}

func (r *Registry) ForTaskType(taskType string) (ports.ProviderAdapter, error) {
	switch taskType {
	case domain.TaskTypeText:
		return r.text, nil
	case domain.TaskTypeVideo:
		return r.video, nil
	default:
		return nil, domain.ErrInvalidInput
	}
}
