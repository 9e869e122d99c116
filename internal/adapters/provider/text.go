package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// TextAdapter fronts a synchronous chat-completion style backend: one
// request, the full result in the response body.
type TextAdapter struct {
	client *client
	model  string
}

type TextAdapterConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	// DefaultModel is used when the request carries no model of its own.
	DefaultModel string
	MaxRetries   int
}

func NewTextAdapter(cfg TextAdapterConfig) *TextAdapter {
	return &TextAdapter{
		client: newClient(clientConfig{
			HTTPClient: cfg.HTTPClient,
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			MaxRetries: cfg.MaxRetries,
		}),
		model: cfg.DefaultModel,
	}
}

func (a *TextAdapter) Name() string { return "text-inference" }
func (a *TextAdapter) Async() bool  { return false }

type textCompletionRequest struct {
	Model     string           `json:"model"`
	Messages  []domain.Message `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type textCompletionResponse struct {
	Choices []struct {
		Message domain.Message `json:"message"`
	} `json:"choices"`
	Usage *domain.Usage `json:"usage"`
}

func (a *TextAdapter) Generate(ctx context.Context, spec domain.GenerationSpec) (domain.TaskResult, error) {
	messages := spec.Messages
	if len(messages) == 0 {
		prompt := strings.TrimSpace(spec.Prompt)
		if prompt == "" {
			return domain.TaskResult{}, domain.NewProviderError(domain.ProviderErrValidation, "prompt or messages required", false)
		}
		messages = []domain.Message{{Role: "user", Content: prompt}}
	}
	model := spec.Model
	if model == "" {
		model = a.model
	}

	var resp textCompletionResponse
	err := a.client.doJSON(ctx, http.MethodPost, "/v1/chat/completions", textCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: spec.MaxTokens,
	}, &resp)
	if err != nil {
		return domain.TaskResult{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.TaskResult{}, domain.NewProviderError(domain.ProviderErrUnknown, "response carried no choices", false)
	}
	return domain.TaskResult{
		Content: resp.Choices[0].Message.Content,
		Usage:   resp.Usage,
	}, nil
}

func (a *TextAdapter) SubmitAsync(context.Context, domain.GenerationSpec) (string, error) {
	return "", domain.NewProviderError(domain.ProviderErrBadRequest, "text backend is synchronous", false)
}

func (a *TextAdapter) PollTask(context.Context, string) (domain.ProviderTaskStatus, error) {
	return domain.ProviderTaskStatus{}, domain.NewProviderError(domain.ProviderErrBadRequest, "text backend is synchronous", false)
}
