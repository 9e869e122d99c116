package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

const (
	minVideoDurationSeconds = 1
	maxVideoDurationSeconds = 10
)

// VideoAdapter fronts an asynchronous video generation backend: submit
// returns an upstream job id, progress comes from polling.
type VideoAdapter struct {
	client *client
	model  string
}

type VideoAdapterConfig struct {
	HTTPClient   *http.Client
	BaseURL      string
	APIKey       string
	DefaultModel string
	MaxRetries   int
}

func NewVideoAdapter(cfg VideoAdapterConfig) *VideoAdapter {
	return &VideoAdapter{
		client: newClient(clientConfig{
			HTTPClient: cfg.HTTPClient,
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			MaxRetries: cfg.MaxRetries,
		}),
		model: cfg.DefaultModel,
	}
}

func (a *VideoAdapter) Name() string { return "video-inference" }
func (a *VideoAdapter) Async() bool  { return true }

func (a *VideoAdapter) Generate(context.Context, domain.GenerationSpec) (domain.TaskResult, error) {
	return domain.TaskResult{}, domain.NewProviderError(domain.ProviderErrBadRequest, "video backend is asynchronous", false)
}

type videoSubmitRequest struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	Resolution      string `json:"resolution"`
	FrameRate       int    `json:"frame_rate"`
}

type videoSubmitResponse struct {
	TaskID string `json:"task_id"`
}

func (a *VideoAdapter) SubmitAsync(ctx context.Context, spec domain.GenerationSpec) (string, error) {
	if err := validateVideoSpec(spec); err != nil {
		return "", err
	}
	model := spec.Model
	if model == "" {
		model = a.model
	}
	var resp videoSubmitResponse
	err := a.client.doJSON(ctx, http.MethodPost, "/v1/video/generations", videoSubmitRequest{
		Model:           model,
		Prompt:          spec.Prompt,
		DurationSeconds: spec.DurationSeconds,
		Resolution:      spec.Resolution,
		FrameRate:       spec.FrameRate,
	}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.TaskID) == "" {
		return "", domain.NewProviderError(domain.ProviderErrUnknown, "submit response carried no task id", false)
	}
	return resp.TaskID, nil
}

type videoPollResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

func (a *VideoAdapter) PollTask(ctx context.Context, providerTaskID string) (domain.ProviderTaskStatus, error) {
	var resp videoPollResponse
	err := a.client.doJSON(ctx, http.MethodGet, "/v1/video/generations/"+providerTaskID, nil, &resp)
	if err != nil {
		return domain.ProviderTaskStatus{}, err
	}

	out := domain.ProviderTaskStatus{Progress: resp.Progress}
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "succeeded", "completed":
		out.Status = domain.TaskStatusCompleted
		out.Result = &domain.TaskResult{URL: resp.VideoURL}
	case "failed", "cancelled":
		out.Status = domain.TaskStatusFailed
		out.Error = resp.Error
		if out.Error == "" {
			out.Error = "upstream job " + strings.ToLower(strings.TrimSpace(resp.Status))
		}
	default:
		// queued, pending, processing and anything unrecognized keep polling.
		out.Status = domain.TaskStatusProcessing
	}
	return out, nil
}

// validateVideoSpec rejects malformed requests before any network traffic.
func validateVideoSpec(spec domain.GenerationSpec) error {
	if strings.TrimSpace(spec.Prompt) == "" {
		return domain.NewProviderError(domain.ProviderErrValidation, "prompt required", false)
	}
	if spec.DurationSeconds < minVideoDurationSeconds || spec.DurationSeconds > maxVideoDurationSeconds {
		return domain.NewProviderError(domain.ProviderErrValidation,
			fmt.Sprintf("duration_seconds must be between %d and %d, got %d",
				minVideoDurationSeconds, maxVideoDurationSeconds, spec.DurationSeconds), false)
	}
	switch spec.Resolution {
	case "720p", "1080p":
	default:
		return domain.NewProviderError(domain.ProviderErrValidation,
			fmt.Sprintf("resolution must be 720p or 1080p, got %q", spec.Resolution), false)
	}
	switch spec.FrameRate {
	case 24, 30:
	default:
		return domain.NewProviderError(domain.ProviderErrValidation,
			fmt.Sprintf("frame_rate must be 24 or 30, got %d", spec.FrameRate), false)
	}
	return nil
}
