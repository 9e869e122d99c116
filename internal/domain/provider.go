package domain

import "fmt"

const (
	ProviderErrAuth        = "AUTH_ERROR"
	ProviderErrRateLimit   = "RATE_LIMIT"
	ProviderErrBadRequest  = "BAD_REQUEST"
	ProviderErrForbidden   = "FORBIDDEN"
	ProviderErrNotFound    = "NOT_FOUND"
	ProviderErrUnavailable = "PROVIDER_UNAVAILABLE"
	ProviderErrUnknown     = "UNKNOWN"
	ProviderErrValidation  = "VALIDATION_ERROR"
	ProviderErrTimeout     = "TIMEOUT"
)

// ProviderError normalizes external provider failures into a closed taxonomy.
// Retryable marks the transient classes the adapter retries internally; a
// ProviderError that escapes the adapter has already exhausted its budget.
type ProviderError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

func NewProviderError(code, message string, retryable bool) *ProviderError {
	return &ProviderError{Code: code, Message: message, Retryable: retryable}
}

// GenerationSpec is the provider-agnostic description of one generation
// request. Sync text generations use Prompt/Messages; async video
// generations use the media parameters.
type GenerationSpec struct {
	Type            string            `json:"type"`
	Prompt          string            `json:"prompt,omitempty"`
	Messages        []Message         `json:"messages,omitempty"`
	Model           string            `json:"model,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	Resolution      string            `json:"resolution,omitempty"`
	FrameRate       int               `json:"frame_rate,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summary is a short human-readable description stored in task metadata.
func (s GenerationSpec) Summary() string {
	prompt := s.Prompt
	if prompt == "" && len(s.Messages) > 0 {
		prompt = s.Messages[len(s.Messages)-1].Content
	}
	if len(prompt) > 80 {
		prompt = prompt[:80]
	}
	return fmt.Sprintf("%s model=%s prompt=%q", s.Type, s.Model, prompt)
}

// ProviderTaskStatus is the normalized answer to one poll of an async
// provider task.
type ProviderTaskStatus struct {
	Status   string      // processing, completed or failed
	Progress int         // 0-100, best effort
	Result   *TaskResult // populated when Status == completed
	Error    string      // populated when Status == failed
}
