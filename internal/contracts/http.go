package contracts

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type MessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CreateGenerationRequest struct {
	Type            string            `json:"type"`
	Prompt          string            `json:"prompt,omitempty"`
	Messages        []MessageRequest  `json:"messages,omitempty"`
	Model           string            `json:"model,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	Resolution      string            `json:"resolution,omitempty"`
	FrameRate       int               `json:"frame_rate,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

type CreateSubscriptionRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

type BlockRequest struct {
	IdentityType  string `json:"identity_type"`
	IdentityValue string `json:"identity_value"`
	Severity      string `json:"severity"`
	Reason        string `json:"reason,omitempty"`
}

type ThresholdsRequest struct {
	Thresholds map[string]float64 `json:"thresholds"`
}
