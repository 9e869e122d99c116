package domain

import (
	"time"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"

	TaskTypeText  = "text_generation"
	TaskTypeVideo = "video_generation"

	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
)

// TaskResult carries the normalized output of a generation, for both the
// synchronous path (content + usage) and the asynchronous path (url).
type TaskResult struct {
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TaskMetadata struct {
	UserID      string `json:"user_id,omitempty"`
	SpecSummary string `json:"spec_summary,omitempty"`
}

type Task struct {
	TaskID         string       `json:"task_id"`
	Type           string       `json:"type"`
	Status         string       `json:"status"`
	Provider       string       `json:"provider"`
	Model          string       `json:"model"`
	ProviderTaskID string       `json:"provider_task_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	SubmittedAt    *time.Time   `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	FailedAt       *time.Time   `json:"failed_at,omitempty"`
	Result         *TaskResult  `json:"result,omitempty"`
	Error          *TaskError   `json:"error,omitempty"`
	Metadata       TaskMetadata `json:"metadata"`
}

func (t Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

func (t Task) TerminalEvent() string {
	switch t.Status {
	case TaskStatusCompleted:
		return EventTaskCompleted
	case TaskStatusFailed:
		return EventTaskFailed
	default:
		return ""
	}
}

// CanTransition enforces the monotonic lifecycle:
// pending -> processing -> {completed|failed}, with pending allowed to close
// directly for synchronous providers. Terminal states never move again.
func CanTransition(from, to string) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing || to == TaskStatusCompleted || to == TaskStatusFailed
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	default:
		return false
	}
}

func IsValidTaskType(v string) bool {
	switch v {
	case TaskTypeText, TaskTypeVideo:
		return true
	default:
		return false
	}
}
