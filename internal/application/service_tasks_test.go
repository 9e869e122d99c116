package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

func taskConfig() Config {
	return Config{
		Poller: PollerConfig{
			InitialDelay: time.Millisecond,
			Interval:     time.Millisecond,
			MaxAttempts:  5,
		},
		Retention: RetentionConfig{
			MaxAge:        time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

func waitForTerminal(t *testing.T, env *testEnv, taskID string) domain.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := env.tasks.GetByID(context.Background(), taskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.IsTerminal() {
			return task
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal status", taskID)
	return domain.Task{}
}

func TestStartGenerationSyncCompletesInline(t *testing.T) {
	provider := &fakeProvider{
		name:  "text-inference",
		async: false,
		generateFn: func(spec domain.GenerationSpec) (domain.TaskResult, error) {
			return domain.TaskResult{
				Content: "echo: " + spec.Prompt,
				Usage:   &domain.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
			}, nil
		},
	}
	env := newTestEnv(taskConfig(), provider)
	actor := Actor{Identity: domain.Identity{Type: domain.IdentityTypeUser, Value: "user-7"}}

	task, err := env.svc.StartGeneration(context.Background(), actor, StartGenerationInput{
		Spec: domain.GenerationSpec{Type: domain.TaskTypeText, Prompt: "hello", Model: "vf-chat-1"},
	})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}
	if task.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %q, want completed", task.Status)
	}
	if !strings.HasPrefix(task.TaskID, "task-") {
		t.Fatalf("task id %q missing prefix", task.TaskID)
	}
	if task.Result == nil || task.Result.Content != "echo: hello" {
		t.Fatalf("unexpected result: %+v", task.Result)
	}
	if task.SubmittedAt == nil || task.CompletedAt == nil {
		t.Fatalf("timestamps missing: %+v", task)
	}
	if task.Metadata.UserID != "user-7" {
		t.Fatalf("metadata user = %q", task.Metadata.UserID)
	}

	env.metrics.mu.Lock()
	completed := env.metrics.outcomes[domain.TaskStatusCompleted]
	env.metrics.mu.Unlock()
	if completed != 1 {
		t.Fatalf("completed outcomes = %d, want 1", completed)
	}
}

func TestStartGenerationSyncProviderFailure(t *testing.T) {
	provider := &fakeProvider{
		name:  "text-inference",
		async: false,
		generateFn: func(domain.GenerationSpec) (domain.TaskResult, error) {
			return domain.TaskResult{}, domain.NewProviderError(domain.ProviderErrAuth, "bad api key", false)
		},
	}
	env := newTestEnv(taskConfig(), provider)

	task, err := env.svc.StartGeneration(context.Background(), Actor{}, StartGenerationInput{
		Spec: domain.GenerationSpec{Type: domain.TaskTypeText, Prompt: "hello"},
	})
	var perr *domain.ProviderError
	if !errors.As(err, &perr) || perr.Code != domain.ProviderErrAuth {
		t.Fatalf("err = %v, want AUTH_ERROR provider error", err)
	}
	if task.Status != domain.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", task.Status)
	}
	if task.Error == nil || task.Error.Code != domain.ProviderErrAuth || task.Error.Message != "bad api key" {
		t.Fatalf("task error = %+v", task.Error)
	}
	if task.FailedAt == nil {
		t.Fatal("failed_at not set")
	}
}

func TestStartGenerationRejectsUnknownType(t *testing.T) {
	env := newTestEnv(taskConfig(), nil)

	_, err := env.svc.StartGeneration(context.Background(), Actor{}, StartGenerationInput{
		Spec: domain.GenerationSpec{Type: "audio_generation", Prompt: "x"},
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestStartGenerationAsyncPollsToCompletion(t *testing.T) {
	polls := 0
	provider := &fakeProvider{
		name:  "video-inference",
		async: true,
		submitFn: func(domain.GenerationSpec) (string, error) {
			return "prov-123", nil
		},
		pollFn: func(providerTaskID string) (domain.ProviderTaskStatus, error) {
			if providerTaskID != "prov-123" {
				return domain.ProviderTaskStatus{}, domain.NewProviderError(domain.ProviderErrNotFound, "unknown task", false)
			}
			polls++
			if polls < 2 {
				return domain.ProviderTaskStatus{Status: domain.TaskStatusProcessing, Progress: 40}, nil
			}
			return domain.ProviderTaskStatus{
				Status: domain.TaskStatusCompleted,
				Result: &domain.TaskResult{URL: "https://cdn.example.com/v/prov-123.mp4"},
			}, nil
		},
	}
	env := newTestEnv(taskConfig(), provider)

	task, err := env.svc.StartGeneration(context.Background(), Actor{}, StartGenerationInput{
		Spec: domain.GenerationSpec{Type: domain.TaskTypeVideo, Prompt: "a storm", DurationSeconds: 5},
	})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}
	if task.Status != domain.TaskStatusProcessing {
		t.Fatalf("status after submit = %q, want processing", task.Status)
	}
	if task.ProviderTaskID != "prov-123" {
		t.Fatalf("provider task id = %q", task.ProviderTaskID)
	}

	final := waitForTerminal(t, env, task.TaskID)
	if final.Status != domain.TaskStatusCompleted {
		t.Fatalf("final status = %q: %+v", final.Status, final.Error)
	}
	if final.Result == nil || final.Result.URL != "https://cdn.example.com/v/prov-123.mp4" {
		t.Fatalf("unexpected result: %+v", final.Result)
	}
}

func TestStartGenerationAsyncTimesOutAtAttemptCeiling(t *testing.T) {
	provider := &fakeProvider{
		name:     "video-inference",
		async:    true,
		submitFn: func(domain.GenerationSpec) (string, error) { return "prov-stuck", nil },
		pollFn: func(string) (domain.ProviderTaskStatus, error) {
			return domain.ProviderTaskStatus{Status: domain.TaskStatusProcessing}, nil
		},
	}
	cfg := taskConfig()
	cfg.Poller.MaxAttempts = 3
	env := newTestEnv(cfg, provider)

	task, err := env.svc.StartGeneration(context.Background(), Actor{}, StartGenerationInput{
		Spec: domain.GenerationSpec{Type: domain.TaskTypeVideo, Prompt: "forever", DurationSeconds: 5},
	})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}

	final := waitForTerminal(t, env, task.TaskID)
	if final.Status != domain.TaskStatusFailed {
		t.Fatalf("final status = %q, want failed", final.Status)
	}
	if final.Error == nil || final.Error.Code != domain.ProviderErrTimeout {
		t.Fatalf("task error = %+v, want TIMEOUT", final.Error)
	}
}

func TestStartGenerationAsyncProviderReportsFailure(t *testing.T) {
	provider := &fakeProvider{
		name:     "video-inference",
		async:    true,
		submitFn: func(domain.GenerationSpec) (string, error) { return "prov-bad", nil },
		pollFn: func(string) (domain.ProviderTaskStatus, error) {
			return domain.ProviderTaskStatus{Status: domain.TaskStatusFailed, Error: "render crashed"}, nil
		},
	}
	env := newTestEnv(taskConfig(), provider)

	task, err := env.svc.StartGeneration(context.Background(), Actor{}, StartGenerationInput{
		Spec: domain.GenerationSpec{Type: domain.TaskTypeVideo, Prompt: "p", DurationSeconds: 5},
	})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}

	final := waitForTerminal(t, env, task.TaskID)
	if final.Status != domain.TaskStatusFailed {
		t.Fatalf("final status = %q, want failed", final.Status)
	}
	if final.Error == nil || final.Error.Message != "render crashed" {
		t.Fatalf("task error = %+v", final.Error)
	}
}

func TestGetTaskResultHidesResultUntilCompleted(t *testing.T) {
	env := newTestEnv(taskConfig(), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := domain.Task{
		TaskID:    "task-in-flight",
		Type:      domain.TaskTypeVideo,
		Status:    domain.TaskStatusProcessing,
		Result:    &domain.TaskResult{URL: "should-not-leak"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := env.tasks.CreateIfAbsent(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	task, err := env.svc.GetTaskResult(ctx, "task-in-flight")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if task.Result != nil {
		t.Fatalf("result leaked for non-completed task: %+v", task.Result)
	}
	if task.Status != domain.TaskStatusProcessing {
		t.Fatalf("status = %q", task.Status)
	}
}

func TestGetTaskStatusUnknownTask(t *testing.T) {
	env := newTestEnv(taskConfig(), nil)

	_, err := env.svc.GetTaskStatus(context.Background(), "task-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	_, err = env.svc.GetTaskStatus(context.Background(), "   ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSweepExpiredTasksRemovesOldRows(t *testing.T) {
	env := newTestEnv(taskConfig(), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	old := domain.Task{TaskID: "task-old", Type: domain.TaskTypeText, Status: domain.TaskStatusCompleted, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now}
	fresh := domain.Task{TaskID: "task-fresh", Type: domain.TaskTypeText, Status: domain.TaskStatusPending, CreatedAt: now.Add(-10 * time.Minute), UpdatedAt: now}
	if err := env.tasks.CreateIfAbsent(ctx, old); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := env.tasks.CreateIfAbsent(ctx, fresh); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	removed, err := env.svc.SweepExpiredTasks(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := env.tasks.GetByID(ctx, "task-old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old task still present, err = %v", err)
	}
	if _, err := env.tasks.GetByID(ctx, "task-fresh"); err != nil {
		t.Fatalf("fresh task swept: %v", err)
	}
}

func TestCompareAndSwapGuardsDoubleTransition(t *testing.T) {
	env := newTestEnv(taskConfig(), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := domain.Task{TaskID: "task-done", Type: domain.TaskTypeText, Status: domain.TaskStatusCompleted, CreatedAt: now, UpdatedAt: now}
	if err := env.tasks.CreateIfAbsent(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := env.svc.failTask(ctx, "task-done", domain.TaskStatusProcessing, errors.New("late poller"))
	if !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}
}

func TestCompareAndSwapRejectsNonMonotonicWrite(t *testing.T) {
	env := newTestEnv(taskConfig(), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := domain.Task{TaskID: "task-done", Type: domain.TaskTypeText, Status: domain.TaskStatusCompleted, CreatedAt: now, UpdatedAt: now}
	if err := env.tasks.CreateIfAbsent(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A matching expectation does not help: terminal states never move again.
	_, err := env.tasks.CompareAndSwapStatus(ctx, "task-done", domain.TaskStatusCompleted, ports.TaskUpdate{
		Status:    domain.TaskStatusProcessing,
		UpdatedAt: now,
	})
	if !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}

	got, err := env.tasks.GetByID(ctx, "task-done")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %q, terminal state mutated", got.Status)
	}
}

func TestTaskLifecycleTransitions(t *testing.T) {
	allowed := [][2]string{
		{domain.TaskStatusPending, domain.TaskStatusProcessing},
		{domain.TaskStatusPending, domain.TaskStatusCompleted},
		{domain.TaskStatusPending, domain.TaskStatusFailed},
		{domain.TaskStatusProcessing, domain.TaskStatusCompleted},
		{domain.TaskStatusProcessing, domain.TaskStatusFailed},
	}
	denied := [][2]string{
		{domain.TaskStatusCompleted, domain.TaskStatusProcessing},
		{domain.TaskStatusCompleted, domain.TaskStatusFailed},
		{domain.TaskStatusFailed, domain.TaskStatusCompleted},
		{domain.TaskStatusFailed, domain.TaskStatusPending},
		{domain.TaskStatusProcessing, domain.TaskStatusPending},
	}
	for _, tc := range allowed {
		if !domain.CanTransition(tc[0], tc[1]) {
			t.Fatalf("%s -> %s refused", tc[0], tc[1])
		}
	}
	for _, tc := range denied {
		if domain.CanTransition(tc[0], tc[1]) {
			t.Fatalf("%s -> %s allowed", tc[0], tc[1])
		}
	}
}
