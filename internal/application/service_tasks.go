package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

type StartGenerationInput struct {
	Spec domain.GenerationSpec
}

// CreateTask registers a pending task without any provider call. Ids are
// unknowable to the caller until returned; the repository insert is
// create-if-absent so concurrent creations can never collide on an id.
func (s *Service) CreateTask(ctx context.Context, actor Actor, spec domain.GenerationSpec) (domain.Task, error) {
	if !domain.IsValidTaskType(strings.TrimSpace(spec.Type)) {
		return domain.Task{}, domain.ErrInvalidInput
	}
	adapter, err := s.selectProvider(spec.Type)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.nowFn()
	row := domain.Task{
		TaskID:    "task-" + uuid.NewString(),
		Type:      spec.Type,
		Status:    domain.TaskStatusPending,
		Provider:  adapter.Name(),
		Model:     spec.Model,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: domain.TaskMetadata{
			UserID:      actor.Identity.Value,
			SpecSummary: spec.Summary(),
		},
	}
	if err := s.tasks.CreateIfAbsent(ctx, row); err != nil {
		return domain.Task{}, err
	}
	return row, nil
}

// Submit drives one task through its provider adapter. Synchronous adapters
// complete the task inline; asynchronous ones move it to processing and hand
// it to the poller. At most one in-flight submission per task id is
// guaranteed by the pending->processing CAS.
func (s *Service) Submit(ctx context.Context, task domain.Task, spec domain.GenerationSpec) (domain.Task, error) {
	adapter, err := s.selectProvider(task.Type)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.nowFn()

	if !adapter.Async() {
		result, genErr := adapter.Generate(ctx, spec)
		if genErr != nil {
			return s.failTask(ctx, task.TaskID, domain.TaskStatusPending, genErr)
		}
		updated, casErr := s.tasks.CompareAndSwapStatus(ctx, task.TaskID, domain.TaskStatusPending, ports.TaskUpdate{
			Status:      domain.TaskStatusCompleted,
			SubmittedAt: &now,
			CompletedAt: &now,
			Result:      &result,
			UpdatedAt:   now,
		})
		if casErr != nil {
			return domain.Task{}, casErr
		}
		s.recordTerminal(ctx, updated)
		return updated, nil
	}

	providerTaskID, subErr := adapter.SubmitAsync(ctx, spec)
	if subErr != nil {
		return s.failTask(ctx, task.TaskID, domain.TaskStatusPending, subErr)
	}
	updated, casErr := s.tasks.CompareAndSwapStatus(ctx, task.TaskID, domain.TaskStatusPending, ports.TaskUpdate{
		Status:         domain.TaskStatusProcessing,
		ProviderTaskID: providerTaskID,
		SubmittedAt:    &now,
		UpdatedAt:      now,
	})
	if casErr != nil {
		return domain.Task{}, casErr
	}
	s.activeTasks.Add(1)
	if s.metrics != nil {
		s.metrics.SetActiveTasks(s.activeTasks.Load())
	}
	go s.pollUntilTerminal(context.WithoutCancel(ctx), adapter, updated.TaskID, providerTaskID)
	return updated, nil
}

// StartGeneration is the request-path composite: create then submit.
func (s *Service) StartGeneration(ctx context.Context, actor Actor, in StartGenerationInput) (domain.Task, error) {
	task, err := s.CreateTask(ctx, actor, in.Spec)
	if err != nil {
		return domain.Task{}, err
	}
	return s.Submit(ctx, task, in.Spec)
}

// GetTaskStatus returns the current stored view without forcing a provider
// round-trip.
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) (domain.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.Task{}, domain.ErrInvalidInput
	}
	return s.tasks.GetByID(ctx, taskID)
}

// GetTaskResult returns the result payload only once the task completed;
// otherwise the current status view with no result attached.
func (s *Service) GetTaskResult(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.GetTaskStatus(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.Status != domain.TaskStatusCompleted {
		task.Result = nil
	}
	return task, nil
}

// SweepExpiredTasks removes tasks older than the retention max age,
// terminal or not, bounding unbounded growth.
func (s *Service) SweepExpiredTasks(ctx context.Context) (int64, error) {
	cutoff := s.nowFn().Add(-s.cfg.Retention.MaxAge)
	removed, err := s.tasks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "task retention sweep completed",
			"module", "tasks",
			"operation", "retention_sweep",
			"outcome", "success",
			"removed", removed,
			"cutoff", cutoff,
		)
	}
	return removed, nil
}

// RunRetentionSweeper loops the sweep on its configured interval until the
// context ends.
func (s *Service) RunRetentionSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Retention.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := s.SweepExpiredTasks(ctx); err != nil {
			s.logger.ErrorContext(ctx, "task retention sweep failed",
				"module", "tasks",
				"operation", "retention_sweep",
				"outcome", "failure",
				"error", err.Error(),
			)
		}
	}
}

// failTask finalizes a task with the normalized provider error taxonomy.
func (s *Service) failTask(ctx context.Context, taskID, expect string, cause error) (domain.Task, error) {
	now := s.nowFn()
	taskErr := &domain.TaskError{Code: domain.ProviderErrUnknown, Message: cause.Error()}
	var perr *domain.ProviderError
	if errors.As(cause, &perr) {
		taskErr.Code = perr.Code
		taskErr.Message = perr.Message
	}
	updated, casErr := s.tasks.CompareAndSwapStatus(ctx, taskID, expect, ports.TaskUpdate{
		Status:    domain.TaskStatusFailed,
		FailedAt:  &now,
		Error:     taskErr,
		UpdatedAt: now,
	})
	if casErr != nil {
		return domain.Task{}, casErr
	}
	s.recordTerminal(ctx, updated)
	return updated, cause
}

// recordTerminal funnels every terminal transition into metrics and webhook
// fan-out. Webhook dispatch is fire-and-forget and never blocks the caller.
func (s *Service) recordTerminal(ctx context.Context, task domain.Task) {
	if s.metrics != nil {
		s.metrics.RecordTaskOutcome(task.Status)
	}
	s.NotifyTaskTerminal(ctx, task)
}
