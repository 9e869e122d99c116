package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

// pollUntilTerminal watches one asynchronous provider task until it reaches a
// terminal status or the attempt ceiling is hit. One goroutine per task; the
// processing->terminal CAS makes a concurrent finalizer (or a retention
// sweep) safe to race against.
func (s *Service) pollUntilTerminal(ctx context.Context, adapter ports.ProviderAdapter, taskID, providerTaskID string) {
	defer func() {
		s.activeTasks.Add(-1)
		if s.metrics != nil {
			s.metrics.SetActiveTasks(s.activeTasks.Load())
		}
	}()

	log := s.logger.With("module", "poller", "task_id", taskID, "provider", adapter.Name())

	if !s.sleepFor(ctx, s.cfg.Poller.InitialDelay) {
		return
	}

	for attempt := 1; attempt <= s.cfg.Poller.MaxAttempts; attempt++ {
		stored, err := s.tasks.GetByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Swept or deleted out from under us; nothing left to track.
				return
			}
			log.WarnContext(ctx, "task re-read failed, continuing poll",
				"operation", "poll",
				"outcome", "degraded",
				"attempt", attempt,
				"error", err.Error(),
			)
		} else if stored.IsTerminal() {
			return
		}

		status, pollErr := adapter.PollTask(ctx, providerTaskID)
		if pollErr != nil {
			var perr *domain.ProviderError
			if errors.As(pollErr, &perr) && !perr.Retryable {
				s.finishPolling(ctx, taskID, pollErr)
				return
			}
			log.WarnContext(ctx, "provider poll failed, will retry",
				"operation", "poll",
				"outcome", "degraded",
				"attempt", attempt,
				"error", pollErr.Error(),
			)
		} else {
			switch status.Status {
			case domain.TaskStatusCompleted:
				s.completePolling(ctx, taskID, status.Result)
				return
			case domain.TaskStatusFailed:
				msg := status.Error
				if msg == "" {
					msg = "provider reported failure"
				}
				s.finishPolling(ctx, taskID,
					domain.NewProviderError(domain.ProviderErrUnknown, msg, false))
				return
			default:
				log.DebugContext(ctx, "task still processing",
					"operation", "poll",
					"attempt", attempt,
					"progress", status.Progress,
				)
			}
		}

		if !s.sleepFor(ctx, s.cfg.Poller.Interval) {
			return
		}
	}

	s.finishPolling(ctx, taskID, domain.NewProviderError(
		domain.ProviderErrTimeout,
		fmt.Sprintf("no terminal status after %d polls", s.cfg.Poller.MaxAttempts),
		false,
	))
}

func (s *Service) completePolling(ctx context.Context, taskID string, result *domain.TaskResult) {
	now := s.nowFn()
	if result == nil {
		result = &domain.TaskResult{}
	}
	updated, err := s.tasks.CompareAndSwapStatus(ctx, taskID, domain.TaskStatusProcessing, ports.TaskUpdate{
		Status:      domain.TaskStatusCompleted,
		CompletedAt: &now,
		Result:      result,
		UpdatedAt:   now,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrStaleTransition) && !errors.Is(err, domain.ErrNotFound) {
			s.logger.ErrorContext(ctx, "task completion write failed",
				"module", "poller",
				"operation", "complete",
				"outcome", "failure",
				"task_id", taskID,
				"error", err.Error(),
			)
		}
		return
	}
	s.recordTerminal(ctx, updated)
}

func (s *Service) finishPolling(ctx context.Context, taskID string, cause error) {
	if _, err := s.failTask(ctx, taskID, domain.TaskStatusProcessing, cause); err != nil && !errors.Is(err, cause) {
		if !errors.Is(err, domain.ErrStaleTransition) && !errors.Is(err, domain.ErrNotFound) {
			s.logger.ErrorContext(ctx, "task failure write failed",
				"module", "poller",
				"operation", "fail",
				"outcome", "failure",
				"task_id", taskID,
				"error", err.Error(),
			)
		}
	}
}

// sleepFor waits d or until the context ends, reporting whether the poll loop
// should continue.
func (s *Service) sleepFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
