package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repositories struct {
	Tasks         ports.TaskRepository
	Subscriptions ports.SubscriptionRepository
	Deliveries    ports.DeliveryRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Tasks:         &taskRepository{db: db},
		Subscriptions: &subscriptionRepository{db: db},
		Deliveries:    &deliveryRepository{db: db},
	}
}

type taskModel struct {
	TaskID         string     `gorm:"column:task_id;primaryKey"`
	Type           string     `gorm:"column:type"`
	Status         string     `gorm:"column:status"`
	Provider       string     `gorm:"column:provider"`
	Model          string     `gorm:"column:model"`
	ProviderTaskID string     `gorm:"column:provider_task_id"`
	Result         *string    `gorm:"column:result;type:jsonb"`
	Error          *string    `gorm:"column:error;type:jsonb"`
	Metadata       *string    `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
	SubmittedAt    *time.Time `gorm:"column:submitted_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
	FailedAt       *time.Time `gorm:"column:failed_at"`
}

func (taskModel) TableName() string { return "generation_tasks" }

type subscriptionModel struct {
	WebhookID string    `gorm:"column:webhook_id;primaryKey"`
	URL       string    `gorm:"column:url"`
	EventSet  string    `gorm:"column:event_set;type:jsonb"`
	Secret    string    `gorm:"column:secret"`
	Active    bool      `gorm:"column:active"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (subscriptionModel) TableName() string { return "webhook_subscriptions" }

type deliveryModel struct {
	DeliveryID   string    `gorm:"column:delivery_id;primaryKey"`
	WebhookID    string    `gorm:"column:webhook_id"`
	Event        string    `gorm:"column:event"`
	Payload      string    `gorm:"column:payload"`
	Attempt      int       `gorm:"column:attempt"`
	Outcome      string    `gorm:"column:outcome"`
	ResponseCode int       `gorm:"column:response_code"`
	Error        string    `gorm:"column:error"`
	Timestamp    time.Time `gorm:"column:ts"`
}

func (deliveryModel) TableName() string { return "webhook_deliveries" }

type taskRepository struct {
	db *gorm.DB
}

func (r *taskRepository) CreateIfAbsent(ctx context.Context, row domain.Task) error {
	rec, err := toTaskModel(row)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, taskID string) (domain.Task, error) {
	var rec taskModel
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	return toDomainTask(rec)
}

func (r *taskRepository) CompareAndSwapStatus(ctx context.Context, taskID, expect string, upd ports.TaskUpdate) (domain.Task, error) {
	if !domain.CanTransition(expect, upd.Status) {
		return domain.Task{}, domain.ErrStaleTransition
	}
	changes := map[string]any{
		"status":     upd.Status,
		"updated_at": upd.UpdatedAt,
	}
	if upd.ProviderTaskID != "" {
		changes["provider_task_id"] = upd.ProviderTaskID
	}
	if upd.SubmittedAt != nil {
		changes["submitted_at"] = *upd.SubmittedAt
	}
	if upd.CompletedAt != nil {
		changes["completed_at"] = *upd.CompletedAt
	}
	if upd.FailedAt != nil {
		changes["failed_at"] = *upd.FailedAt
	}
	if upd.Result != nil {
		raw, err := json.Marshal(upd.Result)
		if err != nil {
			return domain.Task{}, err
		}
		changes["result"] = string(raw)
	}
	if upd.Error != nil {
		raw, err := json.Marshal(upd.Error)
		if err != nil {
			return domain.Task{}, err
		}
		changes["error"] = string(raw)
	}

	res := r.db.WithContext(ctx).
		Model(&taskModel{}).
		Where("task_id = ?", taskID).
		Where("status = ?", expect).
		Updates(changes)
	if res.Error != nil {
		return domain.Task{}, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&taskModel{}).Where("task_id = ?", taskID).Count(&exists).Error; err != nil {
			return domain.Task{}, err
		}
		if exists == 0 {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, domain.ErrStaleTransition
	}
	return r.GetByID(ctx, taskID)
}

func (r *taskRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&taskModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

type subscriptionRepository struct {
	db *gorm.DB
}

func (r *subscriptionRepository) Create(ctx context.Context, row domain.Subscription) error {
	rec, err := toSubscriptionModel(row)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, webhookID string) (domain.Subscription, error) {
	var rec subscriptionModel
	if err := r.db.WithContext(ctx).Where("webhook_id = ?", webhookID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, err
	}
	return toDomainSubscription(rec)
}

func (r *subscriptionRepository) ListActiveForEvent(ctx context.Context, event string) ([]domain.Subscription, error) {
	var rows []subscriptionModel
	if err := r.db.WithContext(ctx).
		Where("active = TRUE").
		Where("event_set @> ?", `"`+event+`"`).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := toDomainSubscription(row)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

type deliveryRepository struct {
	db *gorm.DB
}

func (r *deliveryRepository) Append(ctx context.Context, row domain.Delivery) error {
	rec := deliveryModel{
		DeliveryID:   row.DeliveryID,
		WebhookID:    row.WebhookID,
		Event:        row.Event,
		Payload:      row.Payload,
		Attempt:      row.Attempt,
		Outcome:      row.Outcome,
		ResponseCode: row.ResponseCode,
		Error:        row.Error,
		Timestamp:    row.Timestamp,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *deliveryRepository) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]domain.Delivery, error) {
	var rows []deliveryModel
	if err := r.db.WithContext(ctx).
		Where("webhook_id = ?", strings.TrimSpace(webhookID)).
		Order("ts DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Delivery, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.Delivery{
			DeliveryID:   row.DeliveryID,
			WebhookID:    row.WebhookID,
			Event:        row.Event,
			Payload:      row.Payload,
			Attempt:      row.Attempt,
			Outcome:      row.Outcome,
			ResponseCode: row.ResponseCode,
			Error:        row.Error,
			Timestamp:    row.Timestamp,
		})
	}
	return result, nil
}

func toTaskModel(row domain.Task) (taskModel, error) {
	rec := taskModel{
		TaskID:         row.TaskID,
		Type:           row.Type,
		Status:         row.Status,
		Provider:       row.Provider,
		Model:          row.Model,
		ProviderTaskID: row.ProviderTaskID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		SubmittedAt:    row.SubmittedAt,
		CompletedAt:    row.CompletedAt,
		FailedAt:       row.FailedAt,
	}
	if row.Result != nil {
		raw, err := json.Marshal(row.Result)
		if err != nil {
			return taskModel{}, err
		}
		rec.Result = jsonbString(raw)
	}
	if row.Error != nil {
		raw, err := json.Marshal(row.Error)
		if err != nil {
			return taskModel{}, err
		}
		rec.Error = jsonbString(raw)
	}
	raw, err := json.Marshal(row.Metadata)
	if err != nil {
		return taskModel{}, err
	}
	rec.Metadata = jsonbString(raw)
	return rec, nil
}

func toDomainTask(rec taskModel) (domain.Task, error) {
	out := domain.Task{
		TaskID:         rec.TaskID,
		Type:           rec.Type,
		Status:         rec.Status,
		Provider:       rec.Provider,
		Model:          rec.Model,
		ProviderTaskID: rec.ProviderTaskID,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		SubmittedAt:    rec.SubmittedAt,
		CompletedAt:    rec.CompletedAt,
		FailedAt:       rec.FailedAt,
	}
	if rec.Result != nil {
		var result domain.TaskResult
		if err := json.Unmarshal([]byte(*rec.Result), &result); err != nil {
			return domain.Task{}, err
		}
		out.Result = &result
	}
	if rec.Error != nil {
		var taskErr domain.TaskError
		if err := json.Unmarshal([]byte(*rec.Error), &taskErr); err != nil {
			return domain.Task{}, err
		}
		out.Error = &taskErr
	}
	if rec.Metadata != nil {
		if err := json.Unmarshal([]byte(*rec.Metadata), &out.Metadata); err != nil {
			return domain.Task{}, err
		}
	}
	return out, nil
}

func toSubscriptionModel(row domain.Subscription) (subscriptionModel, error) {
	events, err := json.Marshal(row.EventSet)
	if err != nil {
		return subscriptionModel{}, err
	}
	return subscriptionModel{
		WebhookID: row.WebhookID,
		URL:       row.URL,
		EventSet:  string(events),
		Secret:    row.Secret,
		Active:    row.Active,
		CreatedAt: row.CreatedAt,
	}, nil
}

func toDomainSubscription(rec subscriptionModel) (domain.Subscription, error) {
	out := domain.Subscription{
		WebhookID: rec.WebhookID,
		URL:       rec.URL,
		Secret:    rec.Secret,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
	}
	if err := json.Unmarshal([]byte(rec.EventSet), &out.EventSet); err != nil {
		return domain.Subscription{}, err
	}
	return out, nil
}

func jsonbString(raw []byte) *string {
	s := string(raw)
	return &s
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
