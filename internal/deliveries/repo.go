package deliveries

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

// Repository persists delivery tasks and their status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.DeliveryTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryTask, error)
	List(ctx context.Context, params listParams) ([]models.DeliveryTask, *pagination.Cursor, error)
	ListByAssignee(ctx context.Context, assignedTo uuid.UUID, limit, offset int) ([]models.DeliveryTask, error)
	UpdateStatus(ctx context.Context, task *models.DeliveryTask) error
	AppendLog(ctx context.Context, entry *models.DeliveryStatusLog) error
	CountUndelivered(ctx context.Context, mealBatchID uuid.UUID) (int64, error)
	MarkBatchDelivered(ctx context.Context, mealBatchID uuid.UUID) error
}

// Filter narrows the admin delivery task listing.
type Filter struct {
	PhaseID     *uuid.UUID
	MealBatchID *uuid.UUID
	AssignedTo  *uuid.UUID
	Status      *enums.DeliveryTaskStatus
}

type listParams struct {
	Filter
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, task *models.DeliveryTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("StatusLogs").Create(task).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryTask, error) {
	var task models.DeliveryTask
	err := r.db.WithContext(ctx).
		Preload("StatusLogs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// List pages newest first; the returned cursor points at the first row of the next page.
func (r *repository) List(ctx context.Context, params listParams) ([]models.DeliveryTask, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.DeliveryTask{})
	if params.PhaseID != nil {
		query = query.Where("campaign_phase_id = ?", *params.PhaseID)
	}
	if params.MealBatchID != nil {
		query = query.Where("meal_batch_id = ?", *params.MealBatchID)
	}
	if params.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *params.AssignedTo)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id <= ?)", params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var tasks []models.DeliveryTask
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&tasks).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(tasks, params.Limit, func(t models.DeliveryTask) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

func (r *repository) ListByAssignee(ctx context.Context, assignedTo uuid.UUID, limit, offset int) ([]models.DeliveryTask, error) {
	var tasks []models.DeliveryTask
	err := r.db.WithContext(ctx).
		Where("assigned_to = ?", assignedTo).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) UpdateStatus(ctx context.Context, task *models.DeliveryTask) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":       task.Status,
			"assigned_to":  task.AssignedTo,
			"delivered_at": task.DeliveredAt,
			"updated_at":   task.UpdatedAt,
		}).Error
}

func (r *repository) AppendLog(ctx context.Context, entry *models.DeliveryStatusLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CountUndelivered(ctx context.Context, mealBatchID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryTask{}).
		Where("meal_batch_id = ? AND status <> ?", mealBatchID, enums.DeliveryTaskStatusDelivered).
		Count(&count).Error
	return count, err
}

func (r *repository) MarkBatchDelivered(ctx context.Context, mealBatchID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.MealBatch{}).
		Where("id = ? AND status = ?", mealBatchID, enums.MealBatchStatusReady).
		Update("status", enums.MealBatchStatusDelivered).Error
}
