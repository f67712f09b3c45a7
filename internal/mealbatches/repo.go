package mealbatches

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Repository persists meal batches and their ingredient usages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, batch *models.MealBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MealBatch, error)
	List(ctx context.Context, filter ListFilter) ([]models.MealBatch, error)
	UpdateStatus(ctx context.Context, batch *models.MealBatch) error
}

// ListFilter narrows meal batch listings.
type ListFilter struct {
	PhaseID    *uuid.UUID
	Status     *enums.MealBatchStatus
	PreparedBy *uuid.UUID
	Limit      int
	Offset     int
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

func (r *repository) Create(ctx context.Context, batch *models.MealBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	for i := range batch.IngredientUsages {
		if batch.IngredientUsages[i].ID == uuid.Nil {
			batch.IngredientUsages[i].ID = uuid.New()
		}
		batch.IngredientUsages[i].MealBatchID = batch.ID
	}
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MealBatch, error) {
	var batch models.MealBatch
	if err := r.db.WithContext(ctx).Preload("IngredientUsages").Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.MealBatch, error) {
	query := r.db.WithContext(ctx).Model(&models.MealBatch{})
	if filter.PhaseID != nil {
		query = query.Where("campaign_phase_id = ?", *filter.PhaseID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PreparedBy != nil {
		query = query.Where("prepared_by = ?", *filter.PreparedBy)
	}

	var batches []models.MealBatch
	err := query.
		Preload("IngredientUsages").
		Order("created_at DESC, id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) UpdateStatus(ctx context.Context, batch *models.MealBatch) error {
	return r.db.WithContext(ctx).
		Model(&models.MealBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]any{
			"status":      batch.Status,
			"cooked_date": batch.CookedDate,
			"media":       batch.Media,
			"updated_at":  batch.UpdatedAt,
		}).Error
}
