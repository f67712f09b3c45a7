package ingredients

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Repository persists ingredient requests and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.IngredientRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.IngredientRequest, error)
	FindItems(ctx context.Context, ids []uuid.UUID) ([]models.IngredientRequestItem, error)
	List(ctx context.Context, filter ListFilter) ([]models.IngredientRequest, error)
	UpdateReview(ctx context.Context, request *models.IngredientRequest) error
}

// ListFilter narrows ingredient request listings.
type ListFilter struct {
	PhaseID *uuid.UUID
	Status  *enums.ReviewStatus
	Limit   int
	Offset  int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an ingredient request repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the request together with its items.
func (r *repository) Create(ctx context.Context, request *models.IngredientRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	for i := range request.Items {
		if request.Items[i].ID == uuid.Nil {
			request.Items[i].ID = uuid.New()
		}
		request.Items[i].IngredientRequestID = request.ID
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.IngredientRequest, error) {
	var request models.IngredientRequest
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindItems(ctx context.Context, ids []uuid.UUID) ([]models.IngredientRequestItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.IngredientRequestItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.IngredientRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.IngredientRequest{})
	if filter.PhaseID != nil {
		query = query.Where("campaign_phase_id = ?", *filter.PhaseID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var requests []models.IngredientRequest
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC, id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) UpdateReview(ctx context.Context, request *models.IngredientRequest) error {
	return r.db.WithContext(ctx).
		Model(&models.IngredientRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]any{
			"status":      request.Status,
			"admin_note":  request.AdminNote,
			"reviewed_by": request.ReviewedBy,
			"reviewed_at": request.ReviewedAt,
			"updated_at":  request.UpdatedAt,
		}).Error
}
