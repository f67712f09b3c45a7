package disbursements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns an operation request repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.OperationRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OperationRequest, error) {
	var request models.OperationRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// UpdateReview writes the review outcome of a request.
func (r *repository) UpdateReview(ctx context.Context, request *models.OperationRequest) error {
	return r.db.WithContext(ctx).
		Model(&models.OperationRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]any{
			"status":      request.Status,
			"admin_note":  request.AdminNote,
			"reviewed_by": request.ReviewedBy,
			"reviewed_at": request.ReviewedAt,
			"updated_at":  request.UpdatedAt,
		}).Error
}

func (r *repository) HasPending(ctx context.Context, phaseID uuid.UUID, expenseType enums.ExpenseType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OperationRequest{}).
		Where("campaign_phase_id = ? AND expense_type = ? AND status = ?", phaseID, expenseType, enums.ReviewStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CountRejected(ctx context.Context, phaseID uuid.UUID, expenseType enums.ExpenseType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OperationRequest{}).
		Where("campaign_phase_id = ? AND expense_type = ? AND status = ?", phaseID, expenseType, enums.ReviewStatusRejected).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByRequester(ctx context.Context, params listParams) ([]models.OperationRequest, error) {
	var requests []models.OperationRequest
	err := r.db.WithContext(ctx).
		Where("requested_by = ?", params.RequestedBy).
		Order(params.OrderBy).
		Order("id DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListByPhase(ctx context.Context, phaseID uuid.UUID) ([]models.OperationRequest, error) {
	var requests []models.OperationRequest
	err := r.db.WithContext(ctx).
		Where("campaign_phase_id = ?", phaseID).
		Order("created_at ASC, id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
