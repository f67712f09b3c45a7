package expenseproofs

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
)

// Repository persists expense proofs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, proof *models.ExpenseProof) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ExpenseProof, error)
	ListBySubmitter(ctx context.Context, submittedBy uuid.UUID, requestID *uuid.UUID) ([]models.ExpenseProof, error)
	UpdateReview(ctx context.Context, proof *models.ExpenseProof) error
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

func (r *repository) Create(ctx context.Context, proof *models.ExpenseProof) error {
	if proof.ID == uuid.Nil {
		proof.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(proof).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ExpenseProof, error) {
	var proof models.ExpenseProof
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&proof).Error; err != nil {
		return nil, err
	}
	return &proof, nil
}

func (r *repository) ListBySubmitter(ctx context.Context, submittedBy uuid.UUID, requestID *uuid.UUID) ([]models.ExpenseProof, error) {
	query := r.db.WithContext(ctx).Where("submitted_by = ?", submittedBy)
	if requestID != nil {
		query = query.Where("operation_request_id = ?", *requestID)
	}
	var proofs []models.ExpenseProof
	if err := query.Order("created_at DESC, id DESC").Find(&proofs).Error; err != nil {
		return nil, err
	}
	return proofs, nil
}

func (r *repository) UpdateReview(ctx context.Context, proof *models.ExpenseProof) error {
	return r.db.WithContext(ctx).
		Model(&models.ExpenseProof{}).
		Where("id = ?", proof.ID).
		Updates(map[string]any{
			"status":      proof.Status,
			"admin_note":  proof.AdminNote,
			"reviewed_by": proof.ReviewedBy,
			"reviewed_at": proof.ReviewedAt,
			"updated_at":  proof.UpdatedAt,
		}).Error
}
