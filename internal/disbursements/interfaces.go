package disbursements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Repository persists operation (disbursement) requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.OperationRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.OperationRequest, error)
	UpdateReview(ctx context.Context, request *models.OperationRequest) error
	HasPending(ctx context.Context, phaseID uuid.UUID, expenseType enums.ExpenseType) (bool, error)
	CountRejected(ctx context.Context, phaseID uuid.UUID, expenseType enums.ExpenseType) (int64, error)
	ListByRequester(ctx context.Context, params listParams) ([]models.OperationRequest, error)
	ListByPhase(ctx context.Context, phaseID uuid.UUID) ([]models.OperationRequest, error)
}

type listParams struct {
	RequestedBy uuid.UUID
	Limit       int
	Offset      int
	OrderBy     string
}
