package phases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Repository defines persistence operations for campaign phases and their event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, phase *models.CampaignPhase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignPhase, error)
	UpdateWithVersion(ctx context.Context, phase *models.CampaignPhase, expectedVersion int64) (bool, error)
	AppendEvent(ctx context.Context, event *models.PhaseEvent) error
	EventExists(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, sourceID uuid.UUID) (bool, error)
	NextSequence(ctx context.Context, phaseID uuid.UUID) (int64, error)
	ListEvents(ctx context.Context, phaseID uuid.UUID) ([]models.PhaseEvent, error)
	CountDeliveryTasks(ctx context.Context, phaseID uuid.UUID) (total int64, outstanding int64, err error)
	RejectPendingDisbursements(ctx context.Context, phaseID uuid.UUID, note string, at time.Time) ([]models.OperationRequest, error)
}
