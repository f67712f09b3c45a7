package phases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a phases repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, phase *models.CampaignPhase) error {
	if phase.ID == uuid.Nil {
		phase.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(phase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error) {
	var phase models.CampaignPhase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&phase).Error; err != nil {
		return nil, err
	}
	return &phase, nil
}

// FindByIDForUpdate row-locks the phase for the remainder of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error) {
	var phase models.CampaignPhase
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&phase).Error
	if err != nil {
		return nil, err
	}
	return &phase, nil
}

func (r *repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignPhase, error) {
	var phases []models.CampaignPhase
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("position ASC").
		Find(&phases).Error
	if err != nil {
		return nil, err
	}
	return phases, nil
}

// UpdateWithVersion writes the mutable columns only when the stored version
// still equals expectedVersion. It reports false when another writer won.
func (r *repository) UpdateWithVersion(ctx context.Context, phase *models.CampaignPhase, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CampaignPhase{}).
		Where("id = ? AND version = ?", phase.ID, expectedVersion).
		Updates(map[string]any{
			"status":                   phase.Status,
			"ingredient_fund_amount":   phase.IngredientFundAmount,
			"cooking_fund_amount":      phase.CookingFundAmount,
			"delivery_fund_amount":     phase.DeliveryFundAmount,
			"ingredient_disbursed":     phase.IngredientDisbursed,
			"cooking_disbursed":        phase.CookingDisbursed,
			"delivery_disbursed":       phase.DeliveryDisbursed,
			"ingredient_purchase_date": phase.IngredientPurchaseDate,
			"cooking_date":             phase.CookingDate,
			"delivery_date":            phase.DeliveryDate,
			"audit_rejections":         phase.AuditRejections,
			"terminal_reason":          phase.TerminalReason,
			"version":                  phase.Version,
			"updated_at":               time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.PhaseEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) EventExists(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, sourceID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PhaseEvent{}).
		Where("campaign_phase_id = ? AND event_type = ? AND source_id = ?", phaseID, eventType, sourceID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) NextSequence(ctx context.Context, phaseID uuid.UUID) (int64, error) {
	var last int64
	err := r.db.WithContext(ctx).
		Model(&models.PhaseEvent{}).
		Where("campaign_phase_id = ?", phaseID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (r *repository) ListEvents(ctx context.Context, phaseID uuid.UUID) ([]models.PhaseEvent, error) {
	var events []models.PhaseEvent
	err := r.db.WithContext(ctx).
		Where("campaign_phase_id = ?", phaseID).
		Order("sequence ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountDeliveryTasks returns how many delivery tasks the phase has and how
// many of them are not yet delivered.
func (r *repository) CountDeliveryTasks(ctx context.Context, phaseID uuid.UUID) (int64, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.DeliveryTask{}).
		Where("campaign_phase_id = ?", phaseID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	var outstanding int64
	if err := r.db.WithContext(ctx).
		Model(&models.DeliveryTask{}).
		Where("campaign_phase_id = ? AND status <> ?", phaseID, enums.DeliveryTaskStatusDelivered).
		Count(&outstanding).Error; err != nil {
		return 0, 0, err
	}
	return total, outstanding, nil
}

// RejectPendingDisbursements closes every pending operation request of the
// phase and returns them as stored.
func (r *repository) RejectPendingDisbursements(ctx context.Context, phaseID uuid.UUID, note string, at time.Time) ([]models.OperationRequest, error) {
	var pending []models.OperationRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_phase_id = ? AND status = ?", phaseID, enums.ReviewStatusPending).
		Order("created_at ASC, id ASC").
		Find(&pending).Error
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(pending))
	for i := range pending {
		ids = append(ids, pending[i].ID)
		pending[i].Status = enums.ReviewStatusRejected
		pending[i].AdminNote = &note
		pending[i].ReviewedAt = &at
		pending[i].UpdatedAt = at
	}
	err = r.db.WithContext(ctx).
		Model(&models.OperationRequest{}).
		Where("id IN ? AND status = ?", ids, enums.ReviewStatusPending).
		Updates(map[string]any{
			"status":      enums.ReviewStatusRejected,
			"admin_note":  note,
			"reviewed_at": at,
			"updated_at":  at,
		}).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}
