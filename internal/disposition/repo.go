package disposition

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Repository reads campaign ledgers and records dispositions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCampaign(ctx context.Context, campaignID uuid.UUID) (*models.CampaignDisposition, error)
	Create(ctx context.Context, disposition *models.CampaignDisposition) error
	CreateDonationRow(ctx context.Context, row *models.DonationDisposition) error
	LockCampaign(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)
	SettledDonations(ctx context.Context, campaignID uuid.UUID) ([]models.Donation, error)
	CloseCampaign(ctx context.Context, campaignID uuid.UUID, at time.Time) error
	DueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
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

func (r *repository) FindByCampaign(ctx context.Context, campaignID uuid.UUID) (*models.CampaignDisposition, error) {
	var disposition models.CampaignDisposition
	err := r.db.WithContext(ctx).
		Preload("Donations", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("campaign_id = ?", campaignID).
		First(&disposition).Error
	if err != nil {
		return nil, err
	}
	return &disposition, nil
}

// Create inserts the disposition with its per-donation rows.
func (r *repository) Create(ctx context.Context, disposition *models.CampaignDisposition) error {
	if disposition.ID == uuid.Nil {
		disposition.ID = uuid.New()
	}
	for i := range disposition.Donations {
		if disposition.Donations[i].ID == uuid.Nil {
			disposition.Donations[i].ID = uuid.New()
		}
		disposition.Donations[i].DispositionID = disposition.ID
	}
	return r.db.WithContext(ctx).Create(disposition).Error
}

func (r *repository) CreateDonationRow(ctx context.Context, row *models.DonationDisposition) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) LockCampaign(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", campaignID).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) SettledDonations(ctx context.Context, campaignID uuid.UUID) ([]models.Donation, error) {
	var donations []models.Donation
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, enums.DonationStatusSettled).
		Order("created_at ASC, id ASC").
		Find(&donations).Error
	if err != nil {
		return nil, err
	}
	return donations, nil
}

func (r *repository) CloseCampaign(ctx context.Context, campaignID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, enums.CampaignStatusActive).
		Updates(map[string]any{
			"status":     enums.CampaignStatusClosed,
			"updated_at": at,
		}).Error
}

// DueForClose lists active campaigns whose fundraising window has ended and
// that have no recorded disposition yet.
func (r *repository) DueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("status = ? AND fundraising_end_date <= ?", enums.CampaignStatusActive, now).
		Where("NOT EXISTS (SELECT 1 FROM campaign_dispositions d WHERE d.campaign_id = campaigns.id)").
		Order("fundraising_end_date ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
