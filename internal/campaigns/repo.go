package campaigns

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Repository persists campaigns and their donation ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, campaign *models.Campaign) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	Search(ctx context.Context, params searchParams) ([]models.Campaign, int64, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	CreateDonation(ctx context.Context, donation *models.Donation) error
	FindDonationByRef(ctx context.Context, transactionRef string) (*models.Donation, error)
	FindDonationByRefForUpdate(ctx context.Context, transactionRef string) (*models.Donation, error)
	UpdateDonation(ctx context.Context, donation *models.Donation) error
	ListDonations(ctx context.Context, campaignID uuid.UUID) ([]models.Donation, error)
	SumSettled(ctx context.Context, campaignID uuid.UUID) (int64, error)
}

type searchParams struct {
	Query  string
	Status *enums.CampaignStatus
	Limit  int
	Offset int
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

func (r *repository) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Phases").Create(campaign).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Preload("Phases", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) Search(ctx context.Context, params searchParams) ([]models.Campaign, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Campaign{})
	if q := strings.TrimSpace(params.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?", like, like)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var campaigns []models.Campaign
	err := query.
		Order("created_at DESC, id DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&campaigns).Error
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *repository) Update(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]any{
			"status":              campaign.Status,
			"received_amount":     campaign.ReceivedAmount,
			"cancelled_for_cause": campaign.CancelledForCause,
			"cancel_reason":       campaign.CancelReason,
			"cancelled_at":        campaign.CancelledAt,
			"approved_at":         campaign.ApprovedAt,
			"updated_at":          campaign.UpdatedAt,
		}).Error
}

func (r *repository) CreateDonation(ctx context.Context, donation *models.Donation) error {
	if donation.ID == uuid.Nil {
		donation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(donation).Error
}

func (r *repository) FindDonationByRef(ctx context.Context, transactionRef string) (*models.Donation, error) {
	var donation models.Donation
	if err := r.db.WithContext(ctx).Where("transaction_ref = ?", transactionRef).First(&donation).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *repository) FindDonationByRefForUpdate(ctx context.Context, transactionRef string) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_ref = ?", transactionRef).
		First(&donation).Error
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *repository) UpdateDonation(ctx context.Context, donation *models.Donation) error {
	return r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ?", donation.ID).
		Updates(map[string]any{
			"status":     donation.Status,
			"settled_at": donation.SettledAt,
			"updated_at": donation.UpdatedAt,
		}).Error
}

func (r *repository) ListDonations(ctx context.Context, campaignID uuid.UUID) ([]models.Donation, error) {
	var donations []models.Donation
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC, id ASC").
		Find(&donations).Error
	if err != nil {
		return nil, err
	}
	return donations, nil
}

// SumSettled totals the settled donations of a campaign.
func (r *repository) SumSettled(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("campaign_id = ? AND status = ?", campaignID, enums.DonationStatusSettled).
		Scan(&total).Error
	return total, err
}
