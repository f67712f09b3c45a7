package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

const defaultCloseBatchSize = 100

type campaignCloser interface {
	CloseDue(ctx context.Context, limit int) ([]models.CampaignDisposition, error)
}

// CampaignCloseJobParams configure the campaign close job.
type CampaignCloseJobParams struct {
	Logger    *logger.Logger
	Closer    campaignCloser
	BatchSize int
}

// NewCampaignCloseJob resolves the fund disposition of campaigns whose
// fundraising window has ended.
func NewCampaignCloseJob(params CampaignCloseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Closer == nil {
		return nil, fmt.Errorf("campaign closer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCloseBatchSize
	}
	return &campaignCloseJob{logg: params.Logger, closer: params.Closer, batch: batch}, nil
}

type campaignCloseJob struct {
	logg   *logger.Logger
	closer campaignCloser
	batch  int
}

func (j *campaignCloseJob) Name() string { return "campaign-close" }

func (j *campaignCloseJob) Run(ctx context.Context) error {
	resolved, err := j.closer.CloseDue(ctx, j.batch)

	counts := map[enums.DispositionOutcome]int{}
	for _, disposition := range resolved {
		counts[disposition.Outcome]++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"closed":   len(resolved),
		"refunded": counts[enums.DispositionOutcomeRefundFull],
		"swept":    counts[enums.DispositionOutcomeSweepGeneralFund],
		"kept":     counts[enums.DispositionOutcomeNone],
	})
	if err != nil {
		return fmt.Errorf("close due campaigns: %w", err)
	}
	if len(resolved) > 0 {
		j.logg.Info(logCtx, "campaigns closed")
	}
	return nil
}
