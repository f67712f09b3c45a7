package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// MilestoneStatus labels a milestone relative to now.
type MilestoneStatus string

const (
	StatusDone     MilestoneStatus = "done"
	StatusCurrent  MilestoneStatus = "current"
	StatusUpcoming MilestoneStatus = "upcoming"
)

// MilestoneKind identifies what a milestone marks.
type MilestoneKind string

const (
	KindCampaignCreated    MilestoneKind = "campaign_created"
	KindFundraisingStart   MilestoneKind = "fundraising_start"
	KindFundraisingEnd     MilestoneKind = "fundraising_end"
	KindIngredientPurchase MilestoneKind = "ingredient_purchase"
	KindCooking            MilestoneKind = "cooking"
	KindDelivery           MilestoneKind = "delivery"
)

// Milestone is one entry of a campaign timeline.
type Milestone struct {
	Kind      MilestoneKind   `json:"kind"`
	Label     string          `json:"label"`
	PhaseID   *uuid.UUID      `json:"phaseId,omitempty"`
	PhaseName string          `json:"phaseName,omitempty"`
	At        *time.Time      `json:"at,omitempty"`
	Status    MilestoneStatus `json:"status"`
}

// PhaseSummary shows where each phase stands next to the milestones.
type PhaseSummary struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Position    int               `json:"position"`
	Status      enums.PhaseStatus `json:"status"`
	StatusLabel string            `json:"statusLabel"`
}

// Timeline is the projected view of a campaign.
type Timeline struct {
	CampaignID  uuid.UUID      `json:"campaignId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Phases      []PhaseSummary `json:"phases"`
	Milestones  []Milestone    `json:"milestones"`
}

// Project derives the milestone sequence for a campaign. It reads only its
// arguments and is safe to call concurrently.
func Project(campaign models.Campaign, phases []models.CampaignPhase, now time.Time) Timeline {
	milestones := []Milestone{
		dated(KindCampaignCreated, "Campaign created", nonZero(campaign.CreatedAt)),
		dated(KindFundraisingStart, "Fundraising starts", nonZero(campaign.FundraisingStartDate)),
		dated(KindFundraisingEnd, "Fundraising ends", nonZero(campaign.FundraisingEndDate)),
	}

	ordered := make([]models.CampaignPhase, len(phases))
	copy(ordered, phases)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	summaries := make([]PhaseSummary, 0, len(ordered))
	for _, phase := range ordered {
		status := phase.PhaseStatus()
		summaries = append(summaries, PhaseSummary{ID: phase.ID, Name: phase.Name, Position: phase.Position, Status: status, StatusLabel: status.Label()})
		milestones = append(milestones, phaseMilestones(phase)...)
	}

	for i := range milestones {
		if milestones[i].At != nil && !milestones[i].At.After(now) {
			milestones[i].Status = StatusDone
		} else {
			milestones[i].Status = StatusUpcoming
		}
	}
	markCurrent(milestones)

	return Timeline{CampaignID: campaign.ID, GeneratedAt: now.UTC(), Phases: summaries, Milestones: milestones}
}

func phaseMilestones(phase models.CampaignPhase) []Milestone {
	id := phase.ID
	steps := []struct {
		kind  MilestoneKind
		label string
		at    *time.Time
	}{
		{KindIngredientPurchase, "Ingredients purchased", phase.IngredientPurchaseDate},
		{KindCooking, "Meals cooked", phase.CookingDate},
		{KindDelivery, "Meals delivered", phase.DeliveryDate},
	}

	open := !phase.PhaseStatus().IsTerminal()
	var out []Milestone
	for _, step := range steps {
		if step.at == nil {
			if open {
				out = append(out, Milestone{Kind: step.kind, Label: fmt.Sprintf("%s: %s", phase.Name, step.label), PhaseID: &id, PhaseName: phase.Name})
			}
			break
		}
		at := step.at.UTC()
		out = append(out, Milestone{Kind: step.kind, Label: fmt.Sprintf("%s: %s", phase.Name, step.label), PhaseID: &id, PhaseName: phase.Name, At: &at})
	}
	return out
}

// markCurrent relabels the first upcoming milestone, or the last one when
// everything is done.
func markCurrent(milestones []Milestone) {
	if len(milestones) == 0 {
		return
	}
	for i := range milestones {
		if milestones[i].Status == StatusUpcoming {
			milestones[i].Status = StatusCurrent
			return
		}
	}
	milestones[len(milestones)-1].Status = StatusCurrent
}

func dated(kind MilestoneKind, label string, at *time.Time) Milestone {
	return Milestone{Kind: kind, Label: label, At: at}
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

type campaignReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

type phaseLister interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignPhase, error)
}

// Service loads current campaign state and projects it on every call.
type Service struct {
	campaigns campaignReader
	phases    phaseLister
	now       func() time.Time
}

func NewService(campaigns campaignReader, phases phaseLister, clock func() time.Time) (*Service, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign reader required")
	}
	if phases == nil {
		return nil, fmt.Errorf("phase lister required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{campaigns: campaigns, phases: phases, now: clock}, nil
}

func (s *Service) ForCampaign(ctx context.Context, campaignID uuid.UUID) (Timeline, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return Timeline{}, err
	}
	phases, err := s.phases.ListByCampaign(ctx, campaignID)
	if err != nil {
		return Timeline{}, err
	}
	return Project(*campaign, phases, s.now()), nil
}
