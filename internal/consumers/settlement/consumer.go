package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

const consumerName = "donation-settlement"

const (
	statusSettled = "SETTLED"
	statusFailed  = "FAILED"
)

type donationLedger interface {
	SettleDonation(ctx context.Context, transactionRef string) (*models.Donation, error)
	FailDonation(ctx context.Context, transactionRef string) (*models.Donation, error)
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
	Holder(ctx context.Context, consumer string, eventID uuid.UUID) (string, error)
}

// Record is the settlement notice the payment gateway publishes per transaction.
type Record struct {
	TransactionRef string `json:"transaction_ref"`
	Status         string `json:"status"`
}

// Consumer applies gateway settlement records to the donation ledger.
type Consumer struct {
	ledger       donationLedger
	manager      idempotencyChecker
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer builds a settlement consumer. The subscription is only needed by Run.
func NewConsumer(ledger donationLedger, manager idempotencyChecker, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if ledger == nil {
		return nil, fmt.Errorf("donation ledger required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		ledger:       ledger,
		manager:      manager,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("settlement subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logCtx := c.logg.WithField(ctx, "message_id", msg.ID)
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(logCtx, "failed to decode settlement envelope", err)
			msg.Ack()
			return
		}
		if err := c.Process(logCtx, envelope); err != nil {
			if pkgerrors.IsRetryable(err) {
				msg.Nack()
				return
			}
		}
		msg.Ack()
	})
}

// Process settles or fails the referenced donation once per event ID.
func (c *Consumer) Process(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithField(ctx, "event_id", envelope.EventID)

	if envelope.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse event id")
	}

	var record Record
	if err := json.Unmarshal(envelope.Data, &record); err != nil {
		c.logg.Error(logCtx, "failed to decode settlement record", err)
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode settlement record")
	}
	record.TransactionRef = strings.TrimSpace(record.TransactionRef)
	status := strings.ToUpper(strings.TrimSpace(record.Status))
	if record.TransactionRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction_ref missing")
	}
	if status != statusSettled && status != statusFailed {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported settlement status %q", record.Status)
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"transaction_ref": record.TransactionRef,
		"status":          status,
	})

	claimed, err := c.manager.Claim(ctx, consumerName, eventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim settlement event")
	}
	if !claimed {
		if holder, herr := c.manager.Holder(ctx, consumerName, eventID); herr == nil && holder != "" {
			logCtx = c.logg.WithField(logCtx, "claimed_by", holder)
		}
		c.logg.Info(logCtx, "settlement already processed")
		return nil
	}

	var donation *models.Donation
	if status == statusSettled {
		donation, err = c.ledger.SettleDonation(ctx, record.TransactionRef)
	} else {
		donation, err = c.ledger.FailDonation(ctx, record.TransactionRef)
	}
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			c.logg.Error(logCtx, "settlement failed", err)
			if rerr := c.manager.Release(ctx, consumerName, eventID); rerr != nil {
				c.logg.Warn(c.logg.WithField(logCtx, "reason", rerr.Error()), "settlement claim release failed")
			}
			return err
		}
		c.logg.Warn(c.logg.WithField(logCtx, "reason", err.Error()), "settlement rejected")
		return err
	}

	c.logg.Info(c.logg.WithField(logCtx, "campaign_id", donation.CampaignID.String()), "settlement applied")
	return nil
}
