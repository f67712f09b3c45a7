package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// ServiceParams wire the outbox relay.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
	Clock            func() time.Time
}

// Service relays committed workflow events from outbox_events to Pub/Sub.
// Rows are locked with SKIP LOCKED so several relays can run side by side.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	publishers  publisherFactory
	topics      *topicPublishers
	now         func() time.Time
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	svc := &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		metrics:     params.Metrics,
		publishers:  params.PublisherFactory,
		now:         params.Clock,
		batchSize:   positiveOr(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		poll:        defaultPollInterval,
	}
	if ms := params.Config.Outbox.PollIntervalMS; ms > 0 {
		svc.poll = time.Duration(ms) * time.Millisecond
	}
	if svc.publishers == nil {
		svc.topics = newTopicPublishers(params.PubSub)
		svc.publishers = svc.topics.For
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run polls until the context is canceled. Batch errors back off
// exponentially up to maxIdleBackoff. A non-empty batch polls again at once.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	if s.topics != nil {
		defer s.topics.Stop()
	}

	wait := s.poll
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		started := s.now()
		relayed, err := s.processBatch(ctx)
		s.metrics.ObserveBatch(s.now().Sub(started))

		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = min(wait*2, maxIdleBackoff)
		case relayed:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := sleepCtx(ctx, wait+time.Duration(rand.Int63n(int64(jitterWindow)))); err != nil {
			return err
		}
	}
}

type relayOutcome int

const (
	relayPublished relayOutcome = iota
	relayRetry
	relayDeadLetter
)

type relayResult struct {
	outcome relayOutcome
	reason  enums.OutboxDLQErrorReason
	topic   string
	err     error
}

// processBatch relays one locked batch and records every outcome inside the
// same transaction.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	relayed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		relayed = len(events) > 0
		for _, event := range events {
			if err := s.record(ctx, tx, event, s.relay(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return relayed, err
}

func (s *Service) relay(ctx context.Context, event models.OutboxEvent) relayResult {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return relayResult{outcome: relayDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic

	err = s.publish(ctx, topic, buildMessage(event, resolved))
	if err == nil {
		return relayResult{outcome: relayPublished, topic: topic}
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return relayResult{outcome: relayDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, topic: topic, err: err}
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return relayResult{
			outcome: relayDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			topic:   topic,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
		}
	}
	return relayResult{outcome: relayRetry, topic: topic, err: err}
}

func (s *Service) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// buildMessage carries the stored envelope as-is; attributes let subscribers
// filter by aggregate without decoding the body.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.Role != "" {
		attrs["actor_role"] = actor.Role
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, res relayResult) error {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if res.topic != "" {
		fields["topic"] = res.topic
	}
	logCtx := s.logg.WithFields(ctx, fields)
	eventType := string(event.EventType)

	switch res.outcome {
	case relayPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Debug(logCtx, "outbox event published")
	case relayRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, res.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.IncRetry(eventType)
		s.logg.Warn(s.logg.WithField(logCtx, "error", res.err.Error()), "outbox publish failed")
	case relayDeadLetter:
		if err := s.deadLetter(tx, event, res); err != nil {
			return err
		}
		s.metrics.IncDeadLetter(eventType, string(res.reason))
		logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": res.reason, "error": res.err.Error()})
		s.logg.Warn(logCtx, "outbox event moved to dead letter")
	}
	return nil
}

func (s *Service) deadLetter(tx *gorm.DB, event models.OutboxEvent, res relayResult) error {
	entry := event.DeadLetter(res.reason, res.err.Error(), s.now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, res.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
