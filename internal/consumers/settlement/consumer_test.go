package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

func TestSettlementConsumerSettlesDonation(t *testing.T) {
	ledger := &fakeLedger{}
	consumer := mustConsumer(t, ledger, newFakeIdempotency())

	envelope := buildEnvelope(t, uuid.New(), Record{TransactionRef: " tx-1 ", Status: "settled"})
	if err := consumer.Process(context.Background(), envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(ledger.settled) != 1 || ledger.settled[0] != "tx-1" {
		t.Fatalf("expected tx-1 settled, got %v", ledger.settled)
	}
	if len(ledger.failed) != 0 {
		t.Fatalf("expected no failed donations, got %v", ledger.failed)
	}
}

func TestSettlementConsumerFailsDonation(t *testing.T) {
	ledger := &fakeLedger{}
	consumer := mustConsumer(t, ledger, newFakeIdempotency())

	envelope := buildEnvelope(t, uuid.New(), Record{TransactionRef: "tx-2", Status: "FAILED"})
	if err := consumer.Process(context.Background(), envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(ledger.failed) != 1 || ledger.failed[0] != "tx-2" {
		t.Fatalf("expected tx-2 failed, got %v", ledger.failed)
	}
}

func TestSettlementConsumerIsIdempotent(t *testing.T) {
	ledger := &fakeLedger{}
	consumer := mustConsumer(t, ledger, newFakeIdempotency())

	envelope := buildEnvelope(t, uuid.New(), Record{TransactionRef: "tx-1", Status: "SETTLED"})
	for i := 0; i < 2; i++ {
		if err := consumer.Process(context.Background(), envelope); err != nil {
			t.Fatalf("Process() error: %v", err)
		}
	}
	if len(ledger.settled) != 1 {
		t.Fatalf("expected a single settlement, got %d", len(ledger.settled))
	}
}

func TestSettlementConsumerReleasesKeyOnTransientFailure(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("connection reset")}
	manager := newFakeIdempotency()
	consumer := mustConsumer(t, ledger, manager)

	eventID := uuid.New()
	err := consumer.Process(context.Background(), buildEnvelope(t, eventID, Record{TransactionRef: "tx-1", Status: "SETTLED"}))
	if err == nil || !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if _, ok := manager.seen[eventID]; ok {
		t.Fatalf("expected idempotency key released after transient failure")
	}
}

func TestSettlementConsumerKeepsKeyOnPermanentFailure(t *testing.T) {
	ledger := &fakeLedger{err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "donation is already FAILED")}
	manager := newFakeIdempotency()
	consumer := mustConsumer(t, ledger, manager)

	eventID := uuid.New()
	err := consumer.Process(context.Background(), buildEnvelope(t, eventID, Record{TransactionRef: "tx-1", Status: "SETTLED"}))
	if err == nil || pkgerrors.IsRetryable(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if _, ok := manager.seen[eventID]; !ok {
		t.Fatalf("expected idempotency key kept after permanent failure")
	}
}

func TestSettlementConsumerRejectsMalformedRecords(t *testing.T) {
	ledger := &fakeLedger{}
	consumer := mustConsumer(t, ledger, newFakeIdempotency())

	cases := map[string]outbox.PayloadEnvelope{
		"missing event id": {Version: 1, Data: []byte(`{"transaction_ref":"tx","status":"SETTLED"}`)},
		"bad event id":     {Version: 1, EventID: "nope", Data: []byte(`{"transaction_ref":"tx","status":"SETTLED"}`)},
		"bad json":         {Version: 1, EventID: uuid.NewString(), Data: []byte("{invalid")},
		"missing ref":      buildEnvelope(t, uuid.New(), Record{Status: "SETTLED"}),
		"unknown status":   buildEnvelope(t, uuid.New(), Record{TransactionRef: "tx", Status: "CHARGEBACK"}),
	}
	for name, envelope := range cases {
		t.Run(name, func(t *testing.T) {
			err := consumer.Process(context.Background(), envelope)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(ledger.settled)+len(ledger.failed) != 0 {
		t.Fatalf("ledger should not be touched by malformed records")
	}
}

type fakeLedger struct {
	settled []string
	failed  []string
	err     error
}

func (f *fakeLedger) SettleDonation(_ context.Context, ref string) (*models.Donation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.settled = append(f.settled, ref)
	return &models.Donation{ID: uuid.New(), CampaignID: uuid.New(), TransactionRef: ref, Status: enums.DonationStatusSettled}, nil
}

func (f *fakeLedger) FailDonation(_ context.Context, ref string) (*models.Donation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.failed = append(f.failed, ref)
	return &models.Donation{ID: uuid.New(), CampaignID: uuid.New(), TransactionRef: ref, Status: enums.DonationStatusFailed}, nil
}

type fakeIdempotency struct {
	seen map[uuid.UUID]struct{}
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{seen: map[uuid.UUID]struct{}{}}
}

func (f *fakeIdempotency) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if _, ok := f.seen[eventID]; ok {
		return false, nil
	}
	f.seen[eventID] = struct{}{}
	return true, nil
}

func (f *fakeIdempotency) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.seen, eventID)
	return nil
}

func (f *fakeIdempotency) Holder(_ context.Context, _ string, eventID uuid.UUID) (string, error) {
	if _, ok := f.seen[eventID]; ok {
		return "settlement-test", nil
	}
	return "", nil
}

func mustConsumer(t *testing.T, ledger *fakeLedger, manager *fakeIdempotency) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(ledger, manager, nil, logger.New(logger.Options{
		ServiceName: "settlement-test",
		Level:       logger.ParseLevel("debug"),
		Output:      io.Discard,
	}))
	if err != nil {
		t.Fatalf("failed to build consumer: %v", err)
	}
	return consumer
}

func buildEnvelope(t *testing.T, eventID uuid.UUID, record Record) outbox.PayloadEnvelope {
	t.Helper()
	bytes, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now(),
		Data:       bytes,
	}
}
