// Package dbtest opens in-memory sqlite databases carrying the workflow
// schema for repository and service tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// schema mirrors the goose migrations in sqlite syntax.
var schema = []string{
	`CREATE TABLE campaigns (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		created_by TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		target_amount INTEGER NOT NULL,
		received_amount INTEGER NOT NULL DEFAULT 0,
		fundraising_start_date DATETIME NOT NULL,
		fundraising_end_date DATETIME NOT NULL,
		cancelled_for_cause BOOLEAN NOT NULL DEFAULT FALSE,
		cancel_reason TEXT,
		cancelled_at DATETIME,
		approved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE donations (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		donor_ref TEXT NOT NULL,
		transaction_ref TEXT NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		settled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_donations_transaction_ref ON donations (transaction_ref)`,
	`CREATE TABLE campaign_phases (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PLANNING',
		ingredient_fund_amount INTEGER NOT NULL DEFAULT 0,
		cooking_fund_amount INTEGER NOT NULL DEFAULT 0,
		delivery_fund_amount INTEGER NOT NULL DEFAULT 0,
		ingredient_disbursed INTEGER NOT NULL DEFAULT 0,
		cooking_disbursed INTEGER NOT NULL DEFAULT 0,
		delivery_disbursed INTEGER NOT NULL DEFAULT 0,
		ingredient_purchase_date DATETIME,
		cooking_date DATETIME,
		delivery_date DATETIME,
		audit_rejections INTEGER NOT NULL DEFAULT 0,
		terminal_reason TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK (ingredient_disbursed >= 0 AND ingredient_disbursed <= ingredient_fund_amount),
		CHECK (cooking_disbursed >= 0 AND cooking_disbursed <= cooking_fund_amount),
		CHECK (delivery_disbursed >= 0 AND delivery_disbursed <= delivery_fund_amount)
	)`,
	`CREATE UNIQUE INDEX ux_campaign_phases_campaign_position ON campaign_phases (campaign_id, position)`,
	`CREATE TABLE phase_events (
		id TEXT PRIMARY KEY,
		campaign_phase_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		expense_type TEXT,
		amount INTEGER NOT NULL DEFAULT 0,
		outstanding INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id TEXT,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_phase_events_source ON phase_events (campaign_phase_id, event_type, source_id)`,
	`CREATE UNIQUE INDEX ux_phase_events_sequence ON phase_events (campaign_phase_id, sequence)`,
	`CREATE TABLE ingredient_requests (
		id TEXT PRIMARY KEY,
		campaign_phase_id TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		total_cost INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		admin_note TEXT,
		reviewed_by TEXT,
		reviewed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_ingredient_requests_phase_approved ON ingredient_requests (campaign_phase_id) WHERE status = 'APPROVED'`,
	`CREATE TABLE ingredient_request_items (
		id TEXT PRIMARY KEY,
		ingredient_request_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		unit TEXT NOT NULL,
		estimated_unit_price INTEGER NOT NULL,
		estimated_total_price INTEGER NOT NULL,
		supplier TEXT
	)`,
	`CREATE TABLE operation_requests (
		id TEXT PRIMARY KEY,
		campaign_phase_id TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		title TEXT NOT NULL,
		expense_type TEXT NOT NULL,
		total_cost INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		admin_note TEXT,
		reviewed_by TEXT,
		reviewed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_operation_requests_inflight ON operation_requests (campaign_phase_id, expense_type) WHERE status = 'PENDING'`,
	`CREATE TABLE expense_proofs (
		id TEXT PRIMARY KEY,
		operation_request_id TEXT NOT NULL,
		campaign_phase_id TEXT NOT NULL,
		submitted_by TEXT NOT NULL,
		amount INTEGER NOT NULL,
		media TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		admin_note TEXT,
		reviewed_by TEXT,
		reviewed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_expense_proofs_request_pending ON expense_proofs (operation_request_id) WHERE status = 'PENDING'`,
	`CREATE TABLE meal_batches (
		id TEXT PRIMARY KEY,
		campaign_phase_id TEXT NOT NULL,
		prepared_by TEXT NOT NULL,
		food_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PREPARING',
		cooked_date DATETIME,
		media TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE meal_batch_ingredient_usages (
		id TEXT PRIMARY KEY,
		meal_batch_id TEXT NOT NULL,
		ingredient_request_item_id TEXT NOT NULL,
		quantity_used NUMERIC NOT NULL
	)`,
	`CREATE TABLE delivery_tasks (
		id TEXT PRIMARY KEY,
		meal_batch_id TEXT NOT NULL,
		campaign_phase_id TEXT NOT NULL,
		assigned_to TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		delivered_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE delivery_status_logs (
		id TEXT PRIMARY KEY,
		delivery_task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT,
		changed_by TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE campaign_dispositions (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		decision_trigger TEXT NOT NULL,
		outcome TEXT NOT NULL,
		received_amount INTEGER NOT NULL,
		target_amount INTEGER NOT NULL,
		funding_ratio NUMERIC NOT NULL,
		decided_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_campaign_dispositions_campaign ON campaign_dispositions (campaign_id)`,
	`CREATE TABLE donation_dispositions (
		id TEXT PRIMARY KEY,
		disposition_id TEXT NOT NULL,
		donation_id TEXT NOT NULL,
		action TEXT NOT NULL,
		amount INTEGER NOT NULL,
		refund_percent INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_donation_dispositions_donation ON donation_dispositions (donation_id)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_outbox_dlq_event ON outbox_dlq (event_id)`,
}

// Open returns a private in-memory database with every workflow table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=off", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// TxRunner runs callbacks in a real sqlite transaction.
type TxRunner struct {
	DB *gorm.DB
}

func (r TxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}
