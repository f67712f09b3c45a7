package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_operation_requests_inflight"}

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), ""))
	assert.True(t, IsUniqueViolation(pgErr, "ux_operation_requests_inflight"))
	assert.False(t, IsUniqueViolation(pgErr, "ux_other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""), "foreign key is not unique")

	pqErr := &pq.Error{Code: "23505", Constraint: "ux_donations_transaction_ref"}
	assert.True(t, IsUniqueViolation(pqErr, "ux_donations_transaction_ref"))
	assert.False(t, IsUniqueViolation(pqErr, "ux_other"))

	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: operation_requests.campaign_phase_id"), "ux_operation_requests_inflight"))
	assert.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "ux_campaign_dispositions_campaign"`), "ux_campaign_dispositions_campaign"))
	assert.False(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "ux_a"`), "ux_b"))
	assert.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsRetryableTx(t *testing.T) {
	assert.True(t, IsRetryableTx(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsRetryableTx(&pq.Error{Code: "40P01"}))
	assert.True(t, IsRetryableTx(errors.New("database is locked")))
	assert.False(t, IsRetryableTx(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryableTx(errors.New("boom")))
	assert.False(t, IsRetryableTx(nil))
}
