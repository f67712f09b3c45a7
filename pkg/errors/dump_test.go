package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpExtractsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_operation_requests_inflight",
		TableName:      "operation_requests",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeDisbursementConflict, fmt.Errorf("insert operation request: %w", pgErr), "a request for this expense type is already pending")

	fields := Dump(err).Fields()
	if fields["error_code"] != CodeDisbursementConflict {
		t.Fatalf("unexpected code %v", fields["error_code"])
	}
	if fields["pg_constraint"] != "ux_operation_requests_inflight" {
		t.Fatalf("unexpected constraint %v", fields["pg_constraint"])
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty postgres fields should be omitted")
	}
	chain, ok := fields["error_chain"].([]string)
	if !ok || len(chain) < 2 {
		t.Fatalf("expected wrapped chain, got %v", fields["error_chain"])
	}
}

func TestDumpOfPlainError(t *testing.T) {
	fields := Dump(fmt.Errorf("boom")).Fields()
	if fields["error"] != "boom" {
		t.Fatalf("unexpected message %v", fields["error"])
	}
	if _, ok := fields["error_chain"]; ok {
		t.Fatalf("single error should not report a chain")
	}
	if len(Dump(nil).Fields()) != 1 {
		t.Fatalf("nil dump should only carry the empty message")
	}
}
