package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxgate/model"
)

func approveDecision(id, runID string) *model.Decision {
	text := "DELETE-PROD-DB"
	return &model.Decision{
		ID:                       id,
		RunID:                    runID,
		StepID:                   "s1",
		Kind:                     model.DecisionApprove,
		Actor:                    "alice",
		Timestamp:                time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		SuppliedChecks:           []string{"A backup of prod-db exists"},
		SuppliedConfirmationText: &text,
	}
}

func TestSink_Sqlite(t *testing.T) {
	ctx := context.Background()
	sink, err := Open(ctx, DialectSqlite, ":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.Append(ctx, approveDecision("d1", "r1")))
	require.NoError(t, sink.Append(ctx, approveDecision("d1", "r1")))
	reject := &model.Decision{ID: "d2", RunID: "r1", StepID: "s2", Kind: model.DecisionReject, Actor: "bob", Reason: "not now", Timestamp: time.Now()}
	require.NoError(t, sink.Append(ctx, reject))
	require.NoError(t, sink.Append(ctx, approveDecision("d3", "r2")))

	decisions, err := sink.List(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, approveDecision("d1", "r1"), decisions[0])
	assert.Equal(t, "not now", decisions[1].Reason)
	assert.Nil(t, decisions[1].SuppliedConfirmationText)
	assert.Nil(t, decisions[1].SuppliedChecks)

	all, err := sink.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSink_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS decisions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS decisions_run_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := New(ctx, db, DialectPostgres)
	require.NoError(t, err)

	decision := approveDecision("d1", "r1")
	mock.ExpectExec(`INSERT INTO decisions .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\) ON CONFLICT`).
		WithArgs("d1", "r1", "s1", "approve", "alice", "", `["A backup of prod-db exists"]`, "DELETE-PROD-DB", "2026-03-01T10:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, sink.Append(ctx, decision))

	mock.ExpectExec("INSERT INTO decisions").WillReturnError(errors.New("connection reset"))
	assert.ErrorContains(t, sink.Append(ctx, approveDecision("d2", "r1")), "connection reset")

	rows := sqlmock.NewRows([]string{"decision_id", "run_id", "step_id", "kind", "actor", "reason", "supplied_checks", "confirmation_text", "created_at"}).
		AddRow("d1", "r1", "s1", "approve", "alice", "", `["A backup of prod-db exists"]`, "DELETE-PROD-DB", "2026-03-01T10:00:00Z")
	mock.ExpectQuery(`SELECT .* FROM decisions WHERE run_id = \$1 ORDER BY seq`).WithArgs("r1").WillReturnRows(rows)
	decisions, err := sink.List(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, decision, decisions[0])

	bad := sqlmock.NewRows([]string{"decision_id", "run_id", "step_id", "kind", "actor", "reason", "supplied_checks", "confirmation_text", "created_at"}).
		AddRow("d9", "r1", "s1", "escalate", "alice", "", `[]`, nil, "2026-03-01T10:00:00Z")
	mock.ExpectQuery("SELECT").WithArgs("r1").WillReturnRows(bad)
	_, err = sink.List(ctx, "r1")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDialect(t *testing.T) {
	type testCase struct {
		name      string
		expect    Dialect
		expectErr bool
	}
	testCases := []testCase{
		{name: "sqlite", expect: DialectSqlite},
		{name: "postgresql", expect: DialectPostgres},
		{name: "PQ", expect: DialectPostgres},
		{name: "mysql", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := ParseDialect(tc.name)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expect, actual)
		})
	}
}
