// Package sql provides a database/sql backed audit sink for SQLite
// (modernc.org/sqlite) and PostgreSQL (lib/pq).
package sql

import (
	"context"
	dbsql "database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/audit"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and DDL.
type Dialect string

const (
	DialectSqlite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// ParseDialect resolves a driver or dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return DialectSqlite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported audit sql dialect: %q", name)
}

// Sink stores decisions in the decisions table.
type Sink struct {
	db      *dbsql.DB
	dialect Dialect
}

// Open connects to dsn and prepares the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Sink, error) {
	db, err := dbsql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s audit store: %w", dialect, err)
	}
	if dialect == DialectSqlite {
		db.SetMaxOpenConns(1)
	}
	sink, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// New wraps an open database and runs the schema migration.
func New(ctx context.Context, db *dbsql.DB, dialect Dialect) (*Sink, error) {
	s := &Sink{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) migrate(ctx context.Context) error {
	sequence := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		sequence = "seq BIGSERIAL PRIMARY KEY"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
		` + sequence + `,
		decision_id TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		step_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		supplied_checks TEXT NOT NULL DEFAULT '[]',
		confirmation_text TEXT,
		created_at TEXT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS decisions_run_idx ON decisions (run_id, seq)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to migrate audit store: %w", err)
		}
	}
	return nil
}

func (s *Sink) placeholders(n int) string {
	values := make([]string, n)
	for i := range values {
		if s.dialect == DialectPostgres {
			values[i] = "$" + strconv.Itoa(i+1)
		} else {
			values[i] = "?"
		}
	}
	return strings.Join(values, ", ")
}

// Append implements audit.Sink. A duplicate decision id is ignored.
func (s *Sink) Append(ctx context.Context, decision *model.Decision) error {
	if err := audit.Validate(decision); err != nil {
		return err
	}
	checks := decision.SuppliedChecks
	if checks == nil {
		checks = []string{}
	}
	checksJSON, err := json.Marshal(checks)
	if err != nil {
		return fmt.Errorf("failed to encode supplied checks: %w", err)
	}
	var confirmation dbsql.NullString
	if decision.SuppliedConfirmationText != nil {
		confirmation = dbsql.NullString{String: *decision.SuppliedConfirmationText, Valid: true}
	}
	query := `INSERT INTO decisions (decision_id, run_id, step_id, kind, actor, reason, supplied_checks, confirmation_text, created_at)
	VALUES (` + s.placeholders(9) + `) ON CONFLICT (decision_id) DO NOTHING`
	_, err = s.db.ExecContext(ctx, query,
		decision.ID, decision.RunID, decision.StepID, string(decision.Kind), decision.Actor, decision.Reason,
		string(checksJSON), confirmation, decision.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision %s: %w", decision.ID, err)
	}
	return nil
}

// List implements audit.Sink; an empty runID lists every decision.
func (s *Sink) List(ctx context.Context, runID string) ([]*model.Decision, error) {
	query := `SELECT decision_id, run_id, step_id, kind, actor, reason, supplied_checks, confirmation_text, created_at FROM decisions`
	var args []interface{}
	if runID != "" {
		query += ` WHERE run_id = ` + s.placeholders(1)
		args = append(args, runID)
	}
	query += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ret []*model.Decision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, decision)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decisions: %w", err)
	}
	return ret, nil
}

func scanDecision(rows *dbsql.Rows) (*model.Decision, error) {
	var (
		decision     model.Decision
		kind         string
		checks       string
		confirmation dbsql.NullString
		createdAt    string
	)
	if err := rows.Scan(&decision.ID, &decision.RunID, &decision.StepID, &kind, &decision.Actor, &decision.Reason, &checks, &confirmation, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}
	if err := decision.Kind.UnmarshalText([]byte(kind)); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(checks), &decision.SuppliedChecks); err != nil {
		return nil, fmt.Errorf("failed to decode supplied checks of %s: %w", decision.ID, err)
	}
	if len(decision.SuppliedChecks) == 0 {
		decision.SuppliedChecks = nil
	}
	if confirmation.Valid {
		text := confirmation.String
		decision.SuppliedConfirmationText = &text
	}
	timestamp, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp of %s: %w", decision.ID, err)
	}
	decision.Timestamp = timestamp
	return &decision, nil
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

var _ audit.Sink = (*Sink)(nil)
