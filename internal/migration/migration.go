package migration

import (
	"context"
	"fmt"

	"bayescal/internal"
	"bayescal/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the calibration schema. Statements use only
// types and clauses shared by PostgreSQL and SQLite so the same runner
// serves both drivers.
type MigrationRunner struct {
	version string
	logger  *internal.Logger
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
		logger:  internal.DefaultLogger.WithComponent("migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

type step struct {
	name  string
	stmts []string
}

var steps = []step{
	{
		name: "calibration_runs",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS calibration_runs (
				id VARCHAR(64) PRIMARY KEY,
				fingerprint VARCHAR(64) NOT NULL,
				parameters TEXT NOT NULL,
				goal_kind VARCHAR(32) NOT NULL,
				goal_target DOUBLE PRECISION NOT NULL DEFAULT 0,
				strategy VARCHAR(64) NOT NULL,
				surrogate VARCHAR(64) NOT NULL,
				seed BIGINT NOT NULL,
				budget INTEGER NOT NULL,
				used INTEGER NOT NULL DEFAULT 0,
				failures INTEGER NOT NULL DEFAULT 0,
				state VARCHAR(32) NOT NULL,
				best_outcome DOUBLE PRECISION,
				best_vector TEXT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
		},
	},
	{
		name: "calibration_attempts",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS calibration_attempts (
				run_id VARCHAR(64) NOT NULL REFERENCES calibration_runs(id) ON DELETE CASCADE,
				idx INTEGER NOT NULL,
				phase VARCHAR(16) NOT NULL,
				vector TEXT NOT NULL,
				outcome DOUBLE PRECISION NOT NULL DEFAULT 0,
				failed BOOLEAN NOT NULL DEFAULT FALSE,
				reason TEXT NOT NULL DEFAULT '',
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				best DOUBLE PRECISION,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				PRIMARY KEY (run_id, idx)
			)`,
		},
	},
	{
		name: "posterior_samples",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS posterior_samples (
				run_id VARCHAR(64) NOT NULL REFERENCES calibration_runs(id) ON DELETE CASCADE,
				idx INTEGER NOT NULL,
				vector TEXT NOT NULL,
				predicted DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (run_id, idx)
			)`,
		},
	},
	{
		name: "indexes",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_calibration_runs_created_at ON calibration_runs(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_calibration_runs_fingerprint ON calibration_runs(fingerprint)`,
		},
	},
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for i, s := range steps {
		for _, stmt := range s.stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return errors.WithCode(errors.CodeDatabaseError,
					errors.Wrapf(err, "failed to run migration %03d (%s)", i+1, s.name))
			}
		}
		r.logger.Debug("migration %03d (%s) applied", i+1, s.name)
	}
	return nil
}

// Tables lists the tables the runner creates.
func Tables() []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		if s.name != "indexes" {
			out = append(out, s.name)
		}
	}
	return out
}

// String implements fmt.Stringer for logs.
func (r *MigrationRunner) String() string {
	return fmt.Sprintf("migration runner v%s (%d steps)", r.version, len(steps))
}
