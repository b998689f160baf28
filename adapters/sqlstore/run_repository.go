// Package sqlstore persists calibration runs with sqlx on PostgreSQL
// (lib/pq) or SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/internal/errors"
	"bayescal/internal/migration"
	"bayescal/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to driver ("postgres" or "sqlite") and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	var db *sqlx.DB
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			return nil, errors.DatabaseError("failed to connect to postgres", err)
		}
		db = conn
	case "sqlite", "sqlite3":
		raw, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.DatabaseError("failed to open sqlite", err)
		}
		// modernc registers as "sqlite"; the sqlite3 name gives sqlx
		// the '?' bind type.
		db = sqlx.NewDb(raw, "sqlite3")
		if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, errors.DatabaseError("failed to ping sqlite", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, errors.DatabaseError("failed to enable foreign keys", err)
		}
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", driver))
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// RunRepositoryImpl implements ports.RunRepository
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type runRow struct {
	ID          string          `db:"id"`
	Fingerprint string          `db:"fingerprint"`
	Parameters  string          `db:"parameters"`
	GoalKind    string          `db:"goal_kind"`
	GoalTarget  float64         `db:"goal_target"`
	Strategy    string          `db:"strategy"`
	Surrogate   string          `db:"surrogate"`
	Seed        int64           `db:"seed"`
	Budget      int             `db:"budget"`
	Used        int             `db:"used"`
	Failures    int             `db:"failures"`
	State       string          `db:"state"`
	BestOutcome sql.NullFloat64 `db:"best_outcome"`
	BestVector  sql.NullString  `db:"best_vector"`
	CreatedAt   int64           `db:"created_at"`
	UpdatedAt   int64           `db:"updated_at"`
}

type attemptRow struct {
	RunID      string          `db:"run_id"`
	Idx        int             `db:"idx"`
	Phase      string          `db:"phase"`
	Vector     string          `db:"vector"`
	Outcome    float64         `db:"outcome"`
	Failed     bool            `db:"failed"`
	Reason     string          `db:"reason"`
	Score      float64         `db:"score"`
	Best       sql.NullFloat64 `db:"best"`
	DurationMs int64           `db:"duration_ms"`
}

type posteriorRow struct {
	RunID     string  `db:"run_id"`
	Idx       int     `db:"idx"`
	Vector    string  `db:"vector"`
	Predicted float64 `db:"predicted"`
}

const runColumns = `id, fingerprint, parameters, goal_kind, goal_target, strategy, surrogate,
	seed, budget, used, failures, state, best_outcome, best_vector, created_at, updated_at`

// CreateRun inserts a new run. CreatedAt/UpdatedAt default to now.
func (r *RunRepositoryImpl) CreateRun(ctx context.Context, run *ports.RunRecord) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	row, err := toRunRow(run)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO calibration_runs (`+runColumns+`) VALUES (
			:id, :fingerprint, :parameters, :goal_kind, :goal_target, :strategy, :surrogate,
			:seed, :budget, :used, :failures, :state, :best_outcome, :best_vector, :created_at, :updated_at
		)`, row)
	if err != nil {
		return errors.DatabaseError(fmt.Sprintf("failed to create run %s", run.ID), err)
	}
	return nil
}

// UpdateRun writes progress and final state.
func (r *RunRepositoryImpl) UpdateRun(ctx context.Context, run *ports.RunRecord) error {
	run.UpdatedAt = time.Now().UTC()
	row, err := toRunRow(run)
	if err != nil {
		return err
	}
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE calibration_runs SET
			used = :used, failures = :failures, state = :state,
			best_outcome = :best_outcome, best_vector = :best_vector, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return errors.DatabaseError(fmt.Sprintf("failed to update run %s", run.ID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun loads one run.
func (r *RunRepositoryImpl) GetRun(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+runColumns+` FROM calibration_runs WHERE id = ?`), string(id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, errors.DatabaseError(fmt.Sprintf("failed to load run %s", id), err)
	}
	return fromRunRow(row)
}

// ListRuns returns the most recent runs first.
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]*ports.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+runColumns+` FROM calibration_runs
		ORDER BY created_at DESC, id
		LIMIT ?`), limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	out := make([]*ports.RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRunRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendAttempt stores one attempt of a run.
func (r *RunRepositoryImpl) AppendAttempt(ctx context.Context, id core.RunID, attempt calibration.AttemptRecord) error {
	vector, err := json.Marshal(attempt.Vector)
	if err != nil {
		return err
	}
	row := attemptRow{
		RunID:      string(id),
		Idx:        attempt.Index,
		Phase:      string(attempt.Phase),
		Vector:     string(vector),
		Outcome:    attempt.Outcome,
		Failed:     attempt.Failed,
		Reason:     attempt.Reason,
		Score:      finiteOrZero(attempt.Score),
		Best:       nullFloat(attempt.Best),
		DurationMs: attempt.Duration.Milliseconds(),
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO calibration_attempts (run_id, idx, phase, vector, outcome, failed, reason, score, best, duration_ms)
		VALUES (:run_id, :idx, :phase, :vector, :outcome, :failed, :reason, :score, :best, :duration_ms)`, row)
	if err != nil {
		return errors.DatabaseError(fmt.Sprintf("failed to append attempt %d of run %s", attempt.Index, id), err)
	}
	return nil
}

// ListAttempts returns a run's attempts in order.
func (r *RunRepositoryImpl) ListAttempts(ctx context.Context, id core.RunID) ([]calibration.AttemptRecord, error) {
	var rows []attemptRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT run_id, idx, phase, vector, outcome, failed, reason, score, best, duration_ms
		FROM calibration_attempts WHERE run_id = ? ORDER BY idx`), string(id))
	if err != nil {
		return nil, errors.DatabaseError(fmt.Sprintf("failed to list attempts of run %s", id), err)
	}
	out := make([]calibration.AttemptRecord, len(rows))
	for i, row := range rows {
		var vector []float64
		if err := json.Unmarshal([]byte(row.Vector), &vector); err != nil {
			return nil, fmt.Errorf("decode attempt %d vector: %w", row.Idx, err)
		}
		best := math.Inf(1)
		if row.Best.Valid {
			best = row.Best.Float64
		}
		out[i] = calibration.AttemptRecord{
			Index:    row.Idx,
			Phase:    calibration.Phase(row.Phase),
			Vector:   vector,
			Outcome:  row.Outcome,
			Failed:   row.Failed,
			Reason:   row.Reason,
			Score:    row.Score,
			Best:     best,
			Duration: time.Duration(row.DurationMs) * time.Millisecond,
		}
	}
	return out, nil
}

// SavePosterior replaces a run's posterior samples in one transaction.
func (r *RunRepositoryImpl) SavePosterior(ctx context.Context, id core.RunID, samples []ports.PosteriorRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM posterior_samples WHERE run_id = ?`), string(id)); err != nil {
		return errors.DatabaseError(fmt.Sprintf("failed to clear posterior of run %s", id), err)
	}
	for i, s := range samples {
		vector, err := json.Marshal(s.Vector)
		if err != nil {
			return err
		}
		row := posteriorRow{RunID: string(id), Idx: i, Vector: string(vector), Predicted: s.Predicted}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO posterior_samples (run_id, idx, vector, predicted)
			VALUES (:run_id, :idx, :vector, :predicted)`, row); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to save posterior sample %d of run %s", i, id), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit posterior", err)
	}
	return nil
}

// ListPosterior returns a run's posterior samples in order.
func (r *RunRepositoryImpl) ListPosterior(ctx context.Context, id core.RunID) ([]ports.PosteriorRecord, error) {
	var rows []posteriorRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT run_id, idx, vector, predicted FROM posterior_samples
		WHERE run_id = ? ORDER BY idx`), string(id))
	if err != nil {
		return nil, errors.DatabaseError(fmt.Sprintf("failed to list posterior of run %s", id), err)
	}
	out := make([]ports.PosteriorRecord, len(rows))
	for i, row := range rows {
		if err := json.Unmarshal([]byte(row.Vector), &out[i].Vector); err != nil {
			return nil, fmt.Errorf("decode posterior sample %d: %w", row.Idx, err)
		}
		out[i].Predicted = row.Predicted
	}
	return out, nil
}

func toRunRow(run *ports.RunRecord) (runRow, error) {
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return runRow{}, fmt.Errorf("encode parameters: %w", err)
	}
	row := runRow{
		ID:          string(run.ID),
		Fingerprint: string(run.Fingerprint),
		Parameters:  string(params),
		GoalKind:    string(run.Goal.Kind),
		GoalTarget:  run.Goal.Target,
		Strategy:    run.Strategy,
		Surrogate:   run.Surrogate,
		Seed:        run.Seed,
		Budget:      run.Budget,
		Used:        run.Used,
		Failures:    run.Failures,
		State:       string(run.State),
		CreatedAt:   run.CreatedAt.UnixMilli(),
		UpdatedAt:   run.UpdatedAt.UnixMilli(),
	}
	if run.BestOutcome != nil {
		row.BestOutcome = sql.NullFloat64{Float64: *run.BestOutcome, Valid: true}
	}
	if run.BestVector != nil {
		vec, err := json.Marshal(run.BestVector)
		if err != nil {
			return runRow{}, fmt.Errorf("encode best vector: %w", err)
		}
		row.BestVector = sql.NullString{String: string(vec), Valid: true}
	}
	return row, nil
}

func fromRunRow(row runRow) (*ports.RunRecord, error) {
	rec := &ports.RunRecord{
		ID:          core.RunID(row.ID),
		Fingerprint: core.Hash(row.Fingerprint),
		Goal:        calibration.Goal{Kind: calibration.GoalKind(row.GoalKind), Target: row.GoalTarget},
		Strategy:    row.Strategy,
		Surrogate:   row.Surrogate,
		Seed:        row.Seed,
		Budget:      row.Budget,
		Used:        row.Used,
		Failures:    row.Failures,
		State:       calibration.RunState(row.State),
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(row.UpdatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(row.Parameters), &rec.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters of run %s: %w", row.ID, err)
	}
	if row.BestOutcome.Valid {
		v := row.BestOutcome.Float64
		rec.BestOutcome = &v
	}
	if row.BestVector.Valid {
		if err := json.Unmarshal([]byte(row.BestVector.String), &rec.BestVector); err != nil {
			return nil, fmt.Errorf("decode best vector of run %s: %w", row.ID, err)
		}
	}
	return rec, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
