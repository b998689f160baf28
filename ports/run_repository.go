package ports

import (
	"context"
	"time"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
)

// RunRecord is the persisted summary of one calibration run.
type RunRecord struct {
	ID          core.RunID
	Fingerprint core.Hash
	Parameters  []calibration.ParameterSpec
	Goal        calibration.Goal
	Strategy    string
	Surrogate   string
	Seed        int64
	Budget      int
	Used        int
	Failures    int
	State       calibration.RunState
	BestOutcome *float64
	BestVector  []float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PosteriorRecord is one accepted posterior draw.
type PosteriorRecord struct {
	Vector    []float64
	Predicted float64
}

// RunRepository persists run history and posterior samples.
type RunRepository interface {
	CreateRun(ctx context.Context, run *RunRecord) error
	UpdateRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id core.RunID) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	AppendAttempt(ctx context.Context, id core.RunID, attempt calibration.AttemptRecord) error
	ListAttempts(ctx context.Context, id core.RunID) ([]calibration.AttemptRecord, error)

	SavePosterior(ctx context.Context, id core.RunID, samples []PosteriorRecord) error
	ListPosterior(ctx context.Context, id core.RunID) ([]PosteriorRecord, error)
}
