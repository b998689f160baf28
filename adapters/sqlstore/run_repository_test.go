package sqlstore

import (
	"context"
	"math"
	"testing"
	"time"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/ports"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRecord() *ports.RunRecord {
	return &ports.RunRecord{
		ID:          core.NewRunID(),
		Fingerprint: core.NewHash([]byte("abc")),
		Parameters: []calibration.ParameterSpec{
			{Name: "x", Lower: 0.5, Upper: 2},
		},
		Goal:      calibration.MatchTarget(750),
		Strategy:  "expected_improvement",
		Surrogate: "gp-rbf",
		Seed:      42,
		Budget:    20,
		State:     calibration.StateIdle,
	}
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))

	rec := newRecord()
	require.NoError(t, repo.CreateRun(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Parameters, got.Parameters)
	assert.Equal(t, rec.Goal, got.Goal)
	assert.Nil(t, got.BestOutcome)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)

	best := 512.5
	rec.State = calibration.StateExhausted
	rec.Used = 20
	rec.Failures = 2
	rec.BestOutcome = &best
	rec.BestVector = []float64{1.05}
	require.NoError(t, repo.UpdateRun(ctx, rec))

	got, err = repo.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, calibration.StateExhausted, got.State)
	assert.Equal(t, 20, got.Used)
	assert.Equal(t, 2, got.Failures)
	require.NotNil(t, got.BestOutcome)
	assert.Equal(t, best, *got.BestOutcome)
	assert.Equal(t, []float64{1.05}, got.BestVector)
}

func TestGetRunNotFound(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	_, err := repo.GetRun(context.Background(), core.NewRunID())
	assert.ErrorIs(t, err, core.ErrRunNotFound)
	assert.True(t, core.IsNotFoundError(err))

	err = repo.UpdateRun(context.Background(), newRecord())
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))

	var ids []core.RunID
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := newRecord()
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.CreateRun(ctx, rec))
		ids = append(ids, rec.ID)
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestAttemptsPreserveOrderAndInfiniteBest(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))
	rec := newRecord()
	require.NoError(t, repo.CreateRun(ctx, rec))

	attempts := []calibration.AttemptRecord{
		{Index: 0, Phase: calibration.PhaseInitial, Vector: []float64{1.9}, Failed: true, Reason: "timeout", Best: math.Inf(1), Duration: 20 * time.Millisecond},
		{Index: 1, Phase: calibration.PhaseInitial, Vector: []float64{1.2}, Outcome: 540, Best: 540},
		{Index: 2, Phase: calibration.PhaseIteration, Vector: []float64{1.0}, Outcome: 500, Score: 12.5, Best: 500},
	}
	for _, a := range attempts {
		require.NoError(t, repo.AppendAttempt(ctx, rec.ID, a))
	}

	got, err := repo.ListAttempts(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, math.IsInf(got[0].Best, 1))
	assert.True(t, got[0].Failed)
	assert.Equal(t, "timeout", got[0].Reason)
	assert.Equal(t, 20*time.Millisecond, got[0].Duration)
	assert.Equal(t, attempts[2], got[2])

	err = repo.AppendAttempt(ctx, rec.ID, attempts[1])
	assert.Error(t, err, "duplicate index must be rejected")
}

func TestSavePosteriorReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))
	rec := newRecord()
	require.NoError(t, repo.CreateRun(ctx, rec))

	first := []ports.PosteriorRecord{{Vector: []float64{0.7}, Predicted: 590}, {Vector: []float64{1.3}, Predicted: 605}}
	require.NoError(t, repo.SavePosterior(ctx, rec.ID, first))
	second := []ports.PosteriorRecord{{Vector: []float64{1.31}, Predicted: 601}}
	require.NoError(t, repo.SavePosterior(ctx, rec.ID, second))

	got, err := repo.ListPosterior(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	require.Error(t, err)
}
