package calibration

import (
	"errors"
	"math"
	"testing"

	"bayescal/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpecs() []ParameterSpec {
	return []ParameterSpec{
		{Name: "wall_r", Lower: 10, Upper: 20},
		{Name: "infiltration", Lower: 0.2, Upper: 0.6},
	}
}

func TestParameterSpecValidate(t *testing.T) {
	nominal := 1.0
	outside := 5.0

	tests := []struct {
		name    string
		spec    ParameterSpec
		wantErr bool
	}{
		{"valid", ParameterSpec{Name: "r", Lower: 0.6, Upper: 1.4}, false},
		{"valid nominal", ParameterSpec{Name: "r", Lower: 0.5, Upper: 2, Nominal: &nominal}, false},
		{"equal bounds", ParameterSpec{Name: "r", Lower: 1, Upper: 1}, true},
		{"inverted", ParameterSpec{Name: "r", Lower: 2, Upper: 1}, true},
		{"nan", ParameterSpec{Name: "r", Lower: math.NaN(), Upper: 1}, true},
		{"inf", ParameterSpec{Name: "r", Lower: 0, Upper: math.Inf(1)}, true},
		{"no name", ParameterSpec{Lower: 0, Upper: 1}, true},
		{"nominal outside", ParameterSpec{Name: "r", Lower: 0, Upper: 1, Nominal: &outside}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrainingSetAppendRejectsOutOfBounds(t *testing.T) {
	ts := NewTrainingSet(testSpecs())

	require.NoError(t, ts.Append([]float64{15, 0.3}, 100))
	err := ts.Append([]float64{25, 0.3}, 100)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)

	err = ts.Append([]float64{15}, 100)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)

	err = ts.Append([]float64{15, 0.3}, math.NaN())
	assert.True(t, core.IsEvaluationError(err))

	assert.Equal(t, 1, ts.Len())
}

func TestTrainingSetCopiesAreIndependent(t *testing.T) {
	ts := NewTrainingSet(testSpecs())
	v := []float64{12, 0.4}
	require.NoError(t, ts.Append(v, 7))

	v[0] = 19
	x := ts.X()
	x[0][1] = 0.5

	assert.Equal(t, []float64{12, 0.4}, ts.X()[0])
	assert.Equal(t, []float64{7}, ts.Y())
}

func TestTrainingSetBestHonorsGoal(t *testing.T) {
	ts := NewTrainingSet(testSpecs())
	require.NoError(t, ts.Append([]float64{11, 0.3}, 900))
	require.NoError(t, ts.Append([]float64{12, 0.3}, 500))
	require.NoError(t, ts.Append([]float64{13, 0.3}, 700))

	best, ok := ts.Best(Minimize())
	require.True(t, ok)
	assert.Equal(t, 500.0, best.Outcome)

	best, ok = ts.Best(MatchTarget(720))
	require.True(t, ok)
	assert.Equal(t, 700.0, best.Outcome)

	_, ok = NewTrainingSet(testSpecs()).Best(Minimize())
	assert.False(t, ok)
}

func TestTrainingSetDistinctCount(t *testing.T) {
	ts := NewTrainingSet(testSpecs())
	require.NoError(t, ts.Append([]float64{11, 0.3}, 1))
	require.NoError(t, ts.Append([]float64{11, 0.3}, 2))
	require.NoError(t, ts.Append([]float64{12, 0.3}, 3))
	assert.Equal(t, 3, ts.Len())
	assert.Equal(t, 2, ts.DistinctCount())
}

func TestBudgetConsume(t *testing.T) {
	_, err := NewBudget(0)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	b, err := NewBudget(3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Consume())
	}
	assert.True(t, b.Exhausted())
	assert.Equal(t, 0, b.Remaining())
	assert.True(t, errors.Is(b.Consume(), core.ErrBudgetExhausted))
	assert.Equal(t, 3, b.Used)
}

func TestGoalTransform(t *testing.T) {
	preds := []Prediction{{Mean: 90, Std: 1}, {Mean: 110, Std: 2}}

	assert.Equal(t, preds, Minimize().Transform(preds))

	got := MatchTarget(100).Transform(preds)
	assert.Equal(t, []Prediction{{Mean: 10, Std: 1}, {Mean: 10, Std: 2}}, got)
	assert.Equal(t, 5.0, MatchTarget(100).Objective(95))

	kind, err := ParseGoalKind("target")
	require.NoError(t, err)
	assert.Equal(t, GoalMatchTarget, kind)
	_, err = ParseGoalKind("maximize")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	assert.Error(t, MatchTarget(math.Inf(1)).Validate())
	assert.NoError(t, Goal{}.Validate())
}

func TestRunStateTerminal(t *testing.T) {
	assert.False(t, StateIterating.IsTerminal())
	assert.True(t, StateExhausted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
}
