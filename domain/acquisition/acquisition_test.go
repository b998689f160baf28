package acquisition

import (
	"math"
	"math/rand"
	"testing"

	"bayescal/domain/calibration"
	"bayescal/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedImprovementPrefersUncertainPromise(t *testing.T) {
	preds := []calibration.Prediction{
		{Mean: 480, Std: 30}, // A
		{Mean: 520, Std: 0},  // B
	}
	scores, err := NewExpectedImprovement().Scores(preds, Context{Best: 500, Scale: 100})
	require.NoError(t, err)

	assert.Greater(t, scores[0], 0.0)
	assert.Equal(t, 0.0, scores[1])
	assert.Greater(t, scores[0], scores[1])
}

func TestExpectedImprovementClosedForm(t *testing.T) {
	got := ExpectedImprovementValue(0, 1, 0, 0)
	want := 1 / math.Sqrt(2*math.Pi)
	assert.InDelta(t, want, got, 1e-12)

	// Far below best the EI approaches the plain improvement.
	assert.InDelta(t, 100.0, ExpectedImprovementValue(400, 1, 500, 0), 1e-6)
	// Far above best it vanishes.
	assert.InDelta(t, 0.0, ExpectedImprovementValue(900, 1, 500, 0), 1e-12)
}

func TestConfidenceBoundPicksLowestBound(t *testing.T) {
	preds := []calibration.Prediction{
		{Mean: 100, Std: 1},  // bound 98
		{Mean: 105, Std: 10}, // bound 85
		{Mean: 90, Std: 0},   // bound 90
	}
	idx, _, err := Select(NewConfidenceBound(), preds, Context{Goal: calibration.Minimize()}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = ConfidenceBound{Kappa: -1}.Scores(preds, Context{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestMaxUncertaintyPicksLargestStd(t *testing.T) {
	preds := []calibration.Prediction{{Mean: 1, Std: 0.1}, {Mean: 2, Std: 3}, {Mean: 0, Std: 2}}
	idx, _, err := Select(MaxUncertainty{}, preds, Context{}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestProbabilityOfImprovement(t *testing.T) {
	preds := []calibration.Prediction{{Mean: 500, Std: 10}, {Mean: 400, Std: 0}}
	scores, err := ProbabilityOfImprovement{}.Scores(preds, Context{Best: 500})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scores[0], 1e-12)
	assert.Equal(t, 0.0, scores[1])
}

func TestDegenerateSurrogateFallsBackToRandom(t *testing.T) {
	preds := make([]calibration.Prediction, 50)
	for i := range preds {
		preds[i] = calibration.Prediction{Mean: 10, Std: 0}
	}

	a, scores, err := Select(NewExpectedImprovement(), preds, Context{Best: 10}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	b, _, err := Select(NewExpectedImprovement(), preds, Context{Best: 10}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, a >= 0 && a < len(preds))
	for _, s := range scores {
		assert.False(t, math.IsNaN(s))
	}
}

func TestSelectRejectsBadInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, _, err := Select(MaxUncertainty{}, nil, Context{}, rng)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, _, err = Select(MaxUncertainty{}, []calibration.Prediction{{Mean: math.NaN(), Std: 1}}, Context{}, rng)
	assert.ErrorIs(t, err, core.ErrNumerical)
}

func TestTargetGoalUsesDiscrepancy(t *testing.T) {
	preds := []calibration.Prediction{
		{Mean: 1000, Std: 5}, // discrepancy 200
		{Mean: 790, Std: 5},  // discrepancy 10
		{Mean: 500, Std: 5},  // discrepancy 300
	}
	c := Context{Goal: calibration.MatchTarget(800), Best: 50}
	idx, _, err := Select(NewExpectedImprovement(), preds, c, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestParse(t *testing.T) {
	kappa := 3.0
	xi := 0.5

	p, err := Parse("lcb", Options{Kappa: &kappa})
	require.NoError(t, err)
	assert.Equal(t, ConfidenceBound{Kappa: 3}, p)

	p, err = Parse("ei", Options{Xi: &xi})
	require.NoError(t, err)
	assert.Equal(t, ExpectedImprovement{Xi: 0.5}, p)

	p, err = Parse("", Options{})
	require.NoError(t, err)
	assert.Equal(t, "expected_improvement", p.Name())

	p, err = Parse("max_uncertainty", Options{})
	require.NoError(t, err)
	assert.Equal(t, "max_uncertainty", p.Name())

	p, err = Parse("pi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "probability_of_improvement", p.Name())

	_, err = Parse("thompson", Options{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	neg := -1.0
	_, err = Parse("lcb", Options{Kappa: &neg})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = Parse("ei", Options{Xi: &neg})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
