package posterior

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/domain/space"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type meanFunc func(v []float64) float64

func (f meanFunc) Predict(vectors [][]float64) ([]calibration.Prediction, error) {
	out := make([]calibration.Prediction, len(vectors))
	for i, v := range vectors {
		out[i] = calibration.Prediction{Mean: f(v), Std: 1}
	}
	return out, nil
}

func quadraticSpace(t *testing.T) *space.Space {
	t.Helper()
	sp, err := space.New([]calibration.ParameterSpec{{Name: "x", Lower: 0.5, Upper: 2}})
	require.NoError(t, err)
	return sp
}

func quadratic(v []float64) float64 {
	return 1000*(v[0]-1)*(v[0]-1) + 500
}

func TestEstimateConcentratesNearConsistentParameters(t *testing.T) {
	sp := quadraticSpace(t)
	// 600 is reached at x = 1 +/- sqrt(0.1); with the lower root inside
	// bounds as well as the upper one the posterior is bimodal.
	post, err := Estimate(context.Background(), meanFunc(quadratic), sp, Config{
		Observed:         600,
		ObservationNoise: 10,
		NTarget:          500,
	}, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	assert.Equal(t, 5000, post.Proposals)
	assert.LessOrEqual(t, post.Len(), 500)
	assert.Greater(t, post.AcceptanceRate, 0.001)
	assert.InDelta(t, float64(post.Accepted)/5000, post.AcceptanceRate, 1e-12)

	for _, s := range post.Samples {
		assert.True(t, sp.Contains(s.Vector))
		dist := math.Min(math.Abs(s.Vector[0]-(1-math.Sqrt(0.1))), math.Abs(s.Vector[0]-(1+math.Sqrt(0.1))))
		assert.Less(t, dist, 0.1, "sample %v far from both roots", s.Vector)
	}

	pct := post.PredictivePercentile(600)
	assert.Greater(t, pct, 20.0)
	assert.Less(t, pct, 80.0)
}

func TestEstimateLinearModelCentersOnInverse(t *testing.T) {
	sp, err := space.New([]calibration.ParameterSpec{{Name: "x", Lower: 0, Upper: 10}})
	require.NoError(t, err)
	linear := meanFunc(func(v []float64) float64 { return 100 * v[0] })

	post, err := Estimate(context.Background(), linear, sp, Config{
		Observed:         500,
		ObservationNoise: 20,
		NTarget:          400,
	}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	summary, err := Summarize(post)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "x", summary[0].Name)
	assert.InDelta(t, 5.0, summary[0].Mean, 0.1)
	assert.InDelta(t, 0.2, summary[0].Std, 0.08)
	assert.Less(t, summary[0].P025, summary[0].Median)
	assert.Greater(t, summary[0].P975, summary[0].Median)

	assert.InDelta(t, 0.5, post.ExceedanceProbability(0, 5.0), 0.1)
	assert.Equal(t, 0.0, post.ExceedanceProbability(0, 10))
}

func TestEstimateIsDeterministicPerSeed(t *testing.T) {
	sp := quadraticSpace(t)
	cfg := Config{Observed: 700, ObservationNoise: 30, NTarget: 100}

	a, err := Estimate(context.Background(), meanFunc(quadratic), sp, cfg, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	b, err := Estimate(context.Background(), meanFunc(quadratic), sp, cfg, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	assert.Equal(t, a.Samples, b.Samples)
}

func TestEstimateUnreachableObservation(t *testing.T) {
	sp := quadraticSpace(t)
	_, err := Estimate(context.Background(), meanFunc(quadratic), sp, Config{
		Observed:         1e9,
		ObservationNoise: 1,
		NTarget:          50,
	}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, core.ErrInsufficientAcceptance)
}

func TestEstimateAcceptanceFloor(t *testing.T) {
	sp := quadraticSpace(t)
	_, err := Estimate(context.Background(), meanFunc(quadratic), sp, Config{
		Observed:          600,
		ObservationNoise:  1,
		NTarget:           50,
		MinAcceptanceRate: 0.9,
	}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, core.ErrInsufficientAcceptance)
}

func TestEstimateRejectsInvalidConfig(t *testing.T) {
	sp := quadraticSpace(t)
	rng := rand.New(rand.NewSource(1))
	cases := map[string]Config{
		"zero noise":     {Observed: 600, NTarget: 10},
		"negative noise": {Observed: 600, ObservationNoise: -1, NTarget: 10},
		"no target":      {Observed: 600, ObservationNoise: 1},
		"nan observed":   {Observed: math.NaN(), ObservationNoise: 1, NTarget: 10},
		"bad multiplier": {Observed: 600, ObservationNoise: 1, NTarget: 10, ProposalMultiplier: -2},
		"bad floor":      {Observed: 600, ObservationNoise: 1, NTarget: 10, MinAcceptanceRate: 2},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Estimate(context.Background(), meanFunc(quadratic), sp, cfg, rng)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestEstimateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Estimate(ctx, meanFunc(quadratic), quadraticSpace(t), Config{
		Observed: 600, ObservationNoise: 10, NTarget: 10,
	}, rand.New(rand.NewSource(1)))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDescribeUsesNearestRankPercentiles(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	d, err := Describe(values)
	require.NoError(t, err)
	assert.Equal(t, 100, d.N)
	assert.InDelta(t, 50.5, d.Mean, 1e-12)
	assert.InDelta(t, 50.5, d.Median, 1e-12)
	assert.Equal(t, 3.0, d.P025)
	assert.Equal(t, 98.0, d.P975)

	single, err := Describe([]float64{4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, single.Std)

	_, err = Describe(nil)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestCounterfactualDeltas(t *testing.T) {
	linear := meanFunc(func(v []float64) float64 { return 1000 * v[0] })
	post := &Posterior{
		Names: []string{"infiltration"},
		Samples: []Sample{
			{Vector: []float64{1.2}},
			{Vector: []float64{1.4}},
			{Vector: []float64{1.2}},
			{Vector: []float64{1.4}},
		},
	}

	report, err := Counterfactual(context.Background(), linear, post, SetParameter(0, 1.0), CounterfactualOptions{
		Threshold:       250,
		ElectricityRate: 0.1,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 4)
	assert.InDelta(t, 200, report.Results[0].Delta, 1e-9)
	assert.InDelta(t, 400, report.Results[1].Delta, 1e-9)
	assert.InDelta(t, 300, report.Delta.Mean, 1e-9)
	assert.InDelta(t, 0.5, report.ProbAbove, 1e-12)
	assert.InDelta(t, 1300, report.BaselineMean, 1e-9)
	assert.InDelta(t, 1000, report.AlternativeMean, 1e-9)
	require.NotNil(t, report.Cost)
	assert.InDelta(t, 30, report.Cost.Mean, 1e-9)

	// the fix must not mutate the posterior
	assert.Equal(t, 1.2, post.Samples[0].Vector[0])

	cost, err := report.CostAt(0.2)
	require.NoError(t, err)
	assert.InDelta(t, 60, cost.Mean, 1e-9)
	_, err = report.CostAt(0)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestCounterfactualValidation(t *testing.T) {
	model := meanFunc(quadratic)
	post := &Posterior{Names: []string{"x"}, Samples: []Sample{{Vector: []float64{1}}}}
	ctx := context.Background()

	_, err := Counterfactual(ctx, model, &Posterior{}, SetParameter(0, 1), CounterfactualOptions{})
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	_, err = Counterfactual(ctx, model, post, nil, CounterfactualOptions{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = Counterfactual(ctx, model, post, SetParameter(0, 1), CounterfactualOptions{ElectricityRate: -1})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	report, err := Counterfactual(ctx, model, post, SetParameter(0, 1), CounterfactualOptions{})
	require.NoError(t, err)
	assert.Nil(t, report.Cost)
}
