package sensitivity

import (
	"context"
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
		out[i] = calibration.Prediction{Mean: f(v)}
	}
	return out, nil
}

func unitSpace(t *testing.T, names ...string) *space.Space {
	t.Helper()
	specs := make([]calibration.ParameterSpec, len(names))
	for i, n := range names {
		specs[i] = calibration.ParameterSpec{Name: n, Lower: 0, Upper: 1}
	}
	sp, err := space.New(specs)
	require.NoError(t, err)
	return sp
}

func TestSobolAdditiveFunction(t *testing.T) {
	sp := unitSpace(t, "x1", "x2", "dummy")
	additive := meanFunc(func(v []float64) float64 { return v[0] + 2*v[1] })

	res, err := Sobol(context.Background(), additive, sp, 4096, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	require.Len(t, res.Indices, 3)
	assert.Equal(t, 4096*5, res.Evaluations)

	assert.InDelta(t, 0.2, res.Indices[0].First, 0.05)
	assert.InDelta(t, 0.8, res.Indices[1].First, 0.05)
	assert.InDelta(t, 0.2, res.Indices[0].Total, 0.05)
	assert.InDelta(t, 0.8, res.Indices[1].Total, 0.05)
	assert.InDelta(t, 0.0, res.Indices[2].Total, 1e-12)

	assert.Equal(t, []string{"x2", "x1"}, res.ImportantParameters(0.1))
}

func TestSobolRejectsConstantModel(t *testing.T) {
	sp := unitSpace(t, "x")
	_, err := Sobol(context.Background(), meanFunc(func([]float64) float64 { return 3 }), sp, 64, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, core.ErrNumerical)
}

func TestSobolValidation(t *testing.T) {
	sp := unitSpace(t, "x")
	_, err := Sobol(context.Background(), nil, sp, 64, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = Sobol(context.Background(), meanFunc(func(v []float64) float64 { return v[0] }), sp, 1, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
