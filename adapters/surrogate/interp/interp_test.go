package interp

import (
	"context"
	"testing"

	"bayescal/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearInterpolationOneDim(t *testing.T) {
	f := NewFitter(Config{Lower: []float64{0}, Upper: []float64{10}, Scale: 100})
	model, err := f.Fit(context.Background(), [][]float64{{8}, {2}, {5}}, []float64{80, 20, 50})
	require.NoError(t, err)

	preds, err := model.Predict([][]float64{{3.5}, {2}, {0}, {10}})
	require.NoError(t, err)

	assert.InDelta(t, 35, preds[0].Mean, 1e-9)
	assert.InDelta(t, 20, preds[1].Mean, 1e-9)
	assert.InDelta(t, 20, preds[2].Mean, 1e-9, "clamped below range")
	assert.InDelta(t, 80, preds[3].Mean, 1e-9, "clamped above range")

	assert.InDelta(t, 100, preds[1].Std, 1e-9, "std equals scale at a training point")
	assert.Greater(t, preds[2].Std, preds[0].Std)
}

func TestInverseDistanceWeighting(t *testing.T) {
	f := NewFitter(Config{})
	x := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	y := []float64{0, 10, 10, 20}
	model, err := f.Fit(context.Background(), x, y)
	require.NoError(t, err)

	preds, err := model.Predict([][]float64{{1, 0}, {0.5, 0.5}, {0.9, 0.9}})
	require.NoError(t, err)

	assert.Equal(t, 10.0, preds[0].Mean)
	assert.InDelta(t, 10, preds[1].Mean, 1e-9)
	assert.Greater(t, preds[2].Mean, 15.0)
	assert.Greater(t, preds[1].Std, preds[0].Std)
	assert.Equal(t, "interp", model.Kind())
}

func TestInterpRejectsDegenerateData(t *testing.T) {
	f := NewFitter(Config{})
	_, err := f.Fit(context.Background(), [][]float64{{1}}, []float64{1})
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	_, err = f.Fit(context.Background(), [][]float64{{1}, {1}}, []float64{1, 2})
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}
