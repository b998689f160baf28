package ports

import (
	"context"

	"bayescal/domain/calibration"
)

// SurrogateFitter trains a surrogate model. Fit is pure: the same
// inputs and fitter configuration always give the same model.
type SurrogateFitter interface {
	Fit(ctx context.Context, x [][]float64, y []float64) (SurrogateModel, error)
	Kind() string
}

// SurrogateModel predicts mean and standard deviation for a batch of vectors.
type SurrogateModel interface {
	Predict(vectors [][]float64) ([]calibration.Prediction, error)
	Kind() string
}
