// Package poly is a quadratic response-surface surrogate: degree-2
// polynomial features of the unit-cube inputs fitted by ridge
// regression. The std is the Bayesian linear-regression predictive
// spread, so it widens where the features leave the training design.
package poly

import (
	"context"
	"fmt"
	"math"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minResidualVariance keeps the std positive on exactly quadratic data.
const minResidualVariance = 1e-6

// Config tunes the fitter.
type Config struct {
	Lower []float64
	Upper []float64
	// Ridge penalizes every coefficient except the intercept. Default 1.
	Ridge float64
}

// Fitter builds polynomial ridge models.
type Fitter struct {
	cfg Config
}

// NewFitter creates a polynomial ridge fitter.
func NewFitter(cfg Config) *Fitter {
	if cfg.Ridge <= 0 || math.IsNaN(cfg.Ridge) {
		cfg.Ridge = 1
	}
	return &Fitter{cfg: cfg}
}

func (f *Fitter) Kind() string { return "poly-ridge" }

// Fit solves (PhiᵀPhi + λD) w = Phiᵀy on standardized outcomes.
func (f *Fitter) Fit(ctx context.Context, x [][]float64, y []float64) (ports.SurrogateModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d inputs but %d outcomes", core.ErrInvalidConfig, len(x), len(y))
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, have %d", core.ErrInsufficientData, len(x))
	}
	dim := len(x[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty input vectors", core.ErrInvalidConfig)
	}
	for i := range y {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("%w: outcome %d is not finite", core.ErrInvalidConfig, i)
		}
	}
	lower, upper := f.bounds(x, dim)

	yMean, yStd := stat.PopMeanStdDev(y, nil)
	if yStd < 1e-12 || math.IsNaN(yStd) {
		yStd = 1
	}

	p := featureCount(dim)
	phi := mat.NewDense(len(x), p, nil)
	yn := mat.NewVecDense(len(y), nil)
	for i, v := range x {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", core.ErrInvalidConfig, i, len(v), dim)
		}
		phi.SetRow(i, features(normalize(v, lower, upper)))
		yn.SetVec(i, (y[i]-yMean)/yStd)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, phi.T())
	for j := 1; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+f.cfg.Ridge)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("%w: ridge system is not positive definite", core.ErrNumerical)
	}

	var rhs, weights mat.VecDense
	rhs.MulVec(phi.T(), yn)
	if err := chol.SolveVecTo(&weights, &rhs); err != nil {
		return nil, fmt.Errorf("%w: ridge solve failed: %v", core.ErrNumerical, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(phi, &weights)
	resid := make([]float64, len(y))
	floats.SubTo(resid, yn.RawVector().Data, fitted.RawVector().Data)
	sigma2 := floats.Dot(resid, resid) / float64(len(y))
	if sigma2 < minResidualVariance {
		sigma2 = minResidualVariance
	}

	return &Model{
		lower:   lower,
		upper:   upper,
		yMean:   yMean,
		yStd:    yStd,
		weights: &weights,
		chol:    &chol,
		sigma2:  sigma2,
	}, nil
}

func (f *Fitter) bounds(x [][]float64, dim int) ([]float64, []float64) {
	if len(f.cfg.Lower) == dim && len(f.cfg.Upper) == dim {
		return f.cfg.Lower, f.cfg.Upper
	}
	lower := append([]float64(nil), x[0]...)
	upper := append([]float64(nil), x[0]...)
	for _, v := range x[1:] {
		for d := 0; d < dim && d < len(v); d++ {
			lower[d] = math.Min(lower[d], v[d])
			upper[d] = math.Max(upper[d], v[d])
		}
	}
	return lower, upper
}

// Model is a fitted response surface.
type Model struct {
	lower   []float64
	upper   []float64
	yMean   float64
	yStd    float64
	weights *mat.VecDense
	chol    *mat.Cholesky
	sigma2  float64
}

func (m *Model) Kind() string { return "poly-ridge" }

// Coefficients returns the weights on the standardized scale, ordered
// intercept, linear terms, then u_i*u_j for i <= j.
func (m *Model) Coefficients() []float64 {
	return append([]float64(nil), m.weights.RawVector().Data...)
}

// Predict returns mean and std for each vector.
func (m *Model) Predict(vectors [][]float64) ([]calibration.Prediction, error) {
	out := make([]calibration.Prediction, len(vectors))
	var solved mat.VecDense
	for i, v := range vectors {
		if len(v) != len(m.lower) {
			return nil, fmt.Errorf("%w: vector %d has %d entries, want %d", core.ErrInvalidConfig, i, len(v), len(m.lower))
		}
		phi := mat.NewVecDense(m.weights.Len(), features(normalize(v, m.lower, m.upper)))
		mean := mat.Dot(phi, m.weights)
		if err := m.chol.SolveVecTo(&solved, phi); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrNumerical, err)
		}
		variance := m.sigma2 * (1 + mat.Dot(phi, &solved))
		p := calibration.Prediction{
			Mean: mean*m.yStd + m.yMean,
			Std:  math.Sqrt(variance) * m.yStd,
		}
		if !p.IsFinite() {
			return nil, fmt.Errorf("%w: prediction %d mean=%g std=%g", core.ErrNumerical, i, p.Mean, p.Std)
		}
		out[i] = p
	}
	return out, nil
}

func featureCount(dim int) int {
	return 1 + dim + dim*(dim+1)/2
}

// features is [1, u_1..u_d, u_i*u_j for i <= j].
func features(u []float64) []float64 {
	out := make([]float64, 0, featureCount(len(u)))
	out = append(out, 1)
	out = append(out, u...)
	for i := range u {
		for j := i; j < len(u); j++ {
			out = append(out, u[i]*u[j])
		}
	}
	return out
}

func normalize(v, lower, upper []float64) []float64 {
	out := make([]float64, len(v))
	for d := range v {
		width := upper[d] - lower[d]
		if width <= 0 {
			width = 1
		}
		out[d] = (v[d] - lower[d]) / width
	}
	return out
}
