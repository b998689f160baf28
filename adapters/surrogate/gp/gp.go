// Package gp is a Gaussian-process regression surrogate: constant
// amplitude times an RBF or Matern 5/2 kernel with one length scale per
// input, a small white-noise nugget and standardized outputs.
// Hyperparameters maximize the log marginal likelihood.
package gp

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const failedLikelihood = 1e25

// Config tunes the fitter. Zero values take the defaults.
type Config struct {
	Kernel KernelKind
	// Lower and Upper map inputs onto the unit cube. When empty the
	// training data range is used.
	Lower []float64
	Upper []float64
	// Alpha is the nugget added to the kernel diagonal.
	Alpha             float64
	Restarts          int
	Seed              int64
	AmplitudeBounds   [2]float64
	LengthScaleBounds [2]float64
	FuncEvaluations   int
}

// DefaultConfig mirrors a C(1, (1e-3, 1e3)) * RBF(1, (1e-2, 1e2)) model
// with ten optimizer restarts.
func DefaultConfig() Config {
	return Config{
		Kernel:            KernelRBF,
		Alpha:             1e-6,
		Restarts:          10,
		AmplitudeBounds:   [2]float64{1e-3, 1e3},
		LengthScaleBounds: [2]float64{1e-2, 1e2},
		FuncEvaluations:   400,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Kernel == "" {
		c.Kernel = d.Kernel
	}
	if c.Alpha <= 0 {
		c.Alpha = d.Alpha
	}
	if c.Restarts < 0 {
		c.Restarts = 0
	}
	if c.AmplitudeBounds[0] <= 0 || c.AmplitudeBounds[1] <= c.AmplitudeBounds[0] {
		c.AmplitudeBounds = d.AmplitudeBounds
	}
	if c.LengthScaleBounds[0] <= 0 || c.LengthScaleBounds[1] <= c.LengthScaleBounds[0] {
		c.LengthScaleBounds = d.LengthScaleBounds
	}
	if c.FuncEvaluations <= 0 {
		c.FuncEvaluations = d.FuncEvaluations
	}
	return c
}

// Fitter builds GP models.
type Fitter struct {
	cfg Config
}

// NewFitter creates a GP fitter.
func NewFitter(cfg Config) *Fitter {
	return &Fitter{cfg: cfg.withDefaults()}
}

// Kind names the surrogate, e.g. "gp-rbf".
func (f *Fitter) Kind() string {
	return "gp-" + string(f.cfg.Kernel)
}

// Fit trains a model on x, y.
func (f *Fitter) Fit(ctx context.Context, x [][]float64, y []float64) (ports.SurrogateModel, error) {
	if err := validateTrainingData(x, y); err != nil {
		return nil, err
	}
	dim := len(x[0])

	lower, upper := f.normalizationBounds(x, dim)
	xn := make([][]float64, len(x))
	for i, v := range x {
		xn[i] = normalize(v, lower, upper)
	}

	yMean, yStd := stat.PopMeanStdDev(y, nil)
	if yStd < 1e-12 || math.IsNaN(yStd) {
		yStd = 1
	}
	yn := make([]float64, len(y))
	for i, v := range y {
		yn[i] = (v - yMean) / yStd
	}
	yVec := mat.NewVecDense(len(yn), yn)

	theta, lml, err := f.optimizeHyperparameters(ctx, xn, yVec, dim)
	if err != nil {
		return nil, err
	}

	k := f.unpack(theta)
	chol, nugget, ok := factorize(k, xn, f.cfg.Alpha)
	if !ok {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite", core.ErrNumerical)
	}
	var weights mat.VecDense
	if err := chol.SolveVecTo(&weights, yVec); err != nil {
		return nil, fmt.Errorf("%w: solve failed: %v", core.ErrNumerical, err)
	}

	return &Model{
		kind:    f.Kind(),
		kernel:  k,
		xn:      xn,
		lower:   lower,
		upper:   upper,
		yMean:   yMean,
		yStd:    yStd,
		chol:    chol,
		weights: &weights,
		nugget:  nugget,
		lml:     lml,
	}, nil
}

func (f *Fitter) normalizationBounds(x [][]float64, dim int) ([]float64, []float64) {
	if len(f.cfg.Lower) == dim && len(f.cfg.Upper) == dim {
		return append([]float64(nil), f.cfg.Lower...), append([]float64(nil), f.cfg.Upper...)
	}
	lower := append([]float64(nil), x[0]...)
	upper := append([]float64(nil), x[0]...)
	for _, v := range x[1:] {
		for d := range v {
			lower[d] = math.Min(lower[d], v[d])
			upper[d] = math.Max(upper[d], v[d])
		}
	}
	return lower, upper
}

// theta = [log amplitude, log length scale per dimension]
func (f *Fitter) unpack(theta []float64) kernel {
	c := f.clip(theta)
	ls := make([]float64, len(c)-1)
	for i := range ls {
		ls[i] = math.Exp(c[i+1])
	}
	return kernel{kind: f.cfg.Kernel, amplitude: math.Exp(c[0]), lengthScales: ls}
}

func (f *Fitter) clip(theta []float64) []float64 {
	out := make([]float64, len(theta))
	for i, v := range theta {
		lo, hi := math.Log(f.cfg.LengthScaleBounds[0]), math.Log(f.cfg.LengthScaleBounds[1])
		if i == 0 {
			lo, hi = math.Log(f.cfg.AmplitudeBounds[0]), math.Log(f.cfg.AmplitudeBounds[1])
		}
		out[i] = math.Max(lo, math.Min(hi, v))
	}
	return out
}

func (f *Fitter) optimizeHyperparameters(ctx context.Context, xn [][]float64, y *mat.VecDense, dim int) ([]float64, float64, error) {
	objective := func(theta []float64) float64 {
		return negLogMarginalLikelihood(f.unpack(theta), xn, y, f.cfg.Alpha)
	}

	starts := [][]float64{make([]float64, dim+1)}
	rng := rand.New(rand.NewSource(f.cfg.Seed))
	for r := 0; r < f.cfg.Restarts; r++ {
		start := make([]float64, dim+1)
		for i := range start {
			lo, hi := math.Log(f.cfg.LengthScaleBounds[0]), math.Log(f.cfg.LengthScaleBounds[1])
			if i == 0 {
				lo, hi = math.Log(f.cfg.AmplitudeBounds[0]), math.Log(f.cfg.AmplitudeBounds[1])
			}
			start[i] = lo + rng.Float64()*(hi-lo)
		}
		starts = append(starts, start)
	}

	bestTheta := starts[0]
	bestF := objective(bestTheta)
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		problem := optimize.Problem{Func: objective}
		settings := &optimize.Settings{
			FuncEvaluations: f.cfg.FuncEvaluations,
			Concurrent:      1,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-8,
				Relative:   1e-8,
				Iterations: 40,
			},
		}
		// Limit statuses still carry the best location found.
		result, _ := optimize.Minimize(problem, start, settings, &optimize.NelderMead{SimplexSize: 0.5})
		if result == nil {
			continue
		}
		if !math.IsNaN(result.F) && result.F < bestF {
			bestF = result.F
			bestTheta = result.X
		}
	}

	if bestF >= failedLikelihood {
		return nil, 0, fmt.Errorf("%w: no hyperparameters gave a positive definite covariance", core.ErrNumerical)
	}
	return f.clip(bestTheta), -bestF, nil
}

func negLogMarginalLikelihood(k kernel, xn [][]float64, y *mat.VecDense, alpha float64) float64 {
	chol, _, ok := factorize(k, xn, alpha)
	if !ok {
		return failedLikelihood
	}
	var a mat.VecDense
	if err := chol.SolveVecTo(&a, y); err != nil {
		return failedLikelihood
	}
	n := float64(y.Len())
	nll := 0.5*mat.Dot(y, &a) + 0.5*chol.LogDet() + 0.5*n*math.Log(2*math.Pi)
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return failedLikelihood
	}
	return nll
}

// factorize builds K + alpha*I and escalates the nugget until the
// Cholesky factorization succeeds.
func factorize(k kernel, xn [][]float64, alpha float64) (*mat.Cholesky, float64, bool) {
	n := len(xn)
	base := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			base.SetSym(i, j, k.eval(xn[i], xn[j]))
		}
	}
	nugget := alpha
	for attempt := 0; attempt < 6; attempt++ {
		cov := mat.NewSymDense(n, nil)
		cov.CopySym(base)
		for i := 0; i < n; i++ {
			cov.SetSym(i, i, cov.At(i, i)+nugget)
		}
		var chol mat.Cholesky
		if chol.Factorize(cov) {
			return &chol, nugget, true
		}
		nugget *= 10
	}
	return nil, nugget, false
}

func validateTrainingData(x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d inputs but %d outcomes", core.ErrInvalidConfig, len(x), len(y))
	}
	if len(x) < 2 {
		return fmt.Errorf("%w: need at least 2 samples, have %d", core.ErrInsufficientData, len(x))
	}
	dim := len(x[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty input vectors", core.ErrInvalidConfig)
	}
	distinct := make(map[string]struct{}, len(x))
	for i, v := range x {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has %d entries, want %d", core.ErrInvalidConfig, i, len(v), dim)
		}
		for _, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: row %d is not finite", core.ErrInvalidConfig, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("%w: outcome %d is not finite", core.ErrInvalidConfig, i)
		}
		distinct[fmt.Sprint(v)] = struct{}{}
	}
	if len(distinct) < 2 {
		return fmt.Errorf("%w: need at least 2 distinct points, have %d", core.ErrInsufficientData, len(distinct))
	}
	return nil
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

// Model is a fitted GP. It is read-only and safe for concurrent Predict calls.
type Model struct {
	kind    string
	kernel  kernel
	xn      [][]float64
	lower   []float64
	upper   []float64
	yMean   float64
	yStd    float64
	chol    *mat.Cholesky
	weights *mat.VecDense
	nugget  float64
	lml     float64
}

// Kind names the surrogate.
func (m *Model) Kind() string { return m.kind }

// Amplitude is the fitted constant kernel factor (standardized scale).
func (m *Model) Amplitude() float64 { return m.kernel.amplitude }

// LengthScales are the fitted per-dimension length scales in unit-cube units.
func (m *Model) LengthScales() []float64 {
	return append([]float64(nil), m.kernel.lengthScales...)
}

// Nugget is the diagonal noise actually used in the factorization,
// after any jitter escalation. Predictive variance never drops below it.
func (m *Model) Nugget() float64 { return m.nugget }

// LogMarginalLikelihood of the standardized training outcomes.
func (m *Model) LogMarginalLikelihood() float64 { return m.lml }

// Predict returns mean and std for each vector.
func (m *Model) Predict(vectors [][]float64) ([]calibration.Prediction, error) {
	n := len(m.xn)
	out := make([]calibration.Prediction, len(vectors))
	kstar := mat.NewVecDense(n, nil)
	var solved mat.VecDense
	for i, v := range vectors {
		if len(v) != len(m.lower) {
			return nil, fmt.Errorf("%w: vector %d has %d entries, want %d", core.ErrInvalidConfig, i, len(v), len(m.lower))
		}
		u := normalize(v, m.lower, m.upper)
		for j := 0; j < n; j++ {
			kstar.SetVec(j, m.kernel.eval(u, m.xn[j]))
		}
		mean := mat.Dot(kstar, m.weights)
		if err := m.chol.SolveVecTo(&solved, kstar); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrNumerical, err)
		}
		variance := m.kernel.amplitude - mat.Dot(kstar, &solved)
		if variance < m.nugget || math.IsNaN(variance) {
			variance = m.nugget
		}
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
