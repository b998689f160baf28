// Package acquisition scores candidate vectors from surrogate predictions
// and picks the next one to evaluate.
package acquisition

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"bayescal/domain/calibration"
	"bayescal/domain/core"

	"gonum.org/v1/gonum/stat/distuv"
)

// Context carries what a policy needs beyond the predictions.
type Context struct {
	Goal calibration.Goal
	// Best is the best observed objective so far (outcome for
	// minimization, |outcome - target| for a target goal).
	Best float64
	// Scale is the spread of observed outcomes, used for relative xi.
	Scale float64
}

// Policy is a stateless acquisition strategy.
type Policy interface {
	Name() string
	// Scores returns one utility per prediction; higher is better.
	// Predictions must already be on the objective scale.
	Scores(preds []calibration.Prediction, c Context) ([]float64, error)
}

// Select transforms predictions for the goal, scores them with p and
// returns the index of the winner. If every std is zero the surrogate
// carries no information and a candidate is chosen uniformly at random.
func Select(p Policy, preds []calibration.Prediction, c Context, rng *rand.Rand) (int, []float64, error) {
	if len(preds) == 0 {
		return 0, nil, core.NewConfigError("candidate pool", "is empty")
	}
	for i, pr := range preds {
		if !pr.IsFinite() || pr.Std < 0 {
			return 0, nil, fmt.Errorf("%w: candidate %d mean=%g std=%g", core.ErrNumerical, i, pr.Mean, pr.Std)
		}
	}
	transformed := c.Goal.Transform(preds)

	if allZeroStd(transformed) {
		idx := rng.Intn(len(transformed))
		return idx, make([]float64, len(transformed)), nil
	}

	scores, err := p.Scores(transformed, c)
	if err != nil {
		return 0, nil, err
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, scores, nil
}

func allZeroStd(preds []calibration.Prediction) bool {
	for _, p := range preds {
		if p.Std > 0 {
			return false
		}
	}
	return true
}

// MaxUncertainty picks the candidate with the largest predictive std.
type MaxUncertainty struct{}

func (MaxUncertainty) Name() string { return "max_uncertainty" }

func (MaxUncertainty) Scores(preds []calibration.Prediction, _ Context) ([]float64, error) {
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = p.Std
	}
	return out, nil
}

// ExpectedImprovement scores E[max(best - f - xi, 0)]. The effective
// xi is Xi + RelativeXi*Scale.
type ExpectedImprovement struct {
	Xi         float64
	RelativeXi float64
}

// NewExpectedImprovement uses xi = 1% of the outcome scale.
func NewExpectedImprovement() ExpectedImprovement {
	return ExpectedImprovement{RelativeXi: 0.01}
}

func (ExpectedImprovement) Name() string { return "expected_improvement" }

func (e ExpectedImprovement) Scores(preds []calibration.Prediction, c Context) ([]float64, error) {
	xi, err := effectiveXi(e.Xi, e.RelativeXi, c.Scale)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = ExpectedImprovementValue(p.Mean, p.Std, c.Best, xi)
	}
	return out, nil
}

// ExpectedImprovementValue is the closed form for one candidate.
func ExpectedImprovementValue(mean, std, best, xi float64) float64 {
	if std <= 0 {
		return 0
	}
	imp := best - mean - xi
	z := imp / std
	ei := imp*distuv.UnitNormal.CDF(z) + std*distuv.UnitNormal.Prob(z)
	if ei < 0 || math.IsNaN(ei) {
		return 0
	}
	return ei
}

// ProbabilityOfImprovement scores P(f < best - xi).
type ProbabilityOfImprovement struct {
	Xi         float64
	RelativeXi float64
}

func NewProbabilityOfImprovement() ProbabilityOfImprovement {
	return ProbabilityOfImprovement{RelativeXi: 0.01}
}

func (ProbabilityOfImprovement) Name() string { return "probability_of_improvement" }

func (pi ProbabilityOfImprovement) Scores(preds []calibration.Prediction, c Context) ([]float64, error) {
	xi, err := effectiveXi(pi.Xi, pi.RelativeXi, c.Scale)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(preds))
	for i, p := range preds {
		if p.Std <= 0 {
			continue
		}
		out[i] = distuv.UnitNormal.CDF((c.Best - p.Mean - xi) / p.Std)
	}
	return out, nil
}

// ConfidenceBound is the lower confidence bound mean - Kappa*std.
// The candidate with the smallest bound wins, so Scores returns its negation.
type ConfidenceBound struct {
	Kappa float64
}

func NewConfidenceBound() ConfidenceBound {
	return ConfidenceBound{Kappa: 2.0}
}

func (ConfidenceBound) Name() string { return "lower_confidence_bound" }

func (cb ConfidenceBound) Scores(preds []calibration.Prediction, _ Context) ([]float64, error) {
	if cb.Kappa < 0 || math.IsNaN(cb.Kappa) {
		return nil, core.NewConfigError("kappa", fmt.Sprintf("must be non-negative, got %g", cb.Kappa))
	}
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = -(p.Mean - cb.Kappa*p.Std)
	}
	return out, nil
}

func effectiveXi(xi, relative, scale float64) (float64, error) {
	if xi < 0 || relative < 0 || math.IsNaN(xi) || math.IsNaN(relative) {
		return 0, core.NewConfigError("xi", "must be non-negative")
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 0
	}
	return xi + relative*scale, nil
}

// Options tunes strategies built by Parse. Zero values take defaults.
type Options struct {
	Xi         *float64
	RelativeXi *float64
	Kappa      *float64
}

// Parse maps a strategy name to a Policy.
func Parse(name string, opts Options) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "max_uncertainty", "max-uncertainty", "uncertainty", "max_std":
		return MaxUncertainty{}, nil
	case "", "ei", "expected_improvement", "expected-improvement":
		p := NewExpectedImprovement()
		applyXi(&p.Xi, &p.RelativeXi, opts)
		if _, err := effectiveXi(p.Xi, p.RelativeXi, 1); err != nil {
			return nil, err
		}
		return p, nil
	case "pi", "probability_of_improvement", "probability-of-improvement":
		p := NewProbabilityOfImprovement()
		applyXi(&p.Xi, &p.RelativeXi, opts)
		if _, err := effectiveXi(p.Xi, p.RelativeXi, 1); err != nil {
			return nil, err
		}
		return p, nil
	case "lcb", "ucb", "confidence_bound", "lower_confidence_bound":
		p := NewConfidenceBound()
		if opts.Kappa != nil {
			p.Kappa = *opts.Kappa
		}
		if p.Kappa < 0 {
			return nil, core.NewConfigError("kappa", fmt.Sprintf("must be non-negative, got %g", p.Kappa))
		}
		return p, nil
	default:
		return nil, core.NewConfigError("strategy", fmt.Sprintf("unknown strategy %q", name))
	}
}

func applyXi(xi, relative *float64, opts Options) {
	if opts.Xi != nil {
		*xi = *opts.Xi
		*relative = 0
	}
	if opts.RelativeXi != nil {
		*relative = *opts.RelativeXi
	}
}
