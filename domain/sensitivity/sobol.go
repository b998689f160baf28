// Package sensitivity computes variance-based (Sobol) sensitivity
// indices of a fitted surrogate's mean.
package sensitivity

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/domain/space"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Predictor is the read side of a fitted surrogate.
type Predictor interface {
	Predict(vectors [][]float64) ([]calibration.Prediction, error)
}

// Index holds the first-order and total-order Sobol indices of one parameter.
type Index struct {
	Name  string  `json:"name"`
	First float64 `json:"first"`
	Total float64 `json:"total"`
}

// Result of a Sobol analysis.
type Result struct {
	Indices     []Index `json:"indices"`
	Variance    float64 `json:"variance"`
	Evaluations int     `json:"evaluations"`
}

// ImportantParameters returns the names whose total index is at least
// threshold, most influential first.
func (r *Result) ImportantParameters(threshold float64) []string {
	kept := make([]Index, 0, len(r.Indices))
	for _, idx := range r.Indices {
		if idx.Total >= threshold {
			kept = append(kept, idx)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Total > kept[j].Total })
	names := make([]string, len(kept))
	for i, idx := range kept {
		names[i] = idx.Name
	}
	return names
}

// Sobol estimates indices from n base samples using the A/B/AB_i
// scheme: N*(d+2) surrogate predictions. First-order indices use the
// Saltelli 2010 estimator, total-order the Jansen estimator.
func Sobol(ctx context.Context, model Predictor, sp *space.Space, n int, rng *rand.Rand) (*Result, error) {
	if model == nil {
		return nil, core.NewConfigError("model", "is required")
	}
	if n < 2 {
		return nil, core.NewConfigError("n", fmt.Sprintf("need at least 2 base samples, got %d", n))
	}
	d := sp.Dim()

	a, err := sp.UniformSample(n, rng)
	if err != nil {
		return nil, err
	}
	b, err := sp.UniformSample(n, rng)
	if err != nil {
		return nil, err
	}
	fA, err := means(model, a)
	if err != nil {
		return nil, err
	}
	fB, err := means(model, b)
	if err != nil {
		return nil, err
	}

	variance := stat.Variance(append(append([]float64(nil), fA...), fB...), nil)
	if !(variance > 0) {
		return nil, fmt.Errorf("%w: surrogate mean is constant over the space", core.ErrNumerical)
	}

	res := &Result{
		Indices:     make([]Index, d),
		Variance:    variance,
		Evaluations: n * (d + 2),
	}
	names := sp.Names()
	diff := make([]float64, n)
	for i := 0; i < d; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ab := make([][]float64, n)
		for j := range a {
			row := append([]float64(nil), a[j]...)
			row[i] = b[j][i]
			ab[j] = row
		}
		fAB, err := means(model, ab)
		if err != nil {
			return nil, err
		}

		floats.SubTo(diff, fAB, fA)
		first := floats.Dot(fB, diff) / float64(n) / variance
		total := floats.Dot(diff, diff) / float64(2*n) / variance
		res.Indices[i] = Index{Name: names[i], First: first, Total: total}
	}
	return res, nil
}

func means(model Predictor, vectors [][]float64) ([]float64, error) {
	preds, err := model.Predict(vectors)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = p.Mean
	}
	return out, nil
}
