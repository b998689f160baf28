package posterior

import (
	"context"
	"fmt"
	"math"

	"bayescal/domain/core"
)

// FixFunc maps a posterior ("faulty") vector to its repaired counterpart.
type FixFunc func(vector []float64) []float64

// SetParameter repairs by setting parameter dim to value.
func SetParameter(dim int, value float64) FixFunc {
	return func(vector []float64) []float64 {
		out := append([]float64(nil), vector...)
		out[dim] = value
		return out
	}
}

// CounterfactualOptions tunes the savings summary.
type CounterfactualOptions struct {
	// Threshold for P(delta > Threshold).
	Threshold float64
	// ElectricityRate converts delta to cost when positive ($/kWh).
	ElectricityRate float64
}

// CounterfactualResult is one posterior draw evaluated both ways.
type CounterfactualResult struct {
	Baseline    float64 `json:"baseline"`
	Alternative float64 `json:"alternative"`
	Delta       float64 `json:"delta"`
}

// CounterfactualReport is the savings distribution.
type CounterfactualReport struct {
	Results         []CounterfactualResult `json:"results"`
	Delta           Distribution           `json:"delta"`
	Threshold       float64                `json:"threshold"`
	ProbAbove       float64                `json:"prob_above_threshold"`
	Rate            float64                `json:"rate,omitempty"`
	Cost            *Distribution          `json:"cost,omitempty"`
	BaselineMean    float64                `json:"baseline_mean"`
	AlternativeMean float64                `json:"alternative_mean"`
}

// Deltas returns baseline - alternative per draw.
func (r *CounterfactualReport) Deltas() []float64 {
	out := make([]float64, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Delta
	}
	return out
}

// CostAt summarizes delta * rate for another tariff.
func (r *CounterfactualReport) CostAt(rate float64) (Distribution, error) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return Distribution{}, core.NewConfigError("electricity_rate", fmt.Sprintf("must be positive, got %g", rate))
	}
	deltas := r.Deltas()
	for i := range deltas {
		deltas[i] *= rate
	}
	return Describe(deltas)
}

// Counterfactual predicts every posterior draw as-is and after fix,
// and summarizes delta = faulty - fixed.
func Counterfactual(ctx context.Context, model Predictor, post *Posterior, fix FixFunc, opts CounterfactualOptions) (*CounterfactualReport, error) {
	if model == nil {
		return nil, core.NewConfigError("model", "is required")
	}
	if fix == nil {
		return nil, core.NewConfigError("fix", "is required")
	}
	if post == nil || post.Len() == 0 {
		return nil, fmt.Errorf("%w: empty posterior", core.ErrInsufficientData)
	}
	if opts.ElectricityRate < 0 || math.IsNaN(opts.ElectricityRate) {
		return nil, core.NewConfigError("electricity_rate", "must not be negative")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	faulty := post.Vectors()
	fixed := make([][]float64, len(faulty))
	for i, v := range faulty {
		fixed[i] = fix(v)
	}

	basePreds, err := model.Predict(faulty)
	if err != nil {
		return nil, fmt.Errorf("predict faulty: %w", err)
	}
	altPreds, err := model.Predict(fixed)
	if err != nil {
		return nil, fmt.Errorf("predict fixed: %w", err)
	}

	report := &CounterfactualReport{
		Results:   make([]CounterfactualResult, len(faulty)),
		Threshold: opts.Threshold,
		Rate:      opts.ElectricityRate,
	}
	deltas := make([]float64, len(faulty))
	above := 0
	var baseSum, altSum float64
	for i := range faulty {
		d := basePreds[i].Mean - altPreds[i].Mean
		report.Results[i] = CounterfactualResult{
			Baseline:    basePreds[i].Mean,
			Alternative: altPreds[i].Mean,
			Delta:       d,
		}
		deltas[i] = d
		baseSum += basePreds[i].Mean
		altSum += altPreds[i].Mean
		if d > opts.Threshold {
			above++
		}
	}
	report.BaselineMean = baseSum / float64(len(faulty))
	report.AlternativeMean = altSum / float64(len(faulty))
	report.ProbAbove = float64(above) / float64(len(faulty))

	if report.Delta, err = Describe(deltas); err != nil {
		return nil, err
	}
	if opts.ElectricityRate > 0 {
		cost, err := report.CostAt(opts.ElectricityRate)
		if err != nil {
			return nil, err
		}
		report.Cost = &cost
	}
	return report, nil
}
