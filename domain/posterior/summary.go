package posterior

import (
	"fmt"

	"bayescal/domain/core"

	"github.com/montanaflynn/stats"
)

// Distribution summarizes a set of draws.
type Distribution struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	P025   float64 `json:"p2_5"`
	P975   float64 `json:"p97_5"`
}

// Describe computes mean, median, sample std and the central 95% interval.
func Describe(values []float64) (Distribution, error) {
	if len(values) == 0 {
		return Distribution{}, fmt.Errorf("%w: no values to summarize", core.ErrInsufficientData)
	}
	data := stats.Float64Data(values)

	mean, err := stats.Mean(data)
	if err != nil {
		return Distribution{}, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return Distribution{}, err
	}
	var std float64
	if len(values) > 1 {
		if std, err = stats.StandardDeviationSample(data); err != nil {
			return Distribution{}, err
		}
	}
	lower, err := stats.PercentileNearestRank(data, 2.5)
	if err != nil {
		return Distribution{}, err
	}
	upper, err := stats.PercentileNearestRank(data, 97.5)
	if err != nil {
		return Distribution{}, err
	}
	return Distribution{
		N:      len(values),
		Mean:   mean,
		Median: median,
		Std:    std,
		P025:   lower,
		P975:   upper,
	}, nil
}

// ParameterSummary is the marginal posterior of one parameter.
type ParameterSummary struct {
	Name string `json:"name"`
	Distribution
}

// Summarize describes every parameter marginal.
func Summarize(p *Posterior) ([]ParameterSummary, error) {
	if p == nil || p.Len() == 0 {
		return nil, fmt.Errorf("%w: empty posterior", core.ErrInsufficientData)
	}
	out := make([]ParameterSummary, len(p.Names))
	for d, name := range p.Names {
		dist, err := Describe(p.Column(d))
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", name, err)
		}
		out[d] = ParameterSummary{Name: name, Distribution: dist}
	}
	return out, nil
}

// ExceedanceProbability is the posterior P(parameter dim > threshold),
// e.g. the probability that infiltration exceeds 1.1x nominal.
func (p *Posterior) ExceedanceProbability(dim int, threshold float64) float64 {
	if p.Len() == 0 {
		return 0
	}
	count := 0
	for _, s := range p.Samples {
		if s.Vector[dim] > threshold {
			count++
		}
	}
	return float64(count) / float64(p.Len())
}

// PredictivePercentile returns the percentage of posterior predictions
// at or below observed. Values near 0 or 100 mean the surrogate cannot
// reproduce the observation inside the bounds.
func (p *Posterior) PredictivePercentile(observed float64) float64 {
	if p.Len() == 0 {
		return 0
	}
	count := 0
	for _, s := range p.Samples {
		if s.Predicted <= observed {
			count++
		}
	}
	return 100 * float64(count) / float64(p.Len())
}
