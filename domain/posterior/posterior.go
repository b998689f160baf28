// Package posterior estimates the distribution of parameters consistent
// with an observed outcome by rejection sampling against a surrogate,
// and propagates it through counterfactual "fixed" scenarios.
package posterior

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/domain/space"
)

// Predictor is the read side of a fitted surrogate.
type Predictor interface {
	Predict(vectors [][]float64) ([]calibration.Prediction, error)
}

// Config controls rejection sampling.
type Config struct {
	// Observed is the measured outcome, e.g. the annual metered kWh.
	Observed float64
	// ObservationNoise is the Gaussian likelihood std. Required; there
	// is no default.
	ObservationNoise float64
	// NTarget is the number of accepted samples wanted.
	NTarget int
	// ProposalMultiplier sets proposals = NTarget * ProposalMultiplier.
	// Defaults to 10.
	ProposalMultiplier int
	// MinAcceptanceRate below which the result is rejected. Defaults to 0.001.
	MinAcceptanceRate float64
	// BatchSize bounds each Predict call. Defaults to 2048.
	BatchSize int
}

func (c Config) validate() (Config, error) {
	if math.IsNaN(c.Observed) || math.IsInf(c.Observed, 0) {
		return c, core.NewConfigError("observed", "must be finite")
	}
	if !(c.ObservationNoise > 0) || math.IsInf(c.ObservationNoise, 0) {
		return c, core.NewConfigError("observation_noise", fmt.Sprintf("must be positive, got %g", c.ObservationNoise))
	}
	if c.NTarget <= 0 {
		return c, core.NewConfigError("n_target", fmt.Sprintf("must be positive, got %d", c.NTarget))
	}
	if c.ProposalMultiplier == 0 {
		c.ProposalMultiplier = 10
	}
	if c.ProposalMultiplier < 1 {
		return c, core.NewConfigError("proposal_multiplier", fmt.Sprintf("must be at least 1, got %d", c.ProposalMultiplier))
	}
	if c.MinAcceptanceRate == 0 {
		c.MinAcceptanceRate = 0.001
	}
	if c.MinAcceptanceRate < 0 || c.MinAcceptanceRate > 1 {
		return c, core.NewConfigError("min_acceptance_rate", "must be within [0, 1]")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 2048
	}
	return c, nil
}

// Sample is one accepted draw.
type Sample struct {
	Vector       []float64 `json:"vector"`
	Predicted    float64   `json:"predicted"`
	PredictedStd float64   `json:"predicted_std"`
	Likelihood   float64   `json:"likelihood"`
}

// Posterior is the accepted sample set and its acceptance statistics.
type Posterior struct {
	Names          []string `json:"names"`
	Samples        []Sample `json:"samples"`
	Proposals      int      `json:"proposals"`
	Accepted       int      `json:"accepted"`
	AcceptanceRate float64  `json:"acceptance_rate"`
	Observed       float64  `json:"observed"`
	Noise          float64  `json:"noise"`
}

// Len returns the number of retained samples.
func (p *Posterior) Len() int {
	return len(p.Samples)
}

// Vectors returns copies of the retained parameter vectors.
func (p *Posterior) Vectors() [][]float64 {
	out := make([][]float64, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = append([]float64(nil), s.Vector...)
	}
	return out
}

// Column returns parameter dim across samples.
func (p *Posterior) Column(dim int) []float64 {
	out := make([]float64, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = s.Vector[dim]
	}
	return out
}

// Predictions returns the surrogate mean at every sample.
func (p *Posterior) Predictions() []float64 {
	out := make([]float64, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = s.Predicted
	}
	return out
}

// Estimate draws NTarget*ProposalMultiplier uniform proposals inside the
// space, weights each by the Gaussian likelihood of the observed value
// under the surrogate mean, and accepts with probability L/max(L).
// At most NTarget samples are kept. A likelihood that is zero everywhere
// or an acceptance rate below MinAcceptanceRate yields
// ErrInsufficientAcceptance.
func Estimate(ctx context.Context, model Predictor, sp *space.Space, cfg Config, rng *rand.Rand) (*Posterior, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, core.NewConfigError("model", "is required")
	}

	nProposals := cfg.NTarget * cfg.ProposalMultiplier
	proposals, err := sp.UniformSample(nProposals, rng)
	if err != nil {
		return nil, err
	}

	preds := make([]calibration.Prediction, 0, nProposals)
	for start := 0; start < nProposals; start += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+cfg.BatchSize, nProposals)
		batch, err := model.Predict(proposals[start:end])
		if err != nil {
			return nil, fmt.Errorf("predict proposals: %w", err)
		}
		preds = append(preds, batch...)
	}

	likelihood := make([]float64, nProposals)
	maxL := 0.0
	for i, p := range preds {
		z := (p.Mean - cfg.Observed) / cfg.ObservationNoise
		l := math.Exp(-0.5 * z * z)
		if math.IsNaN(l) {
			l = 0
		}
		likelihood[i] = l
		if l > maxL {
			maxL = l
		}
	}
	if maxL == 0 {
		return nil, fmt.Errorf("%w: observed %g is unreachable within the parameter bounds (noise %g)",
			core.ErrInsufficientAcceptance, cfg.Observed, cfg.ObservationNoise)
	}

	post := &Posterior{
		Names:     sp.Names(),
		Proposals: nProposals,
		Observed:  cfg.Observed,
		Noise:     cfg.ObservationNoise,
	}
	for i, l := range likelihood {
		if rng.Float64() >= l/maxL {
			continue
		}
		post.Accepted++
		if len(post.Samples) < cfg.NTarget {
			post.Samples = append(post.Samples, Sample{
				Vector:       proposals[i],
				Predicted:    preds[i].Mean,
				PredictedStd: preds[i].Std,
				Likelihood:   l,
			})
		}
	}
	post.AcceptanceRate = float64(post.Accepted) / float64(nProposals)

	if post.Accepted == 0 || post.AcceptanceRate < cfg.MinAcceptanceRate {
		return nil, fmt.Errorf("%w: accepted %d of %d proposals (rate %.5f < %.5f)",
			core.ErrInsufficientAcceptance, post.Accepted, nProposals, post.AcceptanceRate, cfg.MinAcceptanceRate)
	}
	return post, nil
}
