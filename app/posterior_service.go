package app

import (
	"context"
	"fmt"

	"bayescal/domain/core"
	"bayescal/domain/posterior"
	"bayescal/ports"
)

// EstimatePosterior runs rejection sampling against the final surrogate
// of a finished calibration. Samples are persisted when a repository is
// configured.
func (s *CalibrationService) EstimatePosterior(ctx context.Context, result *CalibrationResult, cfg posterior.Config, seed int64) (*posterior.Posterior, error) {
	if result == nil || result.Model == nil || result.Space == nil {
		return nil, fmt.Errorf("%w: calibration result has no fitted surrogate", core.ErrInsufficientData)
	}
	postRng, err := s.rngPort.Stream(ctx, "posterior", seed)
	if err != nil {
		return nil, err
	}

	post, err := posterior.Estimate(ctx, result.Model, result.Space, cfg, postRng)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePosterior(post.Accepted, post.AcceptanceRate)
	s.logger.Info("run %s: accepted %d of %d proposals (rate %.4f), kept %d",
		result.RunID, post.Accepted, post.Proposals, post.AcceptanceRate, post.Len())

	if pct := post.PredictivePercentile(cfg.Observed); pct < 2.5 || pct > 97.5 {
		s.logger.Warn("run %s: observed %g sits at the %.1f percentile of posterior predictions; the bounds may not contain it",
			result.RunID, cfg.Observed, pct)
	}

	if s.repo != nil {
		records := make([]ports.PosteriorRecord, post.Len())
		for i, smp := range post.Samples {
			records[i] = ports.PosteriorRecord{Vector: smp.Vector, Predicted: smp.Predicted}
		}
		if err := s.repo.SavePosterior(ctx, result.RunID, records); err != nil {
			s.logger.Warn("run %s: failed to persist posterior: %v", result.RunID, err)
		}
	}
	return post, nil
}

// Counterfactual estimates savings of applying fix to every posterior draw.
func (s *CalibrationService) Counterfactual(ctx context.Context, result *CalibrationResult, post *posterior.Posterior, fix posterior.FixFunc, opts posterior.CounterfactualOptions) (*posterior.CounterfactualReport, error) {
	if result == nil || result.Model == nil {
		return nil, fmt.Errorf("%w: calibration result has no fitted surrogate", core.ErrInsufficientData)
	}
	report, err := posterior.Counterfactual(ctx, result.Model, post, fix, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("run %s: counterfactual mean delta %.1f [%.1f, %.1f], P(delta > %g) = %.3f",
		result.RunID, report.Delta.Mean, report.Delta.P025, report.Delta.P975, report.Threshold, report.ProbAbove)
	return report, nil
}
