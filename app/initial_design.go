package app

import (
	"context"
	"time"

	"bayescal/domain/calibration"

	"golang.org/x/sync/errgroup"
)

type designOutcome struct {
	y   float64
	err error
	dur time.Duration
}

// runInitialDesign evaluates the Latin hypercube with at most
// Parallelism calls in flight. Outcomes are collected by index and
// appended in design order by the calling goroutine, so the training
// set never sees concurrent writes.
func (s *CalibrationService) runInitialDesign(ctx context.Context, r *run) error {
	designRng, err := s.rngPort.Stream(ctx, "initial_design", r.req.Seed)
	if err != nil {
		return err
	}
	n := min(r.req.NInitial, r.budget.Max)
	design, err := r.space.InitialDesign(n, designRng)
	if err != nil {
		return err
	}

	outcomes := make([]designOutcome, len(design))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.req.Parallelism)
	for i, vector := range design {
		if err := r.budget.Consume(); err != nil {
			break
		}
		i, vector := i, vector
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			y, dur, err := s.evaluate(gctx, r.eval, vector)
			outcomes[i] = designOutcome{y: y, err: err, dur: dur}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, vector := range design {
		o := outcomes[i]
		s.record(ctx, r, calibration.PhaseInitial, vector, o.y, o.err, 0, o.dur)
	}
	return nil
}
