package evaluator

import (
	"context"

	"bayescal/domain/core"
	"bayescal/ports"

	"golang.org/x/time/rate"
)

type rateLimitedEvaluator struct {
	inner   ports.Evaluator
	limiter *rate.Limiter
}

// RateLimited caps simulator throughput at perSecond calls with the
// given burst. Waiting counts against the caller's context.
func RateLimited(inner ports.Evaluator, perSecond float64, burst int) ports.Evaluator {
	if perSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedEvaluator{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (e *rateLimitedEvaluator) Evaluate(ctx context.Context, vector []float64) (float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, core.NewEvaluationError(vector, "rate limiter", err)
	}
	return e.inner.Evaluate(ctx, vector)
}
