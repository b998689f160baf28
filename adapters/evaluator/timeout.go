package evaluator

import (
	"context"
	"errors"
	"time"

	"bayescal/domain/core"
	"bayescal/ports"
)

type timeoutEvaluator struct {
	inner   ports.Evaluator
	timeout time.Duration
}

// WithTimeout bounds every call. An expired deadline cancels the inner
// call and is reported as a failed evaluation. Evaluate does not return
// until the inner call has, so calls made through one caller never
// overlap even when the simulator ignores cancellation. A non-positive
// timeout returns inner.
func WithTimeout(inner ports.Evaluator, timeout time.Duration) ports.Evaluator {
	if timeout <= 0 {
		return inner
	}
	return &timeoutEvaluator{inner: inner, timeout: timeout}
}

func (e *timeoutEvaluator) Evaluate(ctx context.Context, vector []float64) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		y   float64
		err error
	}
	done := make(chan result, 1)
	go func() {
		y, err := e.inner.Evaluate(callCtx, vector)
		done <- result{y, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, core.NewEvaluationError(vector, "timeout", r.err)
		}
		return r.y, r.err
	case <-callCtx.Done():
		// the simulator may share a working directory with the next run
		<-done
		if ctx.Err() != nil {
			return 0, core.NewEvaluationError(vector, "cancelled", ctx.Err())
		}
		return 0, core.NewEvaluationError(vector, "timeout", callCtx.Err())
	}
}
