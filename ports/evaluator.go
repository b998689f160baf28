package ports

import "context"

// Evaluator runs the expensive simulator for one parameter vector and
// returns the scalar outcome (e.g. annual energy in kWh). Any non-nil
// error counts as a failed evaluation; implementations should return a
// *core.EvaluationError with a reason when they can.
type Evaluator interface {
	Evaluate(ctx context.Context, vector []float64) (float64, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, vector []float64) (float64, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, vector []float64) (float64, error) {
	return f(ctx, vector)
}
