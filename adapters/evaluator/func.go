// Package evaluator provides ports.Evaluator implementations and
// decorators around the expensive simulator.
package evaluator

import (
	"context"
	"math"

	"bayescal/domain/core"
	"bayescal/ports"
)

// SimulatorFunc is a plain simulator: parameters in, scalar out.
type SimulatorFunc func(vector []float64) (float64, error)

type funcEvaluator struct {
	fn SimulatorFunc
}

// FromFunc wraps fn. Errors and non-finite outcomes become
// *core.EvaluationError.
func FromFunc(fn SimulatorFunc) ports.Evaluator {
	return &funcEvaluator{fn: fn}
}

func (e *funcEvaluator) Evaluate(ctx context.Context, vector []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.NewEvaluationError(vector, "cancelled", err)
	}
	y, err := e.fn(vector)
	if err != nil {
		if _, ok := core.AsEvaluationError(err); ok {
			return 0, err
		}
		return 0, core.NewEvaluationError(vector, "simulator error", err)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, core.NewEvaluationError(vector, "unusable scalar", nil)
	}
	return y, nil
}
