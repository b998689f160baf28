// Package testkit holds synthetic simulators and evaluator doubles used
// by tests and demos.
package testkit

import (
	"context"
	"errors"
	"sync"

	"bayescal/adapters/evaluator"
	"bayescal/adapters/rng"
	"bayescal/ports"
)

// RNGAdapter returns the seeded RNG port.
func RNGAdapter() ports.RNGPort {
	return rng.NewSeededAdapter()
}

// ErrSimulatorCrash is returned by FailingAbove.
var ErrSimulatorCrash = errors.New("simulator crashed")

// FailingAbove fails whenever parameter dim exceeds threshold.
func FailingAbove(fn evaluator.SimulatorFunc, dim int, threshold float64) evaluator.SimulatorFunc {
	return func(v []float64) (float64, error) {
		if v[dim] > threshold {
			return 0, ErrSimulatorCrash
		}
		return fn(v)
	}
}

// CountingEvaluator records every call. Safe for concurrent use.
type CountingEvaluator struct {
	inner ports.Evaluator

	mu      sync.Mutex
	calls   int
	vectors [][]float64
}

// NewCountingEvaluator wraps fn.
func NewCountingEvaluator(fn evaluator.SimulatorFunc) *CountingEvaluator {
	return &CountingEvaluator{inner: evaluator.FromFunc(fn)}
}

// Evaluate implements ports.Evaluator
func (c *CountingEvaluator) Evaluate(ctx context.Context, vector []float64) (float64, error) {
	c.mu.Lock()
	c.calls++
	c.vectors = append(c.vectors, append([]float64(nil), vector...))
	c.mu.Unlock()
	return c.inner.Evaluate(ctx, vector)
}

// Calls returns the number of Evaluate calls.
func (c *CountingEvaluator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Vectors returns every vector seen, in call order.
func (c *CountingEvaluator) Vectors() [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]float64, len(c.vectors))
	copy(out, c.vectors)
	return out
}
