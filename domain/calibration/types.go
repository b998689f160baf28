package calibration

import (
	"fmt"
	"math"
	"time"

	"bayescal/domain/core"
)

// ParameterSpec is one uncertain simulator input and its admissible range.
type ParameterSpec struct {
	Name  string  `json:"name" yaml:"name"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	// Nominal is the value the parameter takes when nothing is wrong
	// (e.g. a leakage multiplier of 1.0). Optional.
	Nominal *float64 `json:"nominal,omitempty" yaml:"nominal,omitempty"`
}

// Validate checks lower < upper and finite bounds.
func (p ParameterSpec) Validate() error {
	if p.Name == "" {
		return core.NewSpecError("<unnamed>", "parameter name is required")
	}
	if math.IsNaN(p.Lower) || math.IsInf(p.Lower, 0) || math.IsNaN(p.Upper) || math.IsInf(p.Upper, 0) {
		return core.NewSpecError(p.Name, "bounds must be finite")
	}
	if p.Lower >= p.Upper {
		return core.NewSpecError(p.Name, fmt.Sprintf("lower %g must be below upper %g", p.Lower, p.Upper))
	}
	if p.Nominal != nil && (*p.Nominal < p.Lower || *p.Nominal > p.Upper) {
		return core.NewSpecError(p.Name, fmt.Sprintf("nominal %g outside [%g, %g]", *p.Nominal, p.Lower, p.Upper))
	}
	return nil
}

// Width returns upper - lower.
func (p ParameterSpec) Width() float64 {
	return p.Upper - p.Lower
}

// Contains reports whether v lies in the closed interval.
func (p ParameterSpec) Contains(v float64) bool {
	return v >= p.Lower && v <= p.Upper
}

// Phase tags where an attempt came from.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseIteration Phase = "iteration"
)

// RunState is the active learning loop state.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateInitializing RunState = "initializing"
	StateIterating    RunState = "iterating"
	StateExhausted    RunState = "exhausted"
	// StateConverged is reserved; the loop only stops on budget exhaustion.
	StateConverged RunState = "converged"
	StateFailed    RunState = "failed"
)

// IsTerminal reports whether no further attempts will be made.
func (s RunState) IsTerminal() bool {
	return s == StateExhausted || s == StateConverged || s == StateFailed
}

// Sample is a successful evaluation.
type Sample struct {
	Vector  []float64 `json:"vector"`
	Outcome float64   `json:"outcome"`
}

// AttemptRecord is one evaluation attempt, successful or not.
type AttemptRecord struct {
	Index    int           `json:"index"`
	Phase    Phase         `json:"phase"`
	Vector   []float64     `json:"vector"`
	Outcome  float64       `json:"outcome"`
	Failed   bool          `json:"failed"`
	Reason   string        `json:"reason,omitempty"`
	Score    float64       `json:"score"`
	Best     float64       `json:"best"`
	Duration time.Duration `json:"duration"`
}

// Prediction is a surrogate's predictive mean and standard deviation.
type Prediction struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Variance returns Std squared.
func (p Prediction) Variance() float64 {
	return p.Std * p.Std
}

// IsFinite reports whether both moments are finite.
func (p Prediction) IsFinite() bool {
	return !math.IsNaN(p.Mean) && !math.IsInf(p.Mean, 0) &&
		!math.IsNaN(p.Std) && !math.IsInf(p.Std, 0)
}
