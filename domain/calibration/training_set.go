package calibration

import (
	"fmt"
	"math"

	"bayescal/domain/core"
)

// TrainingSet is the append-only collection of successful samples.
// It never shrinks and never holds failed attempts.
type TrainingSet struct {
	specs   []ParameterSpec
	samples []Sample
}

// NewTrainingSet creates an empty set bound to specs.
func NewTrainingSet(specs []ParameterSpec) *TrainingSet {
	return &TrainingSet{specs: append([]ParameterSpec(nil), specs...)}
}

// Append adds a successful sample. Vectors outside the bounds and
// non-finite outcomes are rejected.
func (t *TrainingSet) Append(vector []float64, outcome float64) error {
	if len(vector) != len(t.specs) {
		return fmt.Errorf("%w: vector has %d entries, want %d", core.ErrInvalidSpec, len(vector), len(t.specs))
	}
	for i, v := range vector {
		if !t.specs[i].Contains(v) {
			return fmt.Errorf("%w: %s=%g not in [%g, %g]", core.ErrOutOfBounds, t.specs[i].Name, v, t.specs[i].Lower, t.specs[i].Upper)
		}
	}
	if math.IsNaN(outcome) || math.IsInf(outcome, 0) {
		return core.NewEvaluationError(vector, "non-finite outcome", nil)
	}
	t.samples = append(t.samples, Sample{
		Vector:  append([]float64(nil), vector...),
		Outcome: outcome,
	})
	return nil
}

// Len returns the number of samples.
func (t *TrainingSet) Len() int {
	return len(t.samples)
}

// Samples returns a copy of the samples in insertion order.
func (t *TrainingSet) Samples() []Sample {
	out := make([]Sample, len(t.samples))
	for i, s := range t.samples {
		out[i] = Sample{Vector: append([]float64(nil), s.Vector...), Outcome: s.Outcome}
	}
	return out
}

// X returns a copy of the input matrix, one row per sample.
func (t *TrainingSet) X() [][]float64 {
	out := make([][]float64, len(t.samples))
	for i, s := range t.samples {
		out[i] = append([]float64(nil), s.Vector...)
	}
	return out
}

// Y returns a copy of the outcomes.
func (t *TrainingSet) Y() []float64 {
	out := make([]float64, len(t.samples))
	for i, s := range t.samples {
		out[i] = s.Outcome
	}
	return out
}

// Best returns the sample with the lowest goal objective.
func (t *TrainingSet) Best(goal Goal) (Sample, bool) {
	if len(t.samples) == 0 {
		return Sample{}, false
	}
	best := 0
	for i := 1; i < len(t.samples); i++ {
		if goal.Objective(t.samples[i].Outcome) < goal.Objective(t.samples[best].Outcome) {
			best = i
		}
	}
	s := t.samples[best]
	return Sample{Vector: append([]float64(nil), s.Vector...), Outcome: s.Outcome}, true
}

// DistinctCount returns how many distinct input vectors the set holds.
func (t *TrainingSet) DistinctCount() int {
	seen := make(map[string]struct{}, len(t.samples))
	for _, s := range t.samples {
		seen[fmt.Sprint(s.Vector)] = struct{}{}
	}
	return len(seen)
}
