// Package space describes the bounded parameter domain and generates
// designs inside it.
package space

import (
	"fmt"
	"math/rand"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
)

// Space is an ordered set of parameter specs. It is immutable after New.
type Space struct {
	specs []calibration.ParameterSpec
	index map[string]int
}

// New validates the specs and builds a Space.
func New(specs []calibration.ParameterSpec) (*Space, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one parameter is required", core.ErrInvalidSpec)
	}
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[s.Name]; dup {
			return nil, core.NewSpecError(s.Name, "duplicate parameter name")
		}
		index[s.Name] = i
	}
	return &Space{
		specs: append([]calibration.ParameterSpec(nil), specs...),
		index: index,
	}, nil
}

// Dim returns the number of parameters.
func (s *Space) Dim() int {
	return len(s.specs)
}

// Specs returns a copy of the parameter specs.
func (s *Space) Specs() []calibration.ParameterSpec {
	return append([]calibration.ParameterSpec(nil), s.specs...)
}

// Names returns parameter names in order.
func (s *Space) Names() []string {
	names := make([]string, len(s.specs))
	for i, spec := range s.specs {
		names[i] = spec.Name
	}
	return names
}

// Index returns the position of the named parameter.
func (s *Space) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Bounds returns the lower and upper bound vectors.
func (s *Space) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(s.specs))
	upper = make([]float64, len(s.specs))
	for i, spec := range s.specs {
		lower[i] = spec.Lower
		upper[i] = spec.Upper
	}
	return lower, upper
}

// BoundsByName is the map form used for fingerprints and reports.
func (s *Space) BoundsByName() map[string][2]float64 {
	out := make(map[string][2]float64, len(s.specs))
	for _, spec := range s.specs {
		out[spec.Name] = [2]float64{spec.Lower, spec.Upper}
	}
	return out
}

// Contains reports whether v has the right length and lies inside every bound.
func (s *Space) Contains(v []float64) bool {
	if len(v) != len(s.specs) {
		return false
	}
	for i, spec := range s.specs {
		if !spec.Contains(v[i]) {
			return false
		}
	}
	return true
}

// Clamp returns a copy of v pulled into the bounds.
func (s *Space) Clamp(v []float64) []float64 {
	out := make([]float64, len(s.specs))
	for i, spec := range s.specs {
		x := v[i]
		if x < spec.Lower {
			x = spec.Lower
		} else if x > spec.Upper {
			x = spec.Upper
		}
		out[i] = x
	}
	return out
}

// Normalize maps v onto the unit cube.
func (s *Space) Normalize(v []float64) []float64 {
	out := make([]float64, len(s.specs))
	for i, spec := range s.specs {
		out[i] = (v[i] - spec.Lower) / spec.Width()
	}
	return out
}

// Denormalize maps a unit-cube point back into the bounds.
func (s *Space) Denormalize(u []float64) []float64 {
	out := make([]float64, len(s.specs))
	for i, spec := range s.specs {
		out[i] = spec.Lower + u[i]*spec.Width()
	}
	return out
}

// Midpoint returns the center of the box.
func (s *Space) Midpoint() []float64 {
	out := make([]float64, len(s.specs))
	for i, spec := range s.specs {
		out[i] = spec.Lower + 0.5*spec.Width()
	}
	return out
}

// InitialDesign draws an n-point Latin hypercube: for every dimension
// each of the n equal-width strata holds exactly one point.
func (s *Space) InitialDesign(n int, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: initial design size must be positive, got %d", core.ErrInvalidSpec, n)
	}
	design := make([][]float64, n)
	for i := range design {
		design[i] = make([]float64, len(s.specs))
	}
	for d := range s.specs {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			u := (float64(perm[i]) + rng.Float64()) / float64(n)
			design[i][d] = u
		}
	}
	for i, u := range design {
		design[i] = s.Clamp(s.Denormalize(u))
	}
	return design, nil
}

// UniformSample draws n points independently and uniformly inside the bounds.
func (s *Space) UniformSample(n int, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample size must be positive, got %d", core.ErrInvalidSpec, n)
	}
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, len(s.specs))
		for d, spec := range s.specs {
			v[d] = spec.Lower + rng.Float64()*spec.Width()
		}
		out[i] = v
	}
	return out, nil
}

// Column extracts dimension d from a set of vectors.
func Column(vectors [][]float64, d int) []float64 {
	out := make([]float64, len(vectors))
	for i, v := range vectors {
		out[i] = v[d]
	}
	return out
}
