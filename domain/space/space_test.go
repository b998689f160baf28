package space

import (
	"math/rand"
	"testing"

	"bayescal/domain/calibration"
	"bayescal/domain/core"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calibrationSpecs() []calibration.ParameterSpec {
	return []calibration.ParameterSpec{
		{Name: "r_value_mult", Lower: 0.6, Upper: 1.4},
		{Name: "thermostat_setpoint", Lower: 68, Upper: 76},
		{Name: "infiltration_mult", Lower: 0.5, Upper: 2.0},
	}
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []calibration.ParameterSpec
	}{
		{"empty", nil},
		{"lower equals upper", []calibration.ParameterSpec{{Name: "x", Lower: 1, Upper: 1}}},
		{"lower above upper", []calibration.ParameterSpec{{Name: "x", Lower: 2, Upper: 1}}},
		{"duplicate", []calibration.ParameterSpec{{Name: "x", Lower: 0, Upper: 1}, {Name: "x", Lower: 0, Upper: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs)
			assert.ErrorIs(t, err, core.ErrInvalidSpec)
		})
	}
}

func TestDesignsStayInBounds(t *testing.T) {
	s, err := New(calibrationSpecs())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 2, 10, 200} {
		design, err := s.InitialDesign(n, rng)
		require.NoError(t, err)
		require.Len(t, design, n)
		for _, v := range design {
			if !s.Contains(v) {
				t.Fatalf("initial design point %v outside bounds", v)
			}
		}

		uniform, err := s.UniformSample(n, rng)
		require.NoError(t, err)
		for _, v := range uniform {
			if !s.Contains(v) {
				t.Fatalf("uniform point %v outside bounds", v)
			}
		}
	}
}

func TestInitialDesignCoversEveryStratum(t *testing.T) {
	s, err := New([]calibration.ParameterSpec{{Name: "x", Lower: 0.5, Upper: 2.0}})
	require.NoError(t, err)

	const n = 20
	design, err := s.InitialDesign(n, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	hits := make([]int, n)
	for _, v := range design {
		u := (v[0] - 0.5) / 1.5
		stratum := int(u * n)
		if stratum == n {
			stratum = n - 1
		}
		hits[stratum]++
	}
	for i, h := range hits {
		if h != 1 {
			t.Errorf("stratum %d holds %d points, want exactly 1", i, h)
		}
	}
}

func TestInitialDesignStratifiesEachDimension(t *testing.T) {
	s, err := New(calibrationSpecs())
	require.NoError(t, err)

	const n = 12
	design, err := s.InitialDesign(n, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	for d, spec := range s.Specs() {
		seen := make(map[int]bool)
		for _, v := range design {
			stratum := int((v[d] - spec.Lower) / spec.Width() * n)
			if stratum == n {
				stratum = n - 1
			}
			seen[stratum] = true
		}
		assert.Len(t, seen, n, "dimension %s", spec.Name)
	}
}

func TestDesignIsSeedDeterministic(t *testing.T) {
	s, err := New(calibrationSpecs())
	require.NoError(t, err)

	a, err := s.InitialDesign(15, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	b, err := s.InitialDesign(15, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different designs (-a +b):\n%s", diff)
	}
}

func TestInvalidSampleSizes(t *testing.T) {
	s, err := New(calibrationSpecs())
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	_, err = s.InitialDesign(0, rng)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
	_, err = s.UniformSample(-1, rng)
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
}

func TestNormalizeRoundTrip(t *testing.T) {
	s, err := New(calibrationSpecs())
	require.NoError(t, err)

	v := []float64{1.0, 72, 1.25}
	u := s.Normalize(v)
	want := []float64{0.5, 0.5, 0.5}
	if diff := cmp.Diff(want, u, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("normalize mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(v, s.Denormalize(u), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("denormalize mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, s.Midpoint(), s.Denormalize(want))
	assert.Equal(t, []float64{0.6, 76, 1.0}, s.Clamp([]float64{0.1, 80, 1.0}))

	i, ok := s.Index("thermostat_setpoint")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, []float64{72}, Column([][]float64{v}, 1))
}
