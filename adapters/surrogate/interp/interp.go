// Package interp is the degraded surrogate: piecewise-linear
// interpolation in one dimension, inverse-distance weighting in more,
// with a standard deviation that grows with distance to the nearest
// training point. It is chosen explicitly, never as a silent fallback.
package interp

import (
	"context"
	"fmt"
	"math"
	"sort"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Config tunes the proxy std: Scale * (1 + DistanceGain * d).
type Config struct {
	Lower        []float64
	Upper        []float64
	Scale        float64
	DistanceGain float64
	Power        float64
}

// Fitter builds interpolation models.
type Fitter struct {
	cfg Config
}

// NewFitter creates an interpolation fitter. DistanceGain defaults to 5
// and the IDW power to 2.
func NewFitter(cfg Config) *Fitter {
	if cfg.DistanceGain <= 0 {
		cfg.DistanceGain = 5
	}
	if cfg.Power <= 0 {
		cfg.Power = 2
	}
	return &Fitter{cfg: cfg}
}

func (f *Fitter) Kind() string { return "interp" }

// Fit stores the normalized training points.
func (f *Fitter) Fit(ctx context.Context, x [][]float64, y []float64) (ports.SurrogateModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d inputs but %d outcomes", core.ErrInvalidConfig, len(x), len(y))
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, have %d", core.ErrInsufficientData, len(x))
	}
	dim := len(x[0])
	lower, upper := f.cfg.Lower, f.cfg.Upper
	if len(lower) != dim || len(upper) != dim {
		lower = make([]float64, dim)
		upper = make([]float64, dim)
		for d := 0; d < dim; d++ {
			col := make([]float64, len(x))
			for i := range x {
				col[i] = x[i][d]
			}
			lower[d], upper[d] = floats.Min(col), floats.Max(col)
		}
	}

	m := &Model{
		lower: lower,
		upper: upper,
		gain:  f.cfg.DistanceGain,
		power: f.cfg.Power,
	}
	distinct := make(map[string]struct{}, len(x))
	for i, v := range x {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", core.ErrInvalidConfig, i, len(v), dim)
		}
		m.points = append(m.points, point{u: m.normalize(v), y: y[i]})
		distinct[fmt.Sprint(v)] = struct{}{}
	}
	if len(distinct) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct points, have %d", core.ErrInsufficientData, len(distinct))
	}
	if dim == 1 {
		sort.SliceStable(m.points, func(i, j int) bool { return m.points[i].u[0] < m.points[j].u[0] })
	}

	m.scale = f.cfg.Scale
	if m.scale <= 0 {
		m.scale = stat.StdDev(y, nil)
	}
	if m.scale <= 0 || math.IsNaN(m.scale) {
		m.scale = 1
	}
	return m, nil
}

type point struct {
	u []float64
	y float64
}

// Model is a fitted interpolator.
type Model struct {
	points []point
	lower  []float64
	upper  []float64
	scale  float64
	gain   float64
	power  float64
}

func (m *Model) Kind() string { return "interp" }

// Scale is the std at a training point.
func (m *Model) Scale() float64 { return m.scale }

func (m *Model) normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	for d := range v {
		w := m.upper[d] - m.lower[d]
		if w <= 0 {
			w = 1
		}
		out[d] = (v[d] - m.lower[d]) / w
	}
	return out
}

// Predict interpolates each vector.
func (m *Model) Predict(vectors [][]float64) ([]calibration.Prediction, error) {
	dim := len(m.lower)
	out := make([]calibration.Prediction, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d entries, want %d", core.ErrInvalidConfig, i, len(v), dim)
		}
		u := m.normalize(v)
		var mean float64
		if dim == 1 {
			mean = m.linear(u[0])
		} else {
			mean = m.idw(u)
		}
		d := m.nearest(u) / math.Sqrt(float64(dim))
		out[i] = calibration.Prediction{Mean: mean, Std: m.scale * (1 + m.gain*d)}
	}
	return out, nil
}

// linear clamps to the end values outside the training range.
func (m *Model) linear(u float64) float64 {
	pts := m.points
	if u <= pts[0].u[0] {
		return pts[0].y
	}
	last := pts[len(pts)-1]
	if u >= last.u[0] {
		return last.y
	}
	j := sort.Search(len(pts), func(k int) bool { return pts[k].u[0] >= u })
	a, b := pts[j-1], pts[j]
	if b.u[0] == a.u[0] {
		return b.y
	}
	t := (u - a.u[0]) / (b.u[0] - a.u[0])
	return a.y + t*(b.y-a.y)
}

func (m *Model) idw(u []float64) float64 {
	var num, den float64
	for _, p := range m.points {
		d := floats.Distance(u, p.u, 2)
		if d == 0 {
			return p.y
		}
		w := 1 / math.Pow(d, m.power)
		num += w * p.y
		den += w
	}
	return num / den
}

func (m *Model) nearest(u []float64) float64 {
	best := math.Inf(1)
	for _, p := range m.points {
		if d := floats.Distance(u, p.u, 2); d < best {
			best = d
		}
	}
	return best
}
