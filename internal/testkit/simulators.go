package testkit

import (
	"fmt"

	"bayescal/adapters/evaluator"
	"bayescal/domain/calibration"
)

// Simulator bundles a synthetic simulator with its parameter domain.
type Simulator struct {
	Name  string
	Specs []calibration.ParameterSpec
	Func  evaluator.SimulatorFunc
	// Optimum is the known minimizer, when there is one.
	Optimum []float64
	// MinValue is the known minimum outcome.
	MinValue float64
}

func nominal(v float64) *float64 { return &v }

// Quadratic is f(x) = 1000(x-1)^2 + 500 on [0.5, 2.0].
func Quadratic() Simulator {
	return Simulator{
		Name:  "quadratic",
		Specs: []calibration.ParameterSpec{{Name: "x", Lower: 0.5, Upper: 2.0}},
		Func: func(v []float64) (float64, error) {
			d := v[0] - 1
			return 1000*d*d + 500, nil
		},
		Optimum:  []float64{1},
		MinValue: 500,
	}
}

// Bowl is the three-parameter envelope benchmark: wall R-value, window
// U-factor and infiltration rate, with its minimum at (18, 0.28, 0.25).
func Bowl() Simulator {
	return Simulator{
		Name: "bowl",
		Specs: []calibration.ParameterSpec{
			{Name: "wall_r", Lower: 10, Upper: 20},
			{Name: "window_u", Lower: 0.25, Upper: 0.45},
			{Name: "infiltration", Lower: 0.2, Upper: 0.6},
		},
		Func: func(v []float64) (float64, error) {
			a, b, c := v[0]-18, v[1]-0.28, v[2]-0.25
			return 100*a*a + 50000*b*b + 20000*c*c + 50000, nil
		},
		Optimum:  []float64{18, 0.28, 0.25},
		MinValue: 50000,
	}
}

// BuildingEnergy is a smooth stand-in for an annual building energy
// simulation (kWh) over insulation, thermostat and infiltration multipliers.
func BuildingEnergy() Simulator {
	return Simulator{
		Name: "building_energy",
		Specs: []calibration.ParameterSpec{
			{Name: "r_value_mult", Lower: 0.6, Upper: 1.4, Nominal: nominal(1.0)},
			{Name: "thermostat_setpoint", Lower: 68, Upper: 76, Nominal: nominal(72)},
			{Name: "infiltration_mult", Lower: 0.5, Upper: 2.0, Nominal: nominal(1.0)},
		},
		Func: func(v []float64) (float64, error) {
			r, t, inf := v[0], v[1], v[2]
			envelope := 40000 / r * (0.6 + 0.4*inf)
			return 60000 + envelope + 3000*(t-68) + 25000*inf, nil
		},
	}
}

// ByName looks up a simulator for CLI use.
func ByName(name string) (Simulator, error) {
	switch name {
	case "quadratic":
		return Quadratic(), nil
	case "bowl":
		return Bowl(), nil
	case "building_energy", "building":
		return BuildingEnergy(), nil
	default:
		return Simulator{}, fmt.Errorf("unknown synthetic simulator %q", name)
	}
}

// All returns every synthetic simulator.
func All() []Simulator {
	return []Simulator{Quadratic(), Bowl(), BuildingEnergy()}
}
