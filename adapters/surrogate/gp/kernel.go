package gp

import (
	"fmt"
	"math"
	"strings"

	"bayescal/domain/core"
)

// KernelKind selects the stationary covariance function.
type KernelKind string

const (
	KernelRBF      KernelKind = "rbf"
	KernelMatern52 KernelKind = "matern52"
)

// ParseKernel maps a config string to a KernelKind.
func ParseKernel(s string) (KernelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rbf", "squared_exponential", "se":
		return KernelRBF, nil
	case "matern52", "matern", "matern-5/2":
		return KernelMatern52, nil
	default:
		return "", core.NewConfigError("kernel", fmt.Sprintf("unknown kernel %q", s))
	}
}

// kernel evaluates amplitude * k(r) for ARD length scales.
type kernel struct {
	kind         KernelKind
	amplitude    float64
	lengthScales []float64
}

func (k kernel) eval(a, b []float64) float64 {
	var r2 float64
	for d := range a {
		diff := (a[d] - b[d]) / k.lengthScales[d]
		r2 += diff * diff
	}
	switch k.kind {
	case KernelMatern52:
		r := math.Sqrt(r2)
		s5r := math.Sqrt(5) * r
		return k.amplitude * (1 + s5r + 5*r2/3) * math.Exp(-s5r)
	default:
		return k.amplitude * math.Exp(-0.5*r2)
	}
}
