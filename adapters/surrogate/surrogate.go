// Package surrogate selects a surrogate implementation by name.
package surrogate

import (
	"fmt"
	"strings"

	"bayescal/adapters/surrogate/ensemble"
	"bayescal/adapters/surrogate/gp"
	"bayescal/adapters/surrogate/interp"
	"bayescal/adapters/surrogate/poly"
	"bayescal/domain/core"
	"bayescal/domain/space"
	"bayescal/ports"
)

// Kind names a surrogate choice in configuration.
type Kind string

const (
	KindGPRBF      Kind = "gp-rbf"
	KindGPMatern52 Kind = "gp-matern52"
	KindInterp     Kind = "interp"
	KindPolyRidge  Kind = "poly-ridge"
	KindEnsemble   Kind = "ensemble"
)

// Options carries the knobs shared by all kinds.
type Options struct {
	Seed     int64
	Restarts int
	Alpha    float64
	// ScoreMembers enables leave-one-out scoring for the ensemble kind.
	ScoreMembers bool
}

// New builds a fitter normalized to the space bounds.
func New(kind string, sp *space.Space, opts Options) (ports.SurrogateFitter, error) {
	lower, upper := sp.Bounds()

	gpFitter := func(kernel gp.KernelKind) *gp.Fitter {
		cfg := gp.DefaultConfig()
		cfg.Kernel = kernel
		cfg.Lower, cfg.Upper = lower, upper
		cfg.Seed = opts.Seed
		if opts.Restarts > 0 {
			cfg.Restarts = opts.Restarts
		}
		if opts.Alpha > 0 {
			cfg.Alpha = opts.Alpha
		}
		return gp.NewFitter(cfg)
	}

	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", "gp", KindGPRBF:
		return gpFitter(gp.KernelRBF), nil
	case KindGPMatern52, "matern52":
		return gpFitter(gp.KernelMatern52), nil
	case KindInterp, "interpolation", "linear":
		return interp.NewFitter(interp.Config{Lower: lower, Upper: upper}), nil
	case KindPolyRidge, "poly", "quadratic":
		return poly.NewFitter(poly.Config{Lower: lower, Upper: upper}), nil
	case KindEnsemble:
		f, err := ensemble.NewFitter(ensemble.Config{ScoreMembers: opts.ScoreMembers},
			ensemble.Member{Fitter: gpFitter(gp.KernelRBF), Weight: 1},
			ensemble.Member{Fitter: gpFitter(gp.KernelMatern52), Weight: 1},
			ensemble.Member{Fitter: poly.NewFitter(poly.Config{Lower: lower, Upper: upper}), Weight: 1},
		)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, core.NewConfigError("surrogate", fmt.Sprintf("unknown kind %q", kind))
	}
}
