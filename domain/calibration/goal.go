package calibration

import (
	"fmt"
	"math"
	"strings"

	"bayescal/domain/core"
)

// GoalKind selects what "best" means for a run.
type GoalKind string

const (
	GoalMinimize    GoalKind = "minimize"
	GoalMatchTarget GoalKind = "match_target"
)

// Goal is minimize-the-outcome or match-a-target.
type Goal struct {
	Kind   GoalKind `json:"kind" yaml:"kind"`
	Target float64  `json:"target,omitempty" yaml:"target,omitempty"`
}

// Minimize is the default goal.
func Minimize() Goal {
	return Goal{Kind: GoalMinimize}
}

// MatchTarget builds a goal that prefers outcomes close to target.
func MatchTarget(target float64) Goal {
	return Goal{Kind: GoalMatchTarget, Target: target}
}

// ParseGoalKind maps a config string to a GoalKind.
func ParseGoalKind(s string) (GoalKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minimize", "min":
		return GoalMinimize, nil
	case "match_target", "match-target", "target":
		return GoalMatchTarget, nil
	default:
		return "", core.NewConfigError("goal", fmt.Sprintf("unknown kind %q", s))
	}
}

// Validate rejects unknown kinds and non-finite targets.
func (g Goal) Validate() error {
	switch g.Kind {
	case GoalMinimize, "":
		return nil
	case GoalMatchTarget:
		if math.IsNaN(g.Target) || math.IsInf(g.Target, 0) {
			return core.NewConfigError("goal.target", "must be finite")
		}
		return nil
	default:
		return core.NewConfigError("goal", fmt.Sprintf("unknown kind %q", g.Kind))
	}
}

// Objective maps an outcome onto the scale that is minimized:
// the outcome itself, or its absolute distance to the target.
func (g Goal) Objective(outcome float64) float64 {
	if g.Kind == GoalMatchTarget {
		return math.Abs(outcome - g.Target)
	}
	return outcome
}

// Transform rewrites surrogate predictions onto the objective scale.
// For a target goal the mean becomes the discrepancy |mean - target|
// and the std is kept.
func (g Goal) Transform(preds []Prediction) []Prediction {
	if g.Kind != GoalMatchTarget {
		return preds
	}
	out := make([]Prediction, len(preds))
	for i, p := range preds {
		out[i] = Prediction{Mean: math.Abs(p.Mean - g.Target), Std: p.Std}
	}
	return out
}
